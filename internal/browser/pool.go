package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
)

const managedBy = "browserbase-chat"

// Instance is a running Chrome container reachable over CDP
type Instance struct {
	ContainerID string
	Name        string
	ConnectURL  string
	Port        string
	UserDataDir string
}

// Pool launches browserless Chrome containers through the local docker daemon
type Pool struct {
	client *client.Client
	image  string
}

// NewPool creates a docker backed browser pool
func NewPool(imageName string) (*Pool, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Pool{
		client: cli,
		image:  imageName,
	}, nil
}

// LaunchOptions configures a single browser container
type LaunchOptions struct {
	// Name labels the container, usually the group it serves
	Name        string
	UserDataDir string
}

// LaunchBrowser starts a container and waits until its CDP endpoint answers
func (p *Pool) LaunchBrowser(ctx context.Context, opts LaunchOptions) (*Instance, error) {
	userDataDir := opts.UserDataDir
	if userDataDir == "" {
		userDataDir = filepath.Join(os.TempDir(), "browser-data", opts.Name)
		if err := os.MkdirAll(userDataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create user data directory: %w", err)
		}
	}

	containerConfig := &container.Config{
		Image: p.image,
		Labels: map[string]string{
			"group":      opts.Name,
			"managed-by": managedBy,
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",
			"MAX_CONCURRENT_SESSIONS=1",
			"PREBOOT_CHROME=true",
			"KEEP_ALIVE=true",
			"EXIT_ON_HEALTH_FAILURE=false",
		},
		ExposedPorts: nat.PortSet{
			"3000/tcp": struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			"3000/tcp": []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: "0",
				},
			},
		},
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: userDataDir,
				Target: "/data",
			},
		},
	}

	resp, err := p.client.ContainerCreate(
		ctx,
		containerConfig,
		hostConfig,
		nil,
		nil,
		fmt.Sprintf("browserchat-%s-%s", opts.Name, uuid.NewString()[:8]),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.removeQuietly(resp.ID)
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := p.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		p.removeQuietly(resp.ID)
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	bindings := inspect.NetworkSettings.Ports["3000/tcp"]
	if len(bindings) == 0 {
		p.removeQuietly(resp.ID)
		return nil, fmt.Errorf("container %s exposes no CDP port", resp.ID[:12])
	}
	port := bindings[0].HostPort

	if err := p.waitForBrowserReady(ctx, port); err != nil {
		p.removeQuietly(resp.ID)
		return nil, fmt.Errorf("browser failed to become ready: %w", err)
	}

	return &Instance{
		ContainerID: resp.ID,
		Name:        opts.Name,
		ConnectURL:  fmt.Sprintf("ws://127.0.0.1:%s", port),
		Port:        port,
		UserDataDir: userDataDir,
	}, nil
}

// StopBrowser stops and removes a container
func (p *Pool) StopBrowser(ctx context.Context, containerID string) error {
	timeout := 10
	if err := p.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}

	if err := p.client.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}

	return nil
}

// IsHealthy reports whether the container is still running
func (p *Pool) IsHealthy(ctx context.Context, containerID string) bool {
	inspect, err := p.client.ContainerInspect(ctx, containerID)
	if err != nil {
		return false
	}
	return inspect.State.Running
}

// EnsureImage pulls the browser image when it is not present locally
func (p *Pool) EnsureImage(ctx context.Context) error {
	images, err := p.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return err
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == p.image {
				return nil
			}
		}
	}

	reader, err := p.client.ImagePull(ctx, p.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// RemoveStale removes containers left behind by a previous process
func (p *Pool) RemoveStale(ctx context.Context) (int, error) {
	list, err := p.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", "managed-by="+managedBy)),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list containers: %w", err)
	}

	removed := 0
	for _, c := range list {
		if err := p.client.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Close releases the docker client
func (p *Pool) Close() error {
	return p.client.Close()
}

func (p *Pool) removeQuietly(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = p.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}

// waitForBrowserReady polls the /json/version endpoint until Chrome answers
func (p *Pool) waitForBrowserReady(ctx context.Context, port string) error {
	url := fmt.Sprintf("http://127.0.0.1:%s/json/version", port)
	maxRetries := 40 // 20 seconds total (40 * 500ms)

	for i := 0; i < maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				// Give the websocket endpoint a moment after the HTTP one
				time.Sleep(500 * time.Millisecond)
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	return fmt.Errorf("browser did not become ready after %d retries", maxRetries)
}
