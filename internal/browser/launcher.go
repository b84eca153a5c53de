package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

// Handle is an opened page together with the CDP endpoint that serves it
type Handle struct {
	Page       Page
	ConnectURL string
}

// Launcher opens the long-lived page a group's session runs on
type Launcher interface {
	Open(ctx context.Context, group string) (*Handle, error)
	// Render loads url in a throwaway page and returns the rendered HTML.
	Render(ctx context.Context, url string) (string, error)
	Close() error
}

// ProfileStore keeps Chrome user-data directories between launches
type ProfileStore interface {
	Restore(group string) (string, error)
	Save(group, userDataDir string) error
}

// DockerLauncher runs one browserless container per group
type DockerLauncher struct {
	pool     *Pool
	profiles ProfileStore
	log      zerolog.Logger

	renderMu   sync.Mutex
	renderInst *Instance
	renderer   *rod.Browser
}

// NewDockerLauncher creates a launcher backed by pool. profiles may be nil.
func NewDockerLauncher(pool *Pool, profiles ProfileStore, log zerolog.Logger) *DockerLauncher {
	return &DockerLauncher{
		pool:     pool,
		profiles: profiles,
		log:      log.With().Str("component", "launcher").Logger(),
	}
}

func (l *DockerLauncher) Open(ctx context.Context, group string) (*Handle, error) {
	opts := LaunchOptions{Name: group}
	if l.profiles != nil {
		dir, err := l.profiles.Restore(group)
		if err != nil {
			l.log.Warn().Err(err).Str("group", group).Msg("profile restore failed, starting fresh")
		} else {
			opts.UserDataDir = dir
		}
	}

	inst, err := l.pool.LaunchBrowser(ctx, opts)
	if err != nil {
		return nil, err
	}

	b, page, err := connectPage(inst.ConnectURL)
	if err != nil {
		l.stop(inst)
		return nil, err
	}

	onClose := func() error {
		_ = b.Close()
		if l.profiles != nil {
			if err := l.profiles.Save(group, inst.UserDataDir); err != nil {
				l.log.Warn().Err(err).Str("group", group).Msg("profile save failed")
			}
		}
		return l.stop(inst)
	}

	l.log.Info().Str("group", group).Str("container", inst.ContainerID[:12]).Msg("browser launched")
	return &Handle{Page: NewRodPage(page, onClose), ConnectURL: inst.ConnectURL}, nil
}

func (l *DockerLauncher) Render(ctx context.Context, url string) (string, error) {
	b, err := l.renderBrowser(ctx)
	if err != nil {
		return "", err
	}
	return render(ctx, b, url)
}

func (l *DockerLauncher) renderBrowser(ctx context.Context) (*rod.Browser, error) {
	l.renderMu.Lock()
	defer l.renderMu.Unlock()

	if l.renderer != nil {
		if l.pool.IsHealthy(ctx, l.renderInst.ContainerID) {
			return l.renderer, nil
		}
		l.log.Warn().Msg("render browser exited, relaunching")
		_ = l.renderer.Close()
		l.renderer = nil
		_ = l.stop(l.renderInst)
		l.renderInst = nil
	}

	inst, err := l.pool.LaunchBrowser(ctx, LaunchOptions{Name: "catalog"})
	if err != nil {
		return nil, err
	}
	b := rod.New().ControlURL(inst.ConnectURL)
	if err := b.Connect(); err != nil {
		l.stop(inst)
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	l.renderInst = inst
	l.renderer = b
	return b, nil
}

func (l *DockerLauncher) Close() error {
	l.renderMu.Lock()
	defer l.renderMu.Unlock()

	if l.renderer != nil {
		_ = l.renderer.Close()
		l.renderer = nil
	}
	if l.renderInst != nil {
		err := l.stop(l.renderInst)
		l.renderInst = nil
		return err
	}
	return nil
}

func (l *DockerLauncher) stop(inst *Instance) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return l.pool.StopBrowser(ctx, inst.ContainerID)
}

// RemoteLauncher attaches to an already running Chrome and isolates each
// group in its own incognito context.
type RemoteLauncher struct {
	controlURL string
	log        zerolog.Logger

	mu      sync.Mutex
	browser *rod.Browser
}

// NewRemoteLauncher creates a launcher for the CDP endpoint at controlURL
func NewRemoteLauncher(controlURL string, log zerolog.Logger) *RemoteLauncher {
	return &RemoteLauncher{
		controlURL: controlURL,
		log:        log.With().Str("component", "launcher").Logger(),
	}
}

func (l *RemoteLauncher) connect() (*rod.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.browser != nil {
		if _, err := l.browser.Version(); err == nil {
			return l.browser, nil
		}
		l.log.Warn().Msg("stale browser connection detected, reconnecting")
		l.browser = nil
	}

	b := rod.New().ControlURL(l.controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	l.browser = b
	return b, nil
}

func (l *RemoteLauncher) Open(ctx context.Context, group string) (*Handle, error) {
	b, err := l.connect()
	if err != nil {
		return nil, err
	}

	incognito, err := b.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	page, err := incognito.Context(context.Background()).Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}

	l.log.Info().Str("group", group).Msg("page attached")
	return &Handle{
		Page:       NewRodPage(page, incognito.Close),
		ConnectURL: l.controlURL,
	}, nil
}

func (l *RemoteLauncher) Render(ctx context.Context, url string) (string, error) {
	b, err := l.connect()
	if err != nil {
		return "", err
	}
	incognito, err := b.Incognito()
	if err != nil {
		return "", fmt.Errorf("incognito context: %w", err)
	}
	defer incognito.Close()
	return render(ctx, incognito, url)
}

// Close drops the connection without shutting down the remote Chrome
func (l *RemoteLauncher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.browser = nil
	return nil
}

func connectPage(controlURL string) (*rod.Browser, *rod.Page, error) {
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, nil, fmt.Errorf("connect to chrome: %w", err)
	}
	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		return nil, nil, fmt.Errorf("create page: %w", err)
	}
	return b, page, nil
}

func render(ctx context.Context, b *rod.Browser, url string) (string, error) {
	if b == nil {
		return "", errors.New("browser not connected")
	}
	page, err := b.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	p := NewRodPage(page, nil)
	defer p.Close()

	if err := p.Navigate(ctx, url); err != nil {
		return "", err
	}
	return p.HTML(ctx)
}
