package profile

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when a group has no saved profile
var ErrNotFound = errors.New("profile not found")

// Info describes the saved profile of one group
type Info struct {
	Group     string    `json:"group"`
	SizeBytes int64     `json:"sizeBytes"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Manager persists Chrome user-data directories per group so cookies and
// logins survive browser restarts
type Manager struct {
	storePath string // archives: <storePath>/<group>.tar.gz
	workPath  string // extracted profiles mounted into browsers
	mu        sync.Mutex
}

// NewManager creates a profile manager rooted at storePath
func NewManager(storePath string) (*Manager, error) {
	if err := os.MkdirAll(storePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	workPath := filepath.Join(storePath, "live")
	if err := os.MkdirAll(workPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	return &Manager{
		storePath: storePath,
		workPath:  workPath,
	}, nil
}

func (m *Manager) archivePath(group string) string {
	return filepath.Join(m.storePath, group+".tar.gz")
}

// Restore prepares a user-data directory for group, extracting the saved
// archive when one exists
func (m *Manager) Restore(group string) (string, error) {
	if err := validGroup(group); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dir := filepath.Join(m.workPath, group)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("failed to clear profile directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create profile directory: %w", err)
	}

	archive := m.archivePath(group)
	if _, err := os.Stat(archive); os.IsNotExist(err) {
		return dir, nil
	}

	if err := extractDirectory(archive, dir); err != nil {
		return "", fmt.Errorf("failed to extract profile: %w", err)
	}

	return dir, nil
}

// Save archives userDataDir as the profile for group
func (m *Manager) Save(group, userDataDir string) error {
	if err := validGroup(group); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tmp := m.archivePath(group) + ".tmp"
	if err := compressDirectory(userDataDir, tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to compress profile: %w", err)
	}

	return os.Rename(tmp, m.archivePath(group))
}

// Get returns metadata about the saved profile for group
func (m *Manager) Get(group string) (*Info, error) {
	if err := validGroup(group); err != nil {
		return nil, err
	}

	stat, err := os.Stat(m.archivePath(group))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &Info{
		Group:     group,
		SizeBytes: stat.Size(),
		UpdatedAt: stat.ModTime(),
	}, nil
}

// Delete removes the saved profile for group
func (m *Manager) Delete(group string) error {
	if err := validGroup(group); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.archivePath(group)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return os.RemoveAll(filepath.Join(m.workPath, group))
}

func validGroup(group string) error {
	if group == "" || strings.ContainsAny(group, `/\`) || group == "." || group == ".." {
		return fmt.Errorf("invalid group name %q", group)
	}
	return nil
}

// compressDirectory creates a tar.gz archive of a directory
func compressDirectory(source, target string) error {
	file, err := os.Create(target)
	if err != nil {
		return err
	}
	defer file.Close()

	gzWriter := gzip.NewWriter(file)
	defer gzWriter.Close()

	tarWriter := tar.NewWriter(gzWriter)
	defer tarWriter.Close()

	return filepath.Walk(source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		// Chrome leaves lock sockets and symlinks behind
		if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}

		header, err := tar.FileInfoHeader(info, info.Name())
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tarWriter, f)
		return err
	})
}

// extractDirectory extracts a tar.gz archive into target
func extractDirectory(source, target string) error {
	file, err := os.Open(source)
	if err != nil {
		return err
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return err
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		targetPath := filepath.Join(target, filepath.FromSlash(header.Name))
		rel, err := filepath.Rel(target, targetPath)
		if err != nil || strings.HasPrefix(rel, "..") {
			return fmt.Errorf("archive entry escapes profile: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
				return err
			}

			outFile, err := os.Create(targetPath)
			if err != nil {
				return err
			}

			if _, err := io.Copy(outFile, tarReader); err != nil {
				outFile.Close()
				return err
			}
			outFile.Close()
		}
	}

	return nil
}
