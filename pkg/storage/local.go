package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/reportforge/reportforge/pkg/models"
)

// LocalBackend stores artifacts on the local filesystem. It is the
// fallback of the hybrid store and the only backend in primary-disabled
// deployments.
type LocalBackend struct {
	root    string
	baseURL string
}

// NewLocalBackend creates the backend, creating the root directory if
// needed.
func NewLocalBackend(root, baseURL string) (*LocalBackend, error) {
	if root == "" {
		return nil, fmt.Errorf("local storage root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalBackend{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (b *LocalBackend) Kind() models.StorageBackend {
	return models.StorageBackendFallback
}

func (b *LocalBackend) Put(_ context.Context, key string, data []byte, _ string) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	// Write-then-rename keeps readers from ever seeing a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("finalize artifact: %w", err)
	}
	return nil
}

func (b *LocalBackend) Get(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := b.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (b *LocalBackend) Delete(_ context.Context, key string) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// PresignedURL returns the path the local HTTP surface serves artifacts
// under. No signature and no expiry; access control is the API's job.
func (b *LocalBackend) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if _, err := b.path(key); err != nil {
		return "", err
	}
	return b.baseURL + "/" + key, nil
}

// path maps a key to a filesystem path, rejecting traversal.
func (b *LocalBackend) path(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty object key")
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid object key %q", key)
		}
	}
	return filepath.Join(b.root, filepath.Clean("/"+key)), nil
}
