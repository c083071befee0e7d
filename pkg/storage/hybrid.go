package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/reportforge/reportforge/pkg/config"
	"github.com/reportforge/reportforge/pkg/models"
)

// Store is the hybrid artifact store. Writes go to the primary and fall
// back to local storage when the primary fails; the backend that took
// the write is returned so it can be recorded on the artifact row and
// consulted first on reads.
type Store struct {
	primary  Backend // nil when primary is disabled
	fallback Backend
	presign  time.Duration
	logger   *slog.Logger
}

// NewStore builds the hybrid store from config.
func NewStore(cfg *config.StorageConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fallback, err := NewLocalBackend(cfg.LocalDir, cfg.LocalBaseURL)
	if err != nil {
		return nil, err
	}

	store := &Store{fallback: fallback, presign: cfg.PresignTTL, logger: logger}
	if cfg.PrimaryIsEnabled() {
		primary, err := NewS3Backend(cfg.S3)
		if err != nil {
			return nil, err
		}
		store.primary = primary
	}
	return store, nil
}

// NewStoreWithBackends wires explicit backends, for tests.
func NewStoreWithBackends(primary, fallback Backend, presign time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{primary: primary, fallback: fallback, presign: presign, logger: logger}
}

// Put stores an artifact and reports which backend holds it.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (models.StorageBackend, error) {
	if s.primary != nil {
		err := s.primary.Put(ctx, key, data, contentType)
		if err == nil {
			return s.primary.Kind(), nil
		}
		s.logger.Warn("primary storage write failed, falling back",
			"key", key, "error", err)
	}

	if err := s.fallback.Put(ctx, key, data, contentType); err != nil {
		return "", fmt.Errorf("fallback storage write: %w", err)
	}
	return s.fallback.Kind(), nil
}

// Get reads an artifact, consulting the recorded backend first and the
// other one second. Returns which backend actually served it.
func (s *Store) Get(ctx context.Context, key string, recorded models.StorageBackend) (io.ReadCloser, models.StorageBackend, error) {
	first, second := s.order(recorded)

	reader, err := first.Get(ctx, key)
	if err == nil {
		return reader, first.Kind(), nil
	}
	if second == nil {
		return nil, "", err
	}

	if !errors.Is(err, ErrNotFound) {
		s.logger.Warn("storage read failed, trying other backend",
			"key", key, "backend", first.Kind(), "error", err)
	}

	reader, err2 := second.Get(ctx, key)
	if err2 == nil {
		return reader, second.Kind(), nil
	}
	if errors.Is(err, ErrNotFound) && errors.Is(err2, ErrNotFound) {
		return nil, "", ErrNotFound
	}
	return nil, "", errors.Join(err, err2)
}

// PresignedURL returns a download URL for the artifact from the backend
// that holds it.
func (s *Store) PresignedURL(ctx context.Context, key string, recorded models.StorageBackend) (string, error) {
	backend := s.backendFor(recorded)
	if backend == nil {
		return "", fmt.Errorf("no backend for %q", recorded)
	}
	return backend.PresignedURL(ctx, key, s.presign)
}

// Delete removes the artifact from both backends, best effort.
func (s *Store) Delete(ctx context.Context, key string) error {
	var errs []error
	if s.primary != nil {
		if err := s.primary.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if err := s.fallback.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// PrimaryEnabled reports whether a primary backend is configured.
func (s *Store) PrimaryEnabled() bool {
	return s.primary != nil
}

func (s *Store) order(recorded models.StorageBackend) (Backend, Backend) {
	if recorded == models.StorageBackendFallback || s.primary == nil {
		if s.primary == nil {
			return s.fallback, nil
		}
		return s.fallback, s.primary
	}
	return s.primary, s.fallback
}

func (s *Store) backendFor(recorded models.StorageBackend) Backend {
	if recorded == models.StorageBackendPrimary {
		return s.primary
	}
	return s.fallback
}
