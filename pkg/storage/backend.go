// Package storage persists report artifacts. The hybrid store writes to
// an S3-compatible primary and falls back to the local filesystem when
// the primary is down, remembering per object which backend holds it.
package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/reportforge/reportforge/pkg/models"
)

// ErrNotFound marks a missing object.
var ErrNotFound = errors.New("object not found")

// ErrPrimaryUnavailable marks a primary backend that is down or has its
// circuit open.
var ErrPrimaryUnavailable = errors.New("primary storage unavailable")

// Backend is one artifact store.
type Backend interface {
	// Kind tags which role this backend plays.
	Kind() models.StorageBackend

	// Put writes an object.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get reads an object.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes an object. Deleting a missing object is not an
	// error.
	Delete(ctx context.Context, key string) error

	// PresignedURL returns a time-limited download URL.
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
