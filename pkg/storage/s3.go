package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sony/gobreaker"

	"github.com/reportforge/reportforge/pkg/config"
	"github.com/reportforge/reportforge/pkg/models"
)

// S3Backend is the primary artifact store over any S3-compatible
// endpoint. A circuit breaker wraps every call so a dead object store
// fails fast into the fallback instead of stalling report runs.
type S3Backend struct {
	client  *minio.Client
	bucket  string
	breaker *gobreaker.CircuitBreaker
}

// NewS3Backend creates the backend. Credentials come from the
// environment variables named in the config.
func NewS3Backend(cfg *config.S3Config) (*S3Backend, error) {
	if cfg == nil || cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 config requires endpoint and bucket")
	}

	accessKey := os.Getenv(envOr(cfg.AccessKeyEnv, "S3_ACCESS_KEY"))
	secretKey := os.Getenv(envOr(cfg.SecretKeyEnv, "S3_SECRET_KEY"))

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "s3:" + cfg.Bucket,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &S3Backend{client: client, bucket: cfg.Bucket, breaker: breaker}, nil
}

func (b *S3Backend) Kind() models.StorageBackend {
	return models.StorageBackendPrimary
}

func (b *S3Backend) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := b.breaker.Execute(func() (any, error) {
		_, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: contentType,
		})
		return nil, err
	})
	return b.wrap(err)
}

func (b *S3Backend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return nil, err
		}
		// GetObject is lazy; Stat forces the first request so missing
		// objects surface here, not on first read.
		if _, err := obj.Stat(); err != nil {
			obj.Close()
			return nil, err
		}
		return obj, nil
	})
	if err != nil {
		if isMissing(err) {
			return nil, ErrNotFound
		}
		return nil, b.wrap(err)
	}
	return result.(io.ReadCloser), nil
}

func (b *S3Backend) Delete(ctx context.Context, key string) error {
	_, err := b.breaker.Execute(func() (any, error) {
		return nil, b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{})
	})
	if isMissing(err) {
		return nil
	}
	return b.wrap(err)
}

func (b *S3Backend) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		return b.client.PresignedGetObject(ctx, b.bucket, key, ttl, url.Values{})
	})
	if err != nil {
		return "", b.wrap(err)
	}
	return result.(*url.URL).String(), nil
}

// wrap folds breaker-open and transport errors into
// ErrPrimaryUnavailable so the hybrid store can branch on one sentinel.
func (b *S3Backend) wrap(err error) error {
	if err == nil {
		return nil
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("%w: circuit open", ErrPrimaryUnavailable)
	}
	if isMissing(err) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrPrimaryUnavailable, err)
}

func isMissing(err error) bool {
	if err == nil {
		return false
	}
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
}

func envOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}
