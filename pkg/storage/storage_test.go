package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reportforge/reportforge/pkg/models"
)

func TestObjectKey(t *testing.T) {
	date := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	template := "reports/{tenant}/{slug}/{date}-{name}.docx"

	key := ObjectKey(template, "Acme Corp", "monthly-sales", "Sales Report", date)
	assert.Equal(t, "reports/acme-corp/monthly-sales/2024-02-01-sales-report.docx", key)

	// Same inputs, same key.
	again := ObjectKey(template, "Acme Corp", "monthly-sales", "Sales Report", date)
	assert.Equal(t, key, again)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "acme-corp", Slugify("Acme Corp"))
	assert.Equal(t, "q1_report", Slugify("Q1_Report"))
	assert.Equal(t, "unnamed", Slugify("///"))
	assert.Equal(t, "report", Slugify("  report  "))
}

func TestLocalBackendRoundTrip(t *testing.T) {
	backend, err := NewLocalBackend(t.TempDir(), "/artifacts")
	require.NoError(t, err)
	ctx := context.Background()

	payload := []byte("docx bytes")
	require.NoError(t, backend.Put(ctx, "reports/acme/r/2024-02-01-x.docx", payload, "application/octet-stream"))

	reader, err := backend.Get(ctx, "reports/acme/r/2024-02-01-x.docx")
	require.NoError(t, err)
	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())
	assert.Equal(t, payload, got)

	url, err := backend.PresignedURL(ctx, "reports/acme/r/2024-02-01-x.docx", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "/artifacts/reports/acme/r/2024-02-01-x.docx", url)

	require.NoError(t, backend.Delete(ctx, "reports/acme/r/2024-02-01-x.docx"))
	_, err = backend.Get(ctx, "reports/acme/r/2024-02-01-x.docx")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is fine.
	assert.NoError(t, backend.Delete(ctx, "reports/acme/r/2024-02-01-x.docx"))
}

func TestLocalBackendRejectsTraversal(t *testing.T) {
	backend, err := NewLocalBackend(t.TempDir(), "/artifacts")
	require.NoError(t, err)

	err = backend.Put(context.Background(), "../escape", []byte("x"), "")
	assert.Error(t, err)
}

// memBackend is an in-memory backend with a switchable failure mode.
type memBackend struct {
	kind    models.StorageBackend
	objects map[string][]byte
	down    bool
}

func newMemBackend(kind models.StorageBackend) *memBackend {
	return &memBackend{kind: kind, objects: make(map[string][]byte)}
}

func (m *memBackend) Kind() models.StorageBackend { return m.kind }

func (m *memBackend) Put(_ context.Context, key string, data []byte, _ string) error {
	if m.down {
		return ErrPrimaryUnavailable
	}
	m.objects[key] = data
	return nil
}

func (m *memBackend) Get(_ context.Context, key string) (io.ReadCloser, error) {
	if m.down {
		return nil, ErrPrimaryUnavailable
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memBackend) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memBackend) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if m.down {
		return "", ErrPrimaryUnavailable
	}
	return "https://" + string(m.kind) + "/" + key, nil
}

func TestHybridPutPrefersPrimary(t *testing.T) {
	primary := newMemBackend(models.StorageBackendPrimary)
	fallback := newMemBackend(models.StorageBackendFallback)
	store := NewStoreWithBackends(primary, fallback, time.Minute, nil)

	backend, err := store.Put(context.Background(), "k", []byte("v"), "")
	require.NoError(t, err)
	assert.Equal(t, models.StorageBackendPrimary, backend)
	assert.Contains(t, primary.objects, "k")
	assert.NotContains(t, fallback.objects, "k")
}

func TestHybridPutFallsBackWhenPrimaryDown(t *testing.T) {
	primary := newMemBackend(models.StorageBackendPrimary)
	primary.down = true
	fallback := newMemBackend(models.StorageBackendFallback)
	store := NewStoreWithBackends(primary, fallback, time.Minute, nil)

	backend, err := store.Put(context.Background(), "k", []byte("v"), "")
	require.NoError(t, err)
	assert.Equal(t, models.StorageBackendFallback, backend)
	assert.Contains(t, fallback.objects, "k")
}

func TestHybridGetTriesRecordedBackendFirst(t *testing.T) {
	primary := newMemBackend(models.StorageBackendPrimary)
	fallback := newMemBackend(models.StorageBackendFallback)
	fallback.objects["k"] = []byte("from-fallback")
	store := NewStoreWithBackends(primary, fallback, time.Minute, nil)

	reader, served, err := store.Get(context.Background(), "k", models.StorageBackendFallback)
	require.NoError(t, err)
	defer reader.Close()
	assert.Equal(t, models.StorageBackendFallback, served)

	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, []byte("from-fallback"), got)
}

func TestHybridGetFallsAcrossBackends(t *testing.T) {
	primary := newMemBackend(models.StorageBackendPrimary)
	primary.down = true
	fallback := newMemBackend(models.StorageBackendFallback)
	fallback.objects["k"] = []byte("v")
	store := NewStoreWithBackends(primary, fallback, time.Minute, nil)

	// Recorded as primary, but primary is down; the read still succeeds.
	reader, served, err := store.Get(context.Background(), "k", models.StorageBackendPrimary)
	require.NoError(t, err)
	defer reader.Close()
	assert.Equal(t, models.StorageBackendFallback, served)
}

func TestHybridGetMissingEverywhere(t *testing.T) {
	store := NewStoreWithBackends(
		newMemBackend(models.StorageBackendPrimary),
		newMemBackend(models.StorageBackendFallback),
		time.Minute, nil)

	_, _, err := store.Get(context.Background(), "nope", models.StorageBackendPrimary)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHybridFallbackOnlyDeployment(t *testing.T) {
	fallback := newMemBackend(models.StorageBackendFallback)
	store := NewStoreWithBackends(nil, fallback, time.Minute, nil)

	backend, err := store.Put(context.Background(), "k", []byte("v"), "")
	require.NoError(t, err)
	assert.Equal(t, models.StorageBackendFallback, backend)

	_, served, err := store.Get(context.Background(), "k", models.StorageBackendFallback)
	require.NoError(t, err)
	assert.Equal(t, models.StorageBackendFallback, served)
	assert.False(t, store.PrimaryEnabled())
}

func TestHybridPresignedURLUsesRecordedBackend(t *testing.T) {
	primary := newMemBackend(models.StorageBackendPrimary)
	fallback := newMemBackend(models.StorageBackendFallback)
	store := NewStoreWithBackends(primary, fallback, time.Minute, nil)

	url, err := store.PresignedURL(context.Background(), "k", models.StorageBackendPrimary)
	require.NoError(t, err)
	assert.Equal(t, "https://primary/k", url)

	url, err = store.PresignedURL(context.Background(), "k", models.StorageBackendFallback)
	require.NoError(t, err)
	assert.Equal(t, "https://fallback/k", url)
}

func TestErrPrimaryUnavailableIsSentinel(t *testing.T) {
	err := errors.Join(ErrPrimaryUnavailable, errors.New("dial tcp"))
	assert.ErrorIs(t, err, ErrPrimaryUnavailable)
}
