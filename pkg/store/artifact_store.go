package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reportforge/reportforge/pkg/models"
)

// ArtifactStore persists report artifact records. The DOCX bytes live in
// hybrid storage under ObjectKey; rows here are the index.
type ArtifactStore struct {
	db *sql.DB
}

// NewArtifactStore creates an ArtifactStore.
func NewArtifactStore(db *sql.DB) *ArtifactStore {
	return &ArtifactStore{db: db}
}

// Create inserts an artifact record.
func (s *ArtifactStore) Create(ctx context.Context, a *models.ReportArtifact) error {
	if a.ExecutionID == "" {
		return NewValidationError("ExecutionID", "required")
	}
	if a.ObjectKey == "" {
		return NewValidationError("ObjectKey", "required")
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO report_artifacts (id, execution_id, object_key, size, backend, friendly_name, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.ExecutionID, a.ObjectKey, a.Size, a.Backend, a.FriendlyName, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create artifact: %w", err)
	}
	return nil
}

// GetByExecution returns the artifact produced by an execution.
func (s *ArtifactStore) GetByExecution(ctx context.Context, executionID string) (*models.ReportArtifact, error) {
	var a models.ReportArtifact
	err := s.db.QueryRowContext(ctx,
		`SELECT id, execution_id, object_key, size, backend, friendly_name, created_at
		 FROM report_artifacts WHERE execution_id = $1
		 ORDER BY created_at DESC LIMIT 1`, executionID).
		Scan(&a.ID, &a.ExecutionID, &a.ObjectKey, &a.Size, &a.Backend, &a.FriendlyName, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return &a, nil
}
