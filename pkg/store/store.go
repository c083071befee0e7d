// Package store contains the hand-written PostgreSQL repositories.
// Each store owns the SQL for one aggregate; JSONB columns carry the
// schemaless blobs (recipients, agent_config, result).
package store

import (
	"database/sql"
	"errors"
)

// Sentinel errors shared by all stores.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTerminal indicates a mutation was attempted on an execution in
	// a terminal status. Terminal rows are immutable.
	ErrTerminal = errors.New("execution is terminal")

	// ErrHasActiveExecutions indicates a task cannot be deleted while
	// executions are pending or running.
	ErrHasActiveExecutions = errors.New("task has active executions")
)

// ValidationError reports a request that failed store-level validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Field + ": " + e.Message
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Stores bundles all repositories over one connection pool.
type Stores struct {
	Tasks        *TaskStore
	Templates    *TemplateStore
	Placeholders *PlaceholderStore
	Executions   *ExecutionStore
	Artifacts    *ArtifactStore
}

// New builds the store bundle.
func New(db *sql.DB) *Stores {
	return &Stores{
		Tasks:        NewTaskStore(db),
		Templates:    NewTemplateStore(db),
		Placeholders: NewPlaceholderStore(db),
		Executions:   NewExecutionStore(db),
		Artifacts:    NewArtifactStore(db),
	}
}
