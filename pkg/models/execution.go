package models

import "time"

// TaskExecution is a single run of a task. Created pending by a trigger,
// claimed by a queue worker, advanced through the pipeline phases, and
// finished in a terminal status. Terminal rows are immutable.
type TaskExecution struct {
	ID        string          `json:"id"`
	TaskID    string          `json:"task_id"`
	TriggerID string          `json:"trigger_id"` // idempotency key per trigger
	Status    ExecutionStatus `json:"status"`
	Progress  int             `json:"progress"` // 0..100, non-decreasing

	// Claim bookkeeping for multi-replica coordination.
	PodID           *string    `json:"pod_id,omitempty"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	Result *ExecutionResultBlob `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ExecutionResultBlob is the structured result detail persisted on the
// execution row (JSONB). Fallback paths always record their reason here
// for auditability.
type ExecutionResultBlob struct {
	ArtifactKey        string            `json:"artifact_key,omitempty"`
	ArtifactBackend    StorageBackend    `json:"artifact_backend,omitempty"`
	FailedPlaceholders []string          `json:"failed_placeholders,omitempty"`
	FallbackReasons    map[string]string `json:"fallback_reasons,omitempty"`
	LastSQLAttempts    map[string]string `json:"last_sql_attempts,omitempty"`
	PlaceholderCount   int               `json:"placeholder_count,omitempty"`
	SucceededCount     int               `json:"succeeded_count,omitempty"`
}

// ExecutionEvent is one structured progress record, ordered by Seq within
// an execution. Append-only.
type ExecutionEvent struct {
	ID          int64          `json:"id"`
	ExecutionID string         `json:"execution_id"`
	Seq         int            `json:"seq"`
	Stage       Stage          `json:"stage"`
	Percent     int            `json:"percent"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	At          time.Time      `json:"at"`
}

// ReportArtifact is the delivered DOCX. Immutable once written.
type ReportArtifact struct {
	ID           string         `json:"id"`
	ExecutionID  string         `json:"execution_id"`
	ObjectKey    string         `json:"object_key"`
	Size         int64          `json:"size"`
	Backend      StorageBackend `json:"backend"`
	FriendlyName string         `json:"friendly_name"`
	CreatedAt    time.Time      `json:"created_at"`
}

// TriggerContext identifies what caused an execution. The ID is the
// idempotency key: repeated triggers with the same (task, ID) inside the
// dedup TTL return the existing execution.
type TriggerContext struct {
	ID     string `json:"id"`
	Source string `json:"source"` // "cron", "manual", "api"
}

// ExecutionFilters contains filtering options for listing executions.
type ExecutionFilters struct {
	TaskID string          `json:"task_id,omitempty"`
	Status ExecutionStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}
