package events

import (
	"github.com/reportforge/reportforge/pkg/models"
)

// ProgressPayload is the wire form of one progress event. Seq is unique
// and strictly increasing per execution; Percent never decreases across
// a run.
type ProgressPayload struct {
	Type        string                 `json:"type"` // always EventTypeProgress
	ExecutionID string                 `json:"execution_id"`
	Seq         int                    `json:"seq"`
	Status      models.ExecutionStatus `json:"status"`
	Stage       models.Stage           `json:"stage"`
	Percent     int                    `json:"progress"`
	Message     string                 `json:"message,omitempty"`
	Details     map[string]any         `json:"details,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Timestamp   string                 `json:"timestamp"` // RFC3339Nano
}

// StatusPayload is the wire form of an execution lifecycle transition.
type StatusPayload struct {
	Type        string                 `json:"type"` // always EventTypeStatus
	ExecutionID string                 `json:"execution_id"`
	TaskID      string                 `json:"task_id"`
	Status      models.ExecutionStatus `json:"status"`
	Percent     int                    `json:"progress"`
	Error       string                 `json:"error,omitempty"`
	Timestamp   string                 `json:"timestamp"` // RFC3339Nano
}
