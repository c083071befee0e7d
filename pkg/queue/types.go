// Package queue polls for pending executions, claims them with
// database-level locks, and drives them through the pipeline. Every
// replica runs the same pool; coordination happens entirely in the
// task_executions table.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/reportforge/reportforge/pkg/models"
)

// ErrNoExecutions signals an empty queue; workers back off and poll
// again.
var ErrNoExecutions = errors.New("no pending executions")

// ErrAtCapacity signals the global concurrent-execution limit is
// reached.
var ErrAtCapacity = errors.New("at max concurrent executions")

// Executor runs one claimed execution to a terminal state. Implemented
// by the pipeline; tests substitute fakes.
type Executor interface {
	Run(ctx context.Context, exec *models.TaskExecution) error
}

// WorkerStatus is a worker's current state.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth is one worker's health snapshot, surfaced on the health
// endpoint.
type WorkerHealth struct {
	ID                 string       `json:"id"`
	Status             WorkerStatus `json:"status"`
	CurrentExecutionID string       `json:"current_execution_id,omitempty"`
	Processed          int          `json:"processed"`
	LastActivity       time.Time    `json:"last_activity"`
}

// executionRegistry is the subset of the pool workers use to register
// in-flight executions for API-triggered cancellation.
type executionRegistry interface {
	RegisterExecution(executionID string, cancel context.CancelFunc)
	UnregisterExecution(executionID string)
}
