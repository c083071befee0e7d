package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/reportforge/reportforge/pkg/models"
	"github.com/reportforge/reportforge/pkg/store"
)

// ProgressRecorder is the pipeline's single writer of progress for one
// execution. It owns the sequence counter (strictly increasing), clamps
// percent so it never decreases, keeps the execution row's status and
// progress in step with the event stream, and publishes each event.
//
// Publishing is best-effort: a failed event write is logged and does not
// fail the pipeline. The execution row remains the source of truth.
type ProgressRecorder struct {
	executionID string
	taskID      string
	executions  *store.ExecutionStore
	publisher   *Publisher

	mu          sync.Mutex
	seq         int
	lastPercent int
	terminal    bool
}

// NewProgressRecorder creates a recorder for one execution run.
func NewProgressRecorder(executionID, taskID string, executions *store.ExecutionStore, publisher *Publisher) *ProgressRecorder {
	return &ProgressRecorder{
		executionID: executionID,
		taskID:      taskID,
		executions:  executions,
		publisher:   publisher,
	}
}

// Record advances the execution to (status, percent) and emits a
// progress event. Percent below the recorded high-water mark is clamped
// up; recording after a terminal event is a no-op.
func (r *ProgressRecorder) Record(ctx context.Context, status models.ExecutionStatus, stage models.Stage, percent int, message string, details map[string]any) {
	r.mu.Lock()
	if r.terminal {
		r.mu.Unlock()
		return
	}
	if percent < r.lastPercent {
		percent = r.lastPercent
	}
	r.lastPercent = percent
	r.seq++
	seq := r.seq
	r.mu.Unlock()

	if err := r.executions.UpdateProgress(ctx, r.executionID, status, percent); err != nil {
		if errors.Is(err, store.ErrTerminal) {
			return
		}
		slog.Warn("Failed to update execution progress",
			"execution_id", r.executionID, "error", err)
	}

	if err := r.publisher.PublishProgress(ctx, ProgressPayload{
		ExecutionID: r.executionID,
		Seq:         seq,
		Status:      status,
		Stage:       stage,
		Percent:     percent,
		Message:     message,
		Details:     details,
		Timestamp:   time.Now().Format(time.RFC3339Nano),
	}); err != nil {
		slog.Warn("Failed to publish progress event",
			"execution_id", r.executionID, "seq", seq, "error", err)
	}
}

// RecordTerminal finishes the execution in a terminal status, emits the
// final event, and seals the recorder. The first terminal outcome wins;
// later calls are no-ops.
func (r *ProgressRecorder) RecordTerminal(ctx context.Context, status models.ExecutionStatus, result *models.ExecutionResultBlob, execErr string) {
	r.mu.Lock()
	if r.terminal {
		r.mu.Unlock()
		return
	}
	r.terminal = true
	percent := r.lastPercent
	if status == models.ExecutionStatusCompleted {
		percent = 100
		r.lastPercent = 100
	}
	r.seq++
	seq := r.seq
	r.mu.Unlock()

	if err := r.executions.FinishTerminal(ctx, r.executionID, status, result, execErr); err != nil {
		if errors.Is(err, store.ErrTerminal) {
			// Lost the race to another finisher (cancel vs. finish); the
			// row keeps the first outcome and we skip the event.
			return
		}
		slog.Error("Failed to finish execution",
			"execution_id", r.executionID, "status", status, "error", err)
	}

	now := time.Now().Format(time.RFC3339Nano)
	progress := ProgressPayload{
		ExecutionID: r.executionID,
		Seq:         seq,
		Status:      status,
		Stage:       models.StageFinalize,
		Percent:     percent,
		Message:     "execution " + string(status),
		Error:       execErr,
		Timestamp:   now,
	}
	statusPayload := StatusPayload{
		ExecutionID: r.executionID,
		TaskID:      r.taskID,
		Status:      status,
		Percent:     percent,
		Error:       execErr,
		Timestamp:   now,
	}
	if err := r.publisher.PublishStatus(ctx, progress, statusPayload); err != nil {
		slog.Warn("Failed to publish terminal event",
			"execution_id", r.executionID, "error", err)
	}
}

// Terminal reports whether a terminal event was recorded.
func (r *ProgressRecorder) Terminal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminal
}

// Seq returns the last issued sequence number.
func (r *ProgressRecorder) Seq() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}
