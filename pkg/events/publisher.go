package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Publisher writes progress events and broadcasts them for WebSocket
// delivery. Persistent events go into execution_events and are announced
// via NOTIFY in the same transaction, so the insert and the broadcast
// are atomic (pg_notify is transactional and fires on COMMIT).
type Publisher struct {
	db *sql.DB
}

// NewPublisher creates a Publisher over the shared connection pool.
func NewPublisher(db *sql.DB) *Publisher {
	return &Publisher{db: db}
}

// PublishProgress persists a progress event and broadcasts it on the
// execution channel. The UNIQUE (execution_id, seq) index makes retried
// publishes after a partial failure safe.
func (p *Publisher) PublishProgress(ctx context.Context, payload ProgressPayload) error {
	payload.Type = EventTypeProgress
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal progress payload: %w", err)
	}

	var details []byte
	if payload.Details != nil {
		details, err = json.Marshal(payload.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal progress details: %w", err)
		}
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin event transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO execution_events (execution_id, seq, status, stage, percent, message, error, details)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		payload.ExecutionID, payload.Seq, payload.Status, payload.Stage, payload.Percent,
		payload.Message, payload.Error, nullIfEmpty(details))
	if err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}

	notifyPayload, err := truncateIfNeeded(payloadJSON)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)",
		ExecutionChannel(payload.ExecutionID), notifyPayload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event transaction: %w", err)
	}
	return nil
}

// PublishStatus persists a status transition on the execution channel and
// mirrors a transient copy to the global executions channel. Both sends
// are best-effort; the first error is returned.
func (p *Publisher) PublishStatus(ctx context.Context, progress ProgressPayload, status StatusPayload) error {
	var firstErr error
	if err := p.PublishProgress(ctx, progress); err != nil {
		slog.Warn("Failed to publish status to execution channel",
			"execution_id", status.ExecutionID, "status", status.Status, "error", err)
		firstErr = err
	}

	status.Type = EventTypeStatus
	statusJSON, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status payload: %w", err)
	}
	if err := p.notifyOnly(ctx, GlobalExecutionsChannel, statusJSON); err != nil {
		slog.Warn("Failed to publish status to global channel",
			"execution_id", status.ExecutionID, "status", status.Status, "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PublishStatusOnly broadcasts a status transition on the global channel
// without persisting a progress event. Used by the orphan janitor, where
// the row is already terminal and no sequence counter is live.
func (p *Publisher) PublishStatusOnly(ctx context.Context, status StatusPayload) error {
	status.Type = EventTypeStatus
	statusJSON, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status payload: %w", err)
	}
	return p.notifyOnly(ctx, GlobalExecutionsChannel, statusJSON)
}

// notifyOnly broadcasts without persistence. Used for transient events
// that list pages can afford to miss.
func (p *Publisher) notifyOnly(ctx context.Context, channel string, payloadJSON []byte) error {
	notifyPayload, err := truncateIfNeeded(payloadJSON)
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// notifyLimit leaves headroom under PostgreSQL's 8000-byte NOTIFY cap.
const notifyLimit = 7900

// truncateIfNeeded returns the payload as-is when it fits the NOTIFY
// limit, otherwise a minimal envelope with only the routing fields the
// client needs to fetch the full event via catchup.
func truncateIfNeeded(payloadJSON []byte) (string, error) {
	if len(payloadJSON) <= notifyLimit {
		return string(payloadJSON), nil
	}

	var routing struct {
		Type        string `json:"type"`
		ExecutionID string `json:"execution_id"`
		Seq         int    `json:"seq"`
	}
	if err := json.Unmarshal(payloadJSON, &routing); err != nil {
		return "", fmt.Errorf("failed to extract routing fields for truncation: %w", err)
	}

	truncated, err := json.Marshal(map[string]any{
		"type":         routing.Type,
		"execution_id": routing.ExecutionID,
		"seq":          routing.Seq,
		"truncated":    true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal truncated payload: %w", err)
	}
	return string(truncated), nil
}

func nullIfEmpty(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
