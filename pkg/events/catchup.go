package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/reportforge/reportforge/pkg/models"
)

// CatchupStore answers catchup queries from execution_events. Catchup is
// only meaningful for execution channels; the global channel is
// transient by design and returns nothing.
type CatchupStore struct {
	db *sql.DB
}

// NewCatchupStore creates a CatchupStore.
func NewCatchupStore(db *sql.DB) *CatchupStore {
	return &CatchupStore{db: db}
}

// GetCatchupEvents returns persisted events on a channel with seq greater
// than sinceSeq, oldest first, reconstructed into the same wire shape the
// live NOTIFY path uses.
func (s *CatchupStore) GetCatchupEvents(ctx context.Context, channel string, sinceSeq, limit int) ([]CatchupEvent, error) {
	executionID, ok := strings.CutPrefix(channel, "execution:")
	if !ok {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, status, stage, percent, message, error, details, at
		 FROM execution_events
		 WHERE execution_id = $1 AND seq > $2
		 ORDER BY seq
		 LIMIT $3`,
		executionID, sinceSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query catchup events: %w", err)
	}
	defer rows.Close()

	var out []CatchupEvent
	for rows.Next() {
		var (
			payload ProgressPayload
			details []byte
			at      time.Time
		)
		if err := rows.Scan(&payload.Seq, &payload.Status, &payload.Stage,
			&payload.Percent, &payload.Message, &payload.Error, &details, &at); err != nil {
			return nil, fmt.Errorf("failed to scan catchup event: %w", err)
		}
		payload.Type = EventTypeProgress
		payload.ExecutionID = executionID
		payload.Timestamp = at.Format(time.RFC3339Nano)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &payload.Details); err != nil {
				return nil, fmt.Errorf("failed to decode event details: %w", err)
			}
		}
		out = append(out, CatchupEvent{Seq: payload.Seq, Payload: payload})
	}
	return out, rows.Err()
}

// ListEvents returns all persisted events for an execution, for the REST
// history endpoint.
func (s *CatchupStore) ListEvents(ctx context.Context, executionID string) ([]models.ExecutionEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, seq, stage, percent, message, details, at
		 FROM execution_events WHERE execution_id = $1 ORDER BY seq`, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []models.ExecutionEvent
	for rows.Next() {
		var e models.ExecutionEvent
		var details []byte
		if err := rows.Scan(&e.ID, &e.ExecutionID, &e.Seq, &e.Stage, &e.Percent,
			&e.Message, &details, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to decode event details: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes events past the retention window for terminal
// executions. Live executions keep their history regardless of age.
func (s *CatchupStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM execution_events
		 WHERE at < $1 AND execution_id IN (
		   SELECT id FROM task_executions WHERE status IN ('completed', 'failed', 'cancelled'))`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}
	return res.RowsAffected()
}
