package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reportforge/reportforge/pkg/models"
)

// ExecutionStore persists task executions. It also implements the
// multi-replica claim protocol: pending rows are claimed with
// FOR UPDATE SKIP LOCKED, claimed rows carry a pod ID and heartbeat,
// and rows whose heartbeat goes stale are swept back to failed.
type ExecutionStore struct {
	db *sql.DB
}

// NewExecutionStore creates an ExecutionStore.
func NewExecutionStore(db *sql.DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

const executionColumns = `id, task_id, trigger_id, status, progress, pod_id,
	last_heartbeat_at, started_at, finished_at, result, error, created_at`

// Create inserts a pending execution for a trigger. Triggers are
// idempotent on (task_id, trigger_id): if an execution already exists for
// the pair, the existing row is returned and created reports false.
func (s *ExecutionStore) Create(ctx context.Context, taskID string, trigger models.TriggerContext) (exec *models.TaskExecution, created bool, err error) {
	if taskID == "" {
		return nil, false, NewValidationError("TaskID", "required")
	}
	if trigger.ID == "" {
		return nil, false, NewValidationError("TriggerID", "required")
	}

	e := &models.TaskExecution{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		TriggerID: trigger.ID,
		Status:    models.ExecutionStatusPending,
		CreatedAt: time.Now(),
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO task_executions (id, task_id, trigger_id, status, progress, created_at)
		 VALUES ($1, $2, $3, $4, 0, $5)
		 ON CONFLICT (task_id, trigger_id) DO NOTHING`,
		e.ID, e.TaskID, e.TriggerID, e.Status, e.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create execution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		existing, err := s.GetByTrigger(ctx, taskID, trigger.ID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return e, true, nil
}

// Get retrieves an execution by ID.
func (s *ExecutionStore) Get(ctx context.Context, id string) (*models.TaskExecution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM task_executions WHERE id = $1`, id)
	return scanExecution(row)
}

// GetByTrigger retrieves the execution for a (task, trigger) pair.
func (s *ExecutionStore) GetByTrigger(ctx context.Context, taskID, triggerID string) (*models.TaskExecution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM task_executions
		 WHERE task_id = $1 AND trigger_id = $2`, taskID, triggerID)
	return scanExecution(row)
}

// List returns executions matching the filters, newest first.
func (s *ExecutionStore) List(ctx context.Context, f models.ExecutionFilters) ([]*models.TaskExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM task_executions WHERE 1=1`
	args := []any{}
	if f.TaskID != "" {
		args = append(args, f.TaskID)
		query += fmt.Sprintf(` AND task_id = $%d`, len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var out []*models.TaskExecution
	for rows.Next() {
		e, err := scanExecutionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ClaimNext atomically claims the oldest pending execution for this pod.
// At most one pending execution per task is claimable at a time: pending
// rows for tasks that already have a running execution are skipped, so
// executions of the same task serialize. Returns ErrNotFound when
// nothing is claimable.
func (s *ExecutionStore) ClaimNext(ctx context.Context, podID string) (*models.TaskExecution, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	row := tx.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM task_executions e
		 WHERE e.status = 'pending'
		   AND NOT EXISTS (
		     SELECT 1 FROM task_executions r
		     WHERE r.task_id = e.task_id
		       AND r.status NOT IN ('pending', 'completed', 'failed', 'cancelled')
		   )
		 ORDER BY e.created_at
		 FOR UPDATE SKIP LOCKED
		 LIMIT 1`)
	e, err := scanExecution(row)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx,
		`UPDATE task_executions
		 SET status = 'scanning', pod_id = $2, started_at = $3, last_heartbeat_at = $3
		 WHERE id = $1`,
		e.ID, podID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to claim execution: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	e.Status = models.ExecutionStatusScanning
	e.PodID = &podID
	e.StartedAt = &now
	e.LastHeartbeatAt = &now
	return e, nil
}

// Heartbeat refreshes the claim heartbeat for a non-terminal execution.
func (s *ExecutionStore) Heartbeat(ctx context.Context, id, podID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE task_executions SET last_heartbeat_at = now()
		 WHERE id = $1 AND pod_id = $2
		   AND status NOT IN ('completed', 'failed', 'cancelled')`,
		id, podID)
	if err != nil {
		return fmt.Errorf("failed to heartbeat execution: %w", err)
	}
	return requireRow(res)
}

// UpdateProgress advances status and progress. Progress never moves
// backwards and terminal rows are never touched.
func (s *ExecutionStore) UpdateProgress(ctx context.Context, id string, status models.ExecutionStatus, progress int) error {
	if !status.IsValid() {
		return NewValidationError("Status", "unknown value "+string(status))
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE task_executions
		 SET status = $2, progress = GREATEST(progress, $3)
		 WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')`,
		id, status, progress)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.notFoundOrTerminal(ctx, id)
	}
	return nil
}

// FinishTerminal moves an execution to a terminal status with its result
// and error detail. A second terminal transition returns ErrTerminal; the
// first outcome wins.
func (s *ExecutionStore) FinishTerminal(ctx context.Context, id string, status models.ExecutionStatus, result *models.ExecutionResultBlob, execErr string) error {
	if !status.IsTerminal() {
		return NewValidationError("Status", "not a terminal status: "+string(status))
	}
	var blob []byte
	if result != nil {
		var err error
		blob, err = json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
	}
	progress := 100
	if status != models.ExecutionStatusCompleted {
		progress = -1 // keep current progress on failure/cancel
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE task_executions
		 SET status = $2, progress = CASE WHEN $3 >= 0 THEN $3 ELSE progress END,
		     result = $4, error = $5, finished_at = now()
		 WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')`,
		id, status, progress, nullIfEmpty(blob), execErr)
	if err != nil {
		return fmt.Errorf("failed to finish execution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.notFoundOrTerminal(ctx, id)
	}
	return nil
}

// RequestCancel marks a pending execution cancelled immediately, or flags
// the row so the running pipeline observes the request at its next phase
// boundary. Cancelling a terminal execution is a no-op.
func (s *ExecutionStore) RequestCancel(ctx context.Context, id string) error {
	// Pending rows have no worker to observe the flag; cancel directly.
	res, err := s.db.ExecContext(ctx,
		`UPDATE task_executions
		 SET status = 'cancelled', finished_at = now(), error = 'cancelled before start'
		 WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("failed to cancel execution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	// Running rows: record the request; the pipeline polls CancelRequested.
	res, err = s.db.ExecContext(ctx,
		`UPDATE task_executions SET error = 'cancel requested'
		 WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')`, id)
	if err != nil {
		return fmt.Errorf("failed to request cancel: %w", err)
	}
	n, err = res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Terminal already; cancellation after the fact is not an error.
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// CancelRequested reports whether a cancel request is recorded for a
// still-running execution.
func (s *ExecutionStore) CancelRequested(ctx context.Context, id string) (bool, error) {
	var status models.ExecutionStatus
	var errText string
	err := s.db.QueryRowContext(ctx,
		`SELECT status, error FROM task_executions WHERE id = $1`, id).
		Scan(&status, &errText)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to read execution: %w", err)
	}
	return status == models.ExecutionStatusCancelled || errText == "cancel requested", nil
}

// SweepOrphans fails executions whose heartbeat is older than threshold.
// Returns the IDs swept so callers can emit terminal events for them.
func (s *ExecutionStore) SweepOrphans(ctx context.Context, threshold time.Duration) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`UPDATE task_executions
		 SET status = 'failed', finished_at = now(),
		     error = 'orphaned: worker heartbeat stale'
		 WHERE status NOT IN ('pending', 'completed', 'failed', 'cancelled')
		   AND last_heartbeat_at < now() - $1::interval
		 RETURNING id`,
		fmt.Sprintf("%d seconds", int(threshold.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("failed to sweep orphans: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

// CleanupStartupOrphans fails any execution this pod left in-flight after
// an unclean restart. Called once at boot before workers start.
func (s *ExecutionStore) CleanupStartupOrphans(ctx context.Context, podID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`UPDATE task_executions
		 SET status = 'failed', finished_at = now(),
		     error = 'orphaned: pod restarted mid-execution'
		 WHERE pod_id = $1
		   AND status NOT IN ('pending', 'completed', 'failed', 'cancelled')
		 RETURNING id`, podID)
	if err != nil {
		return nil, fmt.Errorf("failed to clean up startup orphans: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

// CountActive returns the number of non-terminal executions.
func (s *ExecutionStore) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM task_executions
		 WHERE status NOT IN ('completed', 'failed', 'cancelled')`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active executions: %w", err)
	}
	return n, nil
}

// DeleteOlderThan removes terminal executions past the retention window.
// Events cascade; artifacts rows are removed first.
func (s *ExecutionStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin retention tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`DELETE FROM report_artifacts WHERE execution_id IN (
		   SELECT id FROM task_executions
		   WHERE status IN ('completed', 'failed', 'cancelled') AND finished_at < $1)`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete artifact rows: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM task_executions
		 WHERE status IN ('completed', 'failed', 'cancelled') AND finished_at < $1`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete executions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func (s *ExecutionStore) notFoundOrTerminal(ctx context.Context, id string) error {
	e, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if e.Status.IsTerminal() {
		return ErrTerminal
	}
	return ErrNotFound
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row *sql.Row) (*models.TaskExecution, error) {
	return scanExecutionFrom(row)
}

func scanExecutionRows(rows *sql.Rows) (*models.TaskExecution, error) {
	return scanExecutionFrom(rows)
}

func scanExecutionFrom(r rowScanner) (*models.TaskExecution, error) {
	var e models.TaskExecution
	var result []byte
	err := r.Scan(&e.ID, &e.TaskID, &e.TriggerID, &e.Status, &e.Progress,
		&e.PodID, &e.LastHeartbeatAt, &e.StartedAt, &e.FinishedAt,
		&result, &e.Error, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}
	if len(result) > 0 {
		e.Result = &models.ExecutionResultBlob{}
		if err := json.Unmarshal(result, e.Result); err != nil {
			return nil, fmt.Errorf("failed to decode result: %w", err)
		}
	}
	return &e, nil
}

func collectIDs(rows *sql.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullIfEmpty(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
