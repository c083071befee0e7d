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

// TaskStore persists tasks.
type TaskStore struct {
	db *sql.DB
}

// NewTaskStore creates a TaskStore.
func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

const taskColumns = `id, owner_id, name, template_id, data_source_id, schedule,
	recipients, is_active, created_at, updated_at, deleted_at`

// Create inserts a new active task.
func (s *TaskStore) Create(ctx context.Context, req models.CreateTaskRequest) (*models.Task, error) {
	if req.Name == "" {
		return nil, NewValidationError("Name", "required")
	}
	if req.TemplateID == "" {
		return nil, NewValidationError("TemplateID", "required")
	}
	if req.DataSourceID == "" {
		return nil, NewValidationError("DataSourceID", "required")
	}

	recipients, err := json.Marshal(orEmpty(req.Recipients))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recipients: %w", err)
	}

	task := &models.Task{
		ID:           uuid.New().String(),
		OwnerID:      req.OwnerID,
		Name:         req.Name,
		TemplateID:   req.TemplateID,
		DataSourceID: req.DataSourceID,
		Schedule:     req.Schedule,
		Recipients:   req.Recipients,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, owner_id, name, template_id, data_source_id, schedule, recipients, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		task.ID, task.OwnerID, task.Name, task.TemplateID, task.DataSourceID,
		task.Schedule, recipients, task.IsActive, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return task, nil
}

// Get retrieves a task by ID. Soft-deleted tasks are not returned.
func (s *TaskStore) Get(ctx context.Context, id string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanTask(row)
}

// ListActive returns all active, scheduled or manual tasks.
func (s *TaskStore) ListActive(ctx context.Context) ([]*models.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE is_active AND deleted_at IS NULL
		 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// List returns tasks matching the filters, newest first.
func (s *TaskStore) List(ctx context.Context, f models.TaskFilters) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	args := []any{}
	if !f.IncludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	if f.ActiveOnly {
		query += ` AND is_active`
	}
	if f.OwnerID != "" {
		args = append(args, f.OwnerID)
		query += fmt.Sprintf(` AND owner_id = $%d`, len(args))
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
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// SetActive toggles a task's active flag.
func (s *TaskStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET is_active = $2, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`,
		id, active)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return requireRow(res)
}

// Delete soft-deletes a task. Refused while executions are active.
func (s *TaskStore) Delete(ctx context.Context, id string) error {
	var active int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM task_executions
		 WHERE task_id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')`,
		id).Scan(&active)
	if err != nil {
		return fmt.Errorf("failed to count active executions: %w", err)
	}
	if active > 0 {
		return ErrHasActiveExecutions
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET deleted_at = now(), is_active = false, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return requireRow(res)
}

func scanTask(row *sql.Row) (*models.Task, error) {
	var t models.Task
	var recipients []byte
	err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &t.TemplateID, &t.DataSourceID,
		&t.Schedule, &recipients, &t.IsActive, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	if err := json.Unmarshal(recipients, &t.Recipients); err != nil {
		return nil, fmt.Errorf("failed to decode recipients: %w", err)
	}
	return &t, nil
}

func collectTasks(rows *sql.Rows) ([]*models.Task, error) {
	var tasks []*models.Task
	for rows.Next() {
		var t models.Task
		var recipients []byte
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Name, &t.TemplateID, &t.DataSourceID,
			&t.Schedule, &recipients, &t.IsActive, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		if err := json.Unmarshal(recipients, &t.Recipients); err != nil {
			return nil, fmt.Errorf("failed to decode recipients: %w", err)
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// TemplateStore persists template metadata. Template bytes live in
// hybrid storage under Template.ObjectKey.
type TemplateStore struct {
	db *sql.DB
}

// NewTemplateStore creates a TemplateStore.
func NewTemplateStore(db *sql.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

// Create inserts a template record.
func (s *TemplateStore) Create(ctx context.Context, t *models.Template) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Tenant == "" {
		t.Tenant = "default"
	}
	t.CreatedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO templates (id, name, tenant, object_key, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.Name, t.Tenant, t.ObjectKey, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// Get retrieves a template by ID.
func (s *TemplateStore) Get(ctx context.Context, id string) (*models.Template, error) {
	var t models.Template
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, tenant, object_key, created_at FROM templates WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Tenant, &t.ObjectKey, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return &t, nil
}
