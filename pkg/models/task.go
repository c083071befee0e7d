package models

import "time"

// Task is a persistent unit of report work: a template bound to a data
// source, optionally on a cron schedule.
type Task struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Name         string     `json:"name"`
	TemplateID   string     `json:"template_id"`
	DataSourceID string     `json:"data_source_id"`
	Schedule     string     `json:"schedule,omitempty"` // cron expression, empty = manual only
	Recipients   []string   `json:"recipients,omitempty"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Template is a stored report template. The template bytes live in
// hybrid storage under ObjectKey; only metadata is persisted here.
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Tenant    string    `json:"tenant"`
	ObjectKey string    `json:"object_key"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateTaskRequest contains fields for creating a new task.
type CreateTaskRequest struct {
	OwnerID      string   `json:"owner_id"`
	Name         string   `json:"name"`
	TemplateID   string   `json:"template_id"`
	DataSourceID string   `json:"data_source_id"`
	Schedule     string   `json:"schedule,omitempty"`
	Recipients   []string `json:"recipients,omitempty"`
}

// TaskFilters contains filtering options for listing tasks.
type TaskFilters struct {
	OwnerID        string `json:"owner_id,omitempty"`
	ActiveOnly     bool   `json:"active_only,omitempty"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
}
