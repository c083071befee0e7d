// Package agent holds the shared types of the SQL derivation agent: the
// input/output contracts, the per-run resource pool, plans and
// observations, the tool registry, and iteration bookkeeping. The
// concrete tools, planner, and loop controllers build on these in their
// own packages.
package agent

import (
	"github.com/reportforge/reportforge/pkg/models"
)

// AgentInput is the nominal input record for one placeholder analysis.
// Callers populate the known fields; Extra carries forward-compatible
// extensions only and is never required.
type AgentInput struct {
	// UserPrompt is the natural-language goal, usually the placeholder
	// description enriched with the template context snippet.
	UserPrompt string

	// Placeholder is the slot being analyzed.
	Placeholder *models.Placeholder

	// DataSourceID names the configured data source to derive SQL for.
	DataSourceID string

	// Dialect is the target SQL dialect ("postgres", "mysql").
	Dialect string

	// TimeGranularity is the reporting window granularity
	// ("daily", "weekly", "monthly", "yearly").
	TimeGranularity string

	// CurrentSQL is a previously generated SQL to revalidate, when known
	// directly.
	CurrentSQL string

	// Context carries template-derived context.
	Context *InputContext

	// TaskDrivenContext carries task-level overrides.
	TaskDrivenContext *TaskDrivenContext

	// DataSource carries data-source-level hints.
	DataSource *DataSourceSpec

	// Extra is a free-form extension bag for forward compatibility.
	// Nothing in the core reads it.
	Extra map[string]any
}

// InputContext is template-derived context for the placeholder.
type InputContext struct {
	// CurrentSQL is cached SQL carried in the context blob.
	CurrentSQL string

	// Snippet is the template text surrounding the placeholder.
	Snippet string
}

// TaskDrivenContext is task-level context for the placeholder.
type TaskDrivenContext struct {
	CurrentSQL string
}

// DataSourceSpec is data-source-level hints for the analysis.
type DataSourceSpec struct {
	// SQLToTest is a candidate SQL supplied for validation.
	SQLToTest string
}

// ExtractCurrentSQL returns the SQL to revalidate, first non-empty wins:
// the direct field, the context blob, the task-driven context, then the
// data source hint. Empty means no cached SQL exists and the agent must
// generate from scratch.
func (ai *AgentInput) ExtractCurrentSQL() string {
	if ai.CurrentSQL != "" {
		return ai.CurrentSQL
	}
	if ai.Context != nil && ai.Context.CurrentSQL != "" {
		return ai.Context.CurrentSQL
	}
	if ai.TaskDrivenContext != nil && ai.TaskDrivenContext.CurrentSQL != "" {
		return ai.TaskDrivenContext.CurrentSQL
	}
	if ai.DataSource != nil && ai.DataSource.SQLToTest != "" {
		return ai.DataSource.SQLToTest
	}
	return ""
}
