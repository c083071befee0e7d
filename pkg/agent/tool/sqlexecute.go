package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/reportforge/reportforge/pkg/agent"
)

// sampleRowLimit caps the rows echoed back into the observation so the
// planner prompt stays bounded.
const sampleRowLimit = 20

// ExecuteTool runs a SQL draft against the data source and reports the
// result shape. Execution goes through the read-only connector with the
// configured statement timeout.
type ExecuteTool struct{}

func (t *ExecuteTool) Name() string { return NameExecute }

func (t *ExecuteTool) Describe() string {
	return "Execute a SELECT against the data source and return row count and a result sample."
}

func (t *ExecuteTool) InputSchema() map[string]string {
	return map[string]string{"sql": "string"}
}

func (t *ExecuteTool) Execute(ctx context.Context, execCtx *agent.ExecutionContext, input map[string]any) (map[string]any, error) {
	sqlText := optionalString(input, "sql")
	if sqlText == "" {
		sqlText = execCtx.Pool.GetString(agent.KeySQLCurrent)
	}
	if sqlText == "" {
		return nil, fmt.Errorf("no SQL to execute")
	}

	timeout := execCtx.Config.SQLExecuteTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := execCtx.Connector.Query(queryCtx, sqlText)
	if err != nil {
		return nil, err
	}

	execCtx.Pool.Put(agent.KeySQLCurrent, sqlText, 0)

	columns := make([]string, len(result.Columns))
	for i, c := range result.Columns {
		columns[i] = c.Name
	}

	sample := result.Rows
	if len(sample) > sampleRowLimit {
		sample = sample[:sampleRowLimit]
	}

	out := map[string]any{
		"sql":        sqlText,
		"columns":    columns,
		"rows":       sample,
		"row_count":  result.RowCount,
		"truncated":  result.Truncated,
		"elapsed_ms": result.ElapsedMs,
	}
	if v, ok := firstCell(result.Rows); ok {
		out["primary_value"] = v
	}
	return out, nil
}

// firstCell returns the top-left cell of the result, the natural value
// for scalar placeholders.
func firstCell(rows [][]any) (any, bool) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, false
	}
	return rows[0][0], true
}
