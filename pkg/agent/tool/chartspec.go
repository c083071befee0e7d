package tool

import (
	"context"
	"strings"

	"github.com/reportforge/reportforge/pkg/agent"
)

// Chart types the renderer understands.
const (
	ChartTypeBar  = "bar"
	ChartTypeLine = "line"
	ChartTypePie  = "pie"
)

// ChartSpecTool derives a chart specification from a placeholder
// description and the query's result columns. Heuristic, no I/O.
type ChartSpecTool struct{}

func (t *ChartSpecTool) Name() string { return NameChartSpec }

func (t *ChartSpecTool) Describe() string {
	return "Derive a chart spec (type, title, category and series fields) from the result shape."
}

func (t *ChartSpecTool) InputSchema() map[string]string {
	return map[string]string{
		"description": "string (optional, defaults to the placeholder description)",
		"columns":     "list of result column names",
	}
}

func (t *ChartSpecTool) Execute(_ context.Context, execCtx *agent.ExecutionContext, input map[string]any) (map[string]any, error) {
	description := optionalString(input, "description")
	if description == "" && execCtx.Input.Placeholder != nil {
		description = execCtx.Input.Placeholder.Description
		if description == "" {
			description = execCtx.Input.Placeholder.Name
		}
	}

	columns := stringList(input, "columns")
	if len(columns) == 0 {
		columns = lastExecuteColumns(execCtx.Pool)
	}

	spec := DeriveChartSpec(description, columns)
	return map[string]any{
		"chart_type":     spec.ChartType,
		"title":          spec.Title,
		"category_field": spec.CategoryField,
		"series_fields":  spec.SeriesFields,
	}, nil
}

// ChartSpec describes how to render one chart placeholder.
type ChartSpec struct {
	ChartType     string   `json:"chart_type"`
	Title         string   `json:"title"`
	CategoryField string   `json:"category_field"`
	SeriesFields  []string `json:"series_fields"`
}

var (
	pieHints  = []string{"占比", "比例", "分布", "share", "percentage", "proportion", "breakdown"}
	lineHints = []string{"趋势", "走势", "变化", "trend", "over time", "timeline", "growth"}
)

// DeriveChartSpec picks a chart type from description keywords (share
// words mean pie, trend words mean line, anything else bar). The first
// column is the category axis, the rest are series.
func DeriveChartSpec(description string, columns []string) ChartSpec {
	lower := strings.ToLower(description)
	chartType := ChartTypeBar
	for _, hint := range pieHints {
		if strings.Contains(lower, hint) {
			chartType = ChartTypePie
			break
		}
	}
	if chartType == ChartTypeBar {
		for _, hint := range lineHints {
			if strings.Contains(lower, hint) {
				chartType = ChartTypeLine
				break
			}
		}
	}

	spec := ChartSpec{ChartType: chartType, Title: description}
	if len(columns) > 0 {
		spec.CategoryField = columns[0]
		spec.SeriesFields = columns[1:]
	}
	return spec
}

func stringList(input map[string]any, field string) []string {
	raw, ok := input[field]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// lastExecuteColumns falls back to the columns of the last execution
// observation recorded in the pool.
func lastExecuteColumns(pool *agent.ResourcePool) []string {
	v, ok := pool.Get(agent.KeyObservations)
	if !ok {
		return nil
	}
	history, ok := v.(*agent.History)
	if !ok {
		return nil
	}
	obs, ok := history.LastForTool(NameExecute)
	if !ok || !obs.Success {
		return nil
	}
	if cols, ok := obs.Result["columns"].([]string); ok {
		return cols
	}
	return nil
}
