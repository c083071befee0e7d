// Package tool implements the agent's tool surface: schema discovery,
// time-window resolution, SQL validation/execution/refinement, and chart
// spec derivation. Tools meet the LLM at a map[string]any boundary and
// stay strongly typed inside.
package tool

import (
	"fmt"

	"github.com/reportforge/reportforge/pkg/agent"
)

// Registered tool names.
const (
	NameListTables = "schema.list_tables"
	NameGetColumns = "schema.get_columns"
	NameTimeWindow = "time.window"
	NameValidate   = "sql.validate"
	NameExecute    = "sql.execute"
	NameRefine     = "sql.refine"
	NameChartSpec  = "chart.spec"
)

// NewRegistry builds and seals the standard tool registry.
func NewRegistry() *agent.Registry {
	r := agent.NewRegistry()
	r.Register(&ListTablesTool{})
	r.Register(&GetColumnsTool{})
	r.Register(&TimeWindowTool{})
	r.Register(&ValidateTool{})
	r.Register(&ExecuteTool{})
	r.Register(&RefineTool{})
	r.Register(&ChartSpecTool{})
	r.Seal()
	return r
}

// stringInput extracts a required string field from a tool input map.
func stringInput(input map[string]any, field string) (string, error) {
	v, ok := input[field]
	if !ok {
		return "", fmt.Errorf("missing required input %q", field)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("input %q must be a non-empty string", field)
	}
	return s, nil
}

// optionalString extracts an optional string field.
func optionalString(input map[string]any, field string) string {
	if v, ok := input[field]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
