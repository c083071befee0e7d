package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/reportforge/reportforge/pkg/agent"
)

// ListTablesTool enumerates the data source's tables.
type ListTablesTool struct{}

func (t *ListTablesTool) Name() string { return NameListTables }

func (t *ListTablesTool) Describe() string {
	return "List the tables available in the data source."
}

func (t *ListTablesTool) InputSchema() map[string]string {
	return map[string]string{"data_source_ref": "string (optional)"}
}

func (t *ListTablesTool) Execute(ctx context.Context, execCtx *agent.ExecutionContext, _ map[string]any) (map[string]any, error) {
	snap, err := execCtx.Schema.Get(ctx, execCtx.Connector, false)
	if err != nil {
		return nil, err
	}
	tables := make([]string, 0, len(snap.Tables))
	for _, tbl := range snap.Tables {
		tables = append(tables, tbl.Name)
	}
	return map[string]any{"tables": tables}, nil
}

// GetColumnsTool describes tables and caches the snapshots into the
// resource pool under "schema:<table>".
type GetColumnsTool struct{}

func (t *GetColumnsTool) Name() string { return NameGetColumns }

func (t *GetColumnsTool) Describe() string {
	return "Get column names, types, and nullability for one or more tables."
}

func (t *GetColumnsTool) InputSchema() map[string]string {
	return map[string]string{
		"tables":          "list of table names",
		"data_source_ref": "string (optional)",
	}
}

func (t *GetColumnsTool) Execute(ctx context.Context, execCtx *agent.ExecutionContext, input map[string]any) (map[string]any, error) {
	tables, err := tableList(input)
	if err != nil {
		return nil, err
	}

	snap, err := execCtx.Schema.Get(ctx, execCtx.Connector, false)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(tables))
	for _, table := range tables {
		cols, ok := snap.Columns[table]
		if !ok {
			return nil, fmt.Errorf("table %q not found", table)
		}
		described := make([]map[string]any, len(cols))
		for i, c := range cols {
			described[i] = map[string]any{
				"column":   c.Name,
				"type":     c.Type,
				"nullable": c.Nullable,
				"comment":  c.Comment,
			}
		}
		out[table] = described
		execCtx.Pool.Put(agent.SchemaKey(table), cols, time.Hour)
	}
	return map[string]any{"columns": out}, nil
}

func tableList(input map[string]any) ([]string, error) {
	raw, ok := input["tables"]
	if !ok {
		if s := optionalString(input, "table"); s != "" {
			return []string{s}, nil
		}
		return nil, fmt.Errorf("missing required input %q", "tables")
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("input %q must be a list of strings", "tables")
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		return []string{v}, nil
	}
	return nil, fmt.Errorf("input %q must be a list of strings", "tables")
}
