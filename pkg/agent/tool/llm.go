package tool

import (
	"fmt"
	"strings"

	"github.com/reportforge/reportforge/pkg/agent"
	"github.com/reportforge/reportforge/pkg/datasource"
	"github.com/reportforge/reportforge/pkg/llm"
)

// llmRequest wraps a prompt in a JSON-mode completion request.
func llmRequest(prompt string) llm.Request {
	return llm.Request{
		Messages: []llm.Message{{Role: "user", Content: prompt}},
		JSONMode: true,
	}
}

// poolSchemaSummary renders the cached per-table schemas as compact
// prompt lines: "table(col type, col type, ...)".
func poolSchemaSummary(pool *agent.ResourcePool) string {
	var sb strings.Builder
	for _, item := range pool.Snapshot() {
		table, ok := strings.CutPrefix(item.Key, agent.KeySchemaPrefix)
		if !ok {
			continue
		}
		cols, ok := item.Value.([]datasource.ColumnInfo)
		if !ok {
			continue
		}
		parts := make([]string, len(cols))
		for i, c := range cols {
			parts[i] = c.Name + " " + c.Type
		}
		fmt.Fprintf(&sb, "%s(%s)\n", table, strings.Join(parts, ", "))
	}
	return strings.TrimRight(sb.String(), "\n")
}
