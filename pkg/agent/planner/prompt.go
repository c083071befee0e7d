// Package planner turns the run state into an LLM prompt and parses the
// model's reply into a typed plan.
package planner

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/reportforge/reportforge/pkg/agent"
)

// factValueLimit caps how much of one pool value is rendered into the
// prompt.
const factValueLimit = 2000

// PromptBuilder renders the planning prompt: goal, known facts, tool
// catalog, constraints, and the reply contract.
type PromptBuilder struct {
	// ObservationWindow bounds how many recent observations appear.
	ObservationWindow int
}

// SystemPrompt is the fixed planner instruction.
func (b *PromptBuilder) SystemPrompt() string {
	return strings.TrimSpace(`
You derive SQL for business report placeholders. Each turn you receive the
goal, the facts discovered so far, and a tool catalog. Reply with a JSON
plan of tool calls that moves the work forward. Discover the schema before
writing SQL, validate SQL before executing it, and prefer small focused
plans over long speculative ones.`)
}

// Build renders the user prompt for one planning turn.
func (b *PromptBuilder) Build(execCtx *agent.ExecutionContext, history *agent.History) string {
	var sb strings.Builder

	b.writeGoal(&sb, execCtx)
	b.writeFacts(&sb, execCtx.Pool)
	b.writeObservations(&sb, history)
	b.writeTools(&sb, execCtx.Registry)
	b.writeConstraints(&sb, execCtx)
	b.writeContract(&sb)

	return sb.String()
}

func (b *PromptBuilder) writeGoal(sb *strings.Builder, execCtx *agent.ExecutionContext) {
	in := execCtx.Input
	sb.WriteString("## Goal\n")
	if in.Placeholder != nil {
		fmt.Fprintf(sb, "Placeholder: %s (%s)\n", in.Placeholder.Name, in.Placeholder.SemanticType)
		if in.Placeholder.Description != "" {
			fmt.Fprintf(sb, "Description: %s\n", in.Placeholder.Description)
		}
	}
	if in.UserPrompt != "" {
		fmt.Fprintf(sb, "Request: %s\n", in.UserPrompt)
	}
	if in.Context != nil && in.Context.Snippet != "" {
		fmt.Fprintf(sb, "Template context: %s\n", in.Context.Snippet)
	}
	fmt.Fprintf(sb, "Dialect: %s\n", in.Dialect)
	if in.TimeGranularity != "" {
		fmt.Fprintf(sb, "Reporting granularity: %s\n", in.TimeGranularity)
	}
	sb.WriteString("\n")
}

func (b *PromptBuilder) writeFacts(sb *strings.Builder, pool *agent.ResourcePool) {
	items := pool.Snapshot()
	if len(items) == 0 {
		return
	}
	sb.WriteString("## Known facts\n")
	for _, item := range items {
		if item.Key == agent.KeyObservations {
			continue
		}
		fmt.Fprintf(sb, "- %s: %s\n", item.Key, renderFact(item.Value))
	}
	sb.WriteString("\n")
}

func (b *PromptBuilder) writeObservations(sb *strings.Builder, history *agent.History) {
	if history == nil || history.Len() == 0 {
		return
	}
	window := b.ObservationWindow
	if window <= 0 {
		window = 5
	}
	sb.WriteString("## Recent observations\n")
	for _, obs := range history.Last(window) {
		if obs.Success {
			fmt.Fprintf(sb, "- [%s] %s ok: %s\n", obs.ID, obs.Tool, renderFact(obs.Result))
		} else {
			fmt.Fprintf(sb, "- [%s] %s failed: %s\n", obs.ID, obs.Tool, obs.Error)
		}
	}
	sb.WriteString("\n")
}

func (b *PromptBuilder) writeTools(sb *strings.Builder, registry *agent.Registry) {
	sb.WriteString("## Tools\n")
	for _, d := range registry.Descriptors() {
		fmt.Fprintf(sb, "- %s: %s\n", d.Name, d.Description)
		if len(d.InputSchema) > 0 {
			fields := make([]string, 0, len(d.InputSchema))
			for name, kind := range d.InputSchema {
				fields = append(fields, name+" ("+kind+")")
			}
			sort.Strings(fields)
			fmt.Fprintf(sb, "  input: %s\n", strings.Join(fields, ", "))
		}
	}
	sb.WriteString("\n")
}

func (b *PromptBuilder) writeConstraints(sb *strings.Builder, execCtx *agent.ExecutionContext) {
	sb.WriteString("## Constraints\n")
	sb.WriteString("- SQL must be a single SELECT (or WITH) statement.\n")
	sb.WriteString("- Use {{start_date}} and {{end_date}} unquoted for the reporting window.\n")
	sb.WriteString("- Use exact table and column names from the discovered schema.\n")
	fmt.Fprintf(sb, "- Target dialect is %s; do not use other dialects' quoting.\n", execCtx.Input.Dialect)
	sb.WriteString("- Reference an earlier observation value as $obs.<id>.<field>.\n")
	sb.WriteString("\n")
}

func (b *PromptBuilder) writeContract(sb *strings.Builder) {
	sb.WriteString("## Reply format\n")
	sb.WriteString("JSON only, no prose:\n")
	sb.WriteString(`{"reasoning": "...", "steps": [{"tool": "...", "input": {...}}], "confidence": 0.0}`)
	sb.WriteString("\n")
}

// renderFact renders one pool value or observation result compactly.
func renderFact(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	s := string(raw)
	if len(s) > factValueLimit {
		s = s[:factValueLimit] + "...(truncated)"
	}
	return s
}
