package agent

import (
	"context"
	"fmt"
	"sort"
)

// Tool is one capability the planner can invoke. Implementations live in
// the tool package; the registry maps names to handlers.
type Tool interface {
	// Name returns the registered name, e.g. "sql.validate".
	Name() string

	// Describe returns the one-line description shown to the planner.
	Describe() string

	// InputSchema maps input field names to type hints for the planner
	// prompt ("string", "list", "map", "int").
	InputSchema() map[string]string

	// Execute runs the tool. The returned map becomes the observation
	// result; a non-nil error becomes a failed observation, not an
	// aborted run.
	Execute(ctx context.Context, execCtx *ExecutionContext, input map[string]any) (map[string]any, error)
}

// Registry holds the named tools. Mutable only before Seal; the pipeline
// seals it at startup and shares it across executions.
type Registry struct {
	tools  map[string]Tool
	sealed bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Panics after Seal or on duplicate names; both
// are wiring bugs, not runtime conditions.
func (r *Registry) Register(t Tool) {
	if r.sealed {
		panic("tool registry is sealed")
	}
	if _, exists := r.tools[t.Name()]; exists {
		panic("duplicate tool registration: " + t.Name())
	}
	r.tools[t.Name()] = t
}

// Seal makes the registry immutable.
func (r *Registry) Seal() {
	r.sealed = true
}

// Get returns the tool for a name. A miss is fatal to the current step.
func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	return t, nil
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns name, description, and input schema for every
// tool, sorted by name. Consumed by the planner prompt.
func (r *Registry) Descriptors() []ToolDescriptor {
	out := make([]ToolDescriptor, 0, len(r.tools))
	for _, name := range r.Names() {
		t := r.tools[name]
		out = append(out, ToolDescriptor{
			Name:        t.Name(),
			Description: t.Describe(),
			InputSchema: t.InputSchema(),
		})
	}
	return out
}

// ToolDescriptor is the planner-facing view of one tool.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema map[string]string
}
