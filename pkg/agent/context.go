package agent

import (
	"github.com/reportforge/reportforge/pkg/config"
	"github.com/reportforge/reportforge/pkg/datasource"
	"github.com/reportforge/reportforge/pkg/llm"
	"github.com/reportforge/reportforge/pkg/schemacache"
)

// ProgressSink receives step summary lines from the loop. The pipeline
// adapts this onto its progress recorder; tests capture the lines.
// Implementations must never block.
type ProgressSink interface {
	Step(message string, details map[string]any)
}

// NopProgress discards progress lines.
type NopProgress struct{}

func (NopProgress) Step(string, map[string]any) {}

// ExecutionContext carries everything one placeholder analysis needs.
// Built per placeholder by the pipeline; the pool is owned by this run
// and cleared when it ends.
type ExecutionContext struct {
	Input     *AgentInput
	Config    config.AgentConfig
	LLM       llm.Client
	Connector datasource.Connector
	Schema    *schemacache.Cache
	Registry  *Registry
	Pool      *ResourcePool
	Progress  ProgressSink
}

// Sink returns the progress sink, defaulting to a no-op.
func (e *ExecutionContext) Sink() ProgressSink {
	if e.Progress == nil {
		return NopProgress{}
	}
	return e.Progress
}
