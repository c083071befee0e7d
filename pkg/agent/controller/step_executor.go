// Package controller runs placeholder analyses: the validate-only fast
// path, the iterative plan/execute/validate loop, and the facade that
// picks between them.
package controller

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/reportforge/reportforge/pkg/agent"
)

// StepExecutor runs a plan's steps in order against the tool registry.
// A failed step aborts the remaining steps; the failure flows back to
// the planner as an observation, not an error.
type StepExecutor struct {
	history *agent.History
}

// NewStepExecutor creates an executor appending to the given history.
func NewStepExecutor(history *agent.History) *StepExecutor {
	return &StepExecutor{history: history}
}

// Run executes the plan. Returns the number of completed steps and the
// failing observation, if any.
func (e *StepExecutor) Run(ctx context.Context, execCtx *agent.ExecutionContext, plan *agent.Plan) (int, *agent.Observation) {
	for i, step := range plan.Steps {
		obs := e.runStep(ctx, execCtx, step)
		recorded := e.history.Append(obs)
		execCtx.Pool.Put(agent.KeyObservations, e.history, 0)

		if recorded.Success {
			execCtx.Sink().Step(fmt.Sprintf("%s ok", recorded.Tool), map[string]any{
				"observation": recorded.ID,
				"elapsed_ms":  recorded.Elapsed.Milliseconds(),
			})
			continue
		}

		execCtx.Sink().Step(fmt.Sprintf("%s failed: %s", recorded.Tool, recorded.Error), map[string]any{
			"observation": recorded.ID,
		})
		return i, &recorded
	}
	return len(plan.Steps), nil
}

func (e *StepExecutor) runStep(ctx context.Context, execCtx *agent.ExecutionContext, step agent.PlanStep) agent.Observation {
	obs := agent.Observation{Tool: step.Tool, Input: step.Input}

	tool, err := execCtx.Registry.Get(step.Tool)
	if err != nil {
		obs.Error = err.Error()
		return obs
	}

	input, err := resolveRefs(step.Input, e.history)
	if err != nil {
		obs.Error = err.Error()
		return obs
	}
	obs.Input = input

	start := time.Now()
	result, err := tool.Execute(ctx, execCtx, input)
	obs.Elapsed = time.Since(start)
	if err != nil {
		obs.Error = err.Error()
		return obs
	}
	obs.Success = true
	obs.Result = result
	return obs
}

// resolveRefs substitutes "$obs.<id>.<path>" string values with the
// referenced observation result. Non-reference values pass through.
func resolveRefs(input map[string]any, history *agent.History) (map[string]any, error) {
	if input == nil {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		resolved, err := resolveValue(value, history)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", key, err)
		}
		out[key] = resolved
	}
	return out, nil
}

func resolveValue(value any, history *agent.History) (any, error) {
	switch v := value.(type) {
	case string:
		if !strings.HasPrefix(v, "$obs.") {
			return v, nil
		}
		return resolveRef(v, history)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := resolveValue(item, history)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case map[string]any:
		return resolveRefs(v, history)
	}
	return value, nil
}

// resolveRef navigates "$obs.obs-2.rows.0" into the observation's
// result: map keys by name, list elements by index.
func resolveRef(ref string, history *agent.History) (any, error) {
	parts := strings.Split(strings.TrimPrefix(ref, "$obs."), ".")
	if len(parts) == 0 || parts[0] == "" {
		return nil, fmt.Errorf("malformed reference %q", ref)
	}

	obs, ok := history.Find(parts[0])
	if !ok {
		return nil, fmt.Errorf("reference %q: no such observation", ref)
	}
	if !obs.Success {
		return nil, fmt.Errorf("reference %q: observation failed", ref)
	}

	var current any = obs.Result
	for _, part := range parts[1:] {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("reference %q: no field %q", ref, part)
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("reference %q: bad index %q", ref, part)
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("reference %q: cannot descend into %T at %q", ref, current, part)
		}
	}
	return current, nil
}
