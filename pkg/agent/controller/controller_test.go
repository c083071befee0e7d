package controller

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reportforge/reportforge/pkg/agent"
	"github.com/reportforge/reportforge/pkg/agent/planner"
	"github.com/reportforge/reportforge/pkg/agent/tool"
	"github.com/reportforge/reportforge/pkg/config"
	"github.com/reportforge/reportforge/pkg/llm"
	"github.com/reportforge/reportforge/pkg/models"
)

// fakeTool adapts a function to the tool interface.
type fakeTool struct {
	name string
	fn   func(execCtx *agent.ExecutionContext, input map[string]any) (map[string]any, error)
}

func (t *fakeTool) Name() string                   { return t.name }
func (t *fakeTool) Describe() string               { return t.name }
func (t *fakeTool) InputSchema() map[string]string { return nil }

func (t *fakeTool) Execute(_ context.Context, execCtx *agent.ExecutionContext, input map[string]any) (map[string]any, error) {
	return t.fn(execCtx, input)
}

// scriptedPlanner replays a fixed sequence of plans and errors.
type scriptedPlanner struct {
	outcomes []planOutcome
	calls    int
}

type planOutcome struct {
	plan *agent.Plan
	err  error
}

func (p *scriptedPlanner) Plan(_ context.Context, _ *agent.ExecutionContext, _ *agent.History) (*agent.Plan, error) {
	i := p.calls
	if i >= len(p.outcomes) {
		i = len(p.outcomes) - 1
	}
	p.calls++
	out := p.outcomes[i]
	return out.plan, out.err
}

func testContext(registry *agent.Registry, maxIterations int) *agent.ExecutionContext {
	return &agent.ExecutionContext{
		Input: &agent.AgentInput{
			Placeholder: &models.Placeholder{Name: "monthly_revenue"},
			Dialect:     "postgres",
		},
		Config:   config.AgentConfig{MaxIterations: maxIterations},
		Registry: registry,
		Pool:     agent.NewResourcePool(),
	}
}

// validatingRegistry registers a validate tool whose verdicts replay in
// sequence, plus a refine tool that applies a fixed rewrite.
func validatingRegistry(verdicts []map[string]any, refined string) *agent.Registry {
	r := agent.NewRegistry()
	call := 0
	r.Register(&fakeTool{name: tool.NameValidate, fn: func(execCtx *agent.ExecutionContext, input map[string]any) (map[string]any, error) {
		sqlText, _ := input["sql"].(string)
		if sqlText == "" {
			sqlText = execCtx.Pool.GetString(agent.KeySQLCurrent)
		}
		execCtx.Pool.Put(agent.KeySQLCurrent, sqlText, 0)
		i := call
		if i >= len(verdicts) {
			i = len(verdicts) - 1
		}
		call++
		out := map[string]any{"sql": sqlText}
		for k, v := range verdicts[i] {
			out[k] = v
		}
		return out, nil
	}})
	r.Register(&fakeTool{name: tool.NameRefine, fn: func(execCtx *agent.ExecutionContext, _ map[string]any) (map[string]any, error) {
		execCtx.Pool.Put(agent.KeySQLCurrent, refined, 0)
		return map[string]any{"sql": refined, "changed": true}, nil
	}})
	r.Seal()
	return r
}

func TestLoopSucceedsWhenValidationPasses(t *testing.T) {
	registry := validatingRegistry([]map[string]any{{"valid": true}}, "")
	execCtx := testContext(registry, 15)

	source := &scriptedPlanner{outcomes: []planOutcome{{
		plan: &agent.Plan{
			Confidence: 0.9,
			Steps:      []agent.PlanStep{{Tool: tool.NameValidate, Input: map[string]any{"sql": "SELECT 1"}}},
		},
	}}}

	out, err := NewLoop(source).Run(context.Background(), execCtx)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "SELECT 1", out.Content)
	assert.Equal(t, 1, out.Metadata.Iterations)
	assert.True(t, out.Metadata.Validated)
	assert.InDelta(t, 0.9, out.Metadata.Confidence, 0.001)
}

func TestLoopExhaustsIterations(t *testing.T) {
	registry := validatingRegistry([]map[string]any{{"valid": false, "issues": []string{"nope"}}}, "")
	execCtx := testContext(registry, 4)

	// A different draft each iteration keeps the pattern detector quiet.
	source := &scriptedPlanner{}
	for i := 0; i < 4; i++ {
		source.outcomes = append(source.outcomes, planOutcome{plan: &agent.Plan{
			Steps: []agent.PlanStep{{Tool: tool.NameValidate, Input: map[string]any{"sql": fmt.Sprintf("SELECT %d", i)}}},
		}})
	}

	out, err := NewLoop(source).Run(context.Background(), execCtx)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, agent.ReasonIterationExhausted, out.Reason)
	assert.Equal(t, 4, out.Metadata.Iterations)
	// Last-best draft is preserved for a later repair pass.
	assert.Equal(t, "SELECT 3", out.Content)
}

func TestLoopPatternExitOnRepeatedCall(t *testing.T) {
	registry := validatingRegistry([]map[string]any{{"valid": false, "issues": []string{"nope"}}}, "")
	execCtx := testContext(registry, 15)

	source := &scriptedPlanner{outcomes: []planOutcome{{
		plan: &agent.Plan{
			Steps: []agent.PlanStep{{Tool: tool.NameValidate, Input: map[string]any{"sql": "SELECT 1"}}},
		},
	}}}

	out, err := NewLoop(source).Run(context.Background(), execCtx)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, agent.ReasonPatternExit, out.Reason)
	assert.Equal(t, 3, out.Metadata.Iterations)
}

func TestLoopAbortsAfterRepeatedParseFailures(t *testing.T) {
	registry := agent.NewRegistry()
	registry.Seal()
	execCtx := testContext(registry, 15)

	parseErr := &planner.ParseError{Reply: "garbage", Err: fmt.Errorf("no JSON object")}
	source := &scriptedPlanner{outcomes: []planOutcome{{err: parseErr}, {err: parseErr}}}

	out, err := NewLoop(source).Run(context.Background(), execCtx)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, agent.ReasonPlanParse, out.Reason)
}

func TestLoopAbortsAfterConsecutiveTimeouts(t *testing.T) {
	registry := agent.NewRegistry()
	registry.Seal()
	execCtx := testContext(registry, 15)

	timeout := fmt.Errorf("planning request: %w", llm.ErrTimeout)
	source := &scriptedPlanner{outcomes: []planOutcome{{err: timeout}, {err: timeout}}}

	out, err := NewLoop(source).Run(context.Background(), execCtx)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, agent.ReasonTimeouts, out.Reason)
}

func TestFacadeValidateOnlyShortCircuit(t *testing.T) {
	registry := validatingRegistry([]map[string]any{{"valid": true}}, "")
	execCtx := testContext(registry, 15)
	execCtx.Input.CurrentSQL = "SELECT amount FROM orders"

	source := &scriptedPlanner{outcomes: []planOutcome{{err: fmt.Errorf("loop must not run")}}}
	out, err := NewFacade(NewLoop(source)).Analyze(context.Background(), execCtx)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, models.GenerationMethodValidateOnly, out.Metadata.GenerationMethod)
	assert.Equal(t, "SELECT amount FROM orders", out.Content)
	assert.Zero(t, source.calls)
}

func TestFacadeRepairsLexicalIssueInPlace(t *testing.T) {
	registry := validatingRegistry([]map[string]any{
		{"valid": false, "issues": []string{"unterminated string literal"}, "issue_kinds": []string{tool.IssueKindLexical}},
		{"valid": true},
	}, "SELECT amount FROM orders")
	execCtx := testContext(registry, 15)
	execCtx.Input.CurrentSQL = "SELECT amount FROM orders WHERE region = 'north"

	source := &scriptedPlanner{outcomes: []planOutcome{{err: fmt.Errorf("loop must not run")}}}
	out, err := NewFacade(NewLoop(source)).Analyze(context.Background(), execCtx)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, models.GenerationMethodValidateOnly, out.Metadata.GenerationMethod)
	assert.Equal(t, "SELECT amount FROM orders", out.Content)
}

func TestFacadeRepairsSchemaCaseIssueInPlace(t *testing.T) {
	// Schema-kind issues still get the one refine round before any
	// regeneration decision.
	registry := validatingRegistry([]map[string]any{
		{"valid": false, "issues": []string{"column Amount not found"}, "issue_kinds": []string{tool.IssueKindUnknownColumn}},
		{"valid": true},
	}, "SELECT amount FROM sales")
	execCtx := testContext(registry, 15)
	execCtx.Input.CurrentSQL = "SELECT Amount FROM sales"

	source := &scriptedPlanner{outcomes: []planOutcome{{err: fmt.Errorf("loop must not run")}}}
	out, err := NewFacade(NewLoop(source)).Analyze(context.Background(), execCtx)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, models.GenerationMethodValidateOnly, out.Metadata.GenerationMethod)
	assert.Equal(t, "SELECT amount FROM sales", out.Content)
	assert.Zero(t, source.calls)
}

func TestFacadeFallsBackToLoopOnSchemaIssue(t *testing.T) {
	registry := validatingRegistry([]map[string]any{
		{"valid": false, "issues": []string{"table legacy_orders not found"}, "issue_kinds": []string{tool.IssueKindUnknownTable}},
		{"valid": true},
	}, "")
	execCtx := testContext(registry, 15)
	execCtx.Input.CurrentSQL = "SELECT amount FROM legacy_orders"

	source := &scriptedPlanner{outcomes: []planOutcome{{
		plan: &agent.Plan{
			Steps: []agent.PlanStep{{Tool: tool.NameValidate, Input: map[string]any{"sql": "SELECT amount FROM orders"}}},
		},
	}}}

	out, err := NewFacade(NewLoop(source)).Analyze(context.Background(), execCtx)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, models.GenerationMethodPTAVFallback, out.Metadata.GenerationMethod)
	assert.Equal(t, tool.IssueKindUnknownTable, out.Metadata.FallbackReason)
	assert.Equal(t, "SELECT amount FROM orders", out.Content)
}

func TestFacadeDoesNotRegenerateOnDialectMismatch(t *testing.T) {
	registry := validatingRegistry([]map[string]any{
		{"valid": false, "issues": []string{"backticks"}, "issue_kinds": []string{tool.IssueKindDialect}},
		{"valid": false, "issues": []string{"backticks"}, "issue_kinds": []string{tool.IssueKindDialect}},
	}, "SELECT `amount` FROM orders")
	execCtx := testContext(registry, 15)
	execCtx.Input.CurrentSQL = "SELECT `amount` FROM orders"

	source := &scriptedPlanner{outcomes: []planOutcome{{err: fmt.Errorf("loop must not run")}}}
	out, err := NewFacade(NewLoop(source)).Analyze(context.Background(), execCtx)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, agent.RepairReasonDialectMismatch, out.Reason)
	assert.Zero(t, source.calls)
}

func TestResolveRefs(t *testing.T) {
	history := agent.NewHistory()
	obs := history.Append(agent.Observation{
		Tool:    tool.NameExecute,
		Success: true,
		Result: map[string]any{
			"columns": []any{"region", "amount"},
			"rows":    []any{[]any{"north", 100.0}},
		},
	})

	input := map[string]any{
		"columns": "$obs." + obs.ID + ".columns",
		"first":   "$obs." + obs.ID + ".rows.0",
		"literal": "unchanged",
	}
	resolved, err := resolveRefs(input, history)
	require.NoError(t, err)
	assert.Equal(t, []any{"region", "amount"}, resolved["columns"])
	assert.Equal(t, []any{"north", 100.0}, resolved["first"])
	assert.Equal(t, "unchanged", resolved["literal"])

	_, err = resolveRefs(map[string]any{"bad": "$obs.obs-99.rows"}, history)
	assert.Error(t, err)
}

func TestCheckGoalRequiresValidationOfCurrentDraft(t *testing.T) {
	pool := agent.NewResourcePool()
	history := agent.NewHistory()

	// No draft at all.
	assert.False(t, CheckGoal(pool, history).Achieved)

	// Draft validated.
	pool.Put(agent.KeySQLCurrent, "SELECT 1", 0)
	history.Append(agent.Observation{
		Tool:    tool.NameValidate,
		Success: true,
		Result:  map[string]any{"sql": "SELECT 1", "valid": true},
	})
	check := CheckGoal(pool, history)
	assert.True(t, check.Achieved)
	assert.False(t, check.ExecutionTested)

	// Draft changed after validation.
	pool.Put(agent.KeySQLCurrent, "SELECT 2", 0)
	assert.False(t, CheckGoal(pool, history).Achieved)
}
