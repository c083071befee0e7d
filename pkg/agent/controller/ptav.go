package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/reportforge/reportforge/pkg/agent"
	"github.com/reportforge/reportforge/pkg/agent/planner"
	"github.com/reportforge/reportforge/pkg/llm"
)

// maxConsecutiveParseFailures bounds back-to-back unparseable plans
// before the loop gives up.
const maxConsecutiveParseFailures = 2

// PlanSource produces the next plan for a run. Satisfied by
// planner.Planner; tests substitute scripted sources.
type PlanSource interface {
	Plan(ctx context.Context, execCtx *agent.ExecutionContext, history *agent.History) (*agent.Plan, error)
}

// Loop is the iterative derivation loop: plan, execute the plan's tool
// calls, check the goal, repeat until validated SQL exists or an abort
// condition fires.
type Loop struct {
	planner PlanSource
}

// NewLoop creates a Loop over a plan source.
func NewLoop(source PlanSource) *Loop {
	return &Loop{planner: source}
}

// Run drives the loop for one placeholder. A non-nil error is returned
// only for context cancellation; every in-domain outcome, including
// aborts, is an AgentOutput.
func (l *Loop) Run(ctx context.Context, execCtx *agent.ExecutionContext) (*agent.AgentOutput, error) {
	maxIterations := execCtx.Config.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 15
	}

	history := agent.NewHistory()
	executor := NewStepExecutor(history)
	detector := &PatternDetector{}
	state := &agent.IterationState{MaxIterations: maxIterations}

	parseFailures := 0
	lastConfidence := 0.0

	for i := 1; i <= maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		state.CurrentIteration = i

		plan, err := l.plan(ctx, execCtx, history)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}

			var parseErr *planner.ParseError
			if errors.As(err, &parseErr) {
				parseFailures++
				state.RecordFailure(err.Error(), false)
				if parseFailures >= maxConsecutiveParseFailures {
					return l.abort(execCtx, agent.ReasonPlanParse, i, lastConfidence), nil
				}
				continue
			}

			isTimeout := errors.Is(err, llm.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
			state.RecordFailure(err.Error(), isTimeout)
			if state.ShouldAbortOnTimeouts() {
				return l.abort(execCtx, agent.ReasonTimeouts, i, lastConfidence), nil
			}
			continue
		}
		parseFailures = 0
		state.RecordSuccess()
		if plan.Confidence > 0 {
			lastConfidence = plan.Confidence
		}

		execCtx.Sink().Step(fmt.Sprintf("iteration %d: %d step(s)", i, len(plan.Steps)), map[string]any{
			"iteration": i,
		})

		_, failed := executor.Run(ctx, execCtx, plan)
		currentSQL := execCtx.Pool.GetString(agent.KeySQLCurrent)
		detector.Record(plan, failed, currentSQL)

		check := CheckGoal(execCtx.Pool, history)
		if check.Achieved {
			return &agent.AgentOutput{
				Success: true,
				Content: currentSQL,
				Metadata: agent.AgentMetadata{
					Iterations:      i,
					Confidence:      lastConfidence,
					Validated:       check.Validated,
					ExecutionTested: check.ExecutionTested,
				},
			}, nil
		}

		if reason := detector.Detect(); reason != "" {
			execCtx.Sink().Step("stopping: "+reason, nil)
			return l.abort(execCtx, agent.ReasonPatternExit, i, lastConfidence), nil
		}
	}

	return l.abort(execCtx, agent.ReasonIterationExhausted, maxIterations, lastConfidence), nil
}

// plan runs one planning call under the configured LLM timeout.
func (l *Loop) plan(ctx context.Context, execCtx *agent.ExecutionContext, history *agent.History) (*agent.Plan, error) {
	planCtx := ctx
	if timeout := execCtx.Config.LLMTimeout; timeout > 0 {
		var cancel context.CancelFunc
		planCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return l.planner.Plan(planCtx, execCtx, history)
}

// abort builds the failure output, carrying the last-best SQL so the
// caller can persist it for a later repair pass.
func (l *Loop) abort(execCtx *agent.ExecutionContext, reason string, iterations int, confidence float64) *agent.AgentOutput {
	return &agent.AgentOutput{
		Success: false,
		Content: execCtx.Pool.GetString(agent.KeySQLCurrent),
		Reason:  reason,
		Metadata: agent.AgentMetadata{
			Iterations: iterations,
			Confidence: confidence,
		},
	}
}
