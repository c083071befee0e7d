package controller

import (
	"context"
	"strings"

	"github.com/reportforge/reportforge/pkg/agent"
	"github.com/reportforge/reportforge/pkg/models"
)

// Facade is the analysis entry point. It picks the cheapest path that
// yields validated SQL: revalidating existing SQL when the input carries
// any, falling back to the full derivation loop otherwise.
type Facade struct {
	loop *Loop
}

// NewFacade creates a Facade over a derivation loop.
func NewFacade(loop *Loop) *Facade {
	return &Facade{loop: loop}
}

// Analyze produces SQL for one placeholder.
//
// With existing SQL in the input, the validate-only pass runs first; a
// pass (possibly after one in-place repair) short-circuits the loop
// entirely. Failures with purely lexical or dialect issues stop there,
// since regenerating cannot do better than repairing. Any other failure
// falls through to the loop and is recorded as a fallback.
func (f *Facade) Analyze(ctx context.Context, execCtx *agent.ExecutionContext) (*agent.AgentOutput, error) {
	existing := strings.TrimSpace(execCtx.Input.ExtractCurrentSQL())
	if existing == "" {
		out, err := f.loop.Run(ctx, execCtx)
		if err != nil {
			return nil, err
		}
		out.Metadata.GenerationMethod = models.GenerationMethodPTAV
		return out, nil
	}

	verdict, err := ValidateExisting(ctx, execCtx, existing)
	if err != nil {
		return nil, err
	}
	if verdict.OK {
		return &agent.AgentOutput{
			Success: true,
			Content: verdict.SQL,
			Metadata: agent.AgentMetadata{
				GenerationMethod: models.GenerationMethodValidateOnly,
				Validated:        true,
			},
		}, nil
	}

	if verdict.Reason == agent.RepairReasonDialectMismatch || verdict.Reason == agent.RepairReasonLexicalError {
		// The SQL is structurally sound for some dialect; regeneration
		// would not help.
		return &agent.AgentOutput{
			Success: false,
			Content: verdict.SQL,
			Reason:  verdict.Reason,
			Metadata: agent.AgentMetadata{
				GenerationMethod: models.GenerationMethodValidateOnly,
			},
		}, nil
	}

	execCtx.Sink().Step("existing sql invalid, regenerating", map[string]any{
		"reason": verdict.Reason,
	})

	out, err := f.loop.Run(ctx, execCtx)
	if err != nil {
		return nil, err
	}
	out.Metadata.GenerationMethod = models.GenerationMethodPTAVFallback
	out.Metadata.FallbackReason = verdict.Reason
	return out, nil
}
