package agent

import (
	"github.com/reportforge/reportforge/pkg/models"
)

// Failure reasons carried in AgentOutput.Reason.
const (
	// ReasonIterationExhausted means the loop hit the iteration ceiling
	// without a validated SQL. The last-best SQL is still in Content.
	ReasonIterationExhausted = "iteration_exhausted"

	// ReasonPatternExit means the pattern detector stopped a loop that
	// was thrashing.
	ReasonPatternExit = "pattern_exit"

	// ReasonTimeouts means consecutive LLM timeouts hit the abort
	// threshold.
	ReasonTimeouts = "consecutive_timeouts"

	// ReasonPlanParse means the planner output stayed unparseable after
	// repair.
	ReasonPlanParse = "plan_parse_error"
)

// Repair-failure reasons from validate-only mode that do NOT justify a
// PTAV fallback: the SQL itself is structurally fine for some dialect,
// regeneration would not help.
const (
	RepairReasonDialectMismatch = "dialect_mismatch"
	RepairReasonLexicalError    = "lexical_error"
)

// AgentOutput is the result of one placeholder analysis.
type AgentOutput struct {
	// Success reports whether a validated SQL was produced.
	Success bool

	// Content is the derived SQL. On failure it holds the last-best
	// attempt so downstream layers can cache or retry it.
	Content string

	// Reason explains a failure ("iteration_exhausted", ...). Empty on
	// success.
	Reason string

	Metadata AgentMetadata
}

// AgentMetadata is the audit trail of one analysis.
type AgentMetadata struct {
	// GenerationMethod records which path produced the SQL.
	GenerationMethod models.GenerationMethod

	// Iterations is the number of loop iterations consumed (0 for a
	// pure validate-only pass).
	Iterations int

	// FallbackReason explains why validate-only fell through to PTAV,
	// when it did.
	FallbackReason string

	// Confidence is the planner's self-reported confidence, 0..1.
	Confidence float64

	// Validated reports whether the final sql.validate pass succeeded.
	Validated bool

	// ExecutionTested reports whether a dry-run execution succeeded.
	ExecutionTested bool
}
