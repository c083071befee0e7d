package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/reportforge/reportforge/pkg/agent"
	"github.com/reportforge/reportforge/pkg/llm"
)

// ParseError marks a model reply that could not be turned into a plan
// even after repair. The loop treats it as a non-retryable planning
// failure for the iteration.
type ParseError struct {
	Reply string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable plan: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Planner asks the LLM for the next plan of tool calls.
type Planner struct {
	client  llm.Client
	builder *PromptBuilder
}

// New creates a Planner.
func New(client llm.Client, observationWindow int) *Planner {
	return &Planner{
		client:  client,
		builder: &PromptBuilder{ObservationWindow: observationWindow},
	}
}

// Plan requests and parses the next plan.
func (p *Planner) Plan(ctx context.Context, execCtx *agent.ExecutionContext, history *agent.History) (*agent.Plan, error) {
	req := llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: p.builder.SystemPrompt()},
			{Role: "user", Content: p.builder.Build(execCtx, history)},
		},
		JSONMode: true,
	}

	resp, err := p.client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("planning request: %w", err)
	}

	plan, err := ParsePlan(resp.Content)
	if err != nil {
		return nil, &ParseError{Reply: resp.Content, Err: err}
	}
	return plan, nil
}

type wirePlan struct {
	Reasoning  string     `json:"reasoning"`
	Steps      []wireStep `json:"steps"`
	Confidence float64    `json:"confidence"`
}

type wireStep struct {
	Tool  string         `json:"tool"`
	Input map[string]any `json:"input"`
}

// ParsePlan decodes a model reply into a plan. Strict JSON first, then
// one repair attempt (fences stripped, first balanced object extracted,
// malformed JSON repaired).
func ParsePlan(content string) (*agent.Plan, error) {
	var wire wirePlan
	if err := json.Unmarshal([]byte(content), &wire); err != nil {
		candidate := extractObject(content)
		if candidate == "" {
			return nil, fmt.Errorf("no JSON object in reply")
		}
		if err := json.Unmarshal([]byte(candidate), &wire); err != nil {
			repaired, repErr := jsonrepair.JSONRepair(candidate)
			if repErr != nil {
				return nil, fmt.Errorf("repair failed: %w", repErr)
			}
			if err := json.Unmarshal([]byte(repaired), &wire); err != nil {
				return nil, err
			}
		}
	}

	if len(wire.Steps) == 0 {
		return nil, fmt.Errorf("plan has no steps")
	}

	plan := &agent.Plan{
		Reasoning:  wire.Reasoning,
		Confidence: wire.Confidence,
		Steps:      make([]agent.PlanStep, len(wire.Steps)),
	}
	for i, s := range wire.Steps {
		if s.Tool == "" {
			return nil, fmt.Errorf("step %d has no tool", i)
		}
		input := s.Input
		if input == nil {
			input = map[string]any{}
		}
		plan.Steps[i] = agent.PlanStep{Tool: s.Tool, Input: input}
	}
	return plan, nil
}

// extractObject returns the first balanced {...} block outside string
// literals, or the tail from the first brace when unterminated.
func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}
