package models

import "time"

// Placeholder is a named slot inside a template. The agent derives a SQL
// query from its description; the result is cached on the row so later
// runs can skip generation.
//
// Invariants (enforced by the store):
//   - AgentAnalyzed true ⇒ GeneratedSQL non-empty
//   - SQLValidated true ⇒ AgentConfig.LastTestResult.Success true
type Placeholder struct {
	ID           string       `json:"id"`
	TemplateID   string       `json:"template_id"`
	Name         string       `json:"name"` // unique per template
	Description  string       `json:"description"`
	SemanticType SemanticType `json:"semantic_type"`
	TopN         int          `json:"top_n,omitempty"` // rankings only; 0 = unset

	// Cached analysis state, mutated by the agent facade on each run.
	GeneratedSQL  string  `json:"generated_sql,omitempty"`
	SQLValidated  bool    `json:"sql_validated"`
	AgentAnalyzed bool    `json:"agent_analyzed"`
	Confidence    float64 `json:"confidence"`

	// AgentConfig is intentionally schemaless: forward-compatible agent
	// metadata rides here without column churn.
	AgentConfig AgentConfigBlob `json:"agent_config"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AgentConfigBlob is the schemaless agent metadata carried per placeholder.
// Stored as JSONB.
type AgentConfigBlob struct {
	LastTestResult   *TestResult    `json:"last_test_result,omitempty"`
	GenerationMethod string         `json:"generation_method,omitempty"`
	Iterations       int            `json:"iterations,omitempty"`
	FallbackReason   string         `json:"fallback_reason,omitempty"`
	ContextSnippet   string         `json:"context_snippet,omitempty"`
	Extra            map[string]any `json:"extra,omitempty"`
}

// TestResult records the outcome of the last SQL validation attempt.
type TestResult struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message,omitempty"`
	TestedAt time.Time `json:"tested_at"`
}

// AnalysisUpdate carries the fields the agent facade persists after each
// placeholder analysis. Persisted even on failure — failed SQL is cached
// to avoid re-generation thrash.
type AnalysisUpdate struct {
	GeneratedSQL  string
	SQLValidated  bool
	AgentAnalyzed bool
	Confidence    float64
	AgentConfig   AgentConfigBlob
}
