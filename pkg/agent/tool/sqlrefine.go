package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/reportforge/reportforge/pkg/agent"
	"github.com/reportforge/reportforge/pkg/schemacache"
)

// RefineTool repairs a SQL draft. Deterministic cleanups run first
// (code fences, trailing semicolons, identifier casing); if issues
// remain the LLM performs a semantic repair.
type RefineTool struct{}

func (t *RefineTool) Name() string { return NameRefine }

func (t *RefineTool) Describe() string {
	return "Repair a SQL draft given validation issues or an execution error."
}

func (t *RefineTool) InputSchema() map[string]string {
	return map[string]string{
		"sql":    "string",
		"issues": "list of issue strings (optional)",
		"error":  "string execution error (optional)",
	}
}

func (t *RefineTool) Execute(ctx context.Context, execCtx *agent.ExecutionContext, input map[string]any) (map[string]any, error) {
	sqlText := optionalString(input, "sql")
	if sqlText == "" {
		sqlText = execCtx.Pool.GetString(agent.KeySQLCurrent)
	}
	if sqlText == "" {
		return nil, fmt.Errorf("no SQL to refine")
	}

	issues := issueList(input)
	if errText := optionalString(input, "error"); errText != "" {
		issues = append(issues, errText)
	}

	cleaned, notes := CleanSQL(sqlText)

	snap, snapErr := execCtx.Schema.Get(ctx, execCtx.Connector, true)
	if snapErr == nil && snap != nil {
		fixed, caseNotes := normalizeIdentifierCase(cleaned, snap)
		cleaned = fixed
		notes = append(notes, caseNotes...)
	}

	// Re-validate after deterministic cleanup; only escalate to the LLM
	// when issues survive.
	var report ValidationReport
	if snapErr == nil {
		report = ValidateSQL(cleaned, snap, execCtx.Input.Dialect)
	} else {
		report = ValidateSQL(cleaned, nil, execCtx.Input.Dialect)
	}

	if !report.Valid || len(issues) > 0 && cleaned == sqlText {
		repaired, llmNotes, err := t.semanticRepair(ctx, execCtx, cleaned, append(issues, report.Issues...))
		if err != nil {
			return nil, err
		}
		cleaned = repaired
		notes = append(notes, llmNotes...)
	}

	execCtx.Pool.Put(agent.KeySQLCurrent, cleaned, 0)
	return map[string]any{
		"sql":     cleaned,
		"changed": cleaned != sqlText,
		"notes":   notes,
	}, nil
}

type repairResponse struct {
	SQL   string `json:"sql"`
	Notes string `json:"notes"`
}

func (t *RefineTool) semanticRepair(ctx context.Context, execCtx *agent.ExecutionContext, sqlText string, issues []string) (string, []string, error) {
	var sb strings.Builder
	sb.WriteString("Repair the following SQL so it is valid ")
	sb.WriteString(execCtx.Input.Dialect)
	sb.WriteString(" and addresses every issue. Keep {{placeholder}} markers unchanged. ")
	sb.WriteString("Respond with JSON only: {\"sql\": \"...\", \"notes\": \"...\"}.\n\nSQL:\n")
	sb.WriteString(sqlText)
	sb.WriteString("\n\nIssues:\n")
	for _, issue := range issues {
		sb.WriteString("- ")
		sb.WriteString(issue)
		sb.WriteString("\n")
	}
	if schema := poolSchemaSummary(execCtx.Pool); schema != "" {
		sb.WriteString("\nKnown schema:\n")
		sb.WriteString(schema)
	}

	resp, err := execCtx.LLM.Complete(ctx, llmRequest(sb.String()))
	if err != nil {
		return "", nil, fmt.Errorf("sql repair: %w", err)
	}

	var parsed repairResponse
	if err := decodeJSONReply(resp.Content, &parsed); err != nil {
		return "", nil, fmt.Errorf("sql repair: %w", err)
	}
	repaired, _ := CleanSQL(parsed.SQL)
	if repaired == "" {
		return "", nil, fmt.Errorf("sql repair: model returned empty sql")
	}
	var notes []string
	if parsed.Notes != "" {
		notes = append(notes, parsed.Notes)
	}
	return repaired, notes, nil
}

// CleanSQL applies deterministic cleanups: code fences, surrounding
// whitespace, trailing semicolons, and parenthesis balance. Returns the
// cleaned SQL and a note per applied fix.
func CleanSQL(sqlText string) (string, []string) {
	var notes []string
	s := strings.TrimSpace(sqlText)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```sql")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
		notes = append(notes, "stripped code fence")
	}

	if strings.HasSuffix(s, ";") {
		s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
		notes = append(notes, "stripped trailing semicolon")
	}

	if fixed, note := balanceParens(s); note != "" {
		s = fixed
		notes = append(notes, note)
	}
	return s, notes
}

// balanceParens appends missing closing parentheses, or trims stray
// trailing ones, so depth comes out even. Parentheses inside string
// literals don't count; an unterminated literal leaves the SQL alone
// for the validator to report.
func balanceParens(s string) (string, string) {
	depth := 0
	inString := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\'':
			inString = !inString
		case inString:
		case c == '(':
			depth++
		case c == ')':
			depth--
		}
	}
	if inString || depth == 0 {
		return s, ""
	}

	if depth > 0 {
		note := "appended missing closing parenthesis"
		if depth > 1 {
			note = fmt.Sprintf("appended %d missing closing parentheses", depth)
		}
		return s + strings.Repeat(")", depth), note
	}

	trimmed := s
	removed := 0
	for depth < 0 && strings.HasSuffix(trimmed, ")") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ")"))
		depth++
		removed++
	}
	if depth < 0 {
		// Excess closer mid-statement; textual repair would guess wrong.
		return s, ""
	}
	note := "removed stray trailing parenthesis"
	if removed > 1 {
		note = fmt.Sprintf("removed %d stray trailing parentheses", removed)
	}
	return trimmed, note
}

// normalizeIdentifierCase rewrites bare identifiers that match a
// snapshot table or column name case-insensitively but not exactly.
func normalizeIdentifierCase(sqlText string, snap *schemacache.Snapshot) (string, []string) {
	tokens, lexErr := tokenizeSQL(sqlText)
	if lexErr != "" {
		return sqlText, nil
	}

	canonical := snap.CanonicalNames()
	if len(canonical) == 0 {
		return sqlText, nil
	}

	var notes []string
	out := sqlText
	for _, tok := range tokens {
		if tok.kind != "ident" || sqlKeywords[strings.ToUpper(tok.text)] {
			continue
		}
		want, ok := canonical[strings.ToLower(tok.text)]
		if !ok || want == tok.text {
			continue
		}
		out = replaceIdent(out, tok.text, want)
		notes = append(notes, fmt.Sprintf("normalized identifier %s to %s", tok.text, want))
	}
	return out, notes
}

// replaceIdent replaces whole-word occurrences of an identifier.
func replaceIdent(s, from, to string) string {
	var sb strings.Builder
	for i := 0; i < len(s); {
		j := strings.Index(s[i:], from)
		if j < 0 {
			sb.WriteString(s[i:])
			break
		}
		j += i
		before := j == 0 || !isIdentPart(s[j-1])
		afterIdx := j + len(from)
		after := afterIdx >= len(s) || !isIdentPart(s[afterIdx])
		sb.WriteString(s[i:j])
		if before && after {
			sb.WriteString(to)
		} else {
			sb.WriteString(from)
		}
		i = afterIdx
	}
	return sb.String()
}

// decodeJSONReply parses a model reply as JSON, tolerating code fences,
// prose around the object, and mildly malformed output.
func decodeJSONReply(content string, v any) error {
	s := extractJSONObject(content)
	if s == "" {
		return fmt.Errorf("no JSON object in model reply")
	}
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}
	repaired, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return fmt.Errorf("unparseable model reply: %w", err)
	}
	return json.Unmarshal([]byte(repaired), v)
}

// extractJSONObject returns the first balanced {...} block, respecting
// string literals. Empty when none exists.
func extractJSONObject(s string) string {
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
	// Unterminated object: hand the tail to the repairer.
	return s[start:]
}

func issueList(input map[string]any) []string {
	raw, ok := input["issues"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}
