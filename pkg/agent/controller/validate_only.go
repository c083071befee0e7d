package controller

import (
	"context"
	"fmt"

	"github.com/reportforge/reportforge/pkg/agent"
	"github.com/reportforge/reportforge/pkg/agent/tool"
)

// RepairVerdict is the outcome of a validate-only pass over existing
// SQL.
type RepairVerdict struct {
	// OK means the SQL (possibly after one repair round) validates.
	OK bool

	// SQL is the validated (or last attempted) SQL.
	SQL string

	// Reason is the dominant issue kind when validation failed.
	Reason string

	// Issues are the surviving validation messages.
	Issues []string
}

// ValidateExisting checks previously derived SQL without regenerating
// it. Invalid SQL gets exactly one refine round followed by a
// revalidation; whatever survives is reported for the caller to decide
// on regeneration. A failed refine round is not fatal: the original
// issues come back instead.
func ValidateExisting(ctx context.Context, execCtx *agent.ExecutionContext, sqlText string) (RepairVerdict, error) {
	report, err := runValidate(ctx, execCtx, sqlText)
	if err != nil {
		return RepairVerdict{}, err
	}
	if report.valid {
		return RepairVerdict{OK: true, SQL: sqlText}, nil
	}

	repaired, err := runRefine(ctx, execCtx, sqlText, report.issues)
	if err != nil {
		execCtx.Sink().Step("sql repair unavailable", map[string]any{
			"error": err.Error(),
		})
		return RepairVerdict{
			SQL:    sqlText,
			Reason: dominantKind(report.kinds),
			Issues: report.issues,
		}, nil
	}

	report, err = runValidate(ctx, execCtx, repaired)
	if err != nil {
		return RepairVerdict{}, err
	}
	if report.valid {
		return RepairVerdict{OK: true, SQL: repaired}, nil
	}
	return RepairVerdict{
		SQL:    repaired,
		Reason: dominantKind(report.kinds),
		Issues: report.issues,
	}, nil
}

// dominantKind picks the reported reason: in-place-repairable kinds win
// so callers can tell "do not regenerate" apart from real schema
// problems.
func dominantKind(kinds []string) string {
	for _, kind := range kinds {
		if kind == agent.RepairReasonDialectMismatch || kind == agent.RepairReasonLexicalError {
			return kind
		}
	}
	if len(kinds) > 0 {
		return kinds[0]
	}
	return "invalid"
}

type validateReport struct {
	valid  bool
	issues []string
	kinds  []string
}

func runValidate(ctx context.Context, execCtx *agent.ExecutionContext, sqlText string) (validateReport, error) {
	validate, err := execCtx.Registry.Get(tool.NameValidate)
	if err != nil {
		return validateReport{}, err
	}
	result, err := validate.Execute(ctx, execCtx, map[string]any{"sql": sqlText})
	if err != nil {
		return validateReport{}, fmt.Errorf("validate: %w", err)
	}
	valid, _ := result["valid"].(bool)
	return validateReport{
		valid:  valid,
		issues: stringSlice(result["issues"]),
		kinds:  stringSlice(result["issue_kinds"]),
	}, nil
}

func runRefine(ctx context.Context, execCtx *agent.ExecutionContext, sqlText string, issues []string) (string, error) {
	refine, err := execCtx.Registry.Get(tool.NameRefine)
	if err != nil {
		return "", err
	}
	result, err := refine.Execute(ctx, execCtx, map[string]any{
		"sql":    sqlText,
		"issues": issues,
	})
	if err != nil {
		return "", fmt.Errorf("refine: %w", err)
	}
	repaired, _ := result["sql"].(string)
	if repaired == "" {
		return "", fmt.Errorf("refine returned no sql")
	}
	return repaired, nil
}

func stringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}
