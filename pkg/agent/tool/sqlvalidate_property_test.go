package tool

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genSafeIdent generates identifiers that are neither keywords nor
// forbidden verbs, so they never trip checks on their own.
func genSafeIdent() gopter.Gen {
	return gen.Identifier().SuchThat(func(s string) bool {
		upper := strings.ToUpper(s)
		return !sqlKeywords[upper] && !forbiddenVerbs[upper]
	})
}

func hasKind(report ValidationReport, kind string) bool {
	for _, k := range report.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func TestValidateSQLProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("simple projections validate without a snapshot", prop.ForAll(
		func(col, table string) bool {
			report := ValidateSQL("SELECT "+col+" FROM "+table, nil, "postgres")
			return report.Valid && len(report.Issues) == 0
		},
		genSafeIdent(), genSafeIdent(),
	))

	properties.Property("mutating verbs are rejected wherever they appear", prop.ForAll(
		func(col, table, verb string) bool {
			report := ValidateSQL("SELECT "+col+" FROM "+table+" WHERE "+verb, nil, "postgres")
			return !report.Valid && hasKind(report, IssueKindForbiddenVerb)
		},
		genSafeIdent(), genSafeIdent(),
		gen.OneConstOf("DROP", "DELETE", "UPDATE", "TRUNCATE", "ALTER",
			"INSERT", "GRANT", "REVOKE", "CREATE",
			"drop", "delete", "insert"),
	))

	properties.Property("statements must open with SELECT or WITH", prop.ForAll(
		func(first, col string) bool {
			report := ValidateSQL(first+" "+col, nil, "postgres")
			return !report.Valid && hasKind(report, IssueKindNotSelect)
		},
		genSafeIdent(), genSafeIdent(),
	))

	properties.Property("a stray closing parenthesis is always caught", prop.ForAll(
		func(col, table string) bool {
			report := ValidateSQL("SELECT "+col+" FROM "+table+")", nil, "postgres")
			return !report.Valid && hasKind(report, IssueKindUnbalanced)
		},
		genSafeIdent(), genSafeIdent(),
	))

	properties.Property("wrapping the projection in parentheses stays valid", prop.ForAll(
		func(col, table string) bool {
			report := ValidateSQL("SELECT ("+col+") FROM "+table, nil, "postgres")
			return report.Valid
		},
		genSafeIdent(), genSafeIdent(),
	))

	properties.Property("unterminated string literals are lexical errors", prop.ForAll(
		func(col string) bool {
			report := ValidateSQL("SELECT '"+col, nil, "postgres")
			return !report.Valid && hasKind(report, IssueKindLexical)
		},
		genSafeIdent(),
	))

	properties.Property("doubled quotes escape inside literals", prop.ForAll(
		func(word, table string) bool {
			report := ValidateSQL("SELECT 'it''s "+word+"' FROM "+table, nil, "postgres")
			return report.Valid
		},
		genSafeIdent(), genSafeIdent(),
	))

	properties.Property("backtick identifiers only pass in backtick dialects", prop.ForAll(
		func(col, table string) bool {
			sqlText := "SELECT `" + col + "` FROM " + table
			pg := ValidateSQL(sqlText, nil, "postgres")
			my := ValidateSQL(sqlText, nil, "mysql")
			return !pg.Valid && hasKind(pg, IssueKindDialect) && my.Valid
		},
		genSafeIdent(), genSafeIdent(),
	))

	properties.TestingRun(t)
}
