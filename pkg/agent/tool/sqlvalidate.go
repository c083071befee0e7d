package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/reportforge/reportforge/pkg/agent"
	"github.com/reportforge/reportforge/pkg/schemacache"
)

// Issue kinds reported by sql.validate. The repair path branches on
// these: lexical and dialect problems are fixable in place, everything
// else justifies regenerating the SQL.
const (
	IssueKindLexical       = "lexical_error"
	IssueKindDialect       = "dialect_mismatch"
	IssueKindForbiddenVerb = "forbidden_verb"
	IssueKindNotSelect     = "not_select"
	IssueKindUnbalanced    = "unbalanced_parens"
	IssueKindUnknownTable  = "unknown_table"
	IssueKindUnknownColumn = "unknown_column"
)

// ValidationReport is the outcome of a static SQL check.
type ValidationReport struct {
	Valid  bool
	Issues []string
	Kinds  []string
}

// ValidateTool statically checks a SQL draft: tokenization, dialect
// consistency, forbidden verbs, parenthesis balance, and identifier
// resolution against the schema snapshot. Pure on its inputs.
type ValidateTool struct{}

func (t *ValidateTool) Name() string { return NameValidate }

func (t *ValidateTool) Describe() string {
	return "Statically validate a SQL draft against the schema: identifiers, syntax shape, forbidden verbs."
}

func (t *ValidateTool) InputSchema() map[string]string {
	return map[string]string{"sql": "string"}
}

func (t *ValidateTool) Execute(ctx context.Context, execCtx *agent.ExecutionContext, input map[string]any) (map[string]any, error) {
	sqlText := optionalString(input, "sql")
	if sqlText == "" {
		sqlText = execCtx.Pool.GetString(agent.KeySQLCurrent)
	}
	if sqlText == "" {
		return nil, fmt.Errorf("no SQL to validate")
	}

	// Stale snapshots are acceptable here: static validation is the
	// repair fast path and must not block on introspection.
	snap, err := execCtx.Schema.Get(ctx, execCtx.Connector, true)
	if err != nil {
		snap = nil // validate what we can without identifier resolution
	}

	report := ValidateSQL(sqlText, snap, execCtx.Input.Dialect)

	// The validated draft becomes the current SQL so later iterations
	// and the pattern detector see it.
	execCtx.Pool.Put(agent.KeySQLCurrent, sqlText, 0)

	return map[string]any{
		"sql":         sqlText,
		"valid":       report.Valid,
		"issues":      report.Issues,
		"issue_kinds": report.Kinds,
	}, nil
}

// forbiddenVerbs are never allowed in agent-derived SQL.
var forbiddenVerbs = map[string]bool{
	"DROP": true, "DELETE": true, "UPDATE": true, "TRUNCATE": true, "ALTER": true,
	"INSERT": true, "GRANT": true, "REVOKE": true, "CREATE": true,
}

// sqlKeywords are tokens never treated as identifiers.
var sqlKeywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "GROUP": true, "ORDER": true,
	"BY": true, "HAVING": true, "LIMIT": true, "OFFSET": true, "AS": true,
	"ON": true, "AND": true, "OR": true, "NOT": true, "IN": true, "IS": true,
	"NULL": true, "JOIN": true, "LEFT": true, "RIGHT": true, "INNER": true,
	"OUTER": true, "FULL": true, "CROSS": true, "UNION": true, "ALL": true,
	"DISTINCT": true, "CASE": true, "WHEN": true, "THEN": true, "ELSE": true,
	"END": true, "BETWEEN": true, "LIKE": true, "ILIKE": true, "ASC": true,
	"DESC": true, "WITH": true, "EXISTS": true, "INTERVAL": true, "DESCRIBE": true,
	"TRUE": true, "FALSE": true, "USING": true, "OVER": true, "PARTITION": true,
	// Date-part words used inside EXTRACT and DATE_TRUNC expressions.
	"YEAR": true, "QUARTER": true, "MONTH": true, "WEEK": true, "DAY": true,
	"HOUR": true, "MINUTE": true, "SECOND": true, "EPOCH": true, "DOW": true,
}

type sqlToken struct {
	kind string // "ident", "quoted", "backtick", "number", "string", "placeholder", "punct"
	text string
}

// ValidateSQL runs the static checks. snapshot may be nil, in which case
// identifier resolution is skipped.
func ValidateSQL(sqlText string, snapshot *schemacache.Snapshot, dialect string) ValidationReport {
	var report ValidationReport

	tokens, lexErr := tokenizeSQL(sqlText)
	if lexErr != "" {
		report.Issues = append(report.Issues, lexErr)
		report.Kinds = append(report.Kinds, IssueKindLexical)
		return report
	}

	checkDialect(tokens, dialect, &report)
	checkShape(tokens, &report)
	checkBalance(sqlText, &report)
	if snapshot != nil {
		resolveIdentifiers(tokens, snapshot, &report)
	}

	report.Valid = len(report.Issues) == 0
	return report
}

// tokenizeSQL splits SQL into tokens. Returns a lexical issue string on
// unterminated quotes.
func tokenizeSQL(s string) ([]sqlToken, string) {
	var tokens []sqlToken
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '\'':
			end := scanQuoted(s, i, '\'')
			if end < 0 {
				return nil, "unterminated string literal"
			}
			tokens = append(tokens, sqlToken{kind: "string", text: s[i : end+1]})
			i = end + 1

		case c == '"':
			end := scanQuoted(s, i, '"')
			if end < 0 {
				return nil, "unterminated quoted identifier"
			}
			tokens = append(tokens, sqlToken{kind: "quoted", text: s[i+1 : end]})
			i = end + 1

		case c == '`':
			end := scanQuoted(s, i, '`')
			if end < 0 {
				return nil, "unterminated backtick identifier"
			}
			tokens = append(tokens, sqlToken{kind: "backtick", text: s[i+1 : end]})
			i = end + 1

		case strings.HasPrefix(s[i:], "{{"):
			end := strings.Index(s[i:], "}}")
			if end < 0 {
				return nil, "unterminated {{placeholder}}"
			}
			tokens = append(tokens, sqlToken{kind: "placeholder", text: s[i : i+end+2]})
			i += end + 2

		case isIdentStart(c):
			j := i + 1
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			tokens = append(tokens, sqlToken{kind: "ident", text: s[i:j]})
			i = j

		case c >= '0' && c <= '9':
			j := i + 1
			for j < len(s) && (s[j] >= '0' && s[j] <= '9' || s[j] == '.') {
				j++
			}
			tokens = append(tokens, sqlToken{kind: "number", text: s[i:j]})
			i = j

		default:
			tokens = append(tokens, sqlToken{kind: "punct", text: string(c)})
			i++
		}
	}
	return tokens, ""
}

func scanQuoted(s string, start int, quote byte) int {
	for i := start + 1; i < len(s); i++ {
		if s[i] == quote {
			// Doubled quote escapes itself.
			if i+1 < len(s) && s[i+1] == quote {
				i++
				continue
			}
			return i
		}
	}
	return -1
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9' || c == '$'
}

func checkDialect(tokens []sqlToken, dialect string, report *ValidationReport) {
	for _, tok := range tokens {
		if tok.kind == "backtick" && dialect != "mysql" && dialect != "doris" {
			report.Issues = append(report.Issues,
				"backtick-quoted identifiers are not valid in "+dialect)
			report.Kinds = append(report.Kinds, IssueKindDialect)
			return
		}
		if tok.kind == "quoted" && (dialect == "mysql" || dialect == "doris") {
			report.Issues = append(report.Issues,
				"double-quoted identifiers are not valid in "+dialect)
			report.Kinds = append(report.Kinds, IssueKindDialect)
			return
		}
	}
}

func checkShape(tokens []sqlToken, report *ValidationReport) {
	if len(tokens) == 0 {
		report.Issues = append(report.Issues, "empty statement")
		report.Kinds = append(report.Kinds, IssueKindNotSelect)
		return
	}
	first := strings.ToUpper(tokens[0].text)
	if tokens[0].kind != "ident" || (first != "SELECT" && first != "WITH") {
		report.Issues = append(report.Issues, "statement must start with SELECT or WITH")
		report.Kinds = append(report.Kinds, IssueKindNotSelect)
	}
	for _, tok := range tokens {
		if tok.kind == "ident" && forbiddenVerbs[strings.ToUpper(tok.text)] {
			report.Issues = append(report.Issues,
				"forbidden verb "+strings.ToUpper(tok.text))
			report.Kinds = append(report.Kinds, IssueKindForbiddenVerb)
		}
	}
}

func checkBalance(sqlText string, report *ValidationReport) {
	depth := 0
	inString := false
	for i := 0; i < len(sqlText); i++ {
		c := sqlText[i]
		if c == '\'' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				report.Issues = append(report.Issues, "unbalanced parentheses")
				report.Kinds = append(report.Kinds, IssueKindUnbalanced)
				return
			}
		}
	}
	if depth != 0 {
		report.Issues = append(report.Issues, "unbalanced parentheses")
		report.Kinds = append(report.Kinds, IssueKindUnbalanced)
	}
}

// resolveIdentifiers checks FROM/JOIN tables against the snapshot and
// column references against the referenced tables.
func resolveIdentifiers(tokens []sqlToken, snapshot *schemacache.Snapshot, report *ValidationReport) {
	tables, aliases := referencedTables(tokens, snapshot)

	for _, t := range tables {
		if !snapshot.HasTable(t.canonical) {
			report.Issues = append(report.Issues,
				fmt.Sprintf("table %s not found", t.written))
			report.Kinds = append(report.Kinds, IssueKindUnknownTable)
		}
	}

	known := make([]string, 0, len(tables))
	for _, t := range tables {
		if snapshot.HasTable(t.canonical) {
			known = append(known, t.canonical)
		}
	}
	if len(known) == 0 {
		return
	}

	checkColumns(tokens, snapshot, known, aliases, report)
}

type tableRef struct {
	written   string // as it appears in the SQL
	canonical string // snapshot-case name when resolvable, else written
}

// referencedTables collects identifiers following FROM and JOIN, along
// with their aliases.
func referencedTables(tokens []sqlToken, snapshot *schemacache.Snapshot) ([]tableRef, map[string]string) {
	var tables []tableRef
	aliases := make(map[string]string) // alias (lower) → canonical table

	for i := 0; i < len(tokens); i++ {
		word := strings.ToUpper(tokens[i].text)
		if tokens[i].kind != "ident" || (word != "FROM" && word != "JOIN") {
			continue
		}
		j := i + 1
		if j >= len(tokens) {
			break
		}
		// Subquery: no table identifier to resolve here.
		if tokens[j].kind == "punct" && tokens[j].text == "(" {
			continue
		}
		if !isIdentToken(tokens[j]) {
			continue
		}
		written := tokens[j].text
		canonical := canonicalTable(snapshot, written)
		// "EXTRACT(unit FROM column)" and friends: an identifier after
		// FROM that is a known column but not a table is not a table ref.
		if !snapshot.HasTable(canonical) && anyColumnFold(snapshot, written) {
			continue
		}
		tables = append(tables, tableRef{written: written, canonical: canonical})
		aliases[strings.ToLower(written)] = canonical

		// Optional alias: "table [AS] alias".
		k := j + 1
		if k < len(tokens) && tokens[k].kind == "ident" && strings.ToUpper(tokens[k].text) == "AS" {
			k++
		}
		if k < len(tokens) && isIdentToken(tokens[k]) && !sqlKeywords[strings.ToUpper(tokens[k].text)] {
			aliases[strings.ToLower(tokens[k].text)] = canonical
		}
		i = j
	}
	return tables, aliases
}

// checkColumns validates column references. Qualified references are
// checked against their alias's table; unqualified ones against every
// referenced table.
func checkColumns(tokens []sqlToken, snapshot *schemacache.Snapshot, tables []string, aliases map[string]string, report *ValidationReport) {
	// Select-list aliases ("expr AS name") are legal references later in
	// the statement.
	selectAliases := make(map[string]bool)
	for i := 1; i < len(tokens); i++ {
		if tokens[i-1].kind == "ident" && strings.ToUpper(tokens[i-1].text) == "AS" && isIdentToken(tokens[i]) {
			selectAliases[strings.ToLower(tokens[i].text)] = true
		}
	}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if !isIdentToken(tok) || sqlKeywords[strings.ToUpper(tok.text)] {
			continue
		}
		// Function call: identifier immediately followed by "(".
		if i+1 < len(tokens) && tokens[i+1].kind == "punct" && tokens[i+1].text == "(" {
			continue
		}
		// Qualified reference: alias.column.
		if i+2 < len(tokens) && tokens[i+1].kind == "punct" && tokens[i+1].text == "." && isIdentToken(tokens[i+2]) {
			table, ok := aliases[strings.ToLower(tok.text)]
			column := tokens[i+2].text
			if ok && snapshot.HasTable(table) && !hasColumnFold(snapshot, table, column) {
				report.Issues = append(report.Issues,
					fmt.Sprintf("column %s not found in table %s", column, table))
				report.Kinds = append(report.Kinds, IssueKindUnknownColumn)
			}
			i += 2
			continue
		}
		// Skip table names, aliases, and the token after a dot.
		if i > 0 && tokens[i-1].kind == "punct" && tokens[i-1].text == "." {
			continue
		}
		if _, isAlias := aliases[strings.ToLower(tok.text)]; isAlias {
			continue
		}
		if selectAliases[strings.ToLower(tok.text)] {
			continue
		}
		if prevKeywordBlocksColumnCheck(tokens, i) {
			continue
		}
		// Unqualified column: must exist in some referenced table.
		found := false
		for _, table := range tables {
			if hasColumnFold(snapshot, table, tok.text) {
				found = true
				break
			}
		}
		if !found {
			report.Issues = append(report.Issues,
				fmt.Sprintf("column %s not found in referenced tables", tok.text))
			report.Kinds = append(report.Kinds, IssueKindUnknownColumn)
		}
	}
}

// prevKeywordBlocksColumnCheck skips identifiers that are aliases being
// defined (after AS) or table names (after FROM/JOIN).
func prevKeywordBlocksColumnCheck(tokens []sqlToken, i int) bool {
	if i == 0 {
		return false
	}
	prev := strings.ToUpper(tokens[i-1].text)
	return tokens[i-1].kind == "ident" && (prev == "AS" || prev == "FROM" || prev == "JOIN" || prev == "INTERVAL")
}

func isIdentToken(t sqlToken) bool {
	return t.kind == "ident" || t.kind == "quoted" || t.kind == "backtick"
}

func canonicalTable(snapshot *schemacache.Snapshot, written string) string {
	if snapshot.HasTable(written) {
		return written
	}
	for _, t := range snapshot.Tables {
		if strings.EqualFold(t.Name, written) {
			return t.Name
		}
	}
	return written
}

// anyColumnFold reports whether any table in the snapshot has a column
// with the given name, case-insensitively.
func anyColumnFold(snapshot *schemacache.Snapshot, column string) bool {
	for table := range snapshot.Columns {
		if hasColumnFold(snapshot, table, column) {
			return true
		}
	}
	return false
}

func hasColumnFold(snapshot *schemacache.Snapshot, table, column string) bool {
	for _, c := range snapshot.Columns[table] {
		if strings.EqualFold(c.Name, column) {
			return true
		}
	}
	return false
}
