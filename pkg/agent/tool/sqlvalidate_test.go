package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reportforge/reportforge/pkg/datasource"
	"github.com/reportforge/reportforge/pkg/schemacache"
)

func ordersSnapshot() *schemacache.Snapshot {
	return &schemacache.Snapshot{
		DataSourceID: "sales",
		Tables: []datasource.TableInfo{
			{Name: "orders"},
			{Name: "customers"},
		},
		Columns: map[string][]datasource.ColumnInfo{
			"orders": {
				{Name: "id", Type: "BIGINT"},
				{Name: "customer_id", Type: "BIGINT"},
				{Name: "amount", Type: "NUMERIC"},
				{Name: "order_date", Type: "DATE"},
			},
			"customers": {
				{Name: "id", Type: "BIGINT"},
				{Name: "region", Type: "TEXT"},
			},
		},
	}
}

func TestValidateSQLAcceptsWellFormedSelect(t *testing.T) {
	snap := ordersSnapshot()

	report := ValidateSQL(
		"SELECT SUM(amount) AS total FROM orders WHERE order_date BETWEEN {{start_date}} AND {{end_date}}",
		snap, "postgres")

	assert.True(t, report.Valid, "issues: %v", report.Issues)
	assert.Empty(t, report.Issues)
}

func TestValidateSQLRejections(t *testing.T) {
	snap := ordersSnapshot()

	tests := []struct {
		name     string
		sql      string
		dialect  string
		wantKind string
	}{
		{
			name:     "forbidden verb",
			sql:      "DELETE FROM orders",
			dialect:  "postgres",
			wantKind: IssueKindForbiddenVerb,
		},
		{
			name:     "unknown table",
			sql:      "SELECT id FROM invoices",
			dialect:  "postgres",
			wantKind: IssueKindUnknownTable,
		},
		{
			name:     "unknown column",
			sql:      "SELECT revenue FROM orders",
			dialect:  "postgres",
			wantKind: IssueKindUnknownColumn,
		},
		{
			name:     "unbalanced parens",
			sql:      "SELECT SUM(amount FROM orders",
			dialect:  "postgres",
			wantKind: IssueKindUnbalanced,
		},
		{
			name:     "backticks in postgres",
			sql:      "SELECT `amount` FROM orders",
			dialect:  "postgres",
			wantKind: IssueKindDialect,
		},
		{
			name:     "double quotes in mysql",
			sql:      `SELECT "amount" FROM orders`,
			dialect:  "mysql",
			wantKind: IssueKindDialect,
		},
		{
			name:     "unterminated string",
			sql:      "SELECT amount FROM orders WHERE region = 'north",
			dialect:  "postgres",
			wantKind: IssueKindLexical,
		},
		{
			name:     "not a select",
			sql:      "EXPLAIN SELECT amount FROM orders",
			dialect:  "postgres",
			wantKind: IssueKindNotSelect,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := ValidateSQL(tt.sql, snap, tt.dialect)
			assert.False(t, report.Valid)
			assert.Contains(t, report.Kinds, tt.wantKind)
		})
	}
}

func TestValidateSQLQualifiedColumns(t *testing.T) {
	snap := ordersSnapshot()

	report := ValidateSQL(
		"SELECT c.region, SUM(o.amount) AS total FROM orders o JOIN customers c ON o.customer_id = c.id GROUP BY c.region",
		snap, "postgres")
	assert.True(t, report.Valid, "issues: %v", report.Issues)

	report = ValidateSQL(
		"SELECT o.nonexistent FROM orders o",
		snap, "postgres")
	require.False(t, report.Valid)
	assert.Contains(t, report.Kinds, IssueKindUnknownColumn)
}

func TestValidateSQLExtractFromColumnIsNotATable(t *testing.T) {
	snap := ordersSnapshot()

	report := ValidateSQL(
		"SELECT EXTRACT(MONTH FROM order_date) AS month, SUM(amount) AS total FROM orders GROUP BY month",
		snap, "postgres")
	assert.True(t, report.Valid, "issues: %v", report.Issues)
}

func TestValidateSQLSelectAliasReusableInOrderBy(t *testing.T) {
	snap := ordersSnapshot()

	report := ValidateSQL(
		"SELECT region, COUNT(id) AS cnt FROM customers GROUP BY region ORDER BY cnt DESC",
		snap, "postgres")
	assert.True(t, report.Valid, "issues: %v", report.Issues)
}

func TestValidateSQLNilSnapshotSkipsResolution(t *testing.T) {
	report := ValidateSQL("SELECT anything FROM anywhere", nil, "postgres")
	assert.True(t, report.Valid)
}

func TestValidateSQLBackticksAllowedInMySQL(t *testing.T) {
	snap := ordersSnapshot()
	report := ValidateSQL("SELECT `amount` FROM orders", snap, "mysql")
	assert.True(t, report.Valid, "issues: %v", report.Issues)
}

func TestValidateSQLPureOnInputs(t *testing.T) {
	snap := ordersSnapshot()
	sql := "SELECT SUM(amount) AS total FROM orders"

	first := ValidateSQL(sql, snap, "postgres")
	second := ValidateSQL(sql, snap, "postgres")
	assert.Equal(t, first, second)
}

func TestTokenizeSQLPlaceholders(t *testing.T) {
	tokens, lexErr := tokenizeSQL("SELECT 1 WHERE d >= {{start_date}}")
	require.Empty(t, lexErr)

	var found bool
	for _, tok := range tokens {
		if tok.kind == "placeholder" {
			assert.Equal(t, "{{start_date}}", tok.text)
			found = true
		}
	}
	assert.True(t, found)
}
