package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanSQL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "code fence",
			in:   "```sql\nSELECT 1\n```",
			want: "SELECT 1",
		},
		{
			name: "bare fence",
			in:   "```\nSELECT 1\n```",
			want: "SELECT 1",
		},
		{
			name: "trailing semicolon",
			in:   "SELECT 1;",
			want: "SELECT 1",
		},
		{
			name: "fence and semicolon",
			in:   "```sql\nSELECT amount FROM orders;\n```",
			want: "SELECT amount FROM orders",
		},
		{
			name: "already clean",
			in:   "SELECT amount FROM orders",
			want: "SELECT amount FROM orders",
		},
		{
			name: "missing closing parenthesis",
			in:   "SELECT SUM(amount FROM sales WHERE sale_date BETWEEN {{start_date}} AND {{end_date}}",
			want: "SELECT SUM(amount FROM sales WHERE sale_date BETWEEN {{start_date}} AND {{end_date}})",
		},
		{
			name: "two missing closers",
			in:   "SELECT SUM(COALESCE(amount, 0 FROM sales;",
			want: "SELECT SUM(COALESCE(amount, 0 FROM sales))",
		},
		{
			name: "stray trailing closer",
			in:   "SELECT SUM(amount) FROM sales)",
			want: "SELECT SUM(amount) FROM sales",
		},
		{
			name: "parens in string literal ignored",
			in:   "SELECT ':-)' FROM sales",
			want: "SELECT ':-)' FROM sales",
		},
		{
			name: "mid-statement stray closer left alone",
			in:   "SELECT amount) FROM sales",
			want: "SELECT amount) FROM sales",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := CleanSQL(tt.in)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanSQLNotesParenthesisFixes(t *testing.T) {
	_, notes := CleanSQL("SELECT SUM(amount FROM sales")
	require.Len(t, notes, 1)
	assert.Equal(t, "appended missing closing parenthesis", notes[0])

	_, notes = CleanSQL("SELECT amount FROM sales")
	assert.Empty(t, notes)
}

func TestNormalizeIdentifierCase(t *testing.T) {
	snap := ordersSnapshot()

	fixed, notes := normalizeIdentifierCase("SELECT AMOUNT FROM Orders", snap)
	assert.Equal(t, "SELECT amount FROM orders", fixed)
	assert.Len(t, notes, 2)

	// Exact-case SQL is untouched.
	fixed, notes = normalizeIdentifierCase("SELECT amount FROM orders", snap)
	assert.Equal(t, "SELECT amount FROM orders", fixed)
	assert.Empty(t, notes)
}

func TestReplaceIdentWholeWordOnly(t *testing.T) {
	out := replaceIdent("SELECT total_amount, AMOUNT FROM t", "AMOUNT", "amount")
	assert.Equal(t, "SELECT total_amount, amount FROM t", out)
}

func TestDecodeJSONReply(t *testing.T) {
	var parsed repairResponse

	require.NoError(t, decodeJSONReply(`{"sql": "SELECT 1", "notes": "ok"}`, &parsed))
	assert.Equal(t, "SELECT 1", parsed.SQL)

	// Fenced reply.
	require.NoError(t, decodeJSONReply("```json\n{\"sql\": \"SELECT 2\"}\n```", &parsed))
	assert.Equal(t, "SELECT 2", parsed.SQL)

	// Trailing comma repaired.
	require.NoError(t, decodeJSONReply(`{"sql": "SELECT 3",}`, &parsed))
	assert.Equal(t, "SELECT 3", parsed.SQL)
}
