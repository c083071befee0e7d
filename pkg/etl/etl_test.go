package etl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reportforge/reportforge/pkg/agent/tool"
	"github.com/reportforge/reportforge/pkg/datasource"
	"github.com/reportforge/reportforge/pkg/models"
)

func TestNormalizeShapes(t *testing.T) {
	t.Run("scalar", func(t *testing.T) {
		got := Normalize(&datasource.QueryResult{
			Columns: []datasource.Column{{Name: "total", Type: "NUMERIC"}},
			Rows:    [][]any{{"1234.50"}},
		})
		assert.Equal(t, KindScalar, got.Kind)
		assert.Equal(t, 1234.5, got.Value)
		assert.Equal(t, 1, got.RowCount)
	})

	t.Run("record", func(t *testing.T) {
		got := Normalize(&datasource.QueryResult{
			Columns: []datasource.Column{
				{Name: "region", Type: "TEXT"},
				{Name: "amount", Type: "NUMERIC"},
			},
			Rows: [][]any{{"north", "99.9"}},
		})
		assert.Equal(t, KindRecord, got.Kind)
		assert.Equal(t, map[string]any{"region": "north", "amount": 99.9}, got.Value)
	})

	t.Run("table", func(t *testing.T) {
		got := Normalize(&datasource.QueryResult{
			Columns: []datasource.Column{
				{Name: "region", Type: "TEXT"},
				{Name: "amount", Type: "NUMERIC"},
			},
			Rows: [][]any{
				{"north", "1.0"},
				{"south", nil},
			},
		})
		assert.Equal(t, KindTable, got.Kind)
		records, ok := got.Value.([]map[string]any)
		require.True(t, ok)
		require.Len(t, records, 2)
		assert.Equal(t, 1.0, records[0]["amount"])
		assert.Nil(t, records[1]["amount"], "NULL survives normalization")
	})

	t.Run("empty", func(t *testing.T) {
		got := Normalize(&datasource.QueryResult{
			Columns: []datasource.Column{{Name: "total", Type: "BIGINT"}},
		})
		assert.Equal(t, KindEmpty, got.Kind)
		assert.Nil(t, got.Value)
	})
}

func TestNormalizeCellTypes(t *testing.T) {
	assert.Nil(t, normalizeCell(nil, "TEXT"))
	assert.Equal(t, int64(7), normalizeCell(int64(7), "BIGINT"))
	assert.Equal(t, "north", normalizeCell("north", "TEXT"))
	// Non-numeric string in a numeric column passes through untouched.
	assert.Equal(t, "NaN-ish", normalizeCell("NaN-ish", "NUMERIC"))

	date := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-31", normalizeCell(date, "DATE"))

	ts := time.Date(2024, 1, 31, 14, 30, 5, 0, time.UTC)
	assert.Equal(t, "2024-01-31 14:30:05", normalizeCell(ts, "TIMESTAMP"))
}

func TestBindWindow(t *testing.T) {
	window := tool.TimeWindow{StartDate: "2024-01-01", EndDate: "2024-01-31", Label: "2024-01"}
	got := BindWindow("SELECT SUM(amount) FROM orders WHERE order_date BETWEEN {{start_date}} AND {{end_date}}", window)
	assert.Equal(t, "SELECT SUM(amount) FROM orders WHERE order_date BETWEEN '2024-01-01' AND '2024-01-31'", got)
}

// fakeConnector scripts per-SQL results for runner tests.
type fakeConnector struct {
	results map[string]*datasource.QueryResult
	errs    map[string]error
	queries []string
}

func (f *fakeConnector) ID() string      { return "fake" }
func (f *fakeConnector) Dialect() string { return "postgres" }
func (f *fakeConnector) Query(_ context.Context, sqlText string) (*datasource.QueryResult, error) {
	f.queries = append(f.queries, sqlText)
	if err, ok := f.errs[sqlText]; ok {
		return nil, err
	}
	if res, ok := f.results[sqlText]; ok {
		return res, nil
	}
	return nil, errors.New("unexpected query: " + sqlText)
}
func (f *fakeConnector) ListTables(context.Context) ([]datasource.TableInfo, error) {
	return nil, nil
}
func (f *fakeConnector) GetColumns(context.Context, string) ([]datasource.ColumnInfo, error) {
	return nil, nil
}
func (f *fakeConnector) Ping(context.Context) error { return nil }
func (f *fakeConnector) Close() error               { return nil }

func TestRunnerIsolatesFailures(t *testing.T) {
	window := tool.TimeWindow{StartDate: "2024-01-01", EndDate: "2024-01-31"}
	boundOK := "SELECT 1 WHERE d >= '2024-01-01'"
	boundBad := "SELECT broken WHERE d >= '2024-01-01'"

	conn := &fakeConnector{
		results: map[string]*datasource.QueryResult{
			boundOK: {
				Columns: []datasource.Column{{Name: "one", Type: "INT"}},
				Rows:    [][]any{{int64(1)}},
			},
		},
		errs: map[string]error{
			boundBad: datasource.ErrSyntax,
		},
	}

	placeholders := []models.Placeholder{
		{Name: "ok", GeneratedSQL: "SELECT 1 WHERE d >= {{start_date}}"},
		{Name: "bad", GeneratedSQL: "SELECT broken WHERE d >= {{start_date}}"},
		{Name: "missing"},
	}

	results := NewRunner(conn, time.Minute).Run(context.Background(), placeholders, window)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, KindScalar, results[0].Data.Kind)

	require.Error(t, results[1].Err)
	assert.ErrorIs(t, results[1].Err, datasource.ErrSyntax)

	require.Error(t, results[2].Err)
	assert.Contains(t, results[2].Err.Error(), "no SQL")
}
