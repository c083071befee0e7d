// Package etl executes derived SQL against the data source and shapes
// the results into render-ready values.
package etl

import (
	"strconv"
	"strings"
	"time"

	"github.com/reportforge/reportforge/pkg/datasource"
)

// Value kinds after normalization.
const (
	KindEmpty  = "empty"  // no rows
	KindScalar = "scalar" // 1 row x 1 column
	KindRecord = "record" // 1 row x N columns
	KindTable  = "table"  // M rows x N columns
)

// Normalized is one placeholder's shaped query result.
type Normalized struct {
	Kind     string   `json:"kind"`
	Value    any      `json:"value"`
	Columns  []string `json:"columns,omitempty"`
	RowCount int      `json:"row_count"`
}

// Normalize shapes a raw query result: a single cell unwraps to a
// scalar, a single row becomes a column-keyed record, anything larger
// becomes a list of records. Decimals become float64, NULLs stay nil.
func Normalize(result *datasource.QueryResult) Normalized {
	columns := make([]string, len(result.Columns))
	for i, c := range result.Columns {
		columns[i] = c.Name
	}

	out := Normalized{Columns: columns, RowCount: len(result.Rows)}

	switch {
	case len(result.Rows) == 0:
		out.Kind = KindEmpty

	case len(result.Rows) == 1 && len(columns) == 1:
		out.Kind = KindScalar
		out.Value = normalizeCell(result.Rows[0][0], result.Columns[0].Type)

	case len(result.Rows) == 1:
		out.Kind = KindRecord
		out.Value = rowToRecord(result.Rows[0], result.Columns)

	default:
		out.Kind = KindTable
		records := make([]map[string]any, len(result.Rows))
		for i, row := range result.Rows {
			records[i] = rowToRecord(row, result.Columns)
		}
		out.Value = records
	}
	return out
}

func rowToRecord(row []any, columns []datasource.Column) map[string]any {
	record := make(map[string]any, len(columns))
	for i, col := range columns {
		if i < len(row) {
			record[col.Name] = normalizeCell(row[i], col.Type)
		}
	}
	return record
}

// normalizeCell converts database values into plain JSON-friendly
// types. Numeric strings from DECIMAL columns become float64; dates and
// timestamps become formatted strings; NULL stays nil.
func normalizeCell(v any, colType string) any {
	if v == nil {
		return nil
	}
	switch value := v.(type) {
	case time.Time:
		if value.Hour() == 0 && value.Minute() == 0 && value.Second() == 0 {
			return value.Format("2006-01-02")
		}
		return value.Format("2006-01-02 15:04:05")

	case string:
		if isDecimalType(colType) {
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				return f
			}
		}
		return value

	case []byte:
		s := string(value)
		if isDecimalType(colType) {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
		return s
	}
	return v
}

func isDecimalType(colType string) bool {
	switch strings.ToUpper(colType) {
	case "NUMERIC", "DECIMAL", "MONEY", "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "REAL":
		return true
	}
	return false
}
