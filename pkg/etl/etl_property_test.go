package etl

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/reportforge/reportforge/pkg/agent/tool"
	"github.com/reportforge/reportforge/pkg/datasource"
)

func genWindow() gopter.Gen {
	return gopter.CombineGens(
		gen.Int64Range(0, 40000),
		gen.IntRange(0, 364),
	).Map(func(vals []interface{}) tool.TimeWindow {
		start := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC).
			AddDate(0, 0, int(vals[0].(int64)))
		end := start.AddDate(0, 0, vals[1].(int))
		return tool.TimeWindow{
			StartDate: start.Format("2006-01-02"),
			EndDate:   end.Format("2006-01-02"),
			Label:     start.Format("2006-01"),
		}
	})
}

func TestBindWindowProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("every marker binds to a quoted literal", prop.ForAll(
		func(a, b, c, d string, w tool.TimeWindow) bool {
			sqlText := a + "{{start_date}}" + b + "{{end_date}}" + c + "{{window_label}}" + d
			bound := BindWindow(sqlText, w)
			return !strings.Contains(bound, "{{") &&
				strings.Contains(bound, "'"+w.StartDate+"'") &&
				strings.Contains(bound, "'"+w.EndDate+"'") &&
				strings.Contains(bound, "'"+w.Label+"'")
		},
		gen.AlphaString(), gen.AlphaString(), gen.AlphaString(), gen.AlphaString(),
		genWindow(),
	))

	properties.Property("marker-free SQL passes through untouched", prop.ForAll(
		func(sqlText string, w tool.TimeWindow) bool {
			return BindWindow(sqlText, w) == sqlText
		},
		gen.AlphaString(), genWindow(),
	))

	properties.TestingRun(t)
}

func TestNormalizeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	genResult := gopter.CombineGens(
		gen.IntRange(0, 6),
		gen.IntRange(1, 4),
	).Map(func(vals []interface{}) *datasource.QueryResult {
		rows, cols := vals[0].(int), vals[1].(int)
		result := &datasource.QueryResult{RowCount: rows}
		for c := 0; c < cols; c++ {
			result.Columns = append(result.Columns,
				datasource.Column{Name: "col" + strconv.Itoa(c), Type: "TEXT"})
		}
		for r := 0; r < rows; r++ {
			row := make([]any, cols)
			for c := 0; c < cols; c++ {
				row[c] = strconv.Itoa(r*cols + c)
			}
			result.Rows = append(result.Rows, row)
		}
		return result
	})

	properties.Property("shape classification follows the result dimensions", prop.ForAll(
		func(result *datasource.QueryResult) bool {
			got := Normalize(result)
			if got.RowCount != len(result.Rows) {
				return false
			}
			switch {
			case len(result.Rows) == 0:
				return got.Kind == KindEmpty && got.Value == nil
			case len(result.Rows) == 1 && len(result.Columns) == 1:
				return got.Kind == KindScalar
			case len(result.Rows) == 1:
				record, ok := got.Value.(map[string]any)
				return got.Kind == KindRecord && ok && len(record) == len(result.Columns)
			default:
				records, ok := got.Value.([]map[string]any)
				return got.Kind == KindTable && ok && len(records) == len(result.Rows)
			}
		},
		genResult,
	))

	properties.Property("decimal strings become float64", prop.ForAll(
		func(f float64) bool {
			s := strconv.FormatFloat(f, 'f', 4, 64)
			got := normalizeCell(s, "NUMERIC")
			parsed, err := strconv.ParseFloat(s, 64)
			return err == nil && got == parsed
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.Property("text cells pass through unchanged", prop.ForAll(
		func(s string) bool {
			return normalizeCell(s, "TEXT") == s
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
