package etl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/reportforge/reportforge/pkg/agent/tool"
	"github.com/reportforge/reportforge/pkg/datasource"
	"github.com/reportforge/reportforge/pkg/models"
)

// PlaceholderResult is the ETL outcome for one placeholder. Err is set
// when the query failed; failures are isolated per placeholder and
// never abort the batch.
type PlaceholderResult struct {
	Name      string
	Data      Normalized
	ElapsedMs int64
	Err       error
}

// Runner executes the analyzed placeholders' SQL for one report run.
type Runner struct {
	connector datasource.Connector
	timeout   time.Duration
}

// NewRunner creates a Runner. timeout bounds each placeholder's query.
func NewRunner(connector datasource.Connector, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Runner{connector: connector, timeout: timeout}
}

// Run executes every placeholder's SQL against the reporting window.
// Results come back in input order; a failed placeholder carries its
// error and an empty value.
func (r *Runner) Run(ctx context.Context, placeholders []models.Placeholder, window tool.TimeWindow) []PlaceholderResult {
	results := make([]PlaceholderResult, 0, len(placeholders))
	for _, ph := range placeholders {
		if err := ctx.Err(); err != nil {
			results = append(results, PlaceholderResult{Name: ph.Name, Err: err})
			continue
		}
		results = append(results, r.runOne(ctx, ph, window))
	}
	return results
}

func (r *Runner) runOne(ctx context.Context, ph models.Placeholder, window tool.TimeWindow) PlaceholderResult {
	result := PlaceholderResult{Name: ph.Name}

	if ph.GeneratedSQL == "" {
		result.Err = fmt.Errorf("placeholder %s has no SQL", ph.Name)
		return result
	}

	sqlText := BindWindow(ph.GeneratedSQL, window)

	queryCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := r.connector.Query(queryCtx, sqlText)
	if err != nil {
		result.Err = fmt.Errorf("placeholder %s: %w", ph.Name, err)
		return result
	}

	result.Data = Normalize(raw)
	result.ElapsedMs = raw.ElapsedMs
	return result
}

// BindWindow substitutes the {{start_date}}, {{end_date}}, and
// {{window_label}} markers with quoted literals from the resolved
// window.
func BindWindow(sqlText string, window tool.TimeWindow) string {
	replacer := strings.NewReplacer(
		"{{start_date}}", "'"+window.StartDate+"'",
		"{{end_date}}", "'"+window.EndDate+"'",
		"{{window_label}}", "'"+window.Label+"'",
	)
	return replacer.Replace(sqlText)
}
