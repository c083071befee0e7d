package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/reportforge/reportforge/pkg/agent"
)

// TimeWindow is a resolved reporting window.
type TimeWindow struct {
	StartDate string `json:"start_date"` // inclusive, YYYY-MM-DD
	EndDate   string `json:"end_date"`   // inclusive, YYYY-MM-DD
	Label     string `json:"label"`
}

// TimeWindowTool resolves the reporting window for a granularity. Pure
// function of its inputs; no external I/O.
type TimeWindowTool struct{}

func (t *TimeWindowTool) Name() string { return NameTimeWindow }

func (t *TimeWindowTool) Describe() string {
	return "Resolve the reporting time window (start_date, end_date) for a granularity."
}

func (t *TimeWindowTool) InputSchema() map[string]string {
	return map[string]string{
		"granularity": "string: daily|weekly|monthly|yearly",
		"now":         "string YYYY-MM-DD (optional, defaults to today)",
		"offset":      "int periods further back (optional, default 0)",
	}
}

func (t *TimeWindowTool) Execute(_ context.Context, execCtx *agent.ExecutionContext, input map[string]any) (map[string]any, error) {
	granularity := optionalString(input, "granularity")
	if granularity == "" {
		granularity = execCtx.Input.TimeGranularity
	}

	now := time.Now()
	if s := optionalString(input, "now"); s != "" {
		parsed, err := parseDate(s)
		if err != nil {
			return nil, err
		}
		now = parsed
	}

	offset := 0
	if v, ok := input["offset"]; ok {
		switch n := v.(type) {
		case int:
			offset = n
		case float64:
			offset = int(n)
		default:
			return nil, fmt.Errorf("input %q must be an integer", "offset")
		}
	}

	window, err := ResolveWindow(granularity, now, offset)
	if err != nil {
		return nil, err
	}

	execCtx.Pool.Put(agent.KeyTimeWindow, window, 0)
	return map[string]any{
		"start_date": window.StartDate,
		"end_date":   window.EndDate,
		"label":      window.Label,
	}, nil
}

// ResolveWindow computes the most recently completed period of the given
// granularity relative to now, shifted back by offset further periods.
// Weekly windows are ISO weeks (Monday through Sunday).
func ResolveWindow(granularity string, now time.Time, offset int) (TimeWindow, error) {
	if offset < 0 {
		return TimeWindow{}, fmt.Errorf("offset must be >= 0, got %d", offset)
	}
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch granularity {
	case "daily":
		target := day.AddDate(0, 0, -1-offset)
		d := target.Format("2006-01-02")
		return TimeWindow{StartDate: d, EndDate: d, Label: d}, nil

	case "weekly":
		// Back up to the Monday of the current ISO week, then one week
		// per period.
		weekday := int(day.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		monday := day.AddDate(0, 0, -(weekday - 1))
		start := monday.AddDate(0, 0, -7*(1+offset))
		end := start.AddDate(0, 0, 6)
		year, week := start.ISOWeek()
		return TimeWindow{
			StartDate: start.Format("2006-01-02"),
			EndDate:   end.Format("2006-01-02"),
			Label:     fmt.Sprintf("%d-W%02d", year, week),
		}, nil

	case "monthly":
		first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
		start := first.AddDate(0, -1-offset, 0)
		end := start.AddDate(0, 1, -1)
		return TimeWindow{
			StartDate: start.Format("2006-01-02"),
			EndDate:   end.Format("2006-01-02"),
			Label:     start.Format("2006-01"),
		}, nil

	case "yearly":
		year := day.Year() - 1 - offset
		return TimeWindow{
			StartDate: fmt.Sprintf("%d-01-01", year),
			EndDate:   fmt.Sprintf("%d-12-31", year),
			Label:     fmt.Sprintf("%d", year),
		}, nil
	}
	return TimeWindow{}, fmt.Errorf("unknown granularity %q", granularity)
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse date %q, want YYYY-MM-DD", s)
}
