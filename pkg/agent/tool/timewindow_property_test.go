package tool

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genDay generates dates across several decades.
func genDay() gopter.Gen {
	return gen.Int64Range(0, 40000).Map(func(days int64) time.Time {
		return time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, int(days))
	})
}

func genGranularity() gopter.Gen {
	return gen.OneConstOf("daily", "weekly", "monthly", "yearly")
}

func TestResolveWindowProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("window start never follows its end", prop.ForAll(
		func(granularity string, now time.Time, offset int) bool {
			w, err := ResolveWindow(granularity, now, offset)
			if err != nil {
				return false
			}
			// ISO dates compare correctly as strings.
			return w.StartDate <= w.EndDate
		},
		genGranularity(), genDay(), gen.IntRange(0, 48),
	))

	properties.Property("windows are always completed periods in the past", prop.ForAll(
		func(granularity string, now time.Time, offset int) bool {
			w, err := ResolveWindow(granularity, now, offset)
			if err != nil {
				return false
			}
			return w.EndDate < now.Format("2006-01-02")
		},
		genGranularity(), genDay(), gen.IntRange(0, 48),
	))

	properties.Property("adjacent offsets tile with no gap or overlap", prop.ForAll(
		func(granularity string, now time.Time, offset int) bool {
			newer, err := ResolveWindow(granularity, now, offset)
			if err != nil {
				return false
			}
			older, err := ResolveWindow(granularity, now, offset+1)
			if err != nil {
				return false
			}
			end, err := time.Parse("2006-01-02", older.EndDate)
			if err != nil {
				return false
			}
			return end.AddDate(0, 0, 1).Format("2006-01-02") == newer.StartDate
		},
		genGranularity(), genDay(), gen.IntRange(0, 48),
	))

	properties.Property("weekly windows run Monday through Sunday", prop.ForAll(
		func(now time.Time, offset int) bool {
			w, err := ResolveWindow("weekly", now, offset)
			if err != nil {
				return false
			}
			start, err := time.Parse("2006-01-02", w.StartDate)
			if err != nil {
				return false
			}
			end, err := time.Parse("2006-01-02", w.EndDate)
			if err != nil {
				return false
			}
			return start.Weekday() == time.Monday &&
				end.Weekday() == time.Sunday &&
				end.Equal(start.AddDate(0, 0, 6))
		},
		genDay(), gen.IntRange(0, 48),
	))

	properties.Property("monthly windows cover exactly one calendar month", prop.ForAll(
		func(now time.Time, offset int) bool {
			w, err := ResolveWindow("monthly", now, offset)
			if err != nil {
				return false
			}
			start, err := time.Parse("2006-01-02", w.StartDate)
			if err != nil {
				return false
			}
			end, err := time.Parse("2006-01-02", w.EndDate)
			if err != nil {
				return false
			}
			return start.Day() == 1 &&
				end.Equal(start.AddDate(0, 1, -1)) &&
				w.Label == start.Format("2006-01")
		},
		genDay(), gen.IntRange(0, 48),
	))

	properties.Property("negative offsets are rejected", prop.ForAll(
		func(granularity string, now time.Time, offset int) bool {
			_, err := ResolveWindow(granularity, now, offset)
			return err != nil
		},
		genGranularity(), genDay(), gen.IntRange(-100, -1),
	))

	properties.TestingRun(t)
}
