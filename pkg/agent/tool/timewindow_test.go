package tool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveWindow(t *testing.T) {
	// A Wednesday.
	now := time.Date(2024, 2, 14, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name        string
		granularity string
		offset      int
		wantStart   string
		wantEnd     string
		wantLabel   string
	}{
		{
			name:        "daily is yesterday",
			granularity: "daily",
			wantStart:   "2024-02-13",
			wantEnd:     "2024-02-13",
			wantLabel:   "2024-02-13",
		},
		{
			name:        "weekly is last full ISO week",
			granularity: "weekly",
			wantStart:   "2024-02-05",
			wantEnd:     "2024-02-11",
			wantLabel:   "2024-W06",
		},
		{
			name:        "monthly is previous calendar month",
			granularity: "monthly",
			wantStart:   "2024-01-01",
			wantEnd:     "2024-01-31",
			wantLabel:   "2024-01",
		},
		{
			name:        "yearly is previous year",
			granularity: "yearly",
			wantStart:   "2023-01-01",
			wantEnd:     "2023-12-31",
			wantLabel:   "2023",
		},
		{
			name:        "monthly offset reaches further back",
			granularity: "monthly",
			offset:      2,
			wantStart:   "2023-11-01",
			wantEnd:     "2023-11-30",
			wantLabel:   "2023-11",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window, err := ResolveWindow(tt.granularity, now, tt.offset)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, window.StartDate)
			assert.Equal(t, tt.wantEnd, window.EndDate)
			assert.Equal(t, tt.wantLabel, window.Label)
		})
	}
}

func TestResolveWindowWeeklyOnMonday(t *testing.T) {
	// Running on a Monday, the last complete ISO week ended yesterday.
	monday := time.Date(2024, 2, 12, 8, 0, 0, 0, time.UTC)
	window, err := ResolveWindow("weekly", monday, 0)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-05", window.StartDate)
	assert.Equal(t, "2024-02-11", window.EndDate)
}

func TestResolveWindowMonthlyAcrossYearBoundary(t *testing.T) {
	jan := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	window, err := ResolveWindow("monthly", jan, 0)
	require.NoError(t, err)
	assert.Equal(t, "2023-12-01", window.StartDate)
	assert.Equal(t, "2023-12-31", window.EndDate)
}

func TestResolveWindowRejectsBadInput(t *testing.T) {
	_, err := ResolveWindow("hourly", time.Now(), 0)
	assert.Error(t, err)

	_, err = ResolveWindow("daily", time.Now(), -1)
	assert.Error(t, err)
}
