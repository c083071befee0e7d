package database

import (
	"context"
	"database/sql"
	"time"
)

// PoolHealth is a point-in-time probe of the application database.
// The queue claim poller, the event publisher, and the API all share
// this pool, so a rising WaitCount here shows up as stalled executions
// before anything else does.
type PoolHealth struct {
	Status     string `json:"status"`
	PingMillis int64  `json:"ping_ms"`
	Open       int    `json:"open_connections"`
	InUse      int    `json:"in_use"`
	Idle       int    `json:"idle"`
	WaitCount  int64  `json:"wait_count"`
	WaitMillis int64  `json:"wait_ms"`
	MaxOpen    int    `json:"max_open"`
}

// CheckHealth pings the database and snapshots pool statistics. On ping
// failure the returned probe carries the unhealthy status alongside the
// error so callers can still report the latency.
func CheckHealth(ctx context.Context, db *sql.DB) (*PoolHealth, error) {
	start := time.Now()

	if err := db.PingContext(ctx); err != nil {
		return &PoolHealth{
			Status:     "unhealthy",
			PingMillis: time.Since(start).Milliseconds(),
		}, err
	}

	st := db.Stats()
	return &PoolHealth{
		Status:     "healthy",
		PingMillis: time.Since(start).Milliseconds(),
		Open:       st.OpenConnections,
		InUse:      st.InUse,
		Idle:       st.Idle,
		WaitCount:  st.WaitCount,
		WaitMillis: st.WaitDuration.Milliseconds(),
		MaxOpen:    st.MaxOpenConnections,
	}, nil
}
