// Package datasource provides read-only access to the business databases
// reports are built from. A Connector wraps one configured database; the
// Manager owns the pool of connectors keyed by data source ID.
package datasource

import (
	"context"
	"errors"
)

// Error kinds for query failures. The agent's refine loop branches on
// these; check with errors.Is.
var (
	// ErrConnection covers dial, auth, and pool failures.
	ErrConnection = errors.New("data source connection failed")

	// ErrSyntax marks SQL the database rejected as malformed.
	ErrSyntax = errors.New("sql syntax error")

	// ErrPermission marks a query denied by the database grants.
	ErrPermission = errors.New("sql permission denied")

	// ErrQueryTimeout marks a query that exceeded its deadline.
	ErrQueryTimeout = errors.New("sql query timeout")
)

// Column describes one result column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"` // database type name, upper case
}

// QueryResult is the raw result of one query. Row values keep database
// NULLs as nil; numeric normalization happens downstream in the ETL.
type QueryResult struct {
	Columns   []Column `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated"` // row cap was hit
	ElapsedMs int64    `json:"elapsed_ms"`
}

// TableInfo describes one table for schema discovery.
type TableInfo struct {
	Name    string `json:"name"`
	Comment string `json:"comment,omitempty"`
}

// ColumnInfo describes one column for schema discovery.
type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Comment  string `json:"comment,omitempty"`
}

// Connector is read-only access to one configured data source.
type Connector interface {
	// ID returns the data source ID this connector serves.
	ID() string

	// Dialect returns the SQL dialect ("postgres", "mysql").
	Dialect() string

	// Query runs a SELECT and returns up to the configured row cap.
	Query(ctx context.Context, sqlText string) (*QueryResult, error)

	// ListTables enumerates the queryable tables.
	ListTables(ctx context.Context) ([]TableInfo, error)

	// GetColumns describes one table's columns.
	GetColumns(ctx context.Context, table string) ([]ColumnInfo, error)

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error

	// Close releases the underlying pool.
	Close() error
}
