package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register the pgx driver

	"github.com/reportforge/reportforge/pkg/config"
)

// defaultMaxRows caps result sets when the data source config doesn't.
const defaultMaxRows = 10000

// SQLConnector implements Connector over database/sql.
type SQLConnector struct {
	id      string
	dialect string
	maxRows int
	db      *sql.DB
}

// Open creates a connector for one configured data source and verifies
// the connection.
func Open(ctx context.Context, cfg *config.DataSourceConfig) (*SQLConnector, error) {
	dsn := cfg.ResolveDSN()
	if dsn == "" {
		return nil, fmt.Errorf("%w: data source %s has no DSN", ErrConnection, cfg.ID)
	}

	driver := cfg.Driver
	if driver == "" {
		driver = "pgx"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrConnection, cfg.ID, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrConnection, cfg.ID, err)
	}

	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	return &SQLConnector{
		id:      cfg.ID,
		dialect: cfg.EffectiveDialect(),
		maxRows: maxRows,
		db:      db,
	}, nil
}

// NewSQLConnector wraps an existing pool. Used by tests.
func NewSQLConnector(id, dialect string, maxRows int, db *sql.DB) *SQLConnector {
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	return &SQLConnector{id: id, dialect: dialect, maxRows: maxRows, db: db}
}

func (c *SQLConnector) ID() string      { return c.id }
func (c *SQLConnector) Dialect() string { return c.dialect }

// Query runs a SELECT and collects up to the row cap.
func (c *SQLConnector) Query(ctx context.Context, sqlText string) (*QueryResult, error) {
	start := time.Now()
	rows, err := c.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	columns := make([]Column, len(columnTypes))
	for i, ct := range columnTypes {
		columns[i] = Column{
			Name: ct.Name(),
			Type: strings.ToUpper(ct.DatabaseTypeName()),
		}
	}

	result := &QueryResult{Columns: columns}
	for rows.Next() {
		if result.RowCount >= c.maxRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, c.classify(ctx, err)
		}
		for i, v := range values {
			// Drivers return []byte for text-ish columns; stringify so
			// downstream JSON encoding stays readable.
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
		result.RowCount++
	}
	if err := rows.Err(); err != nil {
		return nil, c.classify(ctx, err)
	}

	result.ElapsedMs = time.Since(start).Milliseconds()
	return result, nil
}

// ListTables enumerates tables via information_schema, which both
// supported dialects expose.
func (c *SQLConnector) ListTables(ctx context.Context) ([]TableInfo, error) {
	query := `SELECT table_name FROM information_schema.tables
		 WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		 ORDER BY table_name`
	if c.dialect == "mysql" {
		query = `SELECT table_name FROM information_schema.tables
		 WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		 ORDER BY table_name`
	}

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	defer rows.Close()

	var out []TableInfo
	for rows.Next() {
		var t TableInfo
		if err := rows.Scan(&t.Name); err != nil {
			return nil, c.classify(ctx, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetColumns describes a table's columns via information_schema.
func (c *SQLConnector) GetColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	query := `SELECT column_name, data_type, is_nullable
		 FROM information_schema.columns
		 WHERE table_schema = 'public' AND table_name = $1
		 ORDER BY ordinal_position`
	if c.dialect == "mysql" {
		query = `SELECT column_name, data_type, is_nullable
		 FROM information_schema.columns
		 WHERE table_schema = DATABASE() AND table_name = ?
		 ORDER BY ordinal_position`
	}

	rows, err := c.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	defer rows.Close()

	var out []ColumnInfo
	for rows.Next() {
		var col ColumnInfo
		var nullable string
		if err := rows.Scan(&col.Name, &col.Type, &nullable); err != nil {
			return nil, c.classify(ctx, err)
		}
		col.Nullable = strings.EqualFold(nullable, "YES")
		out = append(out, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("table %q not found in data source %s", table, c.id)
	}
	return out, nil
}

// Ping verifies the connection.
func (c *SQLConnector) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return nil
}

// Close releases the pool.
func (c *SQLConnector) Close() error {
	return c.db.Close()
}

// classify maps a driver error to one of the package error kinds so the
// agent can branch on the failure mode.
func (c *SQLConnector) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrQueryTimeout, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "syntax error"),
		strings.Contains(msg, "sqlstate 42601"):
		return fmt.Errorf("%w: %w", ErrSyntax, err)
	case strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "access denied"),
		strings.Contains(msg, "sqlstate 42501"):
		return fmt.Errorf("%w: %w", ErrPermission, err)
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "bad connection"):
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return err
}
