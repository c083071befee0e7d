// Package schemacache caches data source schema snapshots so repeated
// placeholder analyses don't re-introspect the database. Entries live in
// an LRU keyed by data source ID with a TTL; the validate-only repair
// path may accept a stale snapshot when a refresh fails.
package schemacache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/reportforge/reportforge/pkg/datasource"
)

const defaultMaxEntries = 64

// Snapshot is one data source's discovered schema at a point in time.
type Snapshot struct {
	DataSourceID string
	Tables       []datasource.TableInfo
	Columns      map[string][]datasource.ColumnInfo
	FetchedAt    time.Time
	Stale        bool // served past TTL because refresh failed
}

// HasTable reports whether the snapshot contains a table.
func (s *Snapshot) HasTable(name string) bool {
	_, ok := s.Columns[name]
	return ok
}

// HasColumn reports whether a table contains a column.
func (s *Snapshot) HasColumn(table, column string) bool {
	for _, c := range s.Columns[table] {
		if c.Name == column {
			return true
		}
	}
	return false
}

// CanonicalNames maps lower-cased table and column names to their exact
// database spelling, for case normalization of generated SQL.
func (s *Snapshot) CanonicalNames() map[string]string {
	out := make(map[string]string)
	for _, t := range s.Tables {
		out[strings.ToLower(t.Name)] = t.Name
	}
	for _, cols := range s.Columns {
		for _, c := range cols {
			out[strings.ToLower(c.Name)] = c.Name
		}
	}
	return out
}

type entry struct {
	snapshot *Snapshot
	storedAt time.Time
}

// Cache is the schema snapshot cache. Safe for concurrent use; a
// per-data-source singleflight mutex keeps concurrent misses from
// introspecting the same database twice.
type Cache struct {
	cache *lru.Cache[string, entry]
	ttl   time.Duration

	mu       sync.Mutex
	fetching map[string]*sync.Mutex
}

// New creates a Cache with the given TTL.
func New(ttl time.Duration) *Cache {
	c, err := lru.New[string, entry](defaultMaxEntries)
	if err != nil {
		// lru.New only errors on non-positive size.
		panic(err)
	}
	return &Cache{
		cache:    c,
		ttl:      ttl,
		fetching: make(map[string]*sync.Mutex),
	}
}

// Get returns the schema snapshot for a connector's data source. A fresh
// cached snapshot is returned directly; an expired or missing one is
// re-fetched. When the fetch fails and allowStale is set, an expired
// snapshot is returned marked Stale instead of the error.
func (c *Cache) Get(ctx context.Context, conn datasource.Connector, allowStale bool) (*Snapshot, error) {
	id := conn.ID()
	if e, ok := c.cache.Get(id); ok && time.Since(e.storedAt) < c.ttl {
		return e.snapshot, nil
	}

	lock := c.fetchLock(id)
	lock.Lock()
	defer lock.Unlock()

	// Another goroutine may have refreshed while we waited.
	if e, ok := c.cache.Get(id); ok && time.Since(e.storedAt) < c.ttl {
		return e.snapshot, nil
	}

	snap, err := c.fetch(ctx, conn)
	if err != nil {
		if e, ok := c.cache.Get(id); ok && allowStale {
			slog.Warn("Schema refresh failed, serving stale snapshot",
				"data_source_id", id, "age", time.Since(e.storedAt), "error", err)
			stale := *e.snapshot
			stale.Stale = true
			return &stale, nil
		}
		return nil, err
	}

	c.cache.Add(id, entry{snapshot: snap, storedAt: time.Now()})
	return snap, nil
}

// Invalidate drops the cached snapshot for a data source.
func (c *Cache) Invalidate(dataSourceID string) {
	c.cache.Remove(dataSourceID)
}

func (c *Cache) fetchLock(id string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.fetching[id]
	if !ok {
		lock = &sync.Mutex{}
		c.fetching[id] = lock
	}
	return lock
}

func (c *Cache) fetch(ctx context.Context, conn datasource.Connector) (*Snapshot, error) {
	tables, err := conn.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	columns := make(map[string][]datasource.ColumnInfo, len(tables))
	for _, t := range tables {
		cols, err := conn.GetColumns(ctx, t.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to describe table %s: %w", t.Name, err)
		}
		columns[t.Name] = cols
	}

	return &Snapshot{
		DataSourceID: conn.ID(),
		Tables:       tables,
		Columns:      columns,
		FetchedAt:    time.Now(),
	}, nil
}
