package agent

import (
	"sync"
	"time"
)

// Well-known resource pool keys.
const (
	// KeySchemaPrefix prefixes per-table schema snapshots:
	// "schema:<table>".
	KeySchemaPrefix = "schema:"

	// KeyTimeWindow holds the resolved reporting window.
	KeyTimeWindow = "time:window"

	// KeySQLCurrent holds the current SQL draft.
	KeySQLCurrent = "sql:current"

	// KeyObservations holds a compact view of the observation history.
	KeyObservations = "observations:history"
)

// SchemaKey returns the pool key for one table's schema snapshot.
func SchemaKey(table string) string {
	return KeySchemaPrefix + table
}

type poolEntry struct {
	value     any
	expiresAt time.Time // zero means no TTL
}

// ResourcePool is the keyed store shared across the iterations of one
// run. Insertion order is preserved so planner prompts list known facts
// deterministically. Owned by a single execution; cleared when the run
// ends.
type ResourcePool struct {
	mu      sync.RWMutex
	entries map[string]poolEntry
	order   []string
}

// NewResourcePool creates an empty pool.
func NewResourcePool() *ResourcePool {
	return &ResourcePool{entries: make(map[string]poolEntry)}
}

// Put stores a value. ttl of zero means the entry never expires.
func (p *ResourcePool) Put(key string, value any, ttl time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.entries[key]; !exists {
		p.order = append(p.order, key)
	}
	e := poolEntry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	p.entries[key] = e
}

// Get returns the value for a key, or false when absent or expired.
func (p *ResourcePool) Get(key string) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[key]
	if !ok || e.expired() {
		return nil, false
	}
	return e.value, true
}

// GetString returns a string value for a key, or "" when absent or not
// a string.
func (p *ResourcePool) GetString(key string) string {
	v, ok := p.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Has reports whether a live entry exists for the key.
func (p *ResourcePool) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// Snapshot returns a read-only view of the live entries in insertion
// order.
func (p *ResourcePool) Snapshot() []PoolItem {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PoolItem, 0, len(p.order))
	for _, key := range p.order {
		e, ok := p.entries[key]
		if !ok || e.expired() {
			continue
		}
		out = append(out, PoolItem{Key: key, Value: e.value})
	}
	return out
}

// Clear drops every entry.
func (p *ResourcePool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = make(map[string]poolEntry)
	p.order = nil
}

// Len returns the number of live entries.
func (p *ResourcePool) Len() int {
	return len(p.Snapshot())
}

// PoolItem is one entry of a pool snapshot.
type PoolItem struct {
	Key   string
	Value any
}

func (e poolEntry) expired() bool {
	return !e.expiresAt.IsZero() && time.Now().After(e.expiresAt)
}
