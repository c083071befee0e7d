package config

import (
	"fmt"
	"os"
	"sync"
)

// DataSourceConfig describes a configured analytical data source.
// SQL derived by the agent runs against one of these.
type DataSourceConfig struct {
	// ID is the stable identifier tasks reference.
	ID string `yaml:"id"`

	// Driver is the database/sql driver name ("pgx" is the only
	// built-in; others register via blank import in main).
	Driver string `yaml:"driver"`

	// DSN is the connection string. Supports {{.ENV_VAR}} expansion.
	DSN string `yaml:"dsn"`

	// DSNEnv names an environment variable holding the full DSN,
	// taking precedence over DSN when set.
	DSNEnv string `yaml:"dsn_env,omitempty"`

	// Dialect hints the SQL dialect for the planner prompt and the
	// validator ("postgres", "mysql", "doris"). Defaults to "postgres".
	Dialect string `yaml:"dialect,omitempty"`

	// MaxRows caps rows returned from any agent-driven query.
	MaxRows int `yaml:"max_rows,omitempty"`
}

// ResolveDSN returns the effective connection string.
func (d *DataSourceConfig) ResolveDSN() string {
	if d.DSNEnv != "" {
		if v := os.Getenv(d.DSNEnv); v != "" {
			return v
		}
	}
	return d.DSN
}

// EffectiveDialect returns the dialect with the default applied.
func (d *DataSourceConfig) EffectiveDialect() string {
	if d.Dialect == "" {
		return "postgres"
	}
	return d.Dialect
}

// DataSourceRegistry holds configured data sources, keyed by ID.
// Read-only after Initialize(); safe for concurrent use.
type DataSourceRegistry struct {
	mu      sync.RWMutex
	sources map[string]*DataSourceConfig
}

// NewDataSourceRegistry builds a registry from a config map.
func NewDataSourceRegistry(sources map[string]DataSourceConfig) *DataSourceRegistry {
	r := &DataSourceRegistry{sources: make(map[string]*DataSourceConfig, len(sources))}
	for id, ds := range sources {
		cp := ds
		cp.ID = id
		r.sources[id] = &cp
	}
	return r
}

// Get retrieves a data source configuration by ID.
func (r *DataSourceRegistry) Get(id string) (*DataSourceConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ds, ok := r.sources[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDataSourceNotFound, id)
	}
	return ds, nil
}

// IDs returns all registered data source IDs.
func (r *DataSourceRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sources))
	for id := range r.sources {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of registered data sources.
func (r *DataSourceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}
