package datasource

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/reportforge/reportforge/pkg/config"
)

// Manager owns one connector per configured data source. Connectors are
// opened lazily on first use and cached for the process lifetime.
type Manager struct {
	registry *config.DataSourceRegistry

	mu         sync.Mutex
	connectors map[string]Connector
}

// NewManager creates a Manager over the configured registry.
func NewManager(registry *config.DataSourceRegistry) *Manager {
	return &Manager{
		registry:   registry,
		connectors: make(map[string]Connector),
	}
}

// Get returns the connector for a data source ID, opening it on first use.
func (m *Manager) Get(ctx context.Context, id string) (Connector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.connectors[id]; ok {
		return c, nil
	}

	cfg, err := m.registry.Get(id)
	if err != nil {
		return nil, err
	}
	c, err := Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open data source %s: %w", id, err)
	}
	m.connectors[id] = c
	slog.Info("Data source connected", "data_source_id", id, "dialect", c.Dialect())
	return c, nil
}

// Put registers an already-open connector. Used by tests.
func (m *Manager) Put(c Connector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectors[c.ID()] = c
}

// Close releases every open connector.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.connectors {
		if err := c.Close(); err != nil {
			slog.Warn("Failed to close data source", "data_source_id", id, "error", err)
		}
		delete(m.connectors, id)
	}
}
