package config

// Config is the umbrella configuration object for the report service.
// It is built once by Initialize() at process startup and passed down the
// call stack — no package-level globals.
type Config struct {
	configDir string // Configuration directory path (for reference)

	// System-wide defaults applied when a task doesn't specify its own values
	Defaults *Defaults

	// Queue and worker pool configuration
	Queue *QueueConfig

	// Agent loop configuration (iteration budget, concurrency, timeouts)
	Agent *AgentConfig

	// LLM provider configuration
	LLM *LLMConfig

	// Report pipeline configuration (tolerance threshold, wall clock)
	Report *ReportConfig

	// Hybrid storage configuration (primary S3 + local fallback)
	Storage *StorageConfig

	// Document assembler (external renderer service) configuration
	Assembler *AssemblerConfig

	// HTTP API server configuration
	Server *ServerConfig

	// Slack notification configuration
	Slack *SlackConfig

	// Retention configuration (event/execution cleanup)
	Retention *RetentionConfig

	// Registry of configured data sources, keyed by data source ID
	DataSourceRegistry *DataSourceRegistry
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetDataSource retrieves a data source configuration by ID.
// Convenience wrapper around DataSourceRegistry.Get().
func (c *Config) GetDataSource(id string) (*DataSourceConfig, error) {
	return c.DataSourceRegistry.Get(id)
}

// Stats contains statistics about loaded configuration.
type Stats struct {
	DataSources int
}

// Stats returns configuration statistics for startup logging.
func (c *Config) Stats() Stats {
	s := Stats{}
	if c.DataSourceRegistry != nil {
		s.DataSources = c.DataSourceRegistry.Len()
	}
	return s
}
