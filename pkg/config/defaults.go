package config

import "time"

// Defaults contains system-wide default configurations.
// These values are used when specific tasks don't specify their own.
type Defaults struct {
	// Tenant used for object keys when a task has no owner tenant
	Tenant string `yaml:"tenant,omitempty"`

	// Timezone for time-window resolution (IANA name, e.g. "Asia/Shanghai")
	Timezone string `yaml:"timezone,omitempty"`

	// Granularity used when a placeholder doesn't request one
	TimeGranularity string `yaml:"time_granularity,omitempty"`
}

// AgentConfig controls the placeholder-analysis agent loop.
type AgentConfig struct {
	// MaxIterations is the hard ceiling of the PTAV loop.
	// Crossing it yields success=false with reason=iteration_exhausted.
	MaxIterations int `yaml:"max_iterations"`

	// Concurrency is the number of placeholders analyzed in parallel
	// within a single execution (phase 3).
	Concurrency int `yaml:"concurrency"`

	// LLMTimeout bounds a single LLM call.
	LLMTimeout time.Duration `yaml:"llm_timeout"`

	// SQLExecuteTimeout bounds a single SQL dry-run or ETL execution.
	SQLExecuteTimeout time.Duration `yaml:"sql_execute_timeout"`

	// ObservationWindow is how many prior observations are included in
	// the planner prompt (controls prompt size).
	ObservationWindow int `yaml:"observation_window"`

	// ContextSentences is how many sentences surrounding a placeholder
	// are carried into the planner prompt.
	ContextSentences int `yaml:"context_sentences"`

	// ReanalyzeFailed controls whether cached-but-unvalidated SQL is
	// re-attempted on every run. Default true.
	ReanalyzeFailed *bool `yaml:"reanalyze_failed,omitempty"`

	// SchemaCacheTTL is how long cross-execution schema snapshots stay
	// valid. Stale hits are allowed only on the validate-only fast path.
	SchemaCacheTTL time.Duration `yaml:"schema_cache_ttl"`
}

// ReanalyzeFailedEnabled resolves the ReanalyzeFailed knob (default true).
func (a *AgentConfig) ReanalyzeFailedEnabled() bool {
	if a.ReanalyzeFailed == nil {
		return true
	}
	return *a.ReanalyzeFailed
}

// ReportConfig controls pipeline-level behavior.
type ReportConfig struct {
	// MaxFailedPlaceholders is the tolerance threshold: the maximum
	// number of failed placeholders allowed while still producing a
	// document. Exceeding it fails the execution.
	MaxFailedPlaceholders int `yaml:"max_failed_placeholders"`

	// WallClock is the per-execution wall-clock budget. Breaching it
	// transitions the execution to failed with reason=timeout.
	WallClock time.Duration `yaml:"wall_clock"`

	// AssemblyRetries is how many times document assembly is retried
	// before the execution fails.
	AssemblyRetries int `yaml:"assembly_retries"`
}

// LLMConfig configures the LLM provider client.
type LLMConfig struct {
	// Provider is the provider key ("openai" or "stub").
	Provider string `yaml:"provider"`

	// Model is the model identifier sent to the provider.
	Model string `yaml:"model"`

	// BaseURL overrides the provider endpoint (for compatible gateways).
	BaseURL string `yaml:"base_url,omitempty"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// Temperature for planner calls. Low by default — plans must be
	// deterministic JSON, not prose.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps a single completion.
	MaxTokens int `yaml:"max_tokens"`
}

// AssemblerConfig configures the external document renderer service.
type AssemblerConfig struct {
	// BaseURL of the renderer HTTP service.
	BaseURL string `yaml:"base_url"`

	// Timeout for a single assemble call.
	Timeout time.Duration `yaml:"timeout"`

	// UseChartEnhancement enables chart image insertion.
	UseChartEnhancement bool `yaml:"use_chart_enhancement"`

	// UseContentOptimization enables the optional LLM rewrite pass
	// inside the assembler. Not part of the pipeline's mandatory contract.
	UseContentOptimization bool `yaml:"use_content_optimization"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	// ListenAddr is the host:port the API binds to.
	ListenAddr string `yaml:"listen_addr"`

	// DashboardURL is the public base URL used in notification links.
	DashboardURL string `yaml:"dashboard_url,omitempty"`

	// WSWriteTimeout bounds a single WebSocket write.
	WSWriteTimeout time.Duration `yaml:"ws_write_timeout"`
}

// SlackConfig holds Slack notification settings.
type SlackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TokenEnv string `yaml:"token_env,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
}

// RetentionConfig controls background cleanup of old records.
type RetentionConfig struct {
	// EventTTL is how long persisted progress events are kept.
	EventTTL time.Duration `yaml:"event_ttl"`

	// ExecutionTTL is how long terminal executions are kept.
	ExecutionTTL time.Duration `yaml:"execution_ttl"`

	// Interval between cleanup passes.
	Interval time.Duration `yaml:"interval"`
}

// DefaultConfig returns the built-in defaults, before YAML merge and
// env overrides.
func DefaultConfig() *Config {
	return &Config{
		Defaults: &Defaults{
			Tenant:          "default",
			Timezone:        "UTC",
			TimeGranularity: "monthly",
		},
		Queue: DefaultQueueConfig(),
		Agent: &AgentConfig{
			MaxIterations:     15,
			Concurrency:       1,
			LLMTimeout:        120 * time.Second,
			SQLExecuteTimeout: 60 * time.Second,
			ObservationWindow: 5,
			ContextSentences:  3,
			SchemaCacheTTL:    time.Hour,
		},
		LLM: &LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0.1,
			MaxTokens:   4096,
		},
		Report: &ReportConfig{
			MaxFailedPlaceholders: 0,
			WallClock:             10 * time.Minute,
			AssemblyRetries:       1,
		},
		Storage: DefaultStorageConfig(),
		Assembler: &AssemblerConfig{
			Timeout:             60 * time.Second,
			UseChartEnhancement: true,
		},
		Server: &ServerConfig{
			ListenAddr:     ":8080",
			WSWriteTimeout: 10 * time.Second,
		},
		Slack: &SlackConfig{},
		Retention: &RetentionConfig{
			EventTTL:     7 * 24 * time.Hour,
			ExecutionTTL: 90 * 24 * time.Hour,
			Interval:     time.Hour,
		},
		DataSourceRegistry: NewDataSourceRegistry(nil),
	}
}
