package config

import "time"

// Validate checks cross-field consistency after load + env overrides.
// Configuration errors are fatal at startup — never deferred to runtime.
func (c *Config) Validate() error {
	if c.Queue.WorkerCount < 1 {
		return &ValidationError{Component: "queue", Field: "worker_count", Message: "must be at least 1"}
	}
	if c.Queue.MaxConcurrentExecutions < 1 {
		return &ValidationError{Component: "queue", Field: "max_concurrent_executions", Message: "must be at least 1"}
	}
	if c.Queue.HeartbeatInterval <= 0 {
		return &ValidationError{Component: "queue", Field: "heartbeat_interval", Message: "must be positive"}
	}
	if c.Queue.OrphanThreshold <= c.Queue.HeartbeatInterval {
		return &ValidationError{Component: "queue", Field: "orphan_threshold", Message: "must exceed heartbeat_interval"}
	}

	if c.Agent.MaxIterations < 1 {
		return &ValidationError{Component: "agent", Field: "max_iterations", Message: "must be at least 1"}
	}
	if c.Agent.Concurrency < 1 {
		return &ValidationError{Component: "agent", Field: "concurrency", Message: "must be at least 1"}
	}
	if c.Agent.LLMTimeout <= 0 || c.Agent.SQLExecuteTimeout <= 0 {
		return &ValidationError{Component: "agent", Field: "timeouts", Message: "must be positive"}
	}

	if c.Report.MaxFailedPlaceholders < 0 {
		return &ValidationError{Component: "report", Field: "max_failed_placeholders", Message: "must not be negative"}
	}
	if c.Report.WallClock < time.Minute {
		return &ValidationError{Component: "report", Field: "wall_clock", Message: "must be at least 1m"}
	}

	if c.Storage.PrimaryIsEnabled() {
		if c.Storage.S3 == nil {
			return &ValidationError{Component: "storage", Field: "s3", Message: "required when primary is enabled"}
		}
		if c.Storage.S3.Endpoint == "" {
			return &ValidationError{Component: "storage", Field: "s3.endpoint", Message: "required"}
		}
		if c.Storage.S3.Bucket == "" {
			return &ValidationError{Component: "storage", Field: "s3.bucket", Message: "required"}
		}
	}
	if c.Storage.LocalDir == "" {
		return &ValidationError{Component: "storage", Field: "local_dir", Message: "required"}
	}
	if c.Storage.ObjectKeyTemplate == "" {
		return &ValidationError{Component: "storage", Field: "object_key_template", Message: "required"}
	}

	for _, id := range c.DataSourceRegistry.IDs() {
		ds, _ := c.DataSourceRegistry.Get(id)
		if ds.Driver == "" {
			return &ValidationError{Component: "data_source", ID: id, Field: "driver", Message: "required"}
		}
		if ds.ResolveDSN() == "" {
			return &ValidationError{Component: "data_source", ID: id, Field: "dsn", Message: "required (dsn or dsn_env)"}
		}
	}

	if c.Server.ListenAddr == "" {
		return &ValidationError{Component: "server", Field: "listen_addr", Message: "required"}
	}

	if c.Slack.Enabled && c.Slack.Channel == "" {
		return &ValidationError{Component: "slack", Field: "channel", Message: "required when slack is enabled"}
	}

	return nil
}
