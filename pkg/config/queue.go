package config

import "time"

// QueueConfig contains queue and worker pool configuration.
// These values control how executions are polled, claimed, and processed.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per replica/pod.
	// Each worker independently polls and processes executions.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentExecutions is the global limit of concurrent executions
	// across ALL replicas/pods. Enforced by database COUNT(*) check.
	MaxConcurrentExecutions int `yaml:"max_concurrent_executions"`

	// PollInterval is the base interval for checking pending executions.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// HeartbeatInterval is how often a worker refreshes the claim
	// heartbeat while an execution runs.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// GracefulShutdownTimeout is the max time to wait for active
	// executions to complete during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// OrphanDetectionInterval is how often to scan for orphaned executions.
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval"`

	// OrphanThreshold is how long an execution can go without a heartbeat
	// before the janitor marks it failed.
	OrphanThreshold time.Duration `yaml:"orphan_threshold"`

	// TriggerDedupTTL is the idempotency window: a second trigger with
	// the same (task_id, trigger_id) inside this window returns the
	// existing execution.
	TriggerDedupTTL time.Duration `yaml:"trigger_dedup_ttl"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             3,
		MaxConcurrentExecutions: 5,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		HeartbeatInterval:       30 * time.Second,
		GracefulShutdownTimeout: 10 * time.Minute,
		OrphanDetectionInterval: 5 * time.Minute,
		OrphanThreshold:         10 * time.Minute,
		TriggerDedupTTL:         time.Hour,
	}
}
