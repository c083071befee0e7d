package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// yamlConfig is the on-disk shape of reportforge.yaml.
type yamlConfig struct {
	Defaults    *Defaults                   `yaml:"defaults"`
	Queue       *QueueConfig                `yaml:"queue"`
	Agent       *AgentConfig                `yaml:"agent"`
	LLM         *LLMConfig                  `yaml:"llm"`
	Report      *ReportConfig               `yaml:"report"`
	Storage     *StorageConfig              `yaml:"storage"`
	Assembler   *AssemblerConfig            `yaml:"assembler"`
	Server      *ServerConfig               `yaml:"server"`
	Slack       *SlackConfig                `yaml:"slack"`
	Retention   *RetentionConfig            `yaml:"retention"`
	DataSources map[string]DataSourceConfig `yaml:"data_sources"`
}

// Initialize loads reportforge.yaml from configDir, expands environment
// references, merges over the built-in defaults, applies the enumerated
// environment overrides, and validates the result.
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.configDir = configDir

	path := filepath.Join(configDir, "reportforge.yaml")
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Warn("No reportforge.yaml found, using built-in defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	default:
		var file yamlConfig
		if err := yaml.Unmarshal(ExpandEnv(data), &file); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidYAML, path, err)
		}
		if err := applyYAML(cfg, &file); err != nil {
			return nil, err
		}
		slog.Info("Loaded configuration", "path", path)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyYAML deep-merges the file sections over the defaults.
// File values win; zero values in the file leave defaults intact.
func applyYAML(cfg *Config, file *yamlConfig) error {
	sections := []struct {
		dst, src any
	}{
		{cfg.Defaults, file.Defaults},
		{cfg.Queue, file.Queue},
		{cfg.Agent, file.Agent},
		{cfg.LLM, file.LLM},
		{cfg.Report, file.Report},
		{cfg.Storage, file.Storage},
		{cfg.Assembler, file.Assembler},
		{cfg.Server, file.Server},
		{cfg.Slack, file.Slack},
		{cfg.Retention, file.Retention},
	}
	for _, s := range sections {
		if s.src == nil || isNilPtr(s.src) {
			continue
		}
		if err := mergo.Merge(s.dst, s.src, mergo.WithOverride); err != nil {
			return fmt.Errorf("merging configuration: %w", err)
		}
	}
	if len(file.DataSources) > 0 {
		cfg.DataSourceRegistry = NewDataSourceRegistry(file.DataSources)
	}
	return nil
}

func isNilPtr(v any) bool {
	switch t := v.(type) {
	case *Defaults:
		return t == nil
	case *QueueConfig:
		return t == nil
	case *AgentConfig:
		return t == nil
	case *LLMConfig:
		return t == nil
	case *ReportConfig:
		return t == nil
	case *StorageConfig:
		return t == nil
	case *AssemblerConfig:
		return t == nil
	case *ServerConfig:
		return t == nil
	case *SlackConfig:
		return t == nil
	case *RetentionConfig:
		return t == nil
	}
	return false
}

// applyEnvOverrides applies the enumerated environment toggles on top of
// file configuration. Env always wins — these are the operational knobs.
func applyEnvOverrides(cfg *Config) {
	if v, ok := envInt("REPORT_MAX_FAILED_PLACEHOLDERS_FOR_DOC"); ok {
		cfg.Report.MaxFailedPlaceholders = v
	}
	if v, ok := envInt("AGENT_CONCURRENCY"); ok {
		cfg.Agent.Concurrency = v
	}
	if v, ok := envInt("AGENT_MAX_ITERATIONS"); ok {
		cfg.Agent.MaxIterations = v
	}
	if v, ok := envSeconds("LLM_TIMEOUT_SECONDS"); ok {
		cfg.Agent.LLMTimeout = v
	}
	if v, ok := envSeconds("SQL_EXECUTE_TIMEOUT_SECONDS"); ok {
		cfg.Agent.SQLExecuteTimeout = v
	}
	if v, ok := envSeconds("EXECUTION_WALL_CLOCK_SECONDS"); ok {
		cfg.Report.WallClock = v
	}
	if v := os.Getenv("STORAGE_PRIMARY_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err == nil {
			cfg.Storage.PrimaryEnabled = &enabled
		} else {
			slog.Warn("Ignoring invalid STORAGE_PRIMARY_ENABLED", "value", v)
		}
	}
	if v := os.Getenv("STORAGE_OBJECT_KEY_TEMPLATE"); v != "" {
		cfg.Storage.ObjectKeyTemplate = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring invalid integer env override", "key", key, "value", v)
		return 0, false
	}
	return n, true
}

func envSeconds(key string) (time.Duration, bool) {
	n, ok := envInt(key)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}
