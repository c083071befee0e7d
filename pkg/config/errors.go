package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound indicates the configuration file was not found
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidYAML indicates YAML parsing failed
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrValidationFailed indicates configuration validation failed
	ErrValidationFailed = errors.New("configuration validation failed")

	// ErrDataSourceNotFound indicates a data source was not found in the registry
	ErrDataSourceNotFound = errors.New("data source not found")
)

// ValidationError wraps configuration validation errors with context.
type ValidationError struct {
	Component string // Component being validated (queue, storage, data_source, …)
	ID        string // ID of the component (optional)
	Field     string // Field name (optional)
	Message   string // Human-readable problem
}

func (e *ValidationError) Error() string {
	switch {
	case e.ID != "" && e.Field != "":
		return fmt.Sprintf("%s %q: field %q: %s", e.Component, e.ID, e.Field, e.Message)
	case e.Field != "":
		return fmt.Sprintf("%s: field %q: %s", e.Component, e.Field, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Component, e.Message)
	}
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }
