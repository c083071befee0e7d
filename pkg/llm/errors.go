package llm

import (
	"errors"
)

// Error kinds the agent distinguishes. Wrapped into transient/fatal
// classification below; check with errors.Is.
var (
	// ErrTimeout marks a call that exceeded its deadline. Consecutive
	// timeouts count toward the agent's abort threshold.
	ErrTimeout = errors.New("llm timeout")

	// ErrRateLimit marks a 429 from the endpoint.
	ErrRateLimit = errors.New("llm rate limited")

	// ErrInvalidJSON marks a response the planner could not parse even
	// after repair.
	ErrInvalidJSON = errors.New("llm response is not valid JSON")
)

// TransientError is a temporary failure that may succeed on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError is a permanent failure that must not be retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as fatal (non-retryable).
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient reports whether the error should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal reports whether the error must not be retried.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
