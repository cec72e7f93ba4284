package errors

import (
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrUnsupportedKind = errors.New("unsupported metric kind")
	ErrInvalidRange    = errors.New("invalid time range")
	ErrNoThreshold     = errors.New("no threshold configured")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeStore      ErrorType = "store"
	ErrorTypeCollect    ErrorType = "collect"
	ErrorTypeDispatch   ErrorType = "dispatch"
	ErrorTypeValidation ErrorType = "validation"
)

// PipelineError is a structured error for telemetry pipeline operations.
type PipelineError struct {
	Type      ErrorType
	Op        string // Operation that failed (e.g., "collect_requests", "rollup_stage")
	Service   string // Service name where the error occurred
	Metric    string // Metric name if applicable
	Err       error  // Underlying error
	Timestamp time.Time
	Retryable bool
}

func (e *PipelineError) Error() string {
	if e.Metric != "" {
		return fmt.Sprintf("%s failed for %s/%s: %v", e.Op, e.Service, e.Metric, e.Err)
	}
	if e.Service != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Service, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *PipelineError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrNotFound:
		return e.Type == ErrorTypeNotFound
	case ErrInvalidConfig:
		return e.Type == ErrorTypeConfig || e.Type == ErrorTypeValidation
	}

	return errors.Is(e.Err, target)
}

// NewPipelineError creates a new PipelineError
func NewPipelineError(errorType ErrorType, op, service string, err error) *PipelineError {
	return &PipelineError{
		Type:      errorType,
		Op:        op,
		Service:   service,
		Err:       err,
		Timestamp: time.Now(),
		Retryable: isRetryable(errorType),
	}
}

// WithMetric adds metric identity to the error
func (e *PipelineError) WithMetric(metric string) *PipelineError {
	e.Metric = metric
	return e
}

// isRetryable determines if an error category should be retried.
// Configuration and validation problems never are: they occur before
// any write and a retry would fail the same way.
func isRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeConfig, ErrorTypeValidation, ErrorTypeNotFound:
		return false
	default:
		return true
	}
}

// Helper functions

// WrapConfigError wraps a configuration error with operation context
func WrapConfigError(op string, err error) error {
	return NewPipelineError(ErrorTypeConfig, op, "", err)
}

// WrapCollectError wraps a sample-collection error with service context
func WrapCollectError(op, service string, err error) error {
	return NewPipelineError(ErrorTypeCollect, op, service, err)
}

// WrapStoreError wraps a metric-store error with operation context
func WrapStoreError(op string, err error) error {
	return NewPipelineError(ErrorTypeStore, op, "", err)
}

// IsConfigError checks whether an error is a non-retryable configuration error
func IsConfigError(err error) bool {
	if err == nil {
		return false
	}
	var pipeErr *PipelineError
	if errors.As(err, &pipeErr) {
		return pipeErr.Type == ErrorTypeConfig || pipeErr.Type == ErrorTypeValidation
	}
	return errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrUnsupportedKind) || errors.Is(err, ErrNoThreshold)
}

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	var pipeErr *PipelineError
	if errors.As(err, &pipeErr) {
		return pipeErr.Retryable
	}
	return false
}
