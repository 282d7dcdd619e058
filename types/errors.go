package types

import (
	"errors"
	"fmt"
)

// ErrorType represents the kind of failure that occurred during evaluation or optimization
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeExecution
	ErrorTypeMetric
	ErrorTypeNoCandidates
	ErrorTypeInsufficientData
	ErrorTypeTimeout
	ErrorTypeInvalidConfig
)

// OptimizationError is the error type returned by every package of the module.
// Unit-level types (Execution, Metric, Timeout) are recorded per example and never abort a batch;
// InsufficientData and InvalidConfig are returned by the top-level calls.
type OptimizationError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Sentinels for errors.Is. Matching is by Type only.
var (
	ErrExecution        = &OptimizationError{Type: ErrorTypeExecution}
	ErrMetric           = &OptimizationError{Type: ErrorTypeMetric}
	ErrNoCandidates     = &OptimizationError{Type: ErrorTypeNoCandidates}
	ErrInsufficientData = &OptimizationError{Type: ErrorTypeInsufficientData}
	ErrTimeout          = &OptimizationError{Type: ErrorTypeTimeout}
	ErrInvalidConfig    = &OptimizationError{Type: ErrorTypeInvalidConfig}
)

func (e *OptimizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.TypeString(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.TypeString(), e.Message)
}

func (e *OptimizationError) Unwrap() error {
	return e.Err
}

// Is matches any *OptimizationError of the same Type.
func (e *OptimizationError) Is(target error) bool {
	t, ok := target.(*OptimizationError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

func (e *OptimizationError) TypeString() string {
	switch e.Type {
	case ErrorTypeExecution:
		return "ExecutionError"
	case ErrorTypeMetric:
		return "MetricError"
	case ErrorTypeNoCandidates:
		return "NoCandidatesError"
	case ErrorTypeInsufficientData:
		return "InsufficientDataError"
	case ErrorTypeTimeout:
		return "TimeoutError"
	case ErrorTypeInvalidConfig:
		return "InvalidConfigError"
	default:
		return "UnknownError"
	}
}

// LoggableFields returns key/value pairs suitable for a structured logger.
func (e *OptimizationError) LoggableFields() []any {
	var cause string
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return []any{
		"error_type", e.TypeString(),
		"message", e.Message,
		"cause", cause,
	}
}

// NewError creates a new OptimizationError
func NewError(errType ErrorType, message string, err error) *OptimizationError {
	return &OptimizationError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown when err is not an OptimizationError.
func TypeOf(err error) ErrorType {
	var oe *OptimizationError
	if errors.As(err, &oe) {
		return oe.Type
	}
	return ErrorTypeUnknown
}
