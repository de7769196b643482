// Package errors provides the standardized error type used at the tracer's
// boundaries: configuration loading, engine construction, and handler
// registration. The intake API (internal/engine) never returns one of
// these; its calls return no error at all.
package errors

import (
	"fmt"
	"runtime"
	"time"
)

// TracerError is a structured error carrying enough context for the
// surrounding component/operation to be logged without string parsing.
type TracerError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Component  string                 `json:"component"`
	Operation  string                 `json:"operation"`
	Cause      error                  `json:"cause,omitempty"`
	StackTrace string                 `json:"stack_trace,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Severity   Severity               `json:"severity"`
}

// Severity levels for errors.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Error codes for the boundaries this package is used at.
const (
	CodeConfigInvalid    = "CONFIG_INVALID"
	CodeConfigNotFound   = "CONFIG_NOT_FOUND"
	CodeConfigValidation = "CONFIG_VALIDATION_FAILED"

	CodeEngineConstruction = "ENGINE_CONSTRUCTION_FAILED"
	CodeHandlerRegister    = "HANDLER_REGISTER_FAILED"
	CodeHandlerDispatch    = "HANDLER_DISPATCH_FAILED"
)

// New creates a new standardized error, capturing the caller's location.
func New(code, component, operation, message string) *TracerError {
	_, file, line, _ := runtime.Caller(1)

	return &TracerError{
		Code:       code,
		Message:    message,
		Component:  component,
		Operation:  operation,
		StackTrace: fmt.Sprintf("%s:%d", file, line),
		Metadata:   make(map[string]interface{}),
		Timestamp:  time.Now(),
		Severity:   SeverityMedium,
	}
}

// NewCritical creates a critical-severity error.
func NewCritical(code, component, operation, message string) *TracerError {
	err := New(code, component, operation, message)
	err.Severity = SeverityCritical
	return err
}

// Error implements the error interface.
func (e *TracerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Component, e.Operation, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *TracerError) Unwrap() error {
	return e.Cause
}

// Wrap attaches a cause to the error.
func (e *TracerError) Wrap(cause error) *TracerError {
	e.Cause = cause
	return e
}

// WithMetadata attaches a structured logging field to the error.
func (e *TracerError) WithMetadata(key string, value interface{}) *TracerError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ToFields converts the error to logrus-style fields.
func (e *TracerError) ToFields() map[string]interface{} {
	fields := map[string]interface{}{
		"error_code":      e.Code,
		"error_component": e.Component,
		"error_operation": e.Operation,
		"error_severity":  string(e.Severity),
	}
	if e.Cause != nil {
		fields["error_cause"] = e.Cause.Error()
	}
	for k, v := range e.Metadata {
		fields["error_meta_"+k] = v
	}
	return fields
}

// ConfigError creates a configuration error.
func ConfigError(operation, message string) *TracerError {
	return New(CodeConfigInvalid, "config", operation, message)
}
