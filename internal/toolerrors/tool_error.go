// Package toolerrors provides a structured error type for tool invocation
// failures. ToolError preserves a cause chain and supports errors.Is/As
// while remaining cheap to serialize into a stream.tool_result payload.
package toolerrors

import (
	"errors"
	"fmt"
)

// ToolError represents a structured tool failure. Tool errors may nest via
// Cause to retain diagnostics across retries without losing the original
// error text when a tool result crosses the wire.
type ToolError struct {
	// Message is the human-readable summary of the failure.
	Message string
	// Code is an optional short machine-readable failure code (e.g.
	// "path_escape", "timeout", "denied_pattern").
	Code string
	// Retryable reports whether the caller may reasonably retry the tool
	// call unchanged (e.g. after a transient timeout).
	Retryable bool
	// Cause links to the underlying tool error, if any.
	Cause *ToolError
}

// New constructs a ToolError with the given message.
func New(message string) *ToolError {
	if message == "" {
		message = "tool error"
	}
	return &ToolError{Message: message}
}

// WithCode returns a copy of e with Code set.
func (e *ToolError) WithCode(code string) *ToolError {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Code = code
	return &cp
}

// WithRetryable returns a copy of e with Retryable set.
func (e *ToolError) WithRetryable(retryable bool) *ToolError {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Retryable = retryable
	return &cp
}

// NewWithCause constructs a ToolError that wraps an underlying error.
func NewWithCause(message string, cause error) *ToolError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ToolError{Message: message, Cause: FromError(cause)}
}

// FromError converts an arbitrary error into a ToolError chain, reusing an
// existing ToolError in the chain when present instead of re-wrapping it.
func FromError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{Message: err.Error(), Cause: FromError(errors.Unwrap(err))}
}

// Errorf formats a message and returns it as a ToolError.
func Errorf(format string, args ...any) *ToolError {
	return New(fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the underlying cause to support errors.Is/As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
