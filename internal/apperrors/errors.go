// Package apperrors provides structured application errors with HTTP status mapping.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrTimeout    = errors.New("timeout")
	ErrTerminal   = errors.New("terminal failure")
	ErrInternal   = errors.New("internal error")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "file", "model_type")
	Resource string // For not found/conflict (e.g., "run", "batch")
	Stage    string // Pipeline stage that produced the error
	Op       string // Operation that failed (e.g., "churn.uploadDataset")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// Validation creates a validation error for a specific field.
// Validation errors are rejected before any network call is made.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
		Resource: resource,
	}
}

// Conflict creates a conflict error for a resource.
func Conflict(resource, id, reason string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  reason,
		Resource: resource,
	}
}

// Timeout creates a timeout error for a pipeline stage whose polling
// attempt budget was exhausted. Distinct from Terminal: the backend never
// reported an outcome, so a retry is the expected next step.
func Timeout(stage, message string) error {
	return &Error{
		Sentinel: ErrTimeout,
		Message:  message,
		Stage:    stage,
	}
}

// Terminal creates an error for a backend-reported failure. The message is
// the backend's own error text, surfaced verbatim.
func Terminal(stage, message string) error {
	return &Error{
		Sentinel: ErrTerminal,
		Message:  message,
		Stage:    stage,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// Kind returns a short machine-readable classification for err, suitable
// for event payloads and metric attributes.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrTerminal):
		return "terminal"
	default:
		return "internal"
	}
}
