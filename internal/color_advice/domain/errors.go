package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("invalid request")
	ErrUnsupportedMode  = errors.New("unsupported input mode")
	ErrAssetNotFound    = errors.New("asset not found")
	ErrPhaseTimeout     = errors.New("phase timed out")
	ErrPhaseFailed      = errors.New("phase failed")
	ErrBreakerOpen      = errors.New("circuit breaker open")
	ErrRequestCancelled = errors.New("request cancelled")
	ErrRequestDeadline  = errors.New("request deadline exceeded")
	ErrCacheMiss        = errors.New("cache miss")
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// ValidationError rejects a request before any phase runs.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid request: %s", e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}
	return []error{ErrValidation}
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err should be surfaced as a client error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// FailureKind classifies why a phase call did not produce a result.
type FailureKind string

const (
	FailureTimeout     FailureKind = "timeout"
	FailureError       FailureKind = "error"
	FailureBreakerOpen FailureKind = "breaker_open"
	FailureCancelled   FailureKind = "cancelled"
	FailureDeadline    FailureKind = "request_deadline"
)

// PhaseFailure is returned by the reliability manager for any non-success
// outcome. It is absorbed by the orchestrator and never reaches the caller.
type PhaseFailure struct {
	Phase PhaseName
	Kind  FailureKind
	Err   error
}

func (e *PhaseFailure) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Phase, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Phase, e.Kind, e.Err)
}

func (e *PhaseFailure) Unwrap() error {
	return e.Err
}

// Reason renders the failure for degradation_reason.
func (e *PhaseFailure) Reason() string {
	return fmt.Sprintf("%s: %s", e.Phase, e.Kind)
}
