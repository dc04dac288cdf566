package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds surfaced to callers. Every upstream failure maps to exactly one of the
// first four; ErrValidation is raised before any network call.
var (
	ErrRateLimited  = errors.New("rate limited")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUpstream     = errors.New("upstream error")
	ErrValidation   = errors.New("validation error")
)

// APIError is a classified upstream failure.
type APIError struct {
	Kind       error
	Resource   string
	StatusCode int
	ResetAt    time.Time
	Err        error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Resource)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if !e.ResetAt.IsZero() {
		msg = fmt.Sprintf("%s, resets at %s", msg, e.ResetAt.Format(time.RFC3339))
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind and the underlying transport error to errors.Is/As.
func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ValidationError rejects malformed caller input.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ResetTime returns the rate-limit reset instant carried by err, if any.
func ResetTime(err error) (time.Time, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && errors.Is(apiErr.Kind, ErrRateLimited) && !apiErr.ResetAt.IsZero() {
		return apiErr.ResetAt, true
	}
	return time.Time{}, false
}
