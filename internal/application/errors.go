package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrUnauthorized is returned when a token does not match. Missing meetings
	// and participants on token-checked paths report this too.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyClaimed is returned when a participant identity is bound to another device.
	ErrAlreadyClaimed = errors.New("application: participant already claimed")
	// ErrMeetingFrozen is returned when availability changes are not accepted.
	ErrMeetingFrozen = errors.New("application: meeting frozen")
	// ErrGuestsNotAllowed is returned when a meeting does not admit guests.
	ErrGuestsNotAllowed = errors.New("application: guests not allowed")
	// ErrAlreadyFinalized is returned for changes that a finalized meeting no longer permits.
	ErrAlreadyFinalized = errors.New("application: meeting already finalized")
	// ErrUnavailable wraps store, bus and limiter failures.
	ErrUnavailable = errors.New("application: backend unavailable")
	// ErrCreation is returned when no unused meeting identifier could be allocated.
	ErrCreation = errors.New("application: meeting creation failed")
)

// RateLimitedError reports a request rejected by the origin rate limiter.
type RateLimitedError struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("application: rate limited, retry after %s", e.RetryAfter)
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error. The first message for a field wins.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
