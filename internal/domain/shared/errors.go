// Package shared contains common domain types and errors that are used across
// all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrMissingUserID  = errors.New("user id is required")
	ErrMalformedInput = errors.New("malformed input")

	// State errors
	ErrIngestInProgress = errors.New("ingest already in progress")

	// External service errors
	ErrStoreUnavailable  = errors.New("record store unavailable")
	ErrVisionUnavailable = errors.New("vision service unavailable")
	ErrTimeout           = errors.New("operation timeout")

	// Pipeline outcomes
	ErrIngestFailed             = errors.New("ingest failed")
	ErrAchievementPersistFailed = errors.New("achievement persist failed")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "scan", "achievement", "history"
	Op      string // Operation that failed, e.g., "Reload", "Insert"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// RequireUserID returns ErrMissingUserID wrapped with the calling operation
// when userID is empty. A missing user id is a programming error.
func RequireUserID(domain, op, userID string) error {
	if userID == "" {
		return NewDomainError(domain, op, ErrMissingUserID, "user id must not be empty")
	}
	return nil
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsStoreUnavailable checks if the error means the record store could not be reached.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsRetryable checks if the caller may retry the operation unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrIngestFailed) ||
		errors.Is(err, ErrVisionUnavailable) ||
		errors.Is(err, ErrTimeout)
}
