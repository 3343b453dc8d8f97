package shared

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every error the core can produce. External-call
// failures (Timeout, Unavailable, Malformed) never propagate past their
// immediate caller; Invariant must never reach the boundary.
type ErrorKind string

const (
	// KindNotFound means the target entity id is unknown.
	KindNotFound ErrorKind = "not_found"

	// KindConflict means a state transition would violate an invariant,
	// e.g. matching a vehicle that already has an active trip.
	KindConflict ErrorKind = "conflict"

	// KindTimeout means a bounded-duration external call exceeded its deadline.
	KindTimeout ErrorKind = "timeout"

	// KindUnavailable means an external dependency returned a hard failure.
	KindUnavailable ErrorKind = "unavailable"

	// KindMalformed means external input or advisor output cannot be parsed.
	KindMalformed ErrorKind = "malformed"

	// KindInvariant means an internal consistency check failed.
	KindInvariant ErrorKind = "invariant"
)

// DomainError is the error type carried across the core. It wraps an
// optional cause and is classified by Kind.
type DomainError struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.cause
}

// NewNotFound reports an unknown entity.
func NewNotFound(entity, id string) *DomainError {
	return &DomainError{Kind: KindNotFound, Message: fmt.Sprintf("%s %q not found", entity, id)}
}

// NewConflict reports an invariant-violating transition.
func NewConflict(message string) *DomainError {
	return &DomainError{Kind: KindConflict, Message: message}
}

// NewTimeout wraps a deadline failure from an external call.
func NewTimeout(operation string, cause error) *DomainError {
	return &DomainError{Kind: KindTimeout, Message: operation, cause: cause}
}

// NewUnavailable wraps a hard failure from an external dependency.
func NewUnavailable(operation string, cause error) *DomainError {
	return &DomainError{Kind: KindUnavailable, Message: operation, cause: cause}
}

// NewMalformed reports unparseable external input.
func NewMalformed(message string) *DomainError {
	return &DomainError{Kind: KindMalformed, Message: message}
}

// NewInvariant reports a broken internal consistency check.
func NewInvariant(message string) *DomainError {
	return &DomainError{Kind: KindInvariant, Message: message}
}

// KindOf returns the classification of err, or an empty kind for errors
// that did not originate in the core.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsNotFound reports whether err is classified NotFound.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConflict reports whether err is classified Conflict.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// ValidationError reports a single invalid field on an entity or request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a field-level validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
