// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
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
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	// Authorization errors
	ErrPermissionDenied = errors.New("permission denied")
	ErrForbidden        = errors.New("forbidden")

	// Reconciliation errors
	ErrRecomputeFailed = errors.New("recompute failed")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "run", "player", "board"
	Op      string // Operation that failed, e.g., "Verify", "Claim"
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

// Run domain errors
var (
	ErrRunNotFound       = NewDomainError("run", "Find", ErrNotFound, "run not found")
	ErrRunAlreadyExists  = NewDomainError("run", "Create", ErrAlreadyExists, "run already exists")
	ErrInvalidRunTime    = NewDomainError("run", "Validate", ErrInvalidFormat, "invalid run time")
	ErrInvalidBoardKind  = NewDomainError("run", "Validate", ErrInvalidInput, "invalid board kind")
	ErrInvalidRunMode    = NewDomainError("run", "Validate", ErrInvalidInput, "invalid run mode")
	ErrMissingLevel      = NewDomainError("run", "Validate", ErrInvalidInput, "level required for this board kind")
	ErrRunNotVerified    = NewDomainError("run", "CheckState", ErrInvalidState, "run is not verified")
	ErrRunNotClaimable   = NewDomainError("run", "Claim", ErrForbidden, "run is owned by another account")
	ErrClaimNameMismatch = NewDomainError("run", "Claim", ErrForbidden, "claimant name does not match run")
)

// Player domain errors
var (
	ErrPlayerNotFound      = NewDomainError("player", "Find", ErrNotFound, "player not found")
	ErrPlayerAlreadyExists = NewDomainError("player", "Create", ErrAlreadyExists, "player already exists")
	ErrInvalidDisplayName  = NewDomainError("player", "Validate", ErrEmptyValue, "display name cannot be empty")
)

// Board domain errors
var (
	ErrInvalidGroupKey = NewDomainError("board", "Validate", ErrInvalidInput, "invalid group key")
	ErrEmptyBoard      = NewDomainError("board", "Rank", ErrNotFound, "no verified runs in group")
)

// Reconciliation errors
var (
	ErrTotalsRecompute = NewDomainError("player", "RecomputeTotals", ErrRecomputeFailed, "failed to recompute cached totals")
	ErrBackfillPartial = NewDomainError("board", "Backfill", ErrRecomputeFailed, "backfill completed with errors")
)

// External service errors
var (
	ErrResultsAPIUnavailable     = NewDomainError("results", "Request", ErrServiceUnavailable, "results provider is unavailable")
	ErrResultsAPIRateLimited     = NewDomainError("results", "Request", ErrRateLimited, "results provider rate limit exceeded")
	ErrResultsAPIInvalidResponse = NewDomainError("results", "Parse", ErrInvalidFormat, "invalid response from results provider")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPermissionDenied checks if the error is a store-level authorization failure.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsRecomputeFailed checks if the error is a totals/points recompute failure.
func IsRecomputeFailed(err error) bool {
	return errors.Is(err, ErrRecomputeFailed)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrPermissionDenied)
}
