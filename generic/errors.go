/*
errors.go - Centralized error types for the leave engine

PURPOSE:
  All error categories in one place for consistency and discoverability.
  Domain packages define structured errors that unwrap to these sentinels.

ERROR CATEGORIES:
  1. Validation errors - Rule violations detected before any write
     (overlapping span, quota exceeded, malformed input)
  2. Invariant errors - Values outside an allowed range that a policy may
     either flag or reject (settlement base outside [0, applied])
  3. Collaborator errors - Storage or network failures, propagated unchanged
     and never retried by the engine

USAGE:
  Domain packages wrap these with structured errors carrying the offending
  values:

    if errors.Is(err, generic.ErrOverlap) {
        var oe *leave.OverlapError
        errors.As(err, &oe) // oe.Conflict is the conflicting request
    }

SEE ALSO:
  - leave/errors.go: OverlapError, QuotaExceededError, TransitionError
  - overtime/errors.go: BaseOutOfRangeError
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all input and business-rule failures.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidSpan is returned when a span violates end >= start.
	ErrInvalidSpan = fmt.Errorf("%w: invalid span", ErrValidation)

	// ErrOverlap is returned when a span conflicts with an existing request.
	ErrOverlap = fmt.Errorf("%w: overlapping request", ErrValidation)

	// ErrQuotaExceeded is returned when a request needs more than remains.
	ErrQuotaExceeded = fmt.Errorf("%w: quota exceeded", ErrValidation)

	// ErrInvalidTransition is returned when a workflow action does not apply
	// to the request's current status.
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrValidation)

	// ErrInvariant is the root of range/consistency violations.
	ErrInvariant = errors.New("invariant violated")

	// ErrBaseOutOfRange is returned when a settlement base lies outside
	// [0, applied hours] for the month.
	ErrBaseOutOfRange = fmt.Errorf("%w: settlement base out of range", ErrInvariant)

	// ErrNotFound is returned when a referenced entity doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrCollaborator marks failures raised by storage or other external
	// interfaces.
	ErrCollaborator = errors.New("collaborator failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// SpanError describes a malformed span.
type SpanError struct {
	Span   Span
	Reason string
}

func (e *SpanError) Error() string {
	return fmt.Sprintf("invalid span %s: %s", e.Span, e.Reason)
}

func (e *SpanError) Unwrap() error {
	return ErrInvalidSpan
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// CollaboratorError wraps a failure from an external interface. Both the
// original error and ErrCollaborator match with errors.Is.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() []error {
	return []error{ErrCollaborator, e.Err}
}

// Collaborator wraps err as a CollaboratorError, or returns nil.
// Errors that already carry an engine category pass through unchanged.
func Collaborator(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvariant) || errors.Is(err, ErrCollaborator) {
		return err
	}
	return &CollaboratorError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflict returns true if the error reports a clash with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrOverlap) || errors.Is(err, ErrInvalidTransition)
}

// IsInvariant returns true if the error is a range/consistency violation.
func IsInvariant(err error) bool {
	return errors.Is(err, ErrInvariant)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
