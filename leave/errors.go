package leave

import (
	"errors"
	"fmt"

	"github.com/warp/leave-engine/generic"
)

var (
	// ErrCategoryNotAllowed is returned when a category is unknown or
	// restricted to another gender.
	ErrCategoryNotAllowed = fmt.Errorf("%w: category not allowed", generic.ErrValidation)

	// ErrNoWorkflow is returned when no approval chain is configured.
	ErrNoWorkflow = fmt.Errorf("%w: no workflow group configured", generic.ErrValidation)

	// ErrAttachmentTooLarge is returned for files over MaxAttachmentSize.
	ErrAttachmentTooLarge = fmt.Errorf("%w: attachment too large", generic.ErrValidation)

	// ErrAttachmentNameExhausted is returned when every candidate object
	// name is already taken.
	ErrAttachmentNameExhausted = errors.New("attachment name retries exhausted")

	// ErrAttachmentExists is returned by attachment backends when the
	// object name is taken. Upload retries with the next suffix.
	ErrAttachmentExists = errors.New("attachment already exists")
)

// OverlapError reports the request that conflicts with a span.
type OverlapError struct {
	Span     generic.Span
	Conflict Request
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("span %s overlaps %s request %s (%s)",
		e.Span, e.Conflict.Category, e.Conflict.ID, e.Conflict.Span)
}

func (e *OverlapError) Unwrap() error {
	return generic.ErrOverlap
}

// QuotaExceededError reports a request that needs more than remains.
type QuotaExceededError struct {
	Category  Category
	Requested generic.Amount
	Remaining generic.Amount
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s quota exceeded: remaining %s, requested %s",
		e.Category, FormatDays(e.Remaining.Value), FormatDays(e.Requested.Value))
}

func (e *QuotaExceededError) Unwrap() error {
	return generic.ErrQuotaExceeded
}

// TransitionError reports a workflow action that does not apply.
type TransitionError struct {
	RequestID generic.RequestID
	From      Status
	Action    LogAction
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s request %s in status %s", e.Action, e.RequestID, e.From)
}

func (e *TransitionError) Unwrap() error {
	return generic.ErrInvalidTransition
}

// CategoryError reports a category the user may not request.
type CategoryError struct {
	Category Category
	Gender   Gender
	Reason   string
}

func (e *CategoryError) Error() string {
	return fmt.Sprintf("category %s not allowed: %s", e.Category, e.Reason)
}

func (e *CategoryError) Unwrap() error {
	return ErrCategoryNotAllowed
}
