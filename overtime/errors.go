package overtime

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// BaseOutOfRangeError reports a settlement base outside [0, applied hours].
// Under BaseAdvisory it is returned as a warning alongside the write; under
// BaseEnforced it aborts the action.
type BaseOutOfRangeError struct {
	UserID  generic.UserID
	Month   generic.YearMonth
	Base    decimal.Decimal
	Applied decimal.Decimal
}

func (e *BaseOutOfRangeError) Error() string {
	return fmt.Sprintf("base %s hours for %s in %s is outside [0, %s]",
		e.Base, e.UserID, e.Month, e.Applied)
}

func (e *BaseOutOfRangeError) Unwrap() error {
	return generic.ErrBaseOutOfRange
}

// InputError reports an action input that can never be valid.
type InputError struct {
	UserID generic.UserID
	Field  string
	Value  string
	Reason string
}

func (e *InputError) Error() string {
	if e.UserID == "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q for %s: %s", e.Field, e.Value, e.UserID, e.Reason)
}

func (e *InputError) Unwrap() error {
	return generic.ErrValidation
}
