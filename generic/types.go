/*
Package generic provides the domain-agnostic primitives of the leave engine.

PURPOSE:
  Quantities, calendar values, periods and errors shared by the leave and
  overtime packages. Nothing in here knows what an "annual leave" or a
  "settlement" is; those live in the domain packages.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (5 days, 12.5 hours)
  - HoursPerDay: The organization-wide conversion constant (8h = 1 day)
  - Typed identifiers for users, requests and settlement records

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point drift when
     fractional hours are summed over a month
  2. Unit safety: Add/Sub convert the right operand into the left operand's
     unit, so whole days and partial hours can be mixed without surprises
  3. Type Safety: UserID and RequestID are distinct types

USAGE:
  days := generic.NewAmount(3, generic.UnitDays)
  hours := days.In(generic.UnitHours) // 24 hours

SEE ALSO:
  - time.go: Calendar dates, clock times and spans
  - balance.go: Entitlement / used / pending arithmetic
  - errors.go: Error taxonomy
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit (days or hours)
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitDays  Unit = "days"
	UnitHours Unit = "hours"
)

// HoursPerDay is the number of working hours in one quota day.
var HoursPerDay = decimal.NewFromInt(8)

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromInt(value int, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

func NewAmountFromDecimal(value decimal.Decimal, unit Unit) Amount {
	return Amount{Value: value, Unit: unit}
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// In converts the amount to the given unit.
func (a Amount) In(unit Unit) Amount {
	if a.Unit == unit || a.Unit == "" {
		return Amount{Value: a.Value, Unit: unit}
	}
	switch {
	case a.Unit == UnitDays && unit == UnitHours:
		return Amount{Value: a.Value.Mul(HoursPerDay), Unit: unit}
	case a.Unit == UnitHours && unit == UnitDays:
		return Amount{Value: a.Value.Div(HoursPerDay), Unit: unit}
	}
	return Amount{Value: a.Value, Unit: unit}
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.In(a.Unit).Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.In(a.Unit).Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) Round(places int32) Amount    { return Amount{Value: a.Value.Round(places), Unit: a.Unit} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.In(a.Unit).Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.In(a.Unit).Value) }

// ClampZero returns the amount, or zero if it is negative.
func (a Amount) ClampZero() Amount {
	if a.IsNegative() {
		return a.Zero()
	}
	return a
}

func (a Amount) String() string {
	return a.Value.String() + " " + string(a.Unit)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type RequestID string
type RecordID string
