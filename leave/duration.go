package leave

import (
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// DURATION CALCULATOR
// =============================================================================

const (
	minutesPerHour = 60
	minutesPerDay  = 480 // HoursPerDay * 60
)

var (
	halfDayHours = decimal.NewFromInt(4)
	halfDay      = decimal.NewFromFloat(0.5)
)

// DurationDays returns the quota-consuming quantity of a span in days.
//
//	whole day:            inclusive calendar days
//	partial with times:   minutes / 480, 3 dp, negative clamped to 0
//	partial without times: 0.5
func DurationDays(s generic.Span) decimal.Decimal {
	if !s.PartialDay {
		return decimal.NewFromInt(int64(s.InclusiveDays()))
	}
	if !s.HasTimes() {
		return halfDay
	}
	return decimal.NewFromInt(int64(partialMinutes(s))).
		Div(decimal.NewFromInt(minutesPerDay)).Round(3)
}

// DurationHours returns the span in hours.
//
//	whole day:            inclusive calendar days * 8
//	partial with times:   minutes / 60, 2 dp, negative clamped to 0
//	partial without times: 4
func DurationHours(s generic.Span) decimal.Decimal {
	if !s.PartialDay {
		return decimal.NewFromInt(int64(s.InclusiveDays())).Mul(generic.HoursPerDay)
	}
	if !s.HasTimes() {
		return halfDayHours
	}
	return decimal.NewFromInt(int64(partialMinutes(s))).
		Div(decimal.NewFromInt(minutesPerHour)).Round(2)
}

// Duration returns the span as an Amount in the requested unit.
func Duration(s generic.Span, unit generic.Unit) generic.Amount {
	if unit == generic.UnitHours {
		return generic.NewAmountFromDecimal(DurationHours(s), generic.UnitHours)
	}
	return generic.NewAmountFromDecimal(DurationDays(s), generic.UnitDays)
}

func partialMinutes(s generic.Span) int {
	mins := int(*s.EndTime) - int(*s.StartTime)
	if mins < 0 {
		return 0
	}
	return mins
}

// AutoHours derives a correction's hours from its span the way detail review
// pre-fills them: a span without times (or with both at 00:00) counts whole
// days at 8 hours; otherwise the elapsed time from start date+time to end
// date+time, rounded to 1 dp and never negative.
func AutoHours(s generic.Span) decimal.Decimal {
	if !s.HasTimes() || (*s.StartTime == 0 && *s.EndTime == 0) {
		return decimal.NewFromInt(int64(s.InclusiveDays())).Mul(generic.HoursPerDay)
	}
	mins := generic.DaysBetween(s.StartDate, s.EndDate)*24*minutesPerHour + int(*s.EndTime) - int(*s.StartTime)
	if mins < 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(mins)).Div(decimal.NewFromInt(minutesPerHour)).Round(1)
}

// FormatDays renders a day quantity as whole days plus leftover hours,
// e.g. 2.5 -> "2d 4h", 3 -> "3d".
func FormatDays(days decimal.Decimal) string {
	whole := days.Floor()
	hours := days.Sub(whole).Mul(generic.HoursPerDay).Round(0)
	if hours.IsZero() {
		return whole.String() + "d"
	}
	return whole.String() + "d " + hours.String() + "h"
}
