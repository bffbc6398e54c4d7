package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - Inclusive calendar range
// =============================================================================

// Period is an inclusive range of calendar days [Start, End].
type Period struct {
	Start TimePoint
	End   TimePoint
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Overlaps returns true if the two periods share at least one day.
// A shared boundary day counts.
func (p Period) Overlaps(other Period) bool {
	return p.Start.BeforeOrEqual(other.End) && p.End.AfterOrEqual(other.Start)
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

func StartOfYear(year int) TimePoint { return NewTimePoint(year, time.January, 1) }
func EndOfYear(year int) TimePoint   { return NewTimePoint(year, time.December, 31) }

// CalendarYear returns Jan 1 - Dec 31 of the given year.
func CalendarYear(year int) Period {
	return Period{Start: StartOfYear(year), End: EndOfYear(year)}
}

// =============================================================================
// YEAR MONTH - Settlement granularity
// =============================================================================

// YearMonth identifies one calendar month. Settlement records are keyed by it.
type YearMonth struct {
	Year  int
	Month time.Month
}

func NewYearMonth(year int, month time.Month) YearMonth {
	return YearMonth{Year: year, Month: month}
}

// ParseYearMonth parses "YYYY-MM".
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil || len(s) != 7 {
		return YearMonth{}, fmt.Errorf("%w: month %q is not YYYY-MM", ErrValidation, s)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

// Validate rejects months outside 1..12.
func (ym YearMonth) Validate() error {
	if ym.Month < time.January || ym.Month > time.December {
		return fmt.Errorf("%w: month %d out of range", ErrValidation, ym.Month)
	}
	return nil
}

// Prev returns the previous month, wrapping January to December of the prior year.
func (ym YearMonth) Prev() YearMonth {
	if ym.Month == time.January {
		return YearMonth{Year: ym.Year - 1, Month: time.December}
	}
	return YearMonth{Year: ym.Year, Month: ym.Month - 1}
}

// Next returns the following month.
func (ym YearMonth) Next() YearMonth {
	if ym.Month == time.December {
		return YearMonth{Year: ym.Year + 1, Month: time.January}
	}
	return YearMonth{Year: ym.Year, Month: ym.Month + 1}
}

// Contains reports whether the date falls in this month.
func (ym YearMonth) Contains(t TimePoint) bool {
	return t.Year() == ym.Year && t.Month() == ym.Month
}

// Period returns the first through last day of the month.
func (ym YearMonth) Period() Period {
	start := NewTimePoint(ym.Year, ym.Month, 1)
	return Period{Start: start, End: NewTimePoint(ym.Year, ym.Month+1, 1).AddDays(-1)}
}

// After reports whether ym is strictly later than other.
func (ym YearMonth) After(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year > other.Year
	}
	return ym.Month > other.Month
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

func (ym YearMonth) MarshalText() ([]byte, error) {
	return []byte(ym.String()), nil
}

func (ym *YearMonth) UnmarshalText(b []byte) error {
	parsed, err := ParseYearMonth(string(b))
	if err != nil {
		return err
	}
	*ym = parsed
	return nil
}
