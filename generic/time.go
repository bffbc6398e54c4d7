package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// TIME POINT - Calendar date (day granularity, UTC)
// =============================================================================

const DateLayout = "2006-01-02"

type TimePoint struct {
	Time time.Time
}

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func Today() TimePoint {
	now := time.Now()
	return NewTimePoint(now.Year(), now.Month(), now.Day())
}

// ParseDate parses a canonical YYYY-MM-DD date. Any other shape is rejected so
// that the same input always yields the same day regardless of locale.
func ParseDate(s string) (TimePoint, error) {
	if len(s) != len(DateLayout) {
		return TimePoint{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrValidation, s)
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, fmt.Errorf("%w: date %q: %v", ErrValidation, s, err)
	}
	return TimePoint{Time: t}, nil
}

// MustParseDate is ParseDate for literals in tests and fixtures.
func MustParseDate(s string) TimePoint {
	tp, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return tp
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

func (tp TimePoint) normalize() time.Time {
	return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint { return TimePoint{Time: tp.Time.AddDate(0, 0, n)} }

// Properties
func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) YearMonth() YearMonth  { return YearMonth{Year: tp.Year(), Month: tp.Month()} }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }
func (tp TimePoint) String() string        { return tp.Time.Format(DateLayout) }

func (tp TimePoint) MarshalText() ([]byte, error) {
	return []byte(tp.String()), nil
}

func (tp *TimePoint) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*tp = parsed
	return nil
}

// DaysBetween returns the signed number of calendar days from -> to.
func DaysBetween(from, to TimePoint) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

// =============================================================================
// CLOCK - Time of day in minutes since midnight
// =============================================================================

type Clock int

const ClockLayout = "15:04"

// ParseClock parses a canonical 24-hour HH:MM time.
func ParseClock(s string) (Clock, error) {
	if len(s) != len(ClockLayout) || s[2] != ':' {
		return 0, fmt.Errorf("%w: time %q is not HH:MM", ErrValidation, s)
	}
	h, okH := twoDigits(s[0:2])
	m, okM := twoDigits(s[3:5])
	if !okH || !okM || h > 23 || m > 59 {
		return 0, fmt.Errorf("%w: time %q is not HH:MM", ErrValidation, s)
	}
	return Clock(h*60 + m), nil
}

func MustParseClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func twoDigits(s string) (int, bool) {
	if s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

func (c Clock) Hour() int      { return int(c) / 60 }
func (c Clock) Minute() int    { return int(c) % 60 }
func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute()) }

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ClockPtr is a convenience for optional clock fields.
func ClockPtr(c Clock) *Clock { return &c }

// =============================================================================
// SPAN - The date/time extent of a request
// =============================================================================

// Span is an inclusive range of calendar dates. A partial-day span may carry
// clock times; when it does not, consumers treat it as a half day.
type Span struct {
	StartDate  TimePoint `json:"startDate"`
	EndDate    TimePoint `json:"endDate"`
	PartialDay bool      `json:"isPartialDay"`
	StartTime  *Clock    `json:"startTime,omitempty"`
	EndTime    *Clock    `json:"endTime,omitempty"`
}

// NewDaySpan returns a whole-day span.
func NewDaySpan(start, end TimePoint) Span {
	return Span{StartDate: start, EndDate: end}
}

// NewPartialSpan returns a partial-day span on a single date.
func NewPartialSpan(day TimePoint, from, to Clock) Span {
	return Span{StartDate: day, EndDate: day, PartialDay: true, StartTime: &from, EndTime: &to}
}

// HasTimes reports whether both clock times are present.
func (s Span) HasTimes() bool {
	return s.StartTime != nil && s.EndTime != nil
}

// InclusiveDays counts calendar days from start to end, both ends included.
func (s Span) InclusiveDays() int {
	n := DaysBetween(s.StartDate, s.EndDate)
	if n < 0 {
		n = -n
	}
	return n + 1
}

// Validate checks the structural invariants of the span.
func (s Span) Validate() error {
	if s.StartDate.IsZero() || s.EndDate.IsZero() {
		return &SpanError{Span: s, Reason: "start and end date are required"}
	}
	if s.EndDate.Before(s.StartDate) {
		return &SpanError{Span: s, Reason: "end date before start date"}
	}
	if s.PartialDay && s.HasTimes() && *s.EndTime < *s.StartTime {
		return &SpanError{Span: s, Reason: "end time before start time"}
	}
	return nil
}

// Equal reports whether both spans describe the same dates and times.
func (s Span) Equal(other Span) bool {
	return s.StartDate.Equal(other.StartDate) &&
		s.EndDate.Equal(other.EndDate) &&
		s.PartialDay == other.PartialDay &&
		clockEqual(s.StartTime, other.StartTime) &&
		clockEqual(s.EndTime, other.EndTime)
}

func clockEqual(a, b *Clock) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Period returns the calendar extent of the span.
func (s Span) Period() Period {
	return Period{Start: s.StartDate, End: s.EndDate}
}

// OverlapsDates reports whether the inclusive date ranges intersect.
// Clock times are not consulted.
func (s Span) OverlapsDates(other Span) bool {
	return s.Period().Overlaps(other.Period())
}

func (s Span) String() string {
	out := s.StartDate.String()
	if s.HasTimes() {
		out += " " + s.StartTime.String() + "~" + s.EndTime.String()
	}
	if !s.EndDate.Equal(s.StartDate) {
		out += " - " + s.EndDate.String()
	}
	return out
}
