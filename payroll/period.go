package payroll

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - The pay period a calculation covers
// =============================================================================

// DateLayout is the wire format of period bounds.
const DateLayout = "2006-01-02"

// Period is an inclusive pay period. End names the last day of the period;
// records clocked in at any time on that day are eligible.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewPeriod builds a period from two dates, truncated to midnight.
func NewPeriod(start, end time.Time) Period {
	return Period{Start: StartOfDay(start), End: StartOfDay(end)}
}

// ParsePeriod parses YYYY-MM-DD bounds as UTC dates.
func ParsePeriod(start, end string) (Period, error) {
	return ParsePeriodIn(start, end, time.UTC)
}

// ParsePeriodIn parses YYYY-MM-DD bounds (e.g. from an HTTP request or CLI)
// as local dates in loc, so the clock-in window follows the same calendar
// days the weekday and hour conditions use. A nil loc means UTC.
func ParsePeriodIn(start, end string, loc *time.Location) (Period, error) {
	if loc == nil {
		loc = time.UTC
	}
	s, err := time.ParseInLocation(DateLayout, start, loc)
	if err != nil {
		return Period{}, fmt.Errorf("%w: start %q: %v", ErrInvalidPeriod, start, err)
	}
	e, err := time.ParseInLocation(DateLayout, end, loc)
	if err != nil {
		return Period{}, fmt.Errorf("%w: end %q: %v", ErrInvalidPeriod, end, err)
	}
	p := NewPeriod(s, e)
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// In returns the period covering the same calendar dates in loc.
func (p Period) In(loc *time.Location) Period {
	date := func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
	return Period{Start: date(p.Start), End: date(p.End)}
}

// Validate rejects periods whose end precedes the start.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return fmt.Errorf("%w: missing bounds", ErrInvalidPeriod)
	}
	if p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// Window returns the half-open clock-in window [Start, End + 1 day).
func (p Period) Window() (from, to time.Time) {
	return p.Start, p.End.AddDate(0, 0, 1)
}

// Contains reports whether a clock-in time falls in the period window.
func (p Period) Contains(t time.Time) bool {
	from, to := p.Window()
	return !t.Before(from) && t.Before(to)
}

// Days returns the number of calendar days covered.
func (p Period) Days() int {
	return int(p.End.Sub(p.Start).Hours()/24) + 1
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.Format(DateLayout) + ", " + p.End.Format(DateLayout) + "]"
}
