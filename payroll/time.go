package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INTERVAL & TIME UTILITIES
// =============================================================================

var secondsPerHour = decimal.NewFromInt(3600)

// ElapsedHours returns (to - from) in hours, floored at zero. Sub-second
// precision is dropped so that the same record always yields the same value.
func ElapsedHours(from, to time.Time) decimal.Decimal {
	if !to.After(from) {
		return decimal.Zero
	}
	secs := int64(to.Sub(from) / time.Second)
	return decimal.NewFromInt(secs).Div(secondsPerHour)
}

// Clock interprets record timestamps in a fixed location. Hour-of-day and
// weekday conditions are evaluated in this zone.
type Clock struct {
	Location *time.Location
}

// UTCClock evaluates conditions in UTC.
var UTCClock = Clock{Location: time.UTC}

func (c Clock) loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Hour returns the hour-of-day (0-23) of t.
func (c Clock) Hour(t time.Time) int { return t.In(c.loc()).Hour() }

// Weekday returns the weekday of t (0 = Sunday).
func (c Clock) Weekday(t time.Time) int { return int(t.In(c.loc()).Weekday()) }

// HourInWindow reports whether hour falls in [start, end). When start > end
// the window wraps midnight: hour >= start OR hour < end. A window with
// start == end matches nothing.
func HourInWindow(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// StartOfDay truncates t to midnight in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
