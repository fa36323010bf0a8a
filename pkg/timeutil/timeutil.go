// Package timeutil provides calendar helpers and an injectable clock.
// All calendar math happens in the location carried by the time value passed
// in, so callers pick the comparison timezone once (usually the clock's) and
// every day boundary follows from it.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// Clock supplies "now". Production code uses SystemClock; tests use FixedClock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in a fixed location.
type SystemClock struct {
	Location *time.Location
}

// NewSystemClock returns a clock for the named IANA zone, falling back to UTC.
func NewSystemClock(timezone string) SystemClock {
	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		loc = time.UTC
	}
	return SystemClock{Location: loc}
}

// Now returns the current time in the clock's location.
func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// FixedClock always returns the same instant.
type FixedClock struct {
	T time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time {
	return c.T
}

// StartOfDay returns the start of the day (00:00:00) in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns Monday 00:00:00 of t's ISO week in t's location.
// Sunday belongs to the week that started six days earlier.
func StartOfWeek(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, MondayOffset(t.Weekday()))
}

// MondayOffset is the day delta from the given weekday back to Monday.
func MondayOffset(wd time.Weekday) int {
	if wd == time.Sunday {
		return -6
	}
	return 1 - int(wd)
}

// IsSameDay checks if two times fall on the same calendar date in loc.
func IsSameDay(t1, t2 time.Time, loc *time.Location) bool {
	a1, a2 := t1.In(loc), t2.In(loc)
	y1, m1, d1 := a1.Date()
	y2, m2, d2 := a2.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// DayKey returns the YYYY-MM-DD key of t in loc.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(FormatDate)
}

// FormatDate is the standard date format (YYYY-MM-DD).
const FormatDate = "2006-01-02"
