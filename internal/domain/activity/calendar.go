// Package activity derives day-level views from scan timestamps: the current
// Monday-to-Sunday week strip and the consecutive-day streak. Everything here
// is pure; nothing is persisted.
package activity

import (
	"strings"
	"time"

	"github.com/glowscan/glowscan-core/pkg/timeutil"
)

// DaysPerWeek is the length of the projected calendar window.
const DaysPerWeek = 7

// WeekDay is one entry of the weekly calendar strip.
type WeekDay struct {
	// DayName - lowercase English weekday, "monday".."sunday".
	DayName string `json:"day"`

	// Date - midnight of the day in the comparison location.
	Date time.Time `json:"date"`

	// HasAnalysis - at least one scan falls on this calendar date.
	HasAnalysis bool `json:"has_analysis"`

	// IsToday - this entry is the current date.
	IsToday bool `json:"is_today"`
}

// Week is the Monday→Sunday projection.
type Week [DaysPerWeek]WeekDay

// ProjectWeek maps scan timestamps onto the ISO week containing today.
// Dates are compared by calendar components in today's location, so callers
// fix the timezone by choosing the location of today (normally the clock's).
func ProjectWeek(today time.Time, scans []time.Time) Week {
	loc := today.Location()
	monday := timeutil.StartOfWeek(today)

	days := make(map[string]struct{}, len(scans))
	for _, ts := range scans {
		days[timeutil.DayKey(ts, loc)] = struct{}{}
	}

	todayKey := timeutil.DayKey(today, loc)

	var week Week
	for i := 0; i < DaysPerWeek; i++ {
		date := monday.AddDate(0, 0, i)
		key := timeutil.DayKey(date, loc)
		_, has := days[key]
		week[i] = WeekDay{
			DayName:     strings.ToLower(date.Weekday().String()),
			Date:        date,
			HasAnalysis: has,
			IsToday:     key == todayKey,
		}
	}
	return week
}

// ActiveDays counts the entries of w that contain a scan.
func (w Week) ActiveDays() int {
	n := 0
	for _, d := range w {
		if d.HasAnalysis {
			n++
		}
	}
	return n
}

// Today returns the entry flagged as today. Every projected week has one.
func (w Week) Today() WeekDay {
	for _, d := range w {
		if d.IsToday {
			return d
		}
	}
	return WeekDay{}
}
