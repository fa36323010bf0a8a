package activity

import (
	"time"

	"github.com/glowscan/glowscan-core/pkg/timeutil"
)

// MaxStreakLookback bounds the backward walk of Streak. The longest streak
// threshold any achievement uses is seven days, so thirty keeps headroom
// while capping the work per evaluation.
const MaxStreakLookback = 30

// Streak counts consecutive calendar days ending today that contain at least
// one scan. Today is checked first: an unscanned today yields 0. The first
// gap ends the walk and there is no grace day. Days are compared in today's
// location.
func Streak(today time.Time, scans []time.Time) int {
	if len(scans) == 0 {
		return 0
	}

	loc := today.Location()
	days := make(map[string]struct{}, len(scans))
	for _, ts := range scans {
		days[timeutil.DayKey(ts, loc)] = struct{}{}
	}

	start := timeutil.StartOfDay(today)
	streak := 0
	for i := 0; i < MaxStreakLookback; i++ {
		key := timeutil.DayKey(start.AddDate(0, 0, -i), loc)
		if _, ok := days[key]; !ok {
			break
		}
		streak++
	}
	return streak
}

// HasScanOn reports whether any timestamp falls on day's calendar date.
func HasScanOn(day time.Time, scans []time.Time) bool {
	loc := day.Location()
	for _, ts := range scans {
		if timeutil.IsSameDay(ts, day, loc) {
			return true
		}
	}
	return false
}
