package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// 2026-03-11 is a Wednesday.
var wednesday = time.Date(2026, 3, 11, 15, 30, 0, 0, time.UTC)

func TestProjectWeek_Wednesday(t *testing.T) {
	scans := []time.Time{
		wednesday.Add(-2 * time.Hour),      // today
		wednesday.AddDate(0, 0, -2),        // monday
		wednesday.AddDate(0, 0, -3),        // previous sunday, outside the week
		wednesday.AddDate(0, 0, -2).Add(1), // monday again
	}

	week := ProjectWeek(wednesday, scans)

	assert.Equal(t, "monday", week[0].DayName)
	assert.Equal(t, "sunday", week[6].DayName)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), week[0].Date)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), week[6].Date)

	todays := 0
	for i, d := range week {
		if d.IsToday {
			todays++
			assert.Equal(t, 2, i)
		}
	}
	assert.Equal(t, 1, todays)

	assert.True(t, week[0].HasAnalysis)
	assert.False(t, week[1].HasAnalysis)
	assert.True(t, week[2].HasAnalysis)
	assert.Equal(t, 2, week.ActiveDays())
	assert.Equal(t, "wednesday", week.Today().DayName)
}

func TestProjectWeek_SundayStartsWithPrecedingMonday(t *testing.T) {
	sunday := time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)

	week := ProjectWeek(sunday, nil)

	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), week[0].Date)
	assert.Equal(t, "monday", week[0].DayName)
	assert.True(t, week[6].IsToday)
	assert.Equal(t, "sunday", week[6].DayName)
	assert.Zero(t, week.ActiveDays())
}

func TestProjectWeek_ComparesInTodaysLocation(t *testing.T) {
	almaty := time.FixedZone("ALMT", 5*60*60)
	today := time.Date(2026, 3, 11, 2, 0, 0, 0, almaty)

	// 22:00 UTC on Tuesday is 03:00 Wednesday in Almaty.
	scan := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)

	week := ProjectWeek(today, []time.Time{scan})
	assert.True(t, week[2].HasAnalysis)
	assert.False(t, week[1].HasAnalysis)
}

func TestStreak(t *testing.T) {
	day := func(offset int) time.Time { return wednesday.AddDate(0, 0, offset) }

	tests := []struct {
		name  string
		scans []time.Time
		want  int
	}{
		{"no scans", nil, 0},
		{"today only", []time.Time{day(0)}, 1},
		{"gap breaks the walk", []time.Time{day(0), day(-1), day(-3)}, 2},
		{"unscanned today", []time.Time{day(-1), day(-2)}, 0},
		{"several scans one day", []time.Time{day(0), day(0).Add(-time.Hour)}, 1},
		{"seven days", []time.Time{day(0), day(-1), day(-2), day(-3), day(-4), day(-5), day(-6)}, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Streak(wednesday, tt.scans))
		})
	}
}

func TestStreak_CrossesMonthBoundary(t *testing.T) {
	today := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	scans := []time.Time{
		today,
		time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 28, 7, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 27, 7, 0, 0, 0, time.UTC),
	}

	assert.Equal(t, 4, Streak(today, scans))
}

func TestStreak_BoundedLookback(t *testing.T) {
	scans := make([]time.Time, 0, 40)
	for i := 0; i < 40; i++ {
		scans = append(scans, wednesday.AddDate(0, 0, -i))
	}

	assert.Equal(t, MaxStreakLookback, Streak(wednesday, scans))
}

func TestHasScanOn(t *testing.T) {
	assert.True(t, HasScanOn(wednesday, []time.Time{wednesday.Add(-15 * time.Hour)}))
	assert.False(t, HasScanOn(wednesday, []time.Time{wednesday.AddDate(0, 0, -1)}))
	assert.False(t, HasScanOn(wednesday, nil))
}
