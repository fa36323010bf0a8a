package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartOfWeek(t *testing.T) {
	wed := time.Date(2026, 3, 11, 18, 30, 0, 0, time.UTC)
	sun := time.Date(2026, 3, 15, 23, 59, 0, 0, time.UTC)
	mon := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, mon, StartOfWeek(wed))
	assert.Equal(t, mon, StartOfWeek(sun))
	assert.Equal(t, mon, StartOfWeek(mon))
}

func TestMondayOffset(t *testing.T) {
	assert.Equal(t, 0, MondayOffset(time.Monday))
	assert.Equal(t, -2, MondayOffset(time.Wednesday))
	assert.Equal(t, -6, MondayOffset(time.Sunday))
}

func TestDayKeyUsesLocation(t *testing.T) {
	almaty := time.FixedZone("ALMT", 5*60*60)
	late := time.Date(2026, 3, 11, 21, 0, 0, 0, time.UTC)

	assert.Equal(t, "2026-03-11", DayKey(late, time.UTC))
	assert.Equal(t, "2026-03-12", DayKey(late, almaty))
	assert.False(t, IsSameDay(late, late.Add(4*time.Hour), time.UTC))
	assert.True(t, IsSameDay(late, late.Add(4*time.Hour), almaty))
}

func TestClocks(t *testing.T) {
	at := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, at, FixedClock{T: at}.Now())

	assert.Equal(t, time.UTC, NewSystemClock("").Location)
	assert.Equal(t, time.UTC, NewSystemClock("Not/AZone").Location)
	assert.Equal(t, "Asia/Almaty", NewSystemClock("Asia/Almaty").Now().Location().String())
}
