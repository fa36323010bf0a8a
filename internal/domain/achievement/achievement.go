// Package achievement defines the closed set of achievement types, the
// unlock record and the pure rule conditions evaluated on every ingest.
package achievement

import (
	"context"
	"fmt"
	"time"

	"github.com/glowscan/glowscan-core/internal/domain/scan"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT TYPES
// ══════════════════════════════════════════════════════════════════════════════

// Type is a closed enum of achievements. The zero value is invalid.
type Type int

const (
	typeInvalid Type = iota
	// FirstScan - the very first analysis.
	FirstScan
	// DailyStreak - an analysis was made today. One-shot, never re-armed.
	DailyStreak
	// ConsistentUser - three consecutive days with an analysis.
	ConsistentUser
	// PerfectScore - an overall score of 90 or more.
	PerfectScore
	// WeekWarrior - seven consecutive days with an analysis.
	WeekWarrior
	// Expert - five analyses in total.
	Expert
	typeSentinel
)

// Thresholds used by the rules.
const (
	ConsistentUserStreak = 3
	WeekWarriorStreak    = 7
	PerfectScoreMin      = 90
	ExpertScanCount      = 5
)

// AllTypes returns every achievement in evaluation order.
func AllTypes() []Type {
	types := make([]Type, 0, int(typeSentinel)-1)
	for t := typeInvalid + 1; t < typeSentinel; t++ {
		types = append(types, t)
	}
	return types
}

// Valid reports whether t is a member of the enum.
func (t Type) Valid() bool {
	return t > typeInvalid && t < typeSentinel
}

// String returns the persisted key of t.
func (t Type) String() string {
	switch t {
	case FirstScan:
		return "first_scan"
	case DailyStreak:
		return "daily_streak"
	case ConsistentUser:
		return "consistent_user"
	case PerfectScore:
		return "perfect_score"
	case WeekWarrior:
		return "week_warrior"
	case Expert:
		return "expert"
	default:
		return "unknown"
	}
}

// ParseType maps a persisted key back to its Type.
func ParseType(s string) (Type, error) {
	for _, t := range AllTypes() {
		if t.String() == s {
			return t, nil
		}
	}
	return typeInvalid, fmt.Errorf("achievement: unknown type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("achievement: cannot marshal invalid type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Record is a single unlock event. At most one exists per (UserID, Type).
type Record struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Type       Type           `json:"achievement_type"`
	UnlockedAt time.Time      `json:"unlocked_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Definition describes an achievement for display.
type Definition struct {
	Type        Type
	Title       string
	Description string
}

// Definitions returns display data for every type.
func Definitions() []Definition {
	return []Definition{
		{FirstScan, "First Scan", "Complete your first beauty analysis"},
		{DailyStreak, "Daily Streak", "Analyze your beauty every day"},
		{ConsistentUser, "Consistent User", "Maintain regular beauty tracking"},
		{PerfectScore, "Perfect Score", "Achieve a 90+ beauty score"},
		{WeekWarrior, "Week Warrior", "Complete 7 days of analysis"},
		{Expert, "Beauty Expert", "Complete 5 beauty analyses"},
	}
}

// Repository is the record store surface for achievements.
type Repository interface {
	// Insert persists rec. A second record for the same (user, type) yields
	// shared.ErrAlreadyExists or is silently ignored, never duplicated.
	Insert(ctx context.Context, rec Record) error

	// ListByUser returns all unlocks of userID, newest first.
	ListByUser(ctx context.Context, userID string) ([]Record, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// RULE CONDITIONS
// ══════════════════════════════════════════════════════════════════════════════

// State is what the rules read. It is assembled from the refreshed history.
type State struct {
	ScanCount     int
	Streak        int
	TodayAnalyzed bool
	Analyses      []scan.Record
}

// Check evaluates the condition of t against s and returns the facts to keep
// as metadata when it holds. It does not know what is already unlocked.
func Check(t Type, s State) (bool, map[string]any, error) {
	switch t {
	case FirstScan:
		return s.ScanCount == 1, map[string]any{
			"description": "Completed your first scan",
		}, nil
	case DailyStreak:
		return s.TodayAnalyzed, map[string]any{
			"description": "Made a scan today",
		}, nil
	case ConsistentUser:
		return s.Streak >= ConsistentUserStreak, map[string]any{
			"consecutive_days": s.Streak,
			"description":      fmt.Sprintf("Completed scans for %d consecutive days", s.Streak),
		}, nil
	case PerfectScore:
		best, ok := scan.MaxOverall(s.Analyses)
		return ok && best >= PerfectScoreMin, map[string]any{
			"score":       best,
			"description": fmt.Sprintf("Achieved score of %g", best),
		}, nil
	case WeekWarrior:
		return s.Streak >= WeekWarriorStreak, map[string]any{
			"consecutive_days": s.Streak,
			"description":      fmt.Sprintf("Completed scans for %d consecutive days", s.Streak),
		}, nil
	case Expert:
		return s.ScanCount >= ExpertScanCount, map[string]any{
			"total_scans": s.ScanCount,
			"description": fmt.Sprintf("Completed %d scans", s.ScanCount),
		}, nil
	default:
		return false, nil, fmt.Errorf("achievement: no rule for type %d", int(t))
	}
}
