package achievement

import "math"

// ProgressInput carries what the progress bars are computed from.
type ProgressInput struct {
	ScanCount        int
	TodayAnalyzed    bool
	ActiveDaysInWeek int
	HasPerfectScore  bool
	UnlockedTypes    map[Type]bool
}

// Progress is the display state of one achievement.
type Progress struct {
	Type        Type   `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Unlocked    bool   `json:"unlocked"`
	Percent     int    `json:"percent"`
}

// ComputeProgress returns the progress of every achievement in definition order.
// Consistent User and Week Warrior bars follow scanned days of the current
// week, not the streak, matching what the achievements screen shows.
func ComputeProgress(in ProgressInput) []Progress {
	defs := Definitions()
	out := make([]Progress, 0, len(defs))
	for _, def := range defs {
		out = append(out, Progress{
			Type:        def.Type,
			Title:       def.Title,
			Description: def.Description,
			Unlocked:    in.UnlockedTypes[def.Type],
			Percent:     percent(def.Type, in),
		})
	}
	return out
}

func percent(t Type, in ProgressInput) int {
	switch t {
	case FirstScan:
		return flag(in.ScanCount >= 1)
	case DailyStreak:
		return flag(in.TodayAnalyzed)
	case ConsistentUser:
		return ratio(in.ActiveDaysInWeek, ConsistentUserStreak)
	case PerfectScore:
		return flag(in.HasPerfectScore)
	case WeekWarrior:
		return ratio(in.ActiveDaysInWeek, WeekWarriorStreak)
	case Expert:
		return ratio(in.ScanCount, ExpertScanCount)
	default:
		return 0
	}
}

func flag(ok bool) int {
	if ok {
		return 100
	}
	return 0
}

func ratio(n, target int) int {
	if target <= 0 {
		return 0
	}
	return int(math.Round(math.Min(float64(n)/float64(target)*100, 100)))
}
