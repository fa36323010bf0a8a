package shared

import "time"

// Ingest outcomes reported to a Recorder.
const (
	OutcomeSuccess    = "success"
	OutcomeRejected   = "rejected"
	OutcomeMalformed  = "malformed"
	OutcomeFailed     = "failed"
	OutcomeVisionDown = "vision_unavailable"
)

// Recorder receives operational counters from the application layer.
// Implementations must be safe for concurrent use.
type Recorder interface {
	IngestCompleted(outcome string, took time.Duration)
	GuardRejected()
	AchievementUnlocked(achievementType string)
	AchievementPersistFailed(achievementType string)
	HistoryReloadFailed()
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) IngestCompleted(string, time.Duration) {}
func (NopRecorder) GuardRejected()                        {}
func (NopRecorder) AchievementUnlocked(string)            {}
func (NopRecorder) AchievementPersistFailed(string)       {}
func (NopRecorder) HistoryReloadFailed()                  {}

// RecorderOrNop returns r, or a NopRecorder when r is nil.
func RecorderOrNop(r Recorder) Recorder {
	if r == nil {
		return NopRecorder{}
	}
	return r
}
