// Package query contains read operations over a loaded session.
package query

import (
	"context"
	"time"

	"github.com/glowscan/glowscan-core/internal/application/achievements"
	"github.com/glowscan/glowscan-core/internal/application/history"
	"github.com/glowscan/glowscan-core/internal/domain/achievement"
	"github.com/glowscan/glowscan-core/internal/domain/activity"
	"github.com/glowscan/glowscan-core/internal/domain/scan"
	"github.com/glowscan/glowscan-core/internal/domain/shared"
	"github.com/glowscan/glowscan-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET DASHBOARD QUERY
// Everything the home screen shows: the latest scores, recent analyses, the
// week strip, the streak, achievement progress and the scan allowance.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultRecentLimit is how many analyses the dashboard lists.
	DefaultRecentLimit = 5

	// DefaultFreeScanLimit is the number of scans a free plan includes.
	DefaultFreeScanLimit = 5
)

// Source is the user-scoped state the dashboard reads.
type Source interface {
	UserID() string
	Premium() bool
	Now() time.Time
	History() *history.Store
	Achievements() *achievements.Engine
}

// GetDashboardQuery contains the parameters of a dashboard request.
type GetDashboardQuery struct {
	// RecentLimit - number of recent analyses (default 5).
	RecentLimit int

	// Refresh - reload history from the store before reading.
	Refresh bool
}

// Validate applies defaults.
func (q *GetDashboardQuery) Validate() error {
	if q.RecentLimit <= 0 {
		q.RecentLimit = DefaultRecentLimit
	}
	return nil
}

// ScoreSummaryDTO is the roll-up view of one scan.
type ScoreSummaryDTO struct {
	ScanID    int64         `json:"scan_id"`
	CreatedAt time.Time     `json:"created_at"`
	Scores    scan.RollUps  `json:"scores"`
	Feedback  scan.Feedback `json:"feedback"`
	Tips      []string      `json:"tips,omitempty"`
}

// AllowanceDTO describes how many scans the plan still permits.
type AllowanceDTO struct {
	Premium      bool `json:"premium"`
	ScansUsed    int  `json:"scans_used"`
	Limit        int  `json:"limit,omitempty"`
	Remaining    int  `json:"remaining,omitempty"`
	LimitReached bool `json:"limit_reached"`
}

// DashboardDTO is the result of the dashboard query.
type DashboardDTO struct {
	UserID string `json:"user_id"`

	// Latest - roll-ups of the newest renderable scan, nil before the first scan.
	Latest *ScoreSummaryDTO `json:"latest,omitempty"`

	Recent        []ScoreSummaryDTO      `json:"recent"`
	TotalScans    int                    `json:"total_scans"`
	Week          activity.Week          `json:"week"`
	ActiveDays    int                    `json:"active_days"`
	Streak        int                    `json:"streak"`
	TodayAnalyzed bool                   `json:"today_analyzed"`
	Achievements  []achievement.Progress `json:"achievements"`
	Allowance     AllowanceDTO           `json:"allowance"`
	GeneratedAt   time.Time              `json:"generated_at"`

	// Malformed - scans whose stored scores could not be rolled up.
	Malformed []int64 `json:"malformed,omitempty"`
}

// GetDashboardHandler builds dashboards.
type GetDashboardHandler struct {
	freeScanLimit int
	log           *logger.Logger
}

// NewGetDashboardHandler creates a handler. A non-positive limit falls back
// to DefaultFreeScanLimit.
func NewGetDashboardHandler(freeScanLimit int, log *logger.Logger) *GetDashboardHandler {
	if freeScanLimit <= 0 {
		freeScanLimit = DefaultFreeScanLimit
	}
	return &GetDashboardHandler{
		freeScanLimit: freeScanLimit,
		log:           logger.OrNop(log).With(logger.Component("dashboard")),
	}
}

// Handle builds the dashboard of src.
func (h *GetDashboardHandler) Handle(ctx context.Context, src Source, q GetDashboardQuery) (*DashboardDTO, error) {
	if err := shared.RequireUserID("query", "GetDashboard", src.UserID()); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	hist := src.History()
	if q.Refresh || !hist.Loaded() {
		if err := hist.Reload(ctx); err != nil {
			return nil, err
		}
	}

	now := src.Now()
	records := hist.All()
	stamps := scan.Timestamps(records)
	week := activity.ProjectWeek(now, stamps)

	dto := &DashboardDTO{
		UserID:        src.UserID(),
		Recent:        make([]ScoreSummaryDTO, 0, q.RecentLimit),
		TotalScans:    len(records),
		Week:          week,
		ActiveDays:    week.ActiveDays(),
		Streak:        activity.Streak(now, stamps),
		TodayAnalyzed: activity.HasScanOn(now, stamps),
		Allowance:     h.allowance(src.Premium(), len(records)),
		GeneratedAt:   now,
	}

	for _, rec := range hist.Recent(q.RecentLimit) {
		summary, err := summarize(rec)
		if err != nil {
			dto.Malformed = append(dto.Malformed, rec.ID)
			h.log.Warn("skipping malformed scan", logger.ScanID(rec.ID), logger.Err(err))
			continue
		}
		dto.Recent = append(dto.Recent, summary)
	}
	dto.Latest = latestRenderable(records)

	best, ok := scan.MaxOverall(records)
	dto.Achievements = achievement.ComputeProgress(achievement.ProgressInput{
		ScanCount:        len(records),
		TodayAnalyzed:    dto.TodayAnalyzed,
		ActiveDaysInWeek: dto.ActiveDays,
		HasPerfectScore:  ok && best >= achievement.PerfectScoreMin,
		UnlockedTypes:    src.Achievements().UnlockedTypes(),
	})

	return dto, nil
}

func (h *GetDashboardHandler) allowance(premium bool, used int) AllowanceDTO {
	if premium {
		return AllowanceDTO{Premium: true, ScansUsed: used}
	}
	remaining := h.freeScanLimit - used
	if remaining < 0 {
		remaining = 0
	}
	return AllowanceDTO{
		ScansUsed:    used,
		Limit:        h.freeScanLimit,
		Remaining:    remaining,
		LimitReached: remaining == 0,
	}
}

// latestRenderable summarizes the newest record whose scores roll up, which
// may lie past the recent window when the newest scans are malformed.
func latestRenderable(records []scan.Record) *ScoreSummaryDTO {
	for _, rec := range records {
		if summary, err := summarize(rec); err == nil {
			return &summary
		}
	}
	return nil
}

func summarize(rec scan.Record) (ScoreSummaryDTO, error) {
	rollups, err := rec.Scores.RollUps()
	if err != nil {
		return ScoreSummaryDTO{}, err
	}
	return ScoreSummaryDTO{
		ScanID:    rec.ID,
		CreatedAt: rec.CreatedAt,
		Scores:    rollups,
		Feedback:  rec.Feedback,
		Tips:      rec.Tips,
	}, nil
}
