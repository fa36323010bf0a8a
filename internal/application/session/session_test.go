package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowscan/glowscan-core/internal/application/saga"
	"github.com/glowscan/glowscan-core/internal/domain/achievement"
	"github.com/glowscan/glowscan-core/internal/domain/scan"
	"github.com/glowscan/glowscan-core/internal/domain/shared"
	"github.com/glowscan/glowscan-core/internal/infrastructure/persistence/memory"
	"github.com/glowscan/glowscan-core/pkg/timeutil"
)

var now = time.Date(2026, 3, 11, 18, 0, 0, 0, time.UTC)

type capturePublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *capturePublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type harness struct {
	scans        *memory.ScanRepository
	achievements *memory.AchievementRepository
	publisher    *capturePublisher
	clock        timeutil.FixedClock
}

func newHarness() *harness {
	return &harness{
		scans:        memory.NewScanRepository(),
		achievements: memory.NewAchievementRepository(),
		publisher:    &capturePublisher{},
		clock:        timeutil.FixedClock{T: now},
	}
}

func (h *harness) session(t *testing.T, userID string) *Session {
	t.Helper()
	s, err := New(userID, Deps{
		Scans:        h.scans,
		Achievements: h.achievements,
		Clock:        h.clock,
		Publisher:    h.publisher,
	})
	require.NoError(t, err)
	return s
}

func (h *harness) seed(t *testing.T, userID string, at time.Time, overall float64) scan.Record {
	t.Helper()
	rec, err := h.scans.Insert(context.Background(), scan.NewScan{
		UserID: userID, CreatedAt: at, Scores: scan.Scores{Overall: overall},
	})
	require.NoError(t, err)
	return rec
}

func TestNew_RequiresUserID(t *testing.T) {
	_, err := New("", Deps{Scans: memory.NewScanRepository(), Achievements: memory.NewAchievementRepository()})
	assert.ErrorIs(t, err, shared.ErrMissingUserID)
}

func TestLoad_FetchesHistoryAndAchievements(t *testing.T) {
	h := newHarness()
	h.seed(t, "u1", now.AddDate(0, 0, -1), 70)
	h.seed(t, "u1", now.Add(-time.Hour), 75)
	h.seed(t, "u2", now, 99)
	require.NoError(t, h.achievements.Insert(context.Background(), achievement.Record{
		ID: "a1", UserID: "u1", Type: achievement.FirstScan, UnlockedAt: now.AddDate(0, 0, -1),
	}))

	s := h.session(t, "u1")
	require.NoError(t, s.Load(context.Background()))

	assert.Equal(t, 2, s.History().Count())
	assert.True(t, s.Achievements().IsUnlocked(achievement.FirstScan))
	assert.Equal(t, 2, s.Streak())
	assert.True(t, s.TodayAnalyzed())
	assert.Equal(t, 2, s.Week().ActiveDays())
	assert.Equal(t, saga.StateIdle, s.State())
}

func TestSessionsAreIsolated(t *testing.T) {
	h := newHarness()
	a := h.session(t, "u1")
	b := h.session(t, "u2")
	require.NoError(t, a.Load(context.Background()))
	require.NoError(t, b.Load(context.Background()))

	p := saga.NewIngestPipeline(h.scans, saga.IngestPipelineConfig{}, saga.WithClock(h.clock))
	_, err := p.Ingest(context.Background(), a, saga.IngestInput{Analysis: scan.Analysis{Scores: scan.Scores{Overall: 80}}})
	require.NoError(t, err)

	assert.Equal(t, 1, a.History().Count())
	assert.True(t, a.Achievements().IsUnlocked(achievement.FirstScan))
	assert.Zero(t, b.History().Count())
	assert.False(t, b.Achievements().IsUnlocked(achievement.FirstScan))
	assert.Equal(t, saga.StateIdle, a.State())
}

func TestDeleteScan(t *testing.T) {
	h := newHarness()
	keep := h.seed(t, "u1", now.Add(-2*time.Hour), 70)
	drop := h.seed(t, "u1", now.Add(-time.Hour), 80)

	s := h.session(t, "u1")
	require.NoError(t, s.Load(context.Background()))

	require.NoError(t, s.DeleteScan(context.Background(), drop.ID))
	latest, ok := s.History().Latest()
	require.True(t, ok)
	assert.Equal(t, keep.ID, latest.ID)

	require.Len(t, h.publisher.events, 1)
	assert.Equal(t, shared.EventScanDeleted, h.publisher.events[0].EventType())

	err := s.DeleteScan(context.Background(), drop.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.NotErrorIs(t, err, shared.ErrStoreUnavailable)
}

func TestDeleteAll_KeepsAchievements(t *testing.T) {
	h := newHarness()
	h.seed(t, "u1", now.Add(-time.Hour), 95)
	require.NoError(t, h.achievements.Insert(context.Background(), achievement.Record{
		ID: "a1", UserID: "u1", Type: achievement.PerfectScore, UnlockedAt: now,
	}))

	s := h.session(t, "u1")
	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.DeleteAll(context.Background()))

	assert.Zero(t, s.History().Count())
	assert.Zero(t, s.Streak())
	assert.True(t, s.Achievements().IsUnlocked(achievement.PerfectScore))

	require.Len(t, h.publisher.events, 1)
	assert.Equal(t, shared.EventHistoryCleared, h.publisher.events[0].EventType())
}
