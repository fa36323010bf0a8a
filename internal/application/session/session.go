// Package session provides the explicit, user-scoped container for scan
// history, unlocked achievements and the ingest state. Every operation is
// keyed by the user the session was created for.
package session

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/glowscan/glowscan-core/internal/application/achievements"
	"github.com/glowscan/glowscan-core/internal/application/history"
	"github.com/glowscan/glowscan-core/internal/application/saga"
	"github.com/glowscan/glowscan-core/internal/domain/achievement"
	"github.com/glowscan/glowscan-core/internal/domain/activity"
	"github.com/glowscan/glowscan-core/internal/domain/scan"
	"github.com/glowscan/glowscan-core/internal/domain/shared"
	"github.com/glowscan/glowscan-core/pkg/logger"
	"github.com/glowscan/glowscan-core/pkg/timeutil"
)

// Deps are the collaborators of a session. Premium is the plan of the user.
type Deps struct {
	Scans        scan.Repository
	Achievements achievement.Repository
	Clock        timeutil.Clock
	Publisher    shared.EventPublisher
	Logger       *logger.Logger
	Recorder     shared.Recorder
	Premium      bool

	// StoreTimeout bounds history reloads. Zero keeps the store default.
	StoreTimeout time.Duration
}

// Session is the state of one signed-in user.
type Session struct {
	userID    string
	premium   bool
	scans     scan.Repository
	clock     timeutil.Clock
	publisher shared.EventPublisher
	log       *logger.Logger

	history *history.Store
	engine  *achievements.Engine

	mu    sync.RWMutex
	state saga.IngestState
}

// New creates a session for userID. Nothing is loaded until Load.
func New(userID string, deps Deps) (*Session, error) {
	if err := shared.RequireUserID("session", "New", userID); err != nil {
		return nil, err
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.NewSystemClock("UTC")
	}
	log := logger.OrNop(deps.Logger)

	histOpts := []history.Option{
		history.WithLogger(log),
		history.WithRecorder(deps.Recorder),
	}
	if deps.StoreTimeout > 0 {
		histOpts = append(histOpts, history.WithTimeout(deps.StoreTimeout))
	}
	hist, err := history.New(userID, deps.Scans, histOpts...)
	if err != nil {
		return nil, err
	}
	engine, err := achievements.New(userID, deps.Achievements,
		achievements.WithClock(deps.Clock),
		achievements.WithLogger(log),
		achievements.WithRecorder(deps.Recorder),
	)
	if err != nil {
		return nil, err
	}

	return &Session{
		userID:    userID,
		premium:   deps.Premium,
		scans:     deps.Scans,
		clock:     deps.Clock,
		publisher: deps.Publisher,
		log:       log.With(logger.Component("session"), logger.UserID(userID)),
		history:   hist,
		engine:    engine,
		state:     saga.StateIdle,
	}, nil
}

// Load fetches the scan history and the unlocked achievements concurrently.
func (s *Session) Load(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.history.Reload(gctx) })
	g.Go(func() error { return s.engine.Load(gctx) })
	if err := g.Wait(); err != nil {
		s.log.Warn("session load failed", logger.Err(err))
		return err
	}
	return nil
}

// UserID implements saga.Target.
func (s *Session) UserID() string { return s.userID }

// Premium reports whether the user has an unlimited plan.
func (s *Session) Premium() bool { return s.premium }

// History implements saga.Target.
func (s *Session) History() *history.Store { return s.history }

// Achievements implements saga.Target.
func (s *Session) Achievements() *achievements.Engine { return s.engine }

// SetIngestState implements saga.Target.
func (s *Session) SetIngestState(state saga.IngestState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.log.Debug("ingest state changed", logger.IngestState(string(state)))
}

// State returns the current ingest state.
func (s *Session) State() saga.IngestState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Now returns the session clock's current time.
func (s *Session) Now() time.Time {
	return s.clock.Now()
}

// Week projects the history onto the current Monday-to-Sunday week.
func (s *Session) Week() activity.Week {
	return activity.ProjectWeek(s.clock.Now(), scan.Timestamps(s.history.All()))
}

// Streak returns the consecutive-day streak ending today.
func (s *Session) Streak() int {
	return activity.Streak(s.clock.Now(), scan.Timestamps(s.history.All()))
}

// TodayAnalyzed reports whether a scan exists for today.
func (s *Session) TodayAnalyzed() bool {
	return activity.HasScanOn(s.clock.Now(), scan.Timestamps(s.history.All()))
}

// DeleteScan removes one scan from the store and reloads the history.
func (s *Session) DeleteScan(ctx context.Context, id int64) error {
	if err := s.scans.Delete(ctx, s.userID, id); err != nil {
		if shared.IsNotFound(err) {
			return err
		}
		return shared.WrapError("session", "DeleteScan", shared.ErrStoreUnavailable, "delete scan", err)
	}
	s.history.Remove(id)
	s.publish(shared.NewScanDeletedEvent(s.userID, id, s.clock.Now()))
	return s.history.Reload(ctx)
}

// DeleteAll removes the user's whole scan history and reloads it. Unlocked
// achievements are kept.
func (s *Session) DeleteAll(ctx context.Context) error {
	if err := s.scans.DeleteAllByUser(ctx, s.userID); err != nil {
		return shared.WrapError("session", "DeleteAll", shared.ErrStoreUnavailable, "delete history", err)
	}
	s.history.Clear()
	s.publish(shared.NewScanDeletedEvent(s.userID, 0, s.clock.Now()))
	return s.history.Reload(ctx)
}

func (s *Session) publish(event shared.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(event); err != nil {
		s.log.Warn("publish event failed", logger.Err(err))
	}
}
