// Package achievements evaluates unlock rules for one user and persists the
// achievements that become true. Unlocks are never revoked.
package achievements

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glowscan/glowscan-core/internal/domain/achievement"
	"github.com/glowscan/glowscan-core/internal/domain/shared"
	"github.com/glowscan/glowscan-core/pkg/logger"
	"github.com/glowscan/glowscan-core/pkg/timeutil"
)

// Failure records one rule whose unlock could not be persisted.
type Failure struct {
	Type achievement.Type
	Err  error
}

// Result is the outcome of a single evaluation pass.
type Result struct {
	// Unlocked - records created by this pass, in rule order.
	Unlocked []achievement.Record

	// Failures - rules that held but whose record could not be saved.
	// They stay locked and are retried on the next pass.
	Failures []Failure
}

// HasFailures reports whether any unlock failed to persist.
func (r *Result) HasFailures() bool {
	return len(r.Failures) > 0
}

// Engine holds the unlocked set of one user.
type Engine struct {
	userID   string
	repo     achievement.Repository
	clock    timeutil.Clock
	log      *logger.Logger
	recorder shared.Recorder
	newID    func() string

	mu       sync.Mutex
	loaded   bool
	unlocked map[achievement.Type]achievement.Record
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for UnlockedAt.
func WithClock(c timeutil.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = logger.OrNop(l) }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r shared.Recorder) Option {
	return func(e *Engine) { e.recorder = shared.RecorderOrNop(r) }
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// New creates an engine for userID. Call Load before reading Unlocked.
func New(userID string, repo achievement.Repository, opts ...Option) (*Engine, error) {
	if err := shared.RequireUserID("achievements", "New", userID); err != nil {
		return nil, err
	}
	e := &Engine{
		userID:   userID,
		repo:     repo,
		clock:    timeutil.SystemClock{Location: time.UTC},
		log:      logger.Nop(),
		recorder: shared.NopRecorder{},
		newID:    uuid.NewString,
		unlocked: make(map[achievement.Type]achievement.Record),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With(logger.Component("achievements"), logger.UserID(userID))
	return e, nil
}

// Load replaces the unlocked set with what the store holds.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadLocked(ctx)
}

func (e *Engine) loadLocked(ctx context.Context) error {
	records, err := e.repo.ListByUser(ctx, e.userID)
	if err != nil {
		e.log.Warn("load achievements failed", logger.Err(err))
		if errors.Is(err, shared.ErrMissingUserID) {
			return err
		}
		return shared.WrapError("achievements", "Load", shared.ErrStoreUnavailable, "list achievements", err)
	}

	unlocked := make(map[achievement.Type]achievement.Record, len(records))
	for _, rec := range records {
		unlocked[rec.Type] = rec
	}
	e.unlocked = unlocked
	e.loaded = true
	return nil
}

// Unlocked returns the known unlocks in rule order.
func (e *Engine) Unlocked() []achievement.Record {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]achievement.Record, 0, len(e.unlocked))
	for _, t := range achievement.AllTypes() {
		if rec, ok := e.unlocked[t]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// UnlockedTypes returns the unlocked set as a lookup map.
func (e *Engine) UnlockedTypes() map[achievement.Type]bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[achievement.Type]bool, len(e.unlocked))
	for t := range e.unlocked {
		out[t] = true
	}
	return out
}

// IsUnlocked reports whether t is already unlocked.
func (e *Engine) IsUnlocked(t achievement.Type) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.unlocked[t]
	return ok
}

// Evaluate runs every rule in order against state. A rule whose type is
// already unlocked is skipped without touching the store. A persist failure
// is recorded in the result and the remaining rules still run. An error is
// returned only when the unlocked set could not be loaded.
func (e *Engine) Evaluate(ctx context.Context, state achievement.State) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		if err := e.loadLocked(ctx); err != nil {
			return nil, err
		}
	}

	result := &Result{}
	for _, t := range achievement.AllTypes() {
		if _, done := e.unlocked[t]; done {
			continue
		}

		ok, metadata, err := achievement.Check(t, state)
		if err != nil {
			e.log.Error("rule evaluation failed", logger.AchievementType(t.String()), logger.Err(err))
			continue
		}
		if !ok {
			continue
		}

		rec := e.build(t, metadata)
		if err := e.repo.Insert(ctx, rec); err != nil {
			if shared.IsAlreadyExists(err) {
				// Someone else persisted it first; adopt without reporting.
				e.unlocked[t] = rec
				continue
			}
			e.recorder.AchievementPersistFailed(t.String())
			e.log.Error("persist achievement failed",
				logger.AchievementType(t.String()),
				logger.Err(err),
			)
			result.Failures = append(result.Failures, Failure{
				Type: t,
				Err:  shared.WrapError("achievements", "Evaluate", shared.ErrAchievementPersistFailed, t.String(), err),
			})
			continue
		}

		e.unlocked[t] = rec
		result.Unlocked = append(result.Unlocked, rec)
		e.recorder.AchievementUnlocked(t.String())
		e.log.Info("achievement unlocked", logger.AchievementType(t.String()))
	}

	return result, nil
}

func (e *Engine) build(t achievement.Type, metadata map[string]any) achievement.Record {
	now := e.clock.Now()
	md := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		md[k] = v
	}
	md["unlocked_date"] = now.Format(time.RFC3339)

	return achievement.Record{
		ID:         e.newID(),
		UserID:     e.userID,
		Type:       t,
		UnlockedAt: now,
		Metadata:   md,
	}
}
