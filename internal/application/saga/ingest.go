// Package saga contains the multi-step processes that coordinate the record
// store, the session caches and the achievement engine.
package saga

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/glowscan/glowscan-core/internal/application/achievements"
	"github.com/glowscan/glowscan-core/internal/application/history"
	"github.com/glowscan/glowscan-core/internal/domain/achievement"
	"github.com/glowscan/glowscan-core/internal/domain/activity"
	"github.com/glowscan/glowscan-core/internal/domain/scan"
	"github.com/glowscan/glowscan-core/internal/domain/shared"
	"github.com/glowscan/glowscan-core/pkg/logger"
	"github.com/glowscan/glowscan-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANALYSIS INGEST SAGA
// Flow: Guard → Submit (persist) → Append → Refresh history →
//
//	Evaluate achievements → Publish events → Idle
//
// The scan is the source of truth: once it is persisted the ingest succeeds,
// and later steps only report what went wrong.
// ══════════════════════════════════════════════════════════════════════════════

// IngestState is the position of a user's ingest in the flow.
type IngestState string

const (
	StateIdle       IngestState = "idle"
	StateAnalyzing  IngestState = "analyzing"
	StateSubmitting IngestState = "submitting"
	StatePersisted  IngestState = "persisted"
	StateRefreshing IngestState = "refreshing"
	StateEvaluating IngestState = "evaluating"
)

// Target is the user-scoped state an ingest updates.
type Target interface {
	UserID() string
	History() *history.Store
	Achievements() *achievements.Engine
	SetIngestState(IngestState)
}

// Analyzer turns an image into scores. The vision client implements it.
type Analyzer interface {
	Analyze(ctx context.Context, userID string, image io.Reader, filename string) (*scan.Analysis, error)
}

// IngestInput is a completed analysis to persist.
type IngestInput struct {
	Analysis scan.Analysis
	ImageRef string
}

// IngestResult describes a successful ingest.
type IngestResult struct {
	// Record - the persisted scan as returned by the store.
	Record scan.Record

	// Unlocked - achievements newly unlocked by this scan.
	Unlocked []achievement.Record

	// Failures - unlocks that held but could not be persisted.
	Failures []achievements.Failure

	// Streak - consecutive-day streak after this scan.
	Streak int

	// TodayAnalyzed - the history contains a scan dated today.
	TodayAnalyzed bool

	// RefreshErr - set when the post-insert reload failed. The cache then
	// holds the appended record on top of the previous list.
	RefreshErr error

	// EvaluateErr - set when the engine could not load the unlocked set.
	EvaluateErr error

	Duration time.Duration
}

// IngestPipelineConfig contains configuration for the pipeline.
type IngestPipelineConfig struct {
	// StoreTimeout bounds each record store call. Zero means no extra deadline.
	StoreTimeout time.Duration
}

// IngestPipeline runs the ingest saga.
type IngestPipeline struct {
	scans     scan.Repository
	guard     Guard
	clock     timeutil.Clock
	publisher shared.EventPublisher
	analyzer  Analyzer
	log       *logger.Logger
	recorder  shared.Recorder
	config    IngestPipelineConfig
}

// IngestOption configures an IngestPipeline.
type IngestOption func(*IngestPipeline)

// WithGuard replaces the default LocalGuard.
func WithGuard(g Guard) IngestOption {
	return func(p *IngestPipeline) { p.guard = g }
}

// WithClock sets the clock that stamps new scans.
func WithClock(c timeutil.Clock) IngestOption {
	return func(p *IngestPipeline) { p.clock = c }
}

// WithPublisher publishes scan and achievement events after each ingest.
func WithPublisher(pub shared.EventPublisher) IngestOption {
	return func(p *IngestPipeline) { p.publisher = pub }
}

// WithAnalyzer enables AnalyzeAndIngest.
func WithAnalyzer(a Analyzer) IngestOption {
	return func(p *IngestPipeline) { p.analyzer = a }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) IngestOption {
	return func(p *IngestPipeline) { p.log = logger.OrNop(l) }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r shared.Recorder) IngestOption {
	return func(p *IngestPipeline) { p.recorder = shared.RecorderOrNop(r) }
}

// NewIngestPipeline creates a pipeline persisting into scans.
func NewIngestPipeline(scans scan.Repository, config IngestPipelineConfig, opts ...IngestOption) *IngestPipeline {
	p := &IngestPipeline{
		scans:    scans,
		guard:    NewLocalGuard(),
		clock:    timeutil.SystemClock{Location: time.UTC},
		log:      logger.Nop(),
		recorder: shared.NopRecorder{},
		config:   config,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With(logger.Component("ingest"))
	return p
}

// Ingest persists in for target's user and brings the session up to date.
// Re-submitting the same input after ErrIngestFailed is the retry path; the
// vision service is never called again here.
func (p *IngestPipeline) Ingest(ctx context.Context, target Target, in IngestInput) (*IngestResult, error) {
	start := time.Now()
	release, err := p.acquire(ctx, target)
	if err != nil {
		return nil, err
	}
	defer release()

	return p.run(ctx, target, in, start)
}

// AnalyzeAndIngest sends the image to the analyzer and ingests the result
// while holding the user's slot.
func (p *IngestPipeline) AnalyzeAndIngest(ctx context.Context, target Target, image io.Reader, filename string) (*IngestResult, error) {
	if p.analyzer == nil {
		return nil, errors.New("saga: no analyzer configured")
	}

	start := time.Now()
	release, err := p.acquire(ctx, target)
	if err != nil {
		return nil, err
	}
	defer release()

	target.SetIngestState(StateAnalyzing)
	analysis, err := p.analyzer.Analyze(ctx, target.UserID(), image, filename)
	if err != nil {
		p.log.Warn("analysis failed", logger.UserID(target.UserID()), logger.Err(err))
		if errors.Is(err, shared.ErrMalformedInput) {
			p.recorder.IngestCompleted(shared.OutcomeMalformed, time.Since(start))
			return nil, err
		}
		p.recorder.IngestCompleted(shared.OutcomeVisionDown, time.Since(start))
		if errors.Is(err, shared.ErrVisionUnavailable) {
			return nil, err
		}
		return nil, shared.WrapError("saga", "AnalyzeAndIngest", shared.ErrVisionUnavailable, "analyze image", err)
	}

	return p.run(ctx, target, IngestInput{Analysis: *analysis, ImageRef: filename}, start)
}

func (p *IngestPipeline) acquire(ctx context.Context, target Target) (func(), error) {
	userID := target.UserID()
	if err := shared.RequireUserID("saga", "Ingest", userID); err != nil {
		return nil, err
	}

	release, err := p.guard.Acquire(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrIngestInProgress) {
			p.recorder.GuardRejected()
			p.recorder.IngestCompleted(shared.OutcomeRejected, 0)
			p.log.Info("ingest rejected, another one is running", logger.UserID(userID))
			return nil, err
		}
		return nil, shared.WrapError("saga", "Ingest", shared.ErrIngestFailed, "acquire ingest guard", err)
	}

	return func() {
		target.SetIngestState(StateIdle)
		release()
	}, nil
}

func (p *IngestPipeline) run(ctx context.Context, target Target, in IngestInput, start time.Time) (*IngestResult, error) {
	userID := target.UserID()
	log := p.log.With(logger.UserID(userID))

	// Step 1: submit
	target.SetIngestState(StateSubmitting)
	newScan := scan.NewScan{
		UserID:    userID,
		CreatedAt: p.clock.Now(),
		Scores:    in.Analysis.Scores,
		Feedback:  in.Analysis.Feedback,
		Tips:      in.Analysis.Tips,
		ImageRef:  in.ImageRef,
	}
	if err := newScan.Validate(); err != nil {
		p.recorder.IngestCompleted(shared.OutcomeMalformed, time.Since(start))
		log.Warn("rejecting malformed analysis", logger.Err(err))
		return nil, err
	}

	rec, err := p.insert(ctx, newScan)
	if err != nil {
		p.recorder.IngestCompleted(shared.OutcomeFailed, time.Since(start))
		log.Error("persist scan failed", logger.Err(err))
		return nil, shared.WrapError("saga", "Ingest", shared.ErrIngestFailed, "persist scan", err)
	}

	// Step 2: make the new scan visible immediately
	target.SetIngestState(StatePersisted)
	hist := target.History()
	hist.Append(rec)

	result := &IngestResult{Record: rec}

	// Step 3: refresh so the cache matches the store
	target.SetIngestState(StateRefreshing)
	if err := p.reload(ctx, hist); err != nil {
		result.RefreshErr = err
		log.Warn("history refresh failed after insert", logger.ScanID(rec.ID), logger.Err(err))
	}

	// Step 4: evaluate achievements against the refreshed history
	target.SetIngestState(StateEvaluating)
	now := p.clock.Now()
	records := hist.All()
	stamps := scan.Timestamps(records)
	result.Streak = activity.Streak(now, stamps)
	result.TodayAnalyzed = activity.HasScanOn(now, stamps)

	// Unlocks are permanent, so rules never see a history that was not read
	// from the store at least once. The next ingest evaluates again.
	if result.RefreshErr != nil && !hist.Loaded() {
		result.EvaluateErr = shared.WrapError("saga", "Ingest", shared.ErrStoreUnavailable,
			"history never loaded, achievements deferred", result.RefreshErr)
		log.Warn("achievement evaluation deferred", logger.Err(result.EvaluateErr))
	} else if evaluation, err := p.evaluate(ctx, target.Achievements(), achievement.State{
		ScanCount:     len(records),
		Streak:        result.Streak,
		TodayAnalyzed: result.TodayAnalyzed,
		Analyses:      records,
	}); err != nil {
		result.EvaluateErr = err
		log.Warn("achievement evaluation skipped", logger.Err(err))
	} else {
		result.Unlocked = evaluation.Unlocked
		result.Failures = evaluation.Failures
	}

	// Step 5: publish
	p.publish(userID, result, now)

	result.Duration = time.Since(start)
	p.recorder.IngestCompleted(shared.OutcomeSuccess, result.Duration)
	log.Info("scan ingested",
		logger.ScanID(rec.ID),
		logger.OverallScore(rec.Scores.Overall),
		logger.Int("streak", result.Streak),
		logger.Int("unlocked", len(result.Unlocked)),
		logger.Latency(result.Duration),
	)
	return result, nil
}

func (p *IngestPipeline) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.config.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.config.StoreTimeout)
}

func (p *IngestPipeline) insert(ctx context.Context, n scan.NewScan) (scan.Record, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.scans.Insert(ctx, n)
}

func (p *IngestPipeline) reload(ctx context.Context, hist *history.Store) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return hist.Reload(ctx)
}

func (p *IngestPipeline) evaluate(ctx context.Context, engine *achievements.Engine, state achievement.State) (*achievements.Result, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return engine.Evaluate(ctx, state)
}

func (p *IngestPipeline) publish(userID string, result *IngestResult, at time.Time) {
	if p.publisher == nil {
		return
	}

	events := make([]shared.Event, 0, 1+len(result.Unlocked))
	events = append(events, shared.NewScanIngestedEvent(
		userID, result.Record.ID, result.Record.Scores.Overall, result.Streak, at,
	))
	for _, rec := range result.Unlocked {
		events = append(events, shared.NewAchievementUnlockedEvent(
			userID, rec.ID, rec.Type.String(), rec.Metadata, rec.UnlockedAt,
		))
	}

	for _, event := range events {
		if err := p.publisher.Publish(event); err != nil {
			// Non-critical: the scan and unlocks are already stored.
			p.log.Warn("publish event failed",
				logger.String("event_type", string(event.EventType())),
				logger.Err(err),
			)
		}
	}
}
