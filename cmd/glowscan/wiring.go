package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/glowscan/glowscan-core/config"
	"github.com/glowscan/glowscan-core/internal/application/query"
	"github.com/glowscan/glowscan-core/internal/application/saga"
	"github.com/glowscan/glowscan-core/internal/application/session"
	"github.com/glowscan/glowscan-core/internal/domain/achievement"
	"github.com/glowscan/glowscan-core/internal/domain/scan"
	"github.com/glowscan/glowscan-core/internal/domain/shared"
	"github.com/glowscan/glowscan-core/internal/infrastructure/external/vision"
	"github.com/glowscan/glowscan-core/internal/infrastructure/messaging"
	"github.com/glowscan/glowscan-core/internal/infrastructure/metrics"
	"github.com/glowscan/glowscan-core/internal/infrastructure/persistence/memory"
	"github.com/glowscan/glowscan-core/internal/infrastructure/persistence/postgres"
	"github.com/glowscan/glowscan-core/internal/infrastructure/persistence/redis"
	ops "github.com/glowscan/glowscan-core/internal/interface/http"
	"github.com/glowscan/glowscan-core/pkg/logger"
	"github.com/glowscan/glowscan-core/pkg/retry"
	"github.com/glowscan/glowscan-core/pkg/timeutil"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	clock   timeutil.Clock
	metrics *metrics.Manager
	bus     *messaging.InMemoryEventBus
	health  *ops.HealthChecker

	db        *postgres.Connection
	cache     *redis.Cache
	dashCache *redis.DashboardCache

	scans        scan.Repository
	achievements achievement.Repository

	pipeline   *saga.IngestPipeline
	dashboards *query.GetDashboardHandler

	closers []func()
}

// appOptions are per-invocation switches set by subcommand flags.
type appOptions struct {
	// journal, when set, receives every published event as JSON.
	journal io.Writer
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger, opts appOptions) (*app, error) {
	a := &app{
		cfg:     cfg,
		log:     log,
		clock:   timeutil.NewSystemClock(cfg.Tracking.Timezone),
		metrics: metrics.NewManager(),
		health:  ops.NewHealthChecker(cfg.App.Version),
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 1. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	a.bus = messaging.NewInMemoryEventBus(busConfig)
	a.onClose(func() { _ = a.bus.Close() })

	if opts.journal != nil {
		if err := a.bus.SubscribeAll(messaging.NewJournal(opts.journal).Handle); err != nil {
			a.Close()
			return nil, err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. RECORD STORE
	// ─────────────────────────────────────────────────────────────────────────
	if err := a.connectStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	if !cfg.Redis.Disabled {
		if err := a.connectRedis(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. PIPELINE & QUERIES
	// ─────────────────────────────────────────────────────────────────────────
	pipelineOpts := []saga.IngestOption{
		saga.WithClock(a.clock),
		saga.WithPublisher(a.bus),
		saga.WithLogger(log),
		saga.WithRecorder(a.metrics),
	}
	if cfg.Tracking.UseRedisLock && a.cache != nil {
		pipelineOpts = append(pipelineOpts, saga.WithGuard(
			redis.NewIngestLock(a.cache.Client(), cfg.Tracking.IngestLockTTL, log),
		))
	}
	if cfg.Vision.BaseURL != "" {
		visionConfig := vision.DefaultClientConfig(cfg.Vision.BaseURL)
		visionConfig.APIKey = cfg.Vision.APIKey
		visionConfig.Timeout = cfg.Vision.Timeout
		visionConfig.Logger = log
		pipelineOpts = append(pipelineOpts, saga.WithAnalyzer(vision.NewClient(visionConfig)))
	}

	a.pipeline = saga.NewIngestPipeline(a.scans, saga.IngestPipelineConfig{
		StoreTimeout: cfg.Tracking.StoreTimeout,
	}, pipelineOpts...)
	a.dashboards = query.NewGetDashboardHandler(cfg.Tracking.FreeScanLimit, log)

	return a, nil
}

func (a *app) connectStore(ctx context.Context) error {
	if a.cfg.Database.URL == "" {
		a.log.Warn("no database configured, using the in-memory store")
		a.scans = memory.NewScanRepository()
		a.achievements = memory.NewAchievementRepository()
		return nil
	}

	pgConfig := postgres.DefaultConfig()
	pgConfig.URL = a.cfg.Database.URL
	pgConfig.MaxConns = a.cfg.Database.MaxConns
	pgConfig.MinConns = a.cfg.Database.MinConns
	pgConfig.MaxConnLifetime = a.cfg.Database.ConnMaxLifetime
	pgConfig.MaxConnIdleTime = a.cfg.Database.ConnMaxIdleTime

	conn, err := retry.DoWithData(ctx, func(ctx context.Context) (*postgres.Connection, error) {
		return postgres.NewConnection(ctx, pgConfig)
	}, retry.Startup(a.cfg.Database.ConnectAttempts, a.logRetry("postgres"))...)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	a.db = conn
	a.onClose(conn.Close)
	a.health.AddCheck("postgres", ops.PingCheck(conn))
	a.scans = postgres.NewScanRepository(conn)
	a.achievements = postgres.NewAchievementRepository(conn)
	a.log.Info("database connection established")
	return nil
}

func (a *app) connectRedis(ctx context.Context) error {
	redisConfig := redis.DefaultConfig()
	redisConfig.Host = a.cfg.Redis.Host
	redisConfig.Port = a.cfg.Redis.Port
	redisConfig.Password = a.cfg.Redis.Password
	redisConfig.DB = a.cfg.Redis.DB
	redisConfig.PoolSize = a.cfg.Redis.PoolSize
	redisConfig.MinIdleConns = a.cfg.Redis.MinIdleConns
	redisConfig.DialTimeout = a.cfg.Redis.DialTimeout
	redisConfig.ReadTimeout = a.cfg.Redis.ReadTimeout
	redisConfig.WriteTimeout = a.cfg.Redis.WriteTimeout

	cache, err := retry.DoWithData(ctx, func(ctx context.Context) (*redis.Cache, error) {
		return redis.NewCache(ctx, redisConfig)
	}, retry.Startup(3, a.logRetry("redis"))...)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}

	a.cache = cache
	a.onClose(func() { _ = cache.Close() })
	a.health.AddCheck("redis", ops.PingCheck(cache))

	a.dashCache = redis.NewDashboardCache(cache, a.cfg.Redis.DashboardTTL, a.clock, a.log)
	if err := a.bus.SubscribeAll(a.dashCache.HandleEvent); err != nil {
		return err
	}
	a.log.Info("redis connection established", logger.String("addr", redisConfig.Addr()))
	return nil
}

func (a *app) logRetry(target string) func(int, error, time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		a.log.Warn("connection attempt failed",
			logger.String("target", target),
			logger.Int("attempt", attempt),
			logger.Duration("retry_in", delay),
			logger.Err(err),
		)
	}
}

// newSession creates an unloaded session for userID.
func (a *app) newSession(userID string, premium bool) (*session.Session, error) {
	return session.New(userID, session.Deps{
		Scans:        a.scans,
		Achievements: a.achievements,
		Clock:        a.clock,
		Publisher:    a.bus,
		Logger:       a.log,
		Recorder:     a.metrics,
		Premium:      premium,
		StoreTimeout: a.cfg.Tracking.StoreTimeout,
	})
}

// dashboard serves a cached snapshot when one exists, otherwise loads the
// user's session and builds it.
func (a *app) dashboard(ctx context.Context, userID string, premium, refresh bool) (*query.DashboardDTO, error) {
	if err := shared.RequireUserID("glowscan", "dashboard", userID); err != nil {
		return nil, err
	}

	if a.dashCache != nil && !refresh {
		dto, ok, err := a.dashCache.Get(ctx, userID, premium)
		switch {
		case err != nil:
			a.log.Warn("dashboard cache read failed", logger.UserID(userID), logger.Err(err))
		case ok:
			return dto, nil
		}
	}

	sess, err := a.newSession(userID, premium)
	if err != nil {
		return nil, err
	}
	if err := sess.Load(ctx); err != nil {
		return nil, err
	}

	dto, err := a.dashboards.Handle(ctx, sess, query.GetDashboardQuery{RecentLimit: query.DefaultRecentLimit})
	if err != nil {
		return nil, err
	}

	if a.dashCache != nil {
		if err := a.dashCache.Set(ctx, dto); err != nil {
			a.log.Warn("dashboard cache write failed", logger.UserID(userID), logger.Err(err))
		}
	}
	return dto, nil
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.log.Sync()
}

// stderrJournal is the journal writer used by the -journal flag.
var stderrJournal io.Writer = os.Stderr
