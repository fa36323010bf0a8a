// Package main is the operator entry point of GlowScan.
//
// Subcommands:
//
//	migrate [-status|-down N]       apply, list or revert PostgreSQL migrations
//	ingest -user ID -image PATH     analyze an image and record the scan
//	dashboard -user ID              print a user's dashboard
//	delete -user ID (-scan N|-all)  remove one scan or the whole history
//	serve                           expose health probes, /metrics and dashboards
//
// Configuration is read from GLOWSCAN_* environment variables and the YAML
// file named by GLOWSCAN_CONFIG.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glowscan/glowscan-core/config"
	"github.com/glowscan/glowscan-core/internal/application/query"
	"github.com/glowscan/glowscan-core/internal/application/saga"
	"github.com/glowscan/glowscan-core/internal/domain/achievement"
	"github.com/glowscan/glowscan-core/internal/domain/scan"
	"github.com/glowscan/glowscan-core/internal/domain/shared"
	"github.com/glowscan/glowscan-core/internal/infrastructure/persistence/postgres"
	ops "github.com/glowscan/glowscan-core/internal/interface/http"
	"github.com/glowscan/glowscan-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: glowscan <migrate|ingest|dashboard|delete|serve> [flags]")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output:    os.Stderr,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    cfg.Observability.LogFormat,
		AddCaller: cfg.IsDevelopment(),
	}).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "migrate":
		return runMigrate(ctx, cfg, log, rest, out)
	case "ingest":
		return runIngest(ctx, cfg, log, rest, out)
	case "dashboard":
		return runDashboard(ctx, cfg, log, rest, out)
	case "delete":
		return runDelete(ctx, cfg, log, rest)
	case "serve", "serve-metrics":
		return runServe(ctx, cfg, log)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func runMigrate(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	status := fs.Bool("status", false, "list migrations instead of applying them")
	down := fs.Int("down", 0, "revert the newest N applied migrations")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *status && *down > 0 {
		return errors.New("migrate: -status and -down are exclusive")
	}
	if cfg.Database.URL == "" {
		return errors.New("migrate: database.url is not set")
	}

	a, err := newApp(ctx, cfg, log, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	migrator := postgres.NewMigrator(a.db)
	if *status {
		migs, err := migrator.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to read migration status: %w", err)
		}
		for _, m := range migs {
			state := "pending"
			if m.IsApplied {
				state = "applied " + m.AppliedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(out, "%03d %-32s %s\n", m.Version, m.Name, state)
		}
		return nil
	}
	if *down > 0 {
		reverted, err := migrator.Rollback(ctx, *down)
		if err != nil {
			return fmt.Errorf("failed to revert migrations: %w", err)
		}
		log.Info("migrations reverted", logger.Int("reverted", reverted))
		return nil
	}
	applied, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date", logger.Int("applied", applied))
	return nil
}

func runIngest(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	userID := fs.String("user", "", "user id")
	imagePath := fs.String("image", "", "path of the image to analyze")
	premium := fs.Bool("premium", false, "user is on a premium plan")
	journal := fs.Bool("journal", false, "write published events to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *imagePath == "" {
		return errors.New("ingest: -image is required")
	}
	if cfg.Vision.BaseURL == "" {
		return errors.New("ingest: vision.base_url is not set")
	}

	opts := appOptions{}
	if *journal {
		opts.journal = stderrJournal
	}
	a, err := newApp(ctx, cfg, log, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.newSession(*userID, *premium)
	if err != nil {
		return err
	}
	if err := sess.Load(ctx); err != nil {
		return err
	}

	image, err := os.Open(*imagePath)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer image.Close()

	result, err := a.pipeline.AnalyzeAndIngest(ctx, sess, image, *imagePath)
	if err != nil {
		if shared.IsRetryable(err) {
			log.Warn("ingest failed, safe to retry", logger.UserID(*userID), logger.Err(err))
		}
		return err
	}
	return writeJSON(out, newIngestOutput(result))
}

// ingestOutput is the printed form of a saga.IngestResult.
type ingestOutput struct {
	Record        scan.Record          `json:"record"`
	Unlocked      []achievement.Record `json:"unlocked"`
	Failed        []string             `json:"failed_unlocks,omitempty"`
	Streak        int                  `json:"streak"`
	TodayAnalyzed bool                 `json:"today_analyzed"`
	RefreshError  string               `json:"refresh_error,omitempty"`
	EvaluateError string               `json:"evaluate_error,omitempty"`
	Duration      string               `json:"duration"`
}

func newIngestOutput(r *saga.IngestResult) ingestOutput {
	o := ingestOutput{
		Record:        r.Record,
		Unlocked:      r.Unlocked,
		Streak:        r.Streak,
		TodayAnalyzed: r.TodayAnalyzed,
		Duration:      r.Duration.String(),
	}
	if o.Unlocked == nil {
		o.Unlocked = []achievement.Record{}
	}
	for _, f := range r.Failures {
		o.Failed = append(o.Failed, f.Type.String())
	}
	if r.RefreshErr != nil {
		o.RefreshError = r.RefreshErr.Error()
	}
	if r.EvaluateErr != nil {
		o.EvaluateError = r.EvaluateErr.Error()
	}
	return o
}

func runDashboard(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("dashboard", flag.ContinueOnError)
	userID := fs.String("user", "", "user id")
	premium := fs.Bool("premium", false, "user is on a premium plan")
	refresh := fs.Bool("refresh", false, "bypass the dashboard cache")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, log, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	dto, err := a.dashboard(ctx, *userID, *premium, *refresh)
	if err != nil {
		return err
	}
	return writeJSON(out, dto)
}

func runDelete(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	userID := fs.String("user", "", "user id")
	scanID := fs.Int64("scan", 0, "id of the scan to delete")
	all := fs.Bool("all", false, "delete every scan of the user")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*scanID > 0) == *all {
		return errors.New("delete: exactly one of -scan or -all is required")
	}

	a, err := newApp(ctx, cfg, log, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.newSession(*userID, false)
	if err != nil {
		return err
	}
	if *all {
		if err := sess.DeleteAll(ctx); err != nil {
			return err
		}
		log.Info("history cleared", logger.UserID(*userID))
		return nil
	}
	if err := sess.DeleteScan(ctx, *scanID); err != nil {
		return err
	}
	log.Info("scan deleted", logger.UserID(*userID), logger.ScanID(*scanID))
	return nil
}

func runServe(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	a, err := newApp(ctx, cfg, log, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	server := ops.NewServer(ops.DefaultConfig(cfg.Observability.MetricsAddr), ops.Dependencies{
		Logger:  log,
		Health:  a.health,
		Metrics: a.metrics.Handler(),
		Dashboard: func(ctx context.Context, userID string) (*query.DashboardDTO, error) {
			return a.dashboard(ctx, userID, false, false)
		},
	})

	errCh := server.StartAsync()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("received shutdown signal", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("shutdown completed successfully")
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
