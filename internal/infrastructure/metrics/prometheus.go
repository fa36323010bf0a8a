// Package metrics exposes the ingest and achievement counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/glowscan/glowscan-core/internal/domain/shared"
)

// Manager owns the GlowScan metrics and implements shared.Recorder.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	ingests                  *prometheus.CounterVec
	ingestDuration           prometheus.Histogram
	guardRejections          prometheus.Counter
	achievementUnlocks       *prometheus.CounterVec
	achievementPersistErrors *prometheus.CounterVec
	historyReloadErrors      prometheus.Counter
}

var _ shared.Recorder = (*Manager)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace sets the metric namespace.
func WithNamespace(ns string) Option {
	return func(m *Manager) { m.namespace = ns }
}

// WithSubsystem sets the metric subsystem.
func WithSubsystem(s string) Option {
	return func(m *Manager) { m.subsystem = s }
}

// NewManager creates and registers all metrics.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "glowscan",
		subsystem:        "core",
		histogramBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.ingests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ingests_total",
		Help:      "Ingest attempts by outcome",
	}, []string{"outcome"})

	m.ingestDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ingest_duration_seconds",
		Help:      "Duration of successful ingests",
		Buckets:   m.histogramBuckets,
	})

	m.guardRejections = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ingest_guard_rejections_total",
		Help:      "Ingests rejected because another one was running for the user",
	})

	m.achievementUnlocks = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "achievement_unlocks_total",
		Help:      "Persisted achievement unlocks by type",
	}, []string{"type"})

	m.achievementPersistErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "achievement_persist_failures_total",
		Help:      "Achievement unlocks that could not be persisted, by type",
	}, []string{"type"})

	m.historyReloadErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "history_reload_failures_total",
		Help:      "Failed scan history reloads",
	})
}

// IngestCompleted implements shared.Recorder.
func (m *Manager) IngestCompleted(outcome string, took time.Duration) {
	m.ingests.WithLabelValues(outcome).Inc()
	if outcome == shared.OutcomeSuccess {
		m.ingestDuration.Observe(took.Seconds())
	}
}

// GuardRejected implements shared.Recorder.
func (m *Manager) GuardRejected() {
	m.guardRejections.Inc()
}

// AchievementUnlocked implements shared.Recorder.
func (m *Manager) AchievementUnlocked(achievementType string) {
	m.achievementUnlocks.WithLabelValues(achievementType).Inc()
}

// AchievementPersistFailed implements shared.Recorder.
func (m *Manager) AchievementPersistFailed(achievementType string) {
	m.achievementPersistErrors.WithLabelValues(achievementType).Inc()
}

// HistoryReloadFailed implements shared.Recorder.
func (m *Manager) HistoryReloadFailed() {
	m.historyReloadErrors.Inc()
}

// Registry returns the registry the metrics live on.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
