package redis

import (
	"context"
	"errors"
	"time"

	"github.com/glowscan/glowscan-core/internal/application/query"
	"github.com/glowscan/glowscan-core/internal/domain/shared"
	"github.com/glowscan/glowscan-core/pkg/logger"
	"github.com/glowscan/glowscan-core/pkg/timeutil"
)

// DefaultDashboardTTL is how long a dashboard snapshot stays valid.
const DefaultDashboardTTL = 5 * time.Minute

// DashboardCache keeps rendered dashboards per user and plan. Any event for a
// user drops that user's snapshots. A snapshot never outlives the day it was
// rendered on, since the week strip and the streak are day-relative.
type DashboardCache struct {
	cache *Cache
	ttl   time.Duration
	clock timeutil.Clock
	log   *logger.Logger
}

// NewDashboardCache creates a dashboard cache. Day boundaries follow clock's
// location; nil uses UTC.
func NewDashboardCache(cache *Cache, ttl time.Duration, clock timeutil.Clock, log *logger.Logger) *DashboardCache {
	if ttl <= 0 {
		ttl = DefaultDashboardTTL
	}
	if clock == nil {
		clock = timeutil.NewSystemClock("UTC")
	}
	return &DashboardCache{
		cache: cache,
		ttl:   ttl,
		clock: clock,
		log:   logger.OrNop(log).With(logger.Component("dashboard_cache")),
	}
}

// Get returns the cached dashboard of userID on the given plan, or ok=false
// on a miss.
func (d *DashboardCache) Get(ctx context.Context, userID string, premium bool) (*query.DashboardDTO, bool, error) {
	var dto query.DashboardDTO
	err := d.cache.Get(ctx, DashboardKey(userID, premium), &dto)
	if errors.Is(err, ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &dto, true, nil
}

// Set stores the dashboard under its user and plan.
func (d *DashboardCache) Set(ctx context.Context, dto *query.DashboardDTO) error {
	if err := shared.RequireUserID("dashboard_cache", "Set", dto.UserID); err != nil {
		return err
	}
	return d.cache.Set(ctx, DashboardKey(dto.UserID, dto.Allowance.Premium), dto, d.expiry())
}

// expiry is the configured TTL capped at the next local midnight.
func (d *DashboardCache) expiry() time.Duration {
	now := d.clock.Now()
	untilMidnight := timeutil.StartOfDay(now).AddDate(0, 0, 1).Sub(now)
	if untilMidnight < d.ttl {
		return untilMidnight
	}
	return d.ttl
}

// Invalidate drops every snapshot of userID.
func (d *DashboardCache) Invalidate(ctx context.Context, userID string) error {
	return d.cache.Delete(ctx, DashboardKey(userID, false), DashboardKey(userID, true))
}

// HandleEvent implements shared.EventHandler.
func (d *DashboardCache) HandleEvent(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := d.Invalidate(ctx, event.AggregateID()); err != nil {
		d.log.Warn("invalidate dashboard failed",
			logger.UserID(event.AggregateID()),
			logger.Err(err),
		)
		return err
	}
	return nil
}
