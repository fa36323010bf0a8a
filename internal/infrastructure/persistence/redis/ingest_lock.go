package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/glowscan/glowscan-core/internal/domain/shared"
	"github.com/glowscan/glowscan-core/pkg/logger"
)

// DefaultIngestLockTTL bounds how long a crashed instance can block a user.
const DefaultIngestLockTTL = 2 * time.Minute

// releaseScript deletes the lock only if it still carries our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// LockClient is the part of go-redis the ingest lock uses. redis.Cmdable
// satisfies it.
type LockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// IngestLock is a Guard shared by every instance: one SET NX PX key per user,
// released with a compare-and-delete so an expired holder cannot free a
// newer lock.
type IngestLock struct {
	client LockClient
	ttl    time.Duration
	log    *logger.Logger
}

// NewIngestLock creates a lock. A non-positive ttl falls back to
// DefaultIngestLockTTL.
func NewIngestLock(client LockClient, ttl time.Duration, log *logger.Logger) *IngestLock {
	if ttl <= 0 {
		ttl = DefaultIngestLockTTL
	}
	return &IngestLock{
		client: client,
		ttl:    ttl,
		log:    logger.OrNop(log).With(logger.Component("ingest_lock")),
	}
}

// Acquire implements saga.Guard.
func (l *IngestLock) Acquire(ctx context.Context, userID string) (func(), error) {
	if err := shared.RequireUserID("ingest_lock", "Acquire", userID); err != nil {
		return nil, err
	}

	key := LockKey("ingest:" + userID)
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, shared.WrapError("ingest_lock", "Acquire", shared.ErrStoreUnavailable, "set lock", err)
	}
	if !acquired {
		return nil, shared.NewDomainError("ingest_lock", "Acquire", shared.ErrIngestInProgress,
			"an ingest is already running for this user")
	}

	return func() {
		// The caller's ctx may already be done; release on a fresh deadline.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.client.Eval(releaseCtx, releaseScript, []string{key}, token).Err(); err != nil {
			l.log.Warn("release ingest lock failed", logger.UserID(userID), logger.Err(err))
		}
	}, nil
}
