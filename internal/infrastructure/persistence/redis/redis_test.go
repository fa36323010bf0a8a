package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowscan/glowscan-core/internal/application/query"
	"github.com/glowscan/glowscan-core/internal/domain/shared"
	"github.com/glowscan/glowscan-core/pkg/timeutil"
)

// memoryRedis implements the commands used here on a map. Every other
// redis.Cmdable method panics through the nil embedded interface.
type memoryRedis struct {
	redis.Cmdable

	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	failAll error
	evals   int
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{values: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *memoryRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", m.failAll)
}

func (m *memoryRedis) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return redis.NewStringResult("", m.failAll)
	}
	v, ok := m.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memoryRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return redis.NewStatusResult("", m.failAll)
	}
	m.values[key] = string(value.([]byte))
	m.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return redis.NewIntResult(0, m.failAll)
	}
	var n int64
	for _, k := range keys {
		if _, ok := m.values[k]; ok {
			delete(m.values, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return redis.NewBoolResult(false, m.failAll)
	}
	if _, ok := m.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

// Eval runs the compare-and-delete release script.
func (m *memoryRedis) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evals++
	if m.values[keys[0]] == args[0].(string) {
		delete(m.values, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (m *memoryRedis) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.values[key]
	return ok
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE
// ══════════════════════════════════════════════════════════════════════════════

func TestCache_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	mem := newMemoryRedis()
	cache := NewCacheWithClient(mem)

	type payload struct {
		Name string `json:"name"`
	}
	require.NoError(t, cache.Set(ctx, "k", payload{Name: "glow"}, time.Minute))
	assert.Equal(t, time.Minute, mem.ttls["k"])

	var got payload
	require.NoError(t, cache.Get(ctx, "k", &got))
	assert.Equal(t, "glow", got.Name)

	require.NoError(t, cache.Delete(ctx, "k"))
	assert.ErrorIs(t, cache.Get(ctx, "k", &got), ErrCacheMiss)
	assert.NoError(t, cache.Delete(ctx))
	assert.NoError(t, cache.Ping(ctx))
}

func TestCache_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	cache := NewCacheWithClient(newMemoryRedis())

	assert.ErrorIs(t, cache.Set(ctx, "", 1, time.Minute), ErrCacheKeyEmpty)
	assert.ErrorIs(t, cache.Set(ctx, "k", 1, -time.Second), ErrCacheInvalidTTL)
	assert.ErrorIs(t, cache.Set(ctx, "k", make(chan int), time.Minute), ErrCacheSerialization)

	var v int
	assert.ErrorIs(t, cache.Get(ctx, "", &v), ErrCacheKeyEmpty)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "glowscan:lock:ingest:u1", LockKey("ingest:u1"))
	assert.Equal(t, "glowscan:dashboard:u1:free", DashboardKey("u1", false))
	assert.Equal(t, "glowscan:dashboard:u1:premium", DashboardKey("u1", true))
	assert.Equal(t, "localhost:6379", DefaultConfig().Addr())
}

// ══════════════════════════════════════════════════════════════════════════════
// INGEST LOCK
// ══════════════════════════════════════════════════════════════════════════════

func TestIngestLock_SingleHolder(t *testing.T) {
	ctx := context.Background()
	mem := newMemoryRedis()
	lock := NewIngestLock(mem, 0, nil)

	release, err := lock.Acquire(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, mem.has(LockKey("ingest:u1")))
	assert.Equal(t, DefaultIngestLockTTL, mem.ttls[LockKey("ingest:u1")])

	_, err = lock.Acquire(ctx, "u1")
	assert.ErrorIs(t, err, shared.ErrIngestInProgress)

	other, err := lock.Acquire(ctx, "u2")
	require.NoError(t, err)
	other()

	release()
	assert.False(t, mem.has(LockKey("ingest:u1")))

	again, err := lock.Acquire(ctx, "u1")
	require.NoError(t, err)
	again()
}

func TestIngestLock_ReleaseKeepsNewerHolder(t *testing.T) {
	ctx := context.Background()
	mem := newMemoryRedis()
	lock := NewIngestLock(mem, time.Second, nil)

	stale, err := lock.Acquire(ctx, "u1")
	require.NoError(t, err)

	// The first holder's key expired and another instance took over.
	mem.mu.Lock()
	mem.values[LockKey("ingest:u1")] = "someone-else"
	mem.mu.Unlock()

	stale()
	assert.True(t, mem.has(LockKey("ingest:u1")))
	assert.Equal(t, 1, mem.evals)
}

func TestIngestLock_Errors(t *testing.T) {
	mem := newMemoryRedis()
	lock := NewIngestLock(mem, time.Second, nil)

	_, err := lock.Acquire(context.Background(), "")
	assert.ErrorIs(t, err, shared.ErrMissingUserID)

	mem.failAll = errors.New("connection refused")
	_, err = lock.Acquire(context.Background(), "u1")
	assert.ErrorIs(t, err, shared.ErrStoreUnavailable)
}

// ══════════════════════════════════════════════════════════════════════════════
// DASHBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

func TestDashboardCache_RoundTripAndInvalidate(t *testing.T) {
	ctx := context.Background()
	mem := newMemoryRedis()
	morning := timeutil.FixedClock{T: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)}
	dashboards := NewDashboardCache(NewCacheWithClient(mem), 0, morning, nil)

	_, ok, err := dashboards.Get(ctx, "u1", false)
	require.NoError(t, err)
	assert.False(t, ok)

	dto := &query.DashboardDTO{UserID: "u1", TotalScans: 3, Streak: 2}
	require.NoError(t, dashboards.Set(ctx, dto))
	assert.Equal(t, DefaultDashboardTTL, mem.ttls[DashboardKey("u1", false)])

	got, ok, err := dashboards.Get(ctx, "u1", false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, got.TotalScans)
	assert.Equal(t, 2, got.Streak)

	event := shared.NewScanIngestedEvent("u1", 7, 80, 2, time.Now())
	require.NoError(t, dashboards.HandleEvent(event))

	_, ok, err = dashboards.Get(ctx, "u1", false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDashboardCache_SnapshotsArePerPlan(t *testing.T) {
	ctx := context.Background()
	mem := newMemoryRedis()
	dashboards := NewDashboardCache(NewCacheWithClient(mem), time.Minute, nil, nil)

	free := &query.DashboardDTO{UserID: "u1", Allowance: query.AllowanceDTO{ScansUsed: 5, Limit: 5, LimitReached: true}}
	require.NoError(t, dashboards.Set(ctx, free))

	_, ok, err := dashboards.Get(ctx, "u1", true)
	require.NoError(t, err)
	assert.False(t, ok, "a free-plan snapshot must not serve a premium request")

	premium := &query.DashboardDTO{UserID: "u1", Allowance: query.AllowanceDTO{Premium: true, ScansUsed: 5}}
	require.NoError(t, dashboards.Set(ctx, premium))

	got, ok, err := dashboards.Get(ctx, "u1", true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Allowance.Premium)
	assert.False(t, got.Allowance.LimitReached)

	got, ok, err = dashboards.Get(ctx, "u1", false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Allowance.LimitReached)

	require.NoError(t, dashboards.Invalidate(ctx, "u1"))
	assert.Empty(t, mem.values)
}

func TestDashboardCache_ExpiresAtLocalMidnight(t *testing.T) {
	ctx := context.Background()
	mem := newMemoryRedis()
	almaty := time.FixedZone("UTC+5", 5*60*60)
	lateEvening := timeutil.FixedClock{T: time.Date(2026, 3, 11, 23, 58, 0, 0, almaty)}
	dashboards := NewDashboardCache(NewCacheWithClient(mem), 10*time.Minute, lateEvening, nil)

	require.NoError(t, dashboards.Set(ctx, &query.DashboardDTO{UserID: "u1"}))
	assert.Equal(t, 2*time.Minute, mem.ttls[DashboardKey("u1", false)])
}

func TestDashboardCache_Errors(t *testing.T) {
	ctx := context.Background()
	mem := newMemoryRedis()
	dashboards := NewDashboardCache(NewCacheWithClient(mem), time.Minute, nil, nil)

	assert.ErrorIs(t, dashboards.Set(ctx, &query.DashboardDTO{}), shared.ErrMissingUserID)

	mem.failAll = errors.New("timeout")
	_, _, err := dashboards.Get(ctx, "u1", false)
	assert.Error(t, err)
	assert.Error(t, dashboards.HandleEvent(shared.NewScanDeletedEvent("u1", 0, time.Now())))
}
