package messaging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowscan/glowscan-core/internal/domain/shared"
)

var at = time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)

func TestPublish_RoutesByTypeAndToAll(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())

	var ingested, all []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventScanIngested, func(e shared.Event) error {
		ingested = append(ingested, e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewScanIngestedEvent("u1", 1, 80, 1, at)))
	require.NoError(t, bus.Publish(shared.NewScanDeletedEvent("u1", 1, at)))

	assert.Equal(t, []shared.EventType{shared.EventScanIngested}, ingested)
	assert.Equal(t, []shared.EventType{shared.EventScanIngested, shared.EventScanDeleted}, all)
}

func TestPublish_HandlerErrorsDoNotReachPublisher(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	calls := 0
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("boom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { calls++; return nil }))

	assert.NoError(t, bus.Publish(shared.NewScanIngestedEvent("u1", 1, 80, 1, at)))
	assert.Equal(t, 1, calls)
}

func TestPublish_Async(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var handled atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		defer wg.Done()
		handled.Add(1)
		return nil
	}))

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(shared.NewScanIngestedEvent("u1", int64(i+1), 80, 1, at)))
	}
	wg.Wait()
	assert.Equal(t, int32(3), handled.Load())
	require.NoError(t, bus.Close())
}

func TestClose(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(shared.NewScanIngestedEvent("u1", 1, 80, 1, at)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestRejectsNil(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	assert.Error(t, bus.Publish(nil))
	assert.Error(t, bus.Subscribe(shared.EventScanIngested, nil))
	assert.Error(t, bus.SubscribeAll(nil))
}

func TestJournal_WritesOneEnvelopePerLine(t *testing.T) {
	var buf bytes.Buffer
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	require.NoError(t, bus.SubscribeAll(NewJournal(&buf).Handle))

	require.NoError(t, bus.Publish(shared.NewScanIngestedEvent("u1", 7, 91, 2, at)))
	require.NoError(t, bus.Publish(shared.NewAchievementUnlockedEvent("u1", "a1", "perfect_score",
		map[string]interface{}{"score": 91.0}, at)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var env shared.EventEnvelope
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &env))
	assert.Equal(t, shared.EventAchievementUnlocked, env.Type)
	assert.Equal(t, "u1", env.AggregateID)
	assert.NotEmpty(t, env.ID)
	assert.Contains(t, string(env.Payload), "perfect_score")
}
