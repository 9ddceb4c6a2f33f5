package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runhub/run-community-hub/internal/domain/shared"
)

func syncBusConfig() InMemoryEventBusConfig {
	cfg := DefaultInMemoryEventBusConfig()
	cfg.AsyncMode = false
	return cfg
}

func TestInMemoryBusDeliversToTypeSubscribers(t *testing.T) {
	bus := NewInMemoryEventBus(syncBusConfig())
	defer bus.Close()

	var got []string
	err := bus.Subscribe(shared.EventRankChanged, func(event shared.Event) error {
		got = append(got, event.AggregateID())
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(shared.NewRankChangedEvent("main|any%|pc", 4)))
	require.NoError(t, bus.Publish(shared.NewRunVerifiedEvent("run-1", "main|any%|pc", "acct-1", "mod-1", 110, 1)))

	assert.Equal(t, []string{"main|any%|pc"}, got, "only the subscribed type is delivered")
}

func TestInMemoryBusSubscribeAllSeesEveryEvent(t *testing.T) {
	bus := NewInMemoryEventBus(syncBusConfig())
	defer bus.Close()

	var count int
	require.NoError(t, bus.SubscribeAll(func(event shared.Event) error {
		count++
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewRankChangedEvent("main|any%|pc", 1)))
	require.NoError(t, bus.Publish(shared.NewRunDeletedEvent("run-1", "main|any%|pc", "acct-1")))

	assert.Equal(t, 2, count)
}

func TestInMemoryBusRejectsUseAfterClose(t *testing.T) {
	bus := NewInMemoryEventBus(syncBusConfig())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(shared.NewRankChangedEvent("k", 1)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventRankChanged, func(shared.Event) error { return nil }), ErrEventBusClosed)
	assert.NoError(t, bus.Close(), "second close is a no-op")
}

func TestInMemoryBusAsyncHandlersFinishBeforeClose(t *testing.T) {
	cfg := DefaultInMemoryEventBusConfig()
	cfg.AsyncMode = true
	bus := NewInMemoryEventBus(cfg)

	var count atomic.Int64
	require.NoError(t, bus.Subscribe(shared.EventRankChanged, func(shared.Event) error {
		count.Add(1)
		return nil
	}))

	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(shared.NewRankChangedEvent("k", i)))
	}

	// Close waits for in-flight handlers.
	require.NoError(t, bus.Close())
	assert.Equal(t, int64(20), count.Load())
}

func TestInMemoryBusMetricsTrackPublishesAndFailures(t *testing.T) {
	bus := NewInMemoryEventBus(syncBusConfig())
	defer bus.Close()

	require.NoError(t, bus.Subscribe(shared.EventRankChanged, func(shared.Event) error {
		return assert.AnError
	}))
	require.NoError(t, bus.Publish(shared.NewRankChangedEvent("k", 1)))

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalPublished)
	assert.Equal(t, int64(1), snap.TotalHandlerExecs)
	assert.Equal(t, 0.0, snap.HandlerSuccessRate)
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

type fakeRedisClient struct {
	mu        sync.Mutex
	published []string
	msgs      chan RedisMessage
}

func newFakeRedisClient() *fakeRedisClient {
	return &fakeRedisClient{msgs: make(chan RedisMessage, 16)}
}

func (f *fakeRedisClient) Publish(_ context.Context, _ string, message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, message.(string))
	return nil
}

func (f *fakeRedisClient) Subscribe(_ context.Context, _ ...string) (<-chan RedisMessage, error) {
	return f.msgs, nil
}

func (f *fakeRedisClient) Close() error { return nil }

func (f *fakeRedisClient) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func TestRedisBusPublishesEnvelopeAndDeliversLocally(t *testing.T) {
	client := newFakeRedisClient()
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:         client,
		InstanceID:     "instance-a",
		LocalBusConfig: syncBusConfig(),
	})
	require.NoError(t, err)
	defer bus.Close()

	var got []string
	require.NoError(t, bus.Subscribe(shared.EventRankChanged, func(event shared.Event) error {
		got = append(got, event.AggregateID())
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewRankChangedEvent("main|any%|pc", 2)))

	assert.Equal(t, []string{"main|any%|pc"}, got, "local handlers fire without a Redis round trip")
	require.Equal(t, 1, client.publishedCount())

	var envelope map[string]interface{}
	client.mu.Lock()
	payload := client.published[0]
	client.mu.Unlock()
	require.NoError(t, json.Unmarshal([]byte(payload), &envelope))
	assert.Equal(t, "instance-a", envelope["instance_id"])
	assert.Equal(t, string(shared.EventRankChanged), envelope["event_type"])
}

func TestRedisBusDeliversRemoteEventsAndSkipsOwn(t *testing.T) {
	client := newFakeRedisClient()
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:         client,
		InstanceID:     "instance-a",
		LocalBusConfig: syncBusConfig(),
	})
	require.NoError(t, err)
	defer bus.Close()

	var count atomic.Int64
	require.NoError(t, bus.Subscribe(shared.EventRankChanged, func(shared.Event) error {
		count.Add(1)
		return nil
	}))

	remote, err := json.Marshal(eventEnvelope{
		InstanceID:  "instance-b",
		EventType:   shared.EventRankChanged,
		AggregateID: "main|any%|pc",
		OccurredAt:  time.Now(),
	})
	require.NoError(t, err)
	client.msgs <- RedisMessage{Payload: string(remote)}

	assert.Eventually(t, func() bool {
		return count.Load() == 1
	}, time.Second, 5*time.Millisecond, "remote event reaches local handlers")

	// An echo of our own envelope must not double-process.
	own, err := json.Marshal(eventEnvelope{
		InstanceID:  "instance-a",
		EventType:   shared.EventRankChanged,
		AggregateID: "main|any%|pc",
		OccurredAt:  time.Now(),
	})
	require.NoError(t, err)
	client.msgs <- RedisMessage{Payload: string(own)}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), count.Load())
}

// ══════════════════════════════════════════════════════════════════════════════
// BUFFERED EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

func TestBufferedBusFlushesWhenFull(t *testing.T) {
	inner := NewInMemoryEventBus(syncBusConfig())
	defer inner.Close()

	bus := NewBufferedEventBus(BufferedEventBusConfig{
		Inner:         inner,
		BufferSize:    2,
		FlushInterval: time.Minute,
	})
	defer bus.Close()

	var count int
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		count++
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewRankChangedEvent("k", 1)))
	assert.Equal(t, 0, count, "buffered until full")

	require.NoError(t, bus.Publish(shared.NewRankChangedEvent("k", 2)))
	assert.Equal(t, 2, count, "hitting the buffer size flushes")

	require.NoError(t, bus.Publish(shared.NewRankChangedEvent("k", 3)))
	require.NoError(t, bus.Flush())
	assert.Equal(t, 3, count)
}

func TestBufferedBusCloseFlushesRemaining(t *testing.T) {
	inner := NewInMemoryEventBus(syncBusConfig())
	defer inner.Close()

	bus := NewBufferedEventBus(BufferedEventBusConfig{
		Inner:         inner,
		BufferSize:    100,
		FlushInterval: time.Minute,
	})

	var count int
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		count++
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewRankChangedEvent("k", 1)))
	require.NoError(t, bus.Close())

	assert.Equal(t, 1, count)
	assert.ErrorIs(t, bus.Publish(shared.NewRankChangedEvent("k", 2)), ErrEventBusClosed)
}
