package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/runhub/run-community-hub/internal/domain/shared"
)

// RedisEventBus spans the bus across processes over Redis Pub/Sub. The
// worker's rank rewrites must invalidate the board caches held by every API
// instance, so each publish goes both to the local handlers and onto a shared
// channel that the other instances replay into their own local buses.
type RedisEventBus struct {
	client      RedisClient
	localBus    *InMemoryEventBus
	channelName string
	instanceID  string
	logger      *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	closed      bool
}

// RedisClient is the slice of Redis the bus needs. The production adapter
// wraps go-redis; tests substitute a channel-backed fake.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error)
	Close() error
}

// RedisMessage is one message received from a subscribed channel.
type RedisMessage struct {
	Channel string
	Payload string
	Err     error
}

// RedisEventBusConfig configures a RedisEventBus.
type RedisEventBusConfig struct {
	Client RedisClient

	// ChannelName is the shared Pub/Sub channel. Defaults to "run-hub:events".
	ChannelName string

	// InstanceID identifies this process so it can skip echoes of its own
	// publishes; generated when empty.
	InstanceID string

	// LocalBusConfig configures the in-process delivery half.
	LocalBusConfig InMemoryEventBusConfig

	Logger *slog.Logger
}

// NewRedisEventBus creates a Redis-backed event bus and starts its
// subscription listener.
func NewRedisEventBus(config RedisEventBusConfig) (*RedisEventBus, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.ChannelName == "" {
		config.ChannelName = "run-hub:events"
	}
	if config.InstanceID == "" {
		config.InstanceID = generateInstanceID()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	bus := &RedisEventBus{
		client:      config.Client,
		localBus:    NewInMemoryEventBus(config.LocalBusConfig),
		channelName: config.ChannelName,
		instanceID:  config.InstanceID,
		logger:      config.Logger,
		ctx:         ctx,
		cancel:      cancel,
	}

	messages, err := bus.client.Subscribe(bus.ctx, bus.channelName)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe to %s: %w", bus.channelName, err)
	}

	bus.wg.Add(1)
	go func() {
		defer bus.wg.Done()
		bus.receiveLoop(messages)
	}()

	return bus, nil
}

// Subscribe registers a handler for one event type on the local bus.
// Remote events reach it after replay.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.localBus.Subscribe(eventType, handler)
}

// SubscribeAll registers a handler for every event on the local bus.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.localBus.SubscribeAll(handler)
}

// Publish sends the event over Pub/Sub and delivers it to local handlers.
// A Redis outage degrades to local-only delivery rather than failing the
// write that produced the event.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrEventBusClosed
	}
	b.mu.Unlock()

	data, err := json.Marshal(eventEnvelope{
		InstanceID:  b.instanceID,
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Payload:     event.Payload(),
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	if err := b.client.Publish(b.ctx, b.channelName, string(data)); err != nil {
		b.logger.Error("redis publish failed, delivering locally only",
			"event_type", event.EventType(),
			"error", err,
		)
	}

	return b.localBus.Publish(event)
}

func (b *RedisEventBus) receiveLoop(messages <-chan RedisMessage) {
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if msg.Err != nil {
				b.logger.Error("redis subscription error", "error", msg.Err)
				continue
			}
			b.replay(msg)
		}
	}
}

// replay turns a remote envelope back into an event for local handlers.
func (b *RedisEventBus) replay(msg RedisMessage) {
	var envelope eventEnvelope
	if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
		b.logger.Error("dropping malformed event envelope", "error", err)
		return
	}

	// Our own publishes already went through the local bus.
	if envelope.InstanceID == b.instanceID {
		return
	}

	event := &remoteEvent{
		eventType:   envelope.EventType,
		aggregateID: envelope.AggregateID,
		occurredAt:  envelope.OccurredAt,
		payload:     envelope.Payload,
	}
	if err := b.localBus.Publish(event); err != nil {
		b.logger.Error("failed to deliver remote event",
			"event_type", envelope.EventType,
			"error", err,
		)
	}
}

// Close stops the subscription listener and closes the local bus.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return b.localBus.Close()
}

// Metrics returns the local bus counters.
func (b *RedisEventBus) Metrics() *EventBusMetrics {
	return b.localBus.Metrics()
}

// eventEnvelope is the wire form of an event on the Pub/Sub channel.
type eventEnvelope struct {
	InstanceID  string                 `json:"instance_id"`
	EventType   shared.EventType       `json:"event_type"`
	AggregateID string                 `json:"aggregate_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Payload     map[string]interface{} `json:"payload"`
}

// remoteEvent is an event reconstructed from another instance's envelope.
type remoteEvent struct {
	eventType   shared.EventType
	aggregateID string
	occurredAt  time.Time
	payload     map[string]interface{}
}

func (e *remoteEvent) EventType() shared.EventType     { return e.eventType }
func (e *remoteEvent) AggregateID() string             { return e.aggregateID }
func (e *remoteEvent) OccurredAt() time.Time           { return e.occurredAt }
func (e *remoteEvent) Payload() map[string]interface{} { return e.payload }

func generateInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "instance"
	}
	return fmt.Sprintf("%s-%d", host, time.Now().UnixNano())
}
