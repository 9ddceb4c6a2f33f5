// Package messaging carries reconciliation events between the API server,
// the background worker, and the read-side caches. A rank rewrite in one
// process must reach every process that serves boards, so the package offers
// an in-process bus for single-instance deployments, a Redis Pub/Sub bus for
// fleets, and a buffering wrapper that coalesces backfill bursts.
package messaging

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/runhub/run-community-hub/internal/domain/shared"
)

// ErrEventBusClosed is returned by publish and subscribe calls after Close.
var ErrEventBusClosed = errors.New("event bus is closed")

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus delivers events to handlers within a single process.
// It backs single-instance deployments directly and serves as the local
// delivery half of the Redis bus.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	byType      map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	asyncMode   bool
	workerPool  chan struct{}
	logger      *slog.Logger
	metrics     *EventBusMetrics
	closed      bool
	closeCh     chan struct{}
	wg          sync.WaitGroup
}

// InMemoryEventBusConfig configures an InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode runs handlers on a bounded worker pool instead of inline.
	// Cache invalidation tolerates the reordering; tests usually do not.
	AsyncMode bool

	// WorkerPoolSize bounds concurrent handler executions in async mode.
	WorkerPoolSize int

	Logger *slog.Logger

	// EnableMetrics keeps publish and handler counters for the admin surface.
	EnableMetrics bool
}

// DefaultInMemoryEventBusConfig returns the production defaults.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
		EnableMetrics:  true,
	}
}

// NewInMemoryEventBus creates an in-memory event bus.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 10
	}

	bus := &InMemoryEventBus{
		byType:     make(map[shared.EventType][]shared.EventHandler),
		asyncMode:  config.AsyncMode,
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		logger:     config.Logger,
		closeCh:    make(chan struct{}),
	}
	if config.EnableMetrics {
		bus.metrics = NewEventBusMetrics()
	}
	return bus
}

// Subscribe registers a handler for one event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.byType[eventType] = append(b.byType[eventType], handler)
	return nil
}

// SubscribeAll registers a handler that sees every published event.
// The dispatcher uses this to take over routing.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Publish delivers the event to every matching handler. In async mode the
// call returns immediately; handler errors are logged, not returned, because
// a failed cache invalidation must not fail the rerank that caused it.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	handlers := make([]shared.EventHandler, 0, len(b.byType[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.byType[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	if b.metrics != nil {
		b.metrics.RecordPublish(event.EventType())
	}

	for _, handler := range handlers {
		if b.asyncMode {
			b.runAsync(event, handler)
			continue
		}
		if err := b.run(event, handler); err != nil {
			b.logger.Error("event handler failed",
				"event_type", event.EventType(),
				"aggregate_id", event.AggregateID(),
				"error", err,
			)
		}
	}
	return nil
}

func (b *InMemoryEventBus) runAsync(event shared.Event, handler shared.EventHandler) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		select {
		case b.workerPool <- struct{}{}:
			defer func() { <-b.workerPool }()
		case <-b.closeCh:
			return
		}

		if err := b.run(event, handler); err != nil {
			b.logger.Error("async event handler failed",
				"event_type", event.EventType(),
				"aggregate_id", event.AggregateID(),
				"error", err,
			)
		}
	}()
}

func (b *InMemoryEventBus) run(event shared.Event, handler shared.EventHandler) error {
	start := time.Now()
	err := handler(event)
	if b.metrics != nil {
		b.metrics.RecordHandlerExecution(time.Since(start), err == nil)
	}
	return err
}

// Close stops accepting events and waits for in-flight handlers.
// Closing twice is a no-op.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closeCh)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// Metrics returns the bus counters, or nil when metrics are disabled.
func (b *InMemoryEventBus) Metrics() *EventBusMetrics {
	return b.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// EventBusMetrics counts publishes and handler outcomes.
type EventBusMetrics struct {
	mu            sync.Mutex
	published     int64
	executions    int64
	successes     int64
	totalDuration time.Duration
}

// NewEventBusMetrics creates an empty counter set.
func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{}
}

// RecordPublish counts one published event that had at least one handler.
func (m *EventBusMetrics) RecordPublish(shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published++
}

// RecordHandlerExecution counts one handler run and its outcome.
func (m *EventBusMetrics) RecordHandlerExecution(duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions++
	m.totalDuration += duration
	if success {
		m.successes++
	}
}

// Snapshot returns a point-in-time copy of the counters.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := EventBusMetricsSnapshot{
		TotalPublished:     m.published,
		TotalHandlerExecs:  m.executions,
		HandlerSuccessRate: 1.0,
	}
	if m.executions > 0 {
		snap.HandlerSuccessRate = float64(m.successes) / float64(m.executions)
		snap.AverageHandlerDuration = m.totalDuration / time.Duration(m.executions)
	}
	return snap
}

// EventBusMetricsSnapshot is a point-in-time view of the bus counters.
type EventBusMetricsSnapshot struct {
	TotalPublished         int64
	TotalHandlerExecs      int64
	HandlerSuccessRate     float64
	AverageHandlerDuration time.Duration
}
