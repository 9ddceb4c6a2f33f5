package messaging

import (
	"log/slog"
	"sync"
	"time"

	"github.com/runhub/run-community-hub/internal/domain/shared"
)

// BufferedEventBus batches publishes before handing them to an inner bus.
// A nightly backfill emits one rank-changed event per recomputed group, and
// pushing thousands of those through Redis one at a time is wasteful; the
// buffer absorbs the burst and flushes on size, on interval, or on close.
type BufferedEventBus struct {
	inner      shared.EventBus
	buffer     []shared.Event
	bufferSize int
	ticker     *time.Ticker
	mu         sync.Mutex
	logger     *slog.Logger
	closed     bool
	closeCh    chan struct{}
	wg         sync.WaitGroup
}

// BufferedEventBusConfig configures a BufferedEventBus.
type BufferedEventBusConfig struct {
	// Inner receives the buffered events on flush.
	Inner shared.EventBus

	// BufferSize triggers a flush when the buffer reaches it.
	BufferSize int

	// FlushInterval bounds how long an event can sit in the buffer.
	FlushInterval time.Duration

	Logger *slog.Logger
}

// NewBufferedEventBus wraps an inner bus with batching.
func NewBufferedEventBus(config BufferedEventBusConfig) *BufferedEventBus {
	if config.BufferSize <= 0 {
		config.BufferSize = 100
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	bus := &BufferedEventBus{
		inner:      config.Inner,
		buffer:     make([]shared.Event, 0, config.BufferSize),
		bufferSize: config.BufferSize,
		ticker:     time.NewTicker(config.FlushInterval),
		logger:     config.Logger,
		closeCh:    make(chan struct{}),
	}

	bus.wg.Add(1)
	go bus.flushLoop()
	return bus
}

// Subscribe registers a handler on the inner bus.
func (b *BufferedEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.inner.Subscribe(eventType, handler)
}

// SubscribeAll registers a catch-all handler on the inner bus.
func (b *BufferedEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.inner.SubscribeAll(handler)
}

// Publish appends the event to the buffer, flushing when it fills.
func (b *BufferedEventBus) Publish(event shared.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.buffer = append(b.buffer, event)
	if len(b.buffer) >= b.bufferSize {
		b.flushLocked()
	}
	return nil
}

// Flush pushes everything in the buffer to the inner bus now.
func (b *BufferedEventBus) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

func (b *BufferedEventBus) flushLocked() error {
	if len(b.buffer) == 0 {
		return nil
	}

	events := b.buffer
	b.buffer = make([]shared.Event, 0, b.bufferSize)

	var lastErr error
	for _, event := range events {
		if err := b.inner.Publish(event); err != nil {
			b.logger.Error("buffered publish failed",
				"event_type", event.EventType(),
				"error", err,
			)
			lastErr = err
		}
	}
	return lastErr
}

func (b *BufferedEventBus) flushLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.closeCh:
			return
		case <-b.ticker.C:
			b.mu.Lock()
			b.flushLocked()
			b.mu.Unlock()
		}
	}
}

// Close flushes whatever remains and rejects further publishes.
// The inner bus stays open; its owner closes it.
func (b *BufferedEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.ticker.Stop()
	close(b.closeCh)
	b.flushLocked()
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
