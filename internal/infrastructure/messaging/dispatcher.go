package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/runhub/run-community-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// Dispatcher routes bus events to named handlers with per-handler retry,
// timeouts, middleware, and a dead-letter queue. The plain bus fires and
// forgets; the dispatcher exists for handlers that must not silently drop an
// event, like the board cache invalidation that follows a rank rewrite.
type Dispatcher struct {
	eventBus    shared.EventBus
	handlers    map[shared.EventType][]HandlerRegistration
	middlewares []Middleware
	retryConfig RetryConfig
	deadLetterQ *DeadLetterQueue
	logger      *slog.Logger
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	workerPool  chan struct{}
	metrics     *DispatcherMetrics
}

// HandlerRegistration names a handler and sets its execution policy.
type HandlerRegistration struct {
	Name    string
	Handler shared.EventHandler

	// Priority is reserved for ordering; registration order applies today.
	Priority int

	// Async detaches the handler from the dispatching call.
	Async bool

	// MaxRetries counts retries after the first attempt. Zero takes the
	// dispatcher default.
	MaxRetries int

	// Timeout bounds a single attempt. Zero takes 30s.
	Timeout time.Duration
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	EventBus shared.EventBus

	// WorkerPoolSize bounds concurrent handler executions.
	WorkerPoolSize int

	RetryConfig RetryConfig

	// EnableDeadLetterQueue keeps events whose handler exhausted its retries.
	EnableDeadLetterQueue bool
	DeadLetterQueueSize   int

	Logger *slog.Logger
}

// RetryConfig shapes the exponential backoff between handler attempts.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the production retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// DefaultDispatcherConfig returns the production defaults around a bus.
func DefaultDispatcherConfig(eventBus shared.EventBus) DispatcherConfig {
	return DispatcherConfig{
		EventBus:              eventBus,
		WorkerPoolSize:        10,
		RetryConfig:           DefaultRetryConfig(),
		EnableDeadLetterQueue: true,
		DeadLetterQueueSize:   1000,
	}
}

// NewDispatcher creates a dispatcher. Call Start to attach it to the bus.
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 10
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		eventBus:    config.EventBus,
		handlers:    make(map[shared.EventType][]HandlerRegistration),
		retryConfig: config.RetryConfig,
		logger:      config.Logger,
		ctx:         ctx,
		cancel:      cancel,
		workerPool:  make(chan struct{}, config.WorkerPoolSize),
		metrics:     NewDispatcherMetrics(),
	}
	if config.EnableDeadLetterQueue {
		d.deadLetterQ = NewDeadLetterQueue(config.DeadLetterQueueSize)
	}
	return d
}

// RegisterHandler registers a handler with an explicit policy.
func (d *Dispatcher) RegisterHandler(eventType shared.EventType, reg HandlerRegistration) error {
	if reg.Handler == nil {
		return errors.New("handler cannot be nil")
	}
	if reg.Name == "" {
		reg.Name = fmt.Sprintf("handler-%d", time.Now().UnixNano())
	}
	if reg.MaxRetries <= 0 {
		reg.MaxRetries = d.retryConfig.MaxRetries
	}
	if reg.Timeout <= 0 {
		reg.Timeout = 30 * time.Second
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], reg)
	return nil
}

// Register registers an async handler with the default policy.
func (d *Dispatcher) Register(eventType shared.EventType, name string, handler shared.EventHandler) error {
	return d.RegisterHandler(eventType, HandlerRegistration{
		Name:    name,
		Handler: handler,
		Async:   true,
	})
}

// RegisterSync registers a handler that runs inside the dispatching call.
func (d *Dispatcher) RegisterSync(eventType shared.EventType, name string, handler shared.EventHandler) error {
	return d.RegisterHandler(eventType, HandlerRegistration{
		Name:    name,
		Handler: handler,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// Middleware wraps handler execution. The chain is applied per attempt, so a
// middleware sees retries as separate executions.
type Middleware func(shared.EventHandler) shared.EventHandler

// Use appends middleware to the chain.
func (d *Dispatcher) Use(middleware Middleware) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.middlewares = append(d.middlewares, middleware)
}

// RecoveryMiddleware converts a handler panic into an error, so one broken
// handler cannot take down the process serving boards.
func RecoveryMiddleware(logger *slog.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("handler panic recovered",
						"event_type", event.EventType(),
						"panic", r,
						"stack", string(debug.Stack()),
					)
					err = fmt.Errorf("handler panic: %v", r)
				}
			}()
			return next(event)
		}
	}
}

// MetricsMiddleware records each handler execution in the given counters.
func MetricsMiddleware(metrics *DispatcherMetrics) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			start := time.Now()
			err := next(event)
			metrics.RecordExecution(time.Since(start), err == nil)
			return err
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHING
// ══════════════════════════════════════════════════════════════════════════════

// Start attaches the dispatcher to the bus; from then on every published
// event flows through handler routing.
func (d *Dispatcher) Start() error {
	return d.eventBus.SubscribeAll(func(event shared.Event) error {
		return d.dispatch(event)
	})
}

// Dispatch routes an event to its handlers without going through the bus.
func (d *Dispatcher) Dispatch(event shared.Event) error {
	return d.dispatch(event)
}

func (d *Dispatcher) dispatch(event shared.Event) error {
	d.mu.RLock()
	handlers := d.handlers[event.EventType()]
	middlewares := d.middlewares
	d.mu.RUnlock()

	// Types nobody registered for pass through without touching the counters.
	if len(handlers) == 0 {
		return nil
	}

	d.metrics.RecordDispatch()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	for _, reg := range handlers {
		if reg.Async {
			wg.Add(1)
			go func(r HandlerRegistration) {
				defer wg.Done()
				d.execute(event, r, middlewares)
			}(reg)
			continue
		}
		if err := d.execute(event, reg, middlewares); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	}
	wg.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("sync handler errors: %v", errs)
	}
	return nil
}

// execute runs one handler through the middleware chain with retry, and
// parks the event in the dead-letter queue when every attempt fails.
func (d *Dispatcher) execute(event shared.Event, reg HandlerRegistration, middlewares []Middleware) error {
	select {
	case d.workerPool <- struct{}{}:
		defer func() { <-d.workerPool }()
	case <-d.ctx.Done():
		return d.ctx.Err()
	}

	handler := reg.Handler
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}

	var lastErr error
	for attempt := 0; attempt <= reg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-d.ctx.Done():
				return d.ctx.Err()
			case <-time.After(d.backoff(attempt)):
			}
		}

		err := d.attempt(handler, event, reg.Timeout)
		if err == nil {
			if attempt > 0 {
				d.metrics.RecordRetrySuccess()
			}
			return nil
		}
		lastErr = err
		d.logger.Warn("handler attempt failed",
			"handler", reg.Name,
			"event_type", event.EventType(),
			"attempt", attempt,
			"error", err,
		)
	}

	if d.deadLetterQ != nil {
		d.deadLetterQ.Add(DeadLetterEntry{
			Event:       event,
			HandlerName: reg.Name,
			Error:       lastErr,
			Attempts:    reg.MaxRetries + 1,
			FailedAt:    time.Now(),
		})
	}
	d.metrics.RecordFailure()
	return fmt.Errorf("handler %s failed after %d attempts: %w", reg.Name, reg.MaxRetries+1, lastErr)
}

func (d *Dispatcher) attempt(handler shared.EventHandler, event shared.Event, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- handler(event)
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("handler timeout after %v", timeout)
	case <-d.ctx.Done():
		return d.ctx.Err()
	}
}

func (d *Dispatcher) backoff(attempt int) time.Duration {
	wait := float64(d.retryConfig.InitialBackoff)
	for i := 1; i < attempt; i++ {
		wait *= d.retryConfig.BackoffMultiplier
	}
	if wait > float64(d.retryConfig.MaxBackoff) {
		wait = float64(d.retryConfig.MaxBackoff)
	}
	return time.Duration(wait)
}

// Stop cancels in-flight retries and timeouts.
func (d *Dispatcher) Stop() error {
	d.cancel()
	return nil
}

// Metrics returns the dispatcher counters.
func (d *Dispatcher) Metrics() *DispatcherMetrics {
	return d.metrics
}

// DeadLetterQueue returns the queue of exhausted events, or nil when the
// queue is disabled.
func (d *Dispatcher) DeadLetterQueue() *DeadLetterQueue {
	return d.deadLetterQ
}

// ══════════════════════════════════════════════════════════════════════════════
// DEAD LETTER QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// DeadLetterEntry is one event whose handler exhausted its retries.
type DeadLetterEntry struct {
	Event       shared.Event
	HandlerName string
	Error       error
	Attempts    int
	FailedAt    time.Time
}

// DeadLetterQueue holds exhausted events for operator inspection and replay.
// At capacity the oldest entry is dropped first.
type DeadLetterQueue struct {
	mu      sync.Mutex
	entries []DeadLetterEntry
	maxSize int
}

// NewDeadLetterQueue creates a bounded dead-letter queue.
func NewDeadLetterQueue(maxSize int) *DeadLetterQueue {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &DeadLetterQueue{maxSize: maxSize}
}

// Add appends an entry, evicting the oldest when full.
func (q *DeadLetterQueue) Add(entry DeadLetterEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) >= q.maxSize {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, entry)
}

// Entries returns a copy of the queue, oldest first.
func (q *DeadLetterQueue) Entries() []DeadLetterEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetterEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Size returns the number of parked events.
func (q *DeadLetterQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Pop removes and returns the oldest entry.
func (q *DeadLetterQueue) Pop() (DeadLetterEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return DeadLetterEntry{}, false
	}
	entry := q.entries[0]
	q.entries = q.entries[1:]
	return entry, true
}

// Clear drops every parked event.
func (q *DeadLetterQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = nil
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// DispatcherMetrics counts dispatches, executions, retries, and failures.
type DispatcherMetrics struct {
	mu            sync.Mutex
	dispatched    int64
	executions    int64
	successes     int64
	failures      int64
	retries       int64
	totalDuration time.Duration
}

// NewDispatcherMetrics creates an empty counter set.
func NewDispatcherMetrics() *DispatcherMetrics {
	return &DispatcherMetrics{}
}

// RecordDispatch counts one event that reached at least one handler.
func (m *DispatcherMetrics) RecordDispatch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatched++
}

// RecordExecution counts one handler execution and its outcome.
func (m *DispatcherMetrics) RecordExecution(duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions++
	m.totalDuration += duration
	if success {
		m.successes++
	} else {
		m.failures++
	}
}

// RecordRetrySuccess counts a handler that recovered on a retry.
func (m *DispatcherMetrics) RecordRetrySuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}

// RecordFailure counts a handler that exhausted its retries.
func (m *DispatcherMetrics) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

// Snapshot returns a point-in-time copy of the counters.
func (m *DispatcherMetrics) Snapshot() DispatcherMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := DispatcherMetricsSnapshot{
		TotalDispatched: m.dispatched,
		TotalExecutions: m.executions,
		TotalFailures:   m.failures,
		TotalRetries:    m.retries,
		SuccessRate:     1.0,
	}
	if m.executions > 0 {
		snap.SuccessRate = float64(m.successes) / float64(m.executions)
		snap.AverageDuration = m.totalDuration / time.Duration(m.executions)
	}
	return snap
}

// DispatcherMetricsSnapshot is a point-in-time view of the counters.
type DispatcherMetricsSnapshot struct {
	TotalDispatched int64
	TotalExecutions int64
	TotalFailures   int64
	TotalRetries    int64
	SuccessRate     float64
	AverageDuration time.Duration
}

// ══════════════════════════════════════════════════════════════════════════════
// BUILDER
// ══════════════════════════════════════════════════════════════════════════════

// DispatcherBuilder assembles a dispatcher from the default config.
type DispatcherBuilder struct {
	config DispatcherConfig
}

// NewDispatcherBuilder starts a builder around the given bus.
func NewDispatcherBuilder(eventBus shared.EventBus) *DispatcherBuilder {
	return &DispatcherBuilder{config: DefaultDispatcherConfig(eventBus)}
}

// WithWorkerPoolSize sets the handler concurrency bound.
func (b *DispatcherBuilder) WithWorkerPoolSize(size int) *DispatcherBuilder {
	b.config.WorkerPoolSize = size
	return b
}

// WithRetryConfig replaces the retry policy.
func (b *DispatcherBuilder) WithRetryConfig(config RetryConfig) *DispatcherBuilder {
	b.config.RetryConfig = config
	return b
}

// WithDeadLetterQueue enables the dead-letter queue with the given capacity.
func (b *DispatcherBuilder) WithDeadLetterQueue(size int) *DispatcherBuilder {
	b.config.EnableDeadLetterQueue = true
	b.config.DeadLetterQueueSize = size
	return b
}

// WithLogger sets the logger.
func (b *DispatcherBuilder) WithLogger(logger *slog.Logger) *DispatcherBuilder {
	b.config.Logger = logger
	return b
}

// Build creates the dispatcher.
func (b *DispatcherBuilder) Build() *Dispatcher {
	return NewDispatcher(b.config)
}
