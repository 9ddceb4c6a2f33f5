// Package circuitbreaker guards calls to the results provider. When the
// provider starts failing, the breaker opens and import passes fail fast
// instead of stacking up timed-out requests behind the rate limiter.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker's position.
type State int

const (
	// StateClosed passes requests through.
	StateClosed State = iota
	// StateOpen rejects requests until the cooldown passes.
	StateOpen
	// StateHalfOpen lets a limited number of trial requests through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen rejects a call while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests rejects a call when the half-open trial budget is spent.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config shapes a breaker's thresholds and cooldown.
type Config struct {
	// Name labels the breaker in state-change notifications.
	Name string

	// FailureThreshold opens the circuit after this many consecutive failures.
	FailureThreshold int

	// SuccessThreshold closes a half-open circuit after this many
	// consecutive successes.
	SuccessThreshold int

	// Timeout is the open-state cooldown before trial requests begin.
	Timeout time.Duration

	// MaxHalfOpenRequests bounds concurrent trial requests.
	MaxHalfOpenRequests int

	// OnStateChange observes transitions, usually for logging.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns the baseline thresholds.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		MaxHalfOpenRequests: 1,
	}
}

// Option adjusts a Config.
type Option func(*Config)

// WithFailureThreshold sets the consecutive failures that open the circuit.
func WithFailureThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.FailureThreshold = n
		}
	}
}

// WithSuccessThreshold sets the consecutive successes that close it again.
func WithSuccessThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.SuccessThreshold = n
		}
	}
}

// WithTimeout sets the open-state cooldown.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// WithMaxHalfOpenRequests sets the trial request budget.
func WithMaxHalfOpenRequests(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxHalfOpenRequests = n
		}
	}
}

// WithOnStateChange sets the transition observer.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(c *Config) {
		c.OnStateChange = fn
	}
}

// CircuitBreaker tracks consecutive outcomes and gates calls accordingly.
type CircuitBreaker struct {
	config Config

	mu              sync.Mutex
	state           State
	consecFailures  int
	consecSuccesses int
	lastFailure     time.Time
	halfOpenInUse   int
}

// New creates a closed breaker.
func New(name string, opts ...Option) *CircuitBreaker {
	config := DefaultConfig(name)
	for _, opt := range opts {
		opt(&config)
	}
	return &CircuitBreaker{config: config, state: StateClosed}
}

// Execute runs fn if the circuit allows it and records the outcome.
// The fn error passes through unchanged; gate rejections return
// ErrCircuitOpen or ErrTooManyRequests without running fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(cb.lastFailure) >= cb.config.Timeout {
			cb.transition(StateHalfOpen)
			cb.halfOpenInUse = 1
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenInUse < cb.config.MaxHalfOpenRequests {
			cb.halfOpenInUse++
			return nil
		}
		return ErrTooManyRequests
	default:
		return ErrCircuitOpen
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.consecFailures++
		cb.consecSuccesses = 0
		cb.lastFailure = time.Now()

		switch cb.state {
		case StateClosed:
			if cb.consecFailures >= cb.config.FailureThreshold {
				cb.transition(StateOpen)
			}
		case StateHalfOpen:
			// A failed trial request reopens immediately.
			cb.transition(StateOpen)
		}
		return
	}

	cb.consecSuccesses++
	cb.consecFailures = 0
	if cb.state == StateHalfOpen && cb.consecSuccesses >= cb.config.SuccessThreshold {
		cb.transition(StateClosed)
	}
}

// transition assumes cb.mu is held.
func (cb *CircuitBreaker) transition(next State) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	cb.consecFailures = 0
	cb.consecSuccesses = 0
	cb.halfOpenInUse = 0

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, prev, next)
	}
}

// State returns the current position.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.consecFailures = 0
	cb.consecSuccesses = 0
	cb.halfOpenInUse = 0
}

// ResultsAPIBreaker is the policy for the results provider: trip after three
// consecutive failures and cool down for a full minute before a single probe.
func ResultsAPIBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(
		"results-api",
		WithFailureThreshold(3),
		WithSuccessThreshold(2),
		WithTimeout(60*time.Second),
		WithMaxHalfOpenRequests(1),
		WithOnStateChange(onStateChange),
	)
}
