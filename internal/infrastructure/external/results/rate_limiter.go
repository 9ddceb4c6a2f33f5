package results

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER - Token Bucket implementation
// The pipeline is an unofficial API; staying under its limits matters more
// than import throughput.
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiter implements the token bucket algorithm to control request rate.
type RateLimiter struct {
	mu sync.Mutex

	maxTokens   float64       // Maximum tokens in the bucket
	refillRate  float64       // Tokens added per second
	tokens      float64       // Current token count
	lastRefill  time.Time     // Last time tokens were added
	minInterval time.Duration // Minimum interval between requests
	lastRequest time.Time     // Time of last request
	waitTimeout time.Duration // Maximum time to wait for a token
	penaltyTill time.Time     // No requests until this time after a 429
}

// RateLimiterConfig contains configuration for the rate limiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the maximum sustained request rate
	RequestsPerSecond float64

	// BurstSize is the maximum number of requests that can be made in a burst
	BurstSize int

	// MinInterval is the minimum time between requests (even with tokens available)
	MinInterval time.Duration

	// WaitTimeout is the maximum time to wait for a token
	WaitTimeout time.Duration
}

// DefaultRateLimiterConfig returns conservative defaults for the pipeline.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 2.0,
		BurstSize:         5,
		MinInterval:       200 * time.Millisecond,
		WaitTimeout:       30 * time.Second,
	}
}

// NewRateLimiter creates a new RateLimiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 1
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	return &RateLimiter{
		maxTokens:   float64(config.BurstSize),
		refillRate:  config.RequestsPerSecond,
		tokens:      float64(config.BurstSize),
		lastRefill:  time.Now(),
		minInterval: config.MinInterval,
		waitTimeout: config.WaitTimeout,
	}
}

// ErrWaitTimeout is returned when a token doesn't free up within the
// configured wait timeout.
var ErrWaitTimeout = errors.New("results: rate limiter wait timeout")

// RateLimitError is returned when the pipeline answers 429.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("results: %s (retry after %v)", e.Message, e.RetryAfter)
}

// Allow blocks until a request slot is available, the context is cancelled,
// or the wait timeout elapses.
func (rl *RateLimiter) Allow(ctx context.Context) error {
	deadline := time.Now().Add(rl.waitTimeout)

	for {
		wait, ok := rl.tryAcquire()
		if ok {
			return nil
		}
		if time.Now().Add(wait).After(deadline) {
			return ErrWaitTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// RecordRateLimitHit pauses all requests after the pipeline answered 429.
func (rl *RateLimiter) RecordRateLimitHit(retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.penaltyTill = time.Now().Add(retryAfter)
	rl.tokens = 0
}

// Reset restores the bucket to its initial state.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.tokens = rl.maxTokens
	rl.lastRefill = time.Now()
	rl.penaltyTill = time.Time{}
}

// tryAcquire takes a token if one is available. Otherwise it returns how
// long to wait before the next attempt.
func (rl *RateLimiter) tryAcquire() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	if now.Before(rl.penaltyTill) {
		return rl.penaltyTill.Sub(now), false
	}

	// Refill
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now

	// Enforce minimum spacing between requests
	if rl.minInterval > 0 && !rl.lastRequest.IsZero() {
		if since := now.Sub(rl.lastRequest); since < rl.minInterval {
			return rl.minInterval - since, false
		}
	}

	if rl.tokens < 1 {
		missing := 1 - rl.tokens
		return time.Duration(missing / rl.refillRate * float64(time.Second)), false
	}

	rl.tokens--
	rl.lastRequest = now
	return 0, true
}
