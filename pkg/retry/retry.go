// Package retry wraps transient failures in exponential backoff with jitter.
// The results provider client and the player-totals writer both sit on
// networks that hiccup; callers mark each error retryable or permanent and
// the retrier does the waiting.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryableError marks an error worth another attempt.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable marks err as transient. Returns nil for nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err was marked with Retryable.
func IsRetryable(err error) bool {
	var r *RetryableError
	return errors.As(err, &r)
}

// PermanentError marks an error that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as final. Returns nil for nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// Config shapes the backoff curve.
type Config struct {
	// MaxAttempts counts the first attempt too.
	MaxAttempts int

	// InitialDelay precedes the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff curve.
	MaxDelay time.Duration

	// Multiplier grows the delay between attempts.
	Multiplier float64

	// JitterFactor scatters delays by up to this fraction either way, so
	// concurrent retriers do not hit the provider in lockstep.
	JitterFactor float64
}

// DefaultConfig returns the baseline policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// Option adjusts a Config.
type Option func(*Config)

// WithMaxAttempts sets the attempt budget.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

// WithInitialDelay sets the delay before the first retry.
func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.InitialDelay = d
		}
	}
}

// WithMaxDelay caps the delay between retries.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.MaxDelay = d
		}
	}
}

// WithMultiplier sets the backoff growth factor.
func WithMultiplier(m float64) Option {
	return func(c *Config) {
		if m >= 1.0 {
			c.Multiplier = m
		}
	}
}

// WithJitter sets the jitter fraction, clamped to [0,1].
func WithJitter(j float64) Option {
	return func(c *Config) {
		if j >= 0 && j <= 1.0 {
			c.JitterFactor = j
		}
	}
}

// Retrier runs operations under one backoff policy.
type Retrier struct {
	config Config
}

// New creates a Retrier from the default policy plus options.
func New(opts ...Option) *Retrier {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return &Retrier{config: config}
}

// Do runs the operation until it succeeds, exhausts its attempts, returns a
// permanent error, or the context ends. Marker wrappers are stripped from
// the returned error so callers match on the underlying cause.
func (r *Retrier) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt == r.config.MaxAttempts {
			return errors.Unwrap(err)
		}

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(r.delay(attempt)):
		}
	}

	return lastErr
}

func (r *Retrier) delay(attempt int) time.Duration {
	d := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	if d > float64(r.config.MaxDelay) {
		d = float64(r.config.MaxDelay)
	}
	if r.config.JitterFactor > 0 {
		d += d * r.config.JitterFactor * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// ResultsAPIRetrier is the policy for results provider calls. Slow start and
// heavy jitter keep a fleet of workers from tripping the provider's limits.
func ResultsAPIRetrier() *Retrier {
	return New(
		WithMaxAttempts(3),
		WithInitialDelay(500*time.Millisecond),
		WithMaxDelay(10*time.Second),
		WithMultiplier(2.0),
		WithJitter(0.2),
	)
}

// PlayerWriteRetrier is the policy for player document writes. A rejected
// write is retried exactly once as a merge upsert, so two attempts total
// with a short delay.
func PlayerWriteRetrier() *Retrier {
	return New(
		WithMaxAttempts(2),
		WithInitialDelay(50*time.Millisecond),
		WithMaxDelay(500*time.Millisecond),
		WithMultiplier(2.0),
		WithJitter(0.05),
	)
}
