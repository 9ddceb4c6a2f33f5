package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetrier(attempts int) *Retrier {
	return New(
		WithMaxAttempts(attempts),
		WithInitialDelay(time.Millisecond),
		WithMaxDelay(2*time.Millisecond),
		WithJitter(0),
	)
}

func TestDoStopsOnceOperationSucceeds(t *testing.T) {
	var calls int
	err := fastRetrier(5).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errors.New("transient"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoReturnsUnderlyingErrorAfterExhaustion(t *testing.T) {
	cause := errors.New("provider down")

	var calls int
	err := fastRetrier(3).Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(cause)
	})

	assert.Equal(t, 3, calls)
	assert.Equal(t, cause, err, "the marker wrapper is stripped")
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	cause := errors.New("bad credentials")

	var calls int
	err := fastRetrier(5).Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(cause)
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, cause, err)
}

func TestDoDoesNotRetryUnmarkedErrors(t *testing.T) {
	var calls int
	err := fastRetrier(5).Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("plain")
	})

	assert.Equal(t, 1, calls)
	assert.EqualError(t, err, "plain")
}

func TestDoHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int
	err := fastRetrier(3).Do(ctx, func(context.Context) error {
		calls++
		return Retryable(errors.New("transient"))
	})

	assert.Zero(t, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMarkersPassNilThrough(t *testing.T) {
	assert.NoError(t, Retryable(nil))
	assert.NoError(t, Permanent(nil))
}

func TestDelayIsCappedAtMaxDelay(t *testing.T) {
	r := New(
		WithInitialDelay(100*time.Millisecond),
		WithMaxDelay(150*time.Millisecond),
		WithMultiplier(10),
		WithJitter(0),
	)

	assert.Equal(t, 100*time.Millisecond, r.delay(1))
	assert.Equal(t, 150*time.Millisecond, r.delay(2))
	assert.Equal(t, 150*time.Millisecond, r.delay(5))
}
