package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errProvider = errors.New("provider unavailable")

func failing(context.Context) error { return errProvider }
func succeeding(context.Context) error { return nil }

func trip(t *testing.T, cb *CircuitBreaker, failures int) {
	t.Helper()
	for i := 0; i < failures; i++ {
		_ = cb.Execute(context.Background(), failing)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := New("test", WithFailureThreshold(3), WithTimeout(time.Minute))

	trip(t, cb, 2)
	assert.Equal(t, StateClosed, cb.State())

	trip(t, cb, 1)
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(context.Background(), succeeding)
	assert.ErrorIs(t, err, ErrCircuitOpen, "open circuit rejects without calling fn")
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	cb := New("test", WithFailureThreshold(3))

	trip(t, cb, 2)
	require.NoError(t, cb.Execute(context.Background(), succeeding))
	trip(t, cb, 2)

	assert.Equal(t, StateClosed, cb.State(), "non-consecutive failures do not trip")
}

func TestHalfOpenProbeClosesOrReopens(t *testing.T) {
	cb := New("test",
		WithFailureThreshold(1),
		WithSuccessThreshold(1),
		WithTimeout(5*time.Millisecond),
	)

	trip(t, cb, 1)
	require.Equal(t, StateOpen, cb.State())

	// After the cooldown a probe is admitted; its failure reopens at once.
	time.Sleep(10 * time.Millisecond)
	_ = cb.Execute(context.Background(), failing)
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, cb.Execute(context.Background(), succeeding))
	assert.Equal(t, StateClosed, cb.State())
}

func TestResetClosesTheCircuit(t *testing.T) {
	cb := New("test", WithFailureThreshold(1), WithTimeout(time.Minute))

	trip(t, cb, 1)
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Execute(context.Background(), succeeding))
}

func TestOnStateChangeObservesTransitions(t *testing.T) {
	type change struct{ from, to State }
	var seen []change

	cb := New("results-api",
		WithFailureThreshold(1),
		WithTimeout(time.Minute),
		WithOnStateChange(func(name string, from, to State) {
			assert.Equal(t, "results-api", name)
			seen = append(seen, change{from, to})
		}),
	)

	trip(t, cb, 1)
	require.Equal(t, []change{{StateClosed, StateOpen}}, seen)
}

func TestExecutePassesErrorThrough(t *testing.T) {
	cb := New("test")
	err := cb.Execute(context.Background(), failing)
	assert.ErrorIs(t, err, errProvider)
}
