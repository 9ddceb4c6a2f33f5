package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs atomic.Int64
	err  error
}

func (j *countingJob) Name() string                  { return j.name }
func (j *countingJob) Description() string           { return "test job" }
func (j *countingJob) Run(_ context.Context) error { j.runs.Add(1); return j.err }

func quietConfig() SchedulerConfig {
	cfg := DefaultSchedulerConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.TickInterval = 5 * time.Millisecond
	return cfg
}

func TestSchedulerRunsDueJobs(t *testing.T) {
	s := NewScheduler(quietConfig())
	job := &countingJob{name: "import"}

	// Next due immediately, then far in the future.
	require.NoError(t, s.Register(job, scheduleFunc(func(t time.Time) time.Time {
		if job.runs.Load() == 0 {
			return t.Add(-time.Millisecond)
		}
		return t.Add(time.Hour)
	})))

	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop() }()

	assert.Eventually(t, func() bool {
		return job.runs.Load() >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestSchedulerRejectsDuplicateRegistration(t *testing.T) {
	s := NewScheduler(quietConfig())
	job := &countingJob{name: "import"}

	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))
	err := s.Register(job, NewIntervalSchedule(time.Hour))
	assert.ErrorIs(t, err, ErrJobAlreadyExists)
}

func TestSchedulerLifecycle(t *testing.T) {
	s := NewScheduler(quietConfig())

	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
}

func TestSchedulerJobStatusCounters(t *testing.T) {
	s := NewScheduler(quietConfig())
	require.NoError(t, s.Register(&countingJob{name: "import"}, NewIntervalSchedule(time.Hour)))

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "import", jobs[0].Name)
	assert.Equal(t, "@every 1h0m0s", jobs[0].Schedule)
	assert.Zero(t, jobs[0].Runs)
	assert.False(t, jobs[0].NextDue.IsZero())
}

// scheduleFunc adapts a function to the Schedule interface.
type scheduleFunc func(time.Time) time.Time

func (f scheduleFunc) Next(t time.Time) time.Time { return f(t) }
func (f scheduleFunc) String() string             { return "@test" }

func TestIntervalScheduleFloor(t *testing.T) {
	s := NewIntervalSchedule(time.Millisecond)
	assert.Equal(t, time.Second, s.Interval, "sub-second cadences round up")

	now := time.Now()
	assert.Equal(t, now.Add(time.Second), s.Next(now))
}

func TestParseCronExpression(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 3 * * *", false},   // nightly backfill window
		{"*/15 * * * *", false},
		{"0 0 * * 0", false},
		{"1-5 * * * *", false},
		{"1,15,45 * * * *", false},
		{"10-50/10 * * * *", false},
		{"* * * *", true},      // four fields
		{"60 * * * *", true},   // minute out of range
		{"* 24 * * *", true},   // hour out of range
		{"*/0 * * * *", true},  // zero step
		{"x * * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := ParseCronExpression(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCronExpressionNext(t *testing.T) {
	nightly, err := ParseCronExpression("0 3 * * *")
	require.NoError(t, err)

	from := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	next := nightly.Next(from)
	assert.Equal(t, time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC), next)

	// Already past midnight but before the window: same day.
	from = time.Date(2026, 8, 30, 1, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC), nightly.Next(from))

	quarterly, err := ParseCronExpression("*/15 * * * *")
	require.NoError(t, err)
	from = time.Date(2026, 8, 30, 10, 7, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 30, 10, 15, 0, 0, time.UTC), quarterly.Next(from))
}

func TestCronSchedulerAddJobValidatesExpression(t *testing.T) {
	cs := NewCronScheduler(WithCronLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	err := cs.AddJob("backfill", "not a cron line", &countingJob{name: "backfill"})
	assert.Error(t, err)

	assert.NoError(t, cs.AddJob("backfill", "0 3 * * *", &countingJob{name: "backfill"}))
}

func TestCronSchedulerStopWithoutStart(t *testing.T) {
	cs := NewCronScheduler()
	cs.Stop() // must not panic or block
}
