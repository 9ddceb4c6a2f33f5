// Package scheduler drives the worker's periodic reconciliation passes.
// The incremental results import runs on a fixed interval; the full-corpus
// backfill runs off-peak on a cron expression (see CronScheduler).
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOBS & SCHEDULES
// ══════════════════════════════════════════════════════════════════════════════

// Job is one periodic reconciliation task. Run receives a context that is
// cancelled when the scheduler shuts down; a job that returns an error is
// logged and retried at its next due time, never rescheduled early.
type Job interface {
	Name() string
	Run(ctx context.Context) error
	Description() string
}

// Schedule decides when a job is next due.
type Schedule interface {
	// Next returns the first due time strictly after t.
	Next(t time.Time) time.Time

	String() string
}

var (
	ErrNilJob                  = errors.New("scheduler: job cannot be nil")
	ErrNilSchedule             = errors.New("scheduler: schedule cannot be nil")
	ErrJobAlreadyExists        = errors.New("scheduler: job already registered")
	ErrSchedulerAlreadyRunning = errors.New("scheduler: already running")
	ErrSchedulerNotRunning     = errors.New("scheduler: not running")
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// SchedulerConfig configures the interval scheduler.
type SchedulerConfig struct {
	Logger *slog.Logger

	// Timezone anchors due-time computation. Default UTC.
	Timezone *time.Location

	// TickInterval is how often due times are checked. The default of one
	// second is far below any real import cadence; tests shrink it.
	TickInterval time.Duration
}

// DefaultSchedulerConfig returns the worker's defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Logger:       slog.Default(),
		Timezone:     time.UTC,
		TickInterval: time.Second,
	}
}

// entry is one registered job with its cadence and counters.
type entry struct {
	job      Job
	schedule Schedule
	nextDue  time.Time
	lastRun  time.Time
	runs     int64
	failures int64
}

// Scheduler fires registered jobs when their schedule says they are due.
// Overlapping executions of different jobs are allowed; a single job never
// overlaps itself because its next due time is advanced before it starts
// and checked against wall time.
type Scheduler struct {
	mu       sync.Mutex
	log      *slog.Logger
	location *time.Location
	tick     time.Duration

	entries map[string]*entry
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates an interval scheduler.
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	return &Scheduler{
		log:      config.Logger,
		location: config.Timezone,
		tick:     config.TickInterval,
		entries:  make(map[string]*entry),
	}
}

// Register adds a job. Registration after Start is allowed; the job joins
// the next tick.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, dup := s.entries[name]; dup {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	e := &entry{
		job:      job,
		schedule: schedule,
		nextDue:  schedule.Next(time.Now().In(s.location)),
	}
	s.entries[name] = e

	s.log.Info("job registered",
		"job", name,
		"description", job.Description(),
		"schedule", schedule.String(),
		"next_due", e.nextDue.Format(time.RFC3339),
	)
	return nil
}

// Start launches the tick loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	jobs := len(s.entries)
	s.mu.Unlock()

	s.log.Info("scheduler started", "jobs", jobs)

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop cancels the loop and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped")
	return nil
}

// IsRunning reports whether the tick loop is live.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fireDue(ctx)
		}
	}
}

func (s *Scheduler) fireDue(ctx context.Context) {
	now := time.Now().In(s.location)

	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		if !e.nextDue.IsZero() && now.After(e.nextDue) {
			// Advance before running so a slow pass cannot stack a
			// second execution behind itself.
			e.lastRun = now
			e.nextDue = e.schedule.Next(now)
			e.runs++
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		s.wg.Add(1)
		go s.execute(ctx, e)
	}
}

func (s *Scheduler) execute(ctx context.Context, e *entry) {
	defer s.wg.Done()

	name := e.job.Name()
	started := time.Now()
	s.log.Info("job started", "job", name)

	err := e.job.Run(ctx)
	elapsed := time.Since(started)

	if err != nil {
		s.mu.Lock()
		e.failures++
		s.mu.Unlock()
		s.log.Error("job failed",
			"job", name,
			"duration", elapsed.String(),
			"error", err,
		)
		return
	}
	s.log.Info("job completed", "job", name, "duration", elapsed.String())
}

// JobStatus is a point-in-time view of one registered job, exposed for the
// worker's periodic status logging.
type JobStatus struct {
	Name     string
	Schedule string
	LastRun  time.Time
	NextDue  time.Time
	Runs     int64
	Failures int64
}

// Jobs returns the status of every registered job.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.entries))
	for name, e := range s.entries {
		out = append(out, JobStatus{
			Name:     name,
			Schedule: e.schedule.String(),
			LastRun:  e.lastRun,
			NextDue:  e.nextDue,
			Runs:     e.runs,
			Failures: e.failures,
		})
	}
	return out
}
