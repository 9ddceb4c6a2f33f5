package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CRON EXPRESSIONS
// The backfill must run off-peak at an operator-chosen wall-clock time, so
// an interval is not enough; a minimal 5-field cron expression (minute,
// hour, day-of-month, month, weekday) covers every cadence the worker
// needs without pulling in a cron dependency for one job.
// ══════════════════════════════════════════════════════════════════════════════

// CronExpression is a parsed 5-field cron line. Each field holds the sorted
// set of matching values; a time is due when all five fields match.
type CronExpression struct {
	raw      string
	minutes  fieldSet // 0-59
	hours    fieldSet // 0-23
	days     fieldSet // 1-31
	months   fieldSet // 1-12
	weekdays fieldSet // 0-6, 0 = Sunday
}

type fieldSet []int

func (f fieldSet) has(v int) bool {
	for _, x := range f {
		if x == v {
			return true
		}
	}
	return false
}

// ParseCronExpression parses "minute hour day month weekday". Each field
// accepts *, a single value, a range n-m, a list n,m,o, or a step */s or
// n-m/s.
func ParseCronExpression(expr string) (*CronExpression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron %q: expected 5 fields, got %d", expr, len(fields))
	}

	ce := &CronExpression{raw: expr}
	spec := []struct {
		name     string
		min, max int
		dst      *fieldSet
	}{
		{"minute", 0, 59, &ce.minutes},
		{"hour", 0, 23, &ce.hours},
		{"day", 1, 31, &ce.days},
		{"month", 1, 12, &ce.months},
		{"weekday", 0, 6, &ce.weekdays},
	}

	for i, s := range spec {
		set, err := parseCronField(fields[i], s.min, s.max)
		if err != nil {
			return nil, fmt.Errorf("cron %q: %s field: %w", expr, s.name, err)
		}
		*s.dst = set
	}
	return ce, nil
}

func parseCronField(field string, min, max int) (fieldSet, error) {
	if field == "*" {
		set := make(fieldSet, 0, max-min+1)
		for v := min; v <= max; v++ {
			set = append(set, v)
		}
		return set, nil
	}

	if base, stepStr, ok := strings.Cut(field, "/"); ok {
		step, err := strconv.Atoi(stepStr)
		if err != nil || step <= 0 {
			return nil, fmt.Errorf("bad step %q", stepStr)
		}
		start, end := min, max
		switch {
		case base == "*":
		case strings.Contains(base, "-"):
			var rerr error
			start, end, rerr = parseCronRange(base)
			if rerr != nil {
				return nil, rerr
			}
		default:
			start, err = strconv.Atoi(base)
			if err != nil {
				return nil, fmt.Errorf("bad step base %q", base)
			}
		}
		var set fieldSet
		for v := start; v <= end; v += step {
			if v >= min && v <= max {
				set = append(set, v)
			}
		}
		return set, nil
	}

	if strings.Contains(field, "-") {
		start, end, err := parseCronRange(field)
		if err != nil {
			return nil, err
		}
		var set fieldSet
		for v := start; v <= end; v++ {
			if v >= min && v <= max {
				set = append(set, v)
			}
		}
		return set, nil
	}

	if strings.Contains(field, ",") {
		var set fieldSet
		for _, part := range strings.Split(field, ",") {
			v, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return nil, fmt.Errorf("bad list value %q", part)
			}
			if v >= min && v <= max {
				set = append(set, v)
			}
		}
		sort.Ints(set)
		return set, nil
	}

	v, err := strconv.Atoi(field)
	if err != nil {
		return nil, fmt.Errorf("bad value %q", field)
	}
	if v < min || v > max {
		return nil, fmt.Errorf("value %d outside [%d,%d]", v, min, max)
	}
	return fieldSet{v}, nil
}

func parseCronRange(s string) (int, int, error) {
	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, fmt.Errorf("bad range %q", s)
	}
	start, err := strconv.Atoi(lo)
	if err != nil {
		return 0, 0, fmt.Errorf("bad range start %q", lo)
	}
	end, err := strconv.Atoi(hi)
	if err != nil {
		return 0, 0, fmt.Errorf("bad range end %q", hi)
	}
	return start, end, nil
}

// String returns the raw expression.
func (ce *CronExpression) String() string {
	return ce.raw
}

// Next returns the first matching minute strictly after t. Scanning minute
// by minute is crude but bounded: any valid expression matches within a
// year.
func (ce *CronExpression) Next(after time.Time) time.Time {
	t := after.Add(time.Minute).Truncate(time.Minute)
	const yearOfMinutes = 366 * 24 * 60
	for i := 0; i < yearOfMinutes; i++ {
		if ce.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}
}

func (ce *CronExpression) matches(t time.Time) bool {
	return ce.minutes.has(t.Minute()) &&
		ce.hours.has(t.Hour()) &&
		ce.days.has(t.Day()) &&
		ce.months.has(int(t.Month())) &&
		ce.weekdays.has(int(t.Weekday()))
}

// ══════════════════════════════════════════════════════════════════════════════
// CRON SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// ErrCronAlreadyRunning is returned when Start is called twice.
var ErrCronAlreadyRunning = errors.New("scheduler: cron loop already running")

type cronEntry struct {
	name    string
	expr    *CronExpression
	job     Job
	lastRun time.Time
	nextRun time.Time
	runs    int64
}

// CronScheduler fires jobs at cron-expression wall-clock times. The worker
// runs the backfill through it so the full-corpus pass lands in the
// operator's off-peak window.
type CronScheduler struct {
	mu       sync.Mutex
	entries  map[string]*cronEntry
	log      *slog.Logger
	location *time.Location
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// CronOption configures the CronScheduler.
type CronOption func(*CronScheduler)

// WithLocation anchors expressions in a timezone. "0 3 * * *" then means
// 3 AM in that zone, not UTC.
func WithLocation(loc *time.Location) CronOption {
	return func(cs *CronScheduler) {
		cs.location = loc
	}
}

// WithCronLogger sets the logger.
func WithCronLogger(log *slog.Logger) CronOption {
	return func(cs *CronScheduler) {
		cs.log = log
	}
}

// NewCronScheduler creates a cron scheduler.
func NewCronScheduler(opts ...CronOption) *CronScheduler {
	cs := &CronScheduler{
		entries:  make(map[string]*cronEntry),
		log:      slog.Default(),
		location: time.Local,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(cs)
	}
	return cs
}

// AddJob registers a job under a cron expression. A second AddJob with the
// same name replaces the first.
func (cs *CronScheduler) AddJob(name string, cronExpr string, job Job) error {
	expr, err := ParseCronExpression(cronExpr)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	e := &cronEntry{
		name:    name,
		expr:    expr,
		job:     job,
		nextRun: expr.Next(time.Now().In(cs.location)),
	}
	cs.entries[name] = e

	cs.log.Info("cron job added",
		"job", name,
		"expression", cronExpr,
		"next_run", e.nextRun.Format(time.RFC3339),
	)
	return nil
}

// Start launches the minute-aligned loop.
func (cs *CronScheduler) Start(ctx context.Context) error {
	cs.mu.Lock()
	if cs.running {
		cs.mu.Unlock()
		return ErrCronAlreadyRunning
	}
	cs.running = true
	cs.stopCh = make(chan struct{})
	cs.mu.Unlock()

	cs.log.Info("cron scheduler started", "timezone", cs.location.String())

	cs.wg.Add(1)
	go cs.loop(ctx)
	return nil
}

// Stop ends the loop and waits for in-flight jobs. Safe to call on a
// scheduler that never started.
func (cs *CronScheduler) Stop() {
	cs.mu.Lock()
	if !cs.running {
		cs.mu.Unlock()
		return
	}
	cs.running = false
	close(cs.stopCh)
	cs.mu.Unlock()

	cs.wg.Wait()
	cs.log.Info("cron scheduler stopped")
}

func (cs *CronScheduler) loop(ctx context.Context) {
	defer cs.wg.Done()

	// Wake at the top of each minute so due times land exactly on the
	// minute the expression names.
	timer := time.NewTimer(cs.untilNextMinute())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cs.stopCh:
			return
		case <-timer.C:
			timer.Reset(cs.untilNextMinute())
			cs.fireDue(ctx)
		}
	}
}

func (cs *CronScheduler) untilNextMinute() time.Duration {
	now := time.Now().In(cs.location)
	return time.Until(now.Truncate(time.Minute).Add(time.Minute))
}

func (cs *CronScheduler) fireDue(ctx context.Context) {
	now := time.Now().In(cs.location)

	cs.mu.Lock()
	var due []*cronEntry
	for _, e := range cs.entries {
		if !e.nextRun.After(now) {
			e.lastRun = now
			e.nextRun = e.expr.Next(now)
			e.runs++
			due = append(due, e)
		}
	}
	cs.mu.Unlock()

	for _, e := range due {
		cs.wg.Add(1)
		go cs.execute(ctx, e)
	}
}

func (cs *CronScheduler) execute(ctx context.Context, e *cronEntry) {
	defer cs.wg.Done()

	started := time.Now()
	cs.log.Info("cron job started", "job", e.name, "runs", e.runs)

	err := e.job.Run(ctx)
	elapsed := time.Since(started)

	if err != nil {
		cs.log.Error("cron job failed",
			"job", e.name,
			"duration", elapsed.String(),
			"error", err,
		)
		return
	}
	cs.log.Info("cron job completed", "job", e.name, "duration", elapsed.String())
}
