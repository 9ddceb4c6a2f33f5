package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule runs a job at a fixed cadence measured from the end of
// the previous due time, not from job completion. The incremental import
// uses it: the overlap window in the import job absorbs any jitter.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates a fixed-cadence schedule. Intervals below a
// second are rounded up so a misconfigured cadence cannot spin the loop.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	if interval < time.Second {
		interval = time.Second
	}
	return &IntervalSchedule{Interval: interval}
}

// Next implements Schedule.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String implements Schedule.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval)
}
