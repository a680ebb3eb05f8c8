package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ══════════════════════════════════════════════════════════════════════════════
// INTERVAL
// ══════════════════════════════════════════════════════════════════════════════

// IntervalSchedule schedules a job to run at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{
		Interval: interval,
	}
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval.String())
}

// ══════════════════════════════════════════════════════════════════════════════
// CRON
// ══════════════════════════════════════════════════════════════════════════════

// CronSchedule runs a job on a standard five-field cron expression.
type CronSchedule struct {
	expr     string
	schedule cron.Schedule
	location *time.Location
}

// NewCronSchedule parses expr. Times are evaluated in loc (UTC when nil).
// Descriptors such as "@hourly" and "@every 30m" are accepted.
func NewCronSchedule(expr string, loc *time.Location) (*CronSchedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CronSchedule{expr: expr, schedule: sched, location: loc}, nil
}

// Next returns the next activation after t.
func (s *CronSchedule) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.location))
}

// String returns the cron expression.
func (s *CronSchedule) String() string {
	return s.expr
}

// ══════════════════════════════════════════════════════════════════════════════
// BOOTSTRAP
// ══════════════════════════════════════════════════════════════════════════════

// BootstrapSchedule fires once Delay after registration, then follows Then.
// It lets a freshly started worker catch up without waiting a full period.
type BootstrapSchedule struct {
	Delay time.Duration
	Then  Schedule

	mu    sync.Mutex
	fired bool
}

// NewBootstrapSchedule wraps then with a one-off initial delay.
func NewBootstrapSchedule(delay time.Duration, then Schedule) *BootstrapSchedule {
	return &BootstrapSchedule{Delay: delay, Then: then}
}

// Next returns t+Delay on the first call and Then.Next afterwards.
func (s *BootstrapSchedule) Next(t time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fired {
		s.fired = true
		return t.Add(s.Delay)
	}
	return s.Then.Next(t)
}

// String returns the string representation of the schedule.
func (s *BootstrapSchedule) String() string {
	return fmt.Sprintf("after %s, then %s", s.Delay, s.Then.String())
}
