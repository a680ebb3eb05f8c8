// Package scheduler runs periodic background jobs of the notifier, such as
// the appointment reminder tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job is a unit of scheduled work.
type Job interface {
	Name() string
	// Run is cancelled when the scheduler stops.
	Run(ctx context.Context) error
	Description() string
}

// Schedule computes activation times.
type Schedule interface {
	// Next returns the first activation strictly after t.
	Next(t time.Time) time.Time
	String() string
}

// PeriodicRunner registers plain functions to run on a fixed cadence.
type PeriodicRunner interface {
	RegisterPeriodic(name string, every time.Duration, fn func(context.Context) error) error
}

// FuncJob adapts a function to Job.
type FuncJob struct {
	JobName string
	Desc    string
	Fn      func(context.Context) error
}

func (j FuncJob) Name() string                  { return j.JobName }
func (j FuncJob) Run(ctx context.Context) error { return j.Fn(ctx) }

func (j FuncJob) Description() string {
	if j.Desc == "" {
		return "periodic " + j.JobName
	}
	return j.Desc
}

// JobResult describes one execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
	Manual      bool
}

var (
	ErrNilJob                  = errors.New("job cannot be nil")
	ErrNilSchedule             = errors.New("schedule cannot be nil")
	ErrJobAlreadyExists        = errors.New("job already exists")
	ErrJobNotFound             = errors.New("job not found")
	ErrJobRunning              = errors.New("job is already running")
	ErrJobPanicked             = errors.New("job panicked")
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// SchedulerConfig contains configuration for the Scheduler.
type SchedulerConfig struct {
	Logger *slog.Logger

	// Timezone is passed to schedules (default: UTC).
	Timezone *time.Location
}

// DefaultSchedulerConfig returns the UTC configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{Logger: slog.Default(), Timezone: time.UTC}
}

// Scheduler gives every registered job its own loop. A job never runs
// concurrently with itself: a slot that comes due while the job is still
// running, scheduled or manual, is skipped.
type Scheduler struct {
	logger   *slog.Logger
	timezone *time.Location

	mu        sync.Mutex
	jobs      map[string]*scheduledJob
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time
	wg        sync.WaitGroup
}

type scheduledJob struct {
	job      Job
	schedule Schedule
	running  sync.Mutex

	// guarded by Scheduler.mu
	nextRun time.Time
	stats   JobStats
	last    *JobResult
}

// JobStats are per-job counters.
type JobStats struct {
	Runs     int64 `json:"runs"`
	Failures int64 `json:"failures"`
	Skipped  int64 `json:"skipped"`
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}
	return &Scheduler{
		logger:   config.Logger.With("component", "scheduler"),
		timezone: config.Timezone,
		jobs:     make(map[string]*scheduledJob),
	}
}

var _ PeriodicRunner = (*Scheduler)(nil)

// Register adds job. On a running scheduler its loop starts right away.
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
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}
	sj := &scheduledJob{job: job, schedule: schedule}
	s.jobs[name] = sj

	s.logger.Info("job registered",
		"job", name,
		"description", job.Description(),
		"schedule", schedule.String(),
	)

	if s.ctx != nil {
		s.spawn(sj)
	}
	return nil
}

// RegisterPeriodic registers fn to run every interval.
func (s *Scheduler) RegisterPeriodic(name string, every time.Duration, fn func(context.Context) error) error {
	if name == "" || fn == nil {
		return ErrNilJob
	}
	if every <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", ErrNilSchedule, every)
	}
	return s.Register(FuncJob{JobName: name, Fn: fn}, NewIntervalSchedule(every))
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start launches the job loops. They stop with ctx or Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.startedAt = time.Now()

	for _, sj := range s.jobs {
		s.spawn(sj)
	}
	s.logger.Info("scheduler started", "jobs_count", len(s.jobs))
	return nil
}

// Stop cancels the loops and waits for running jobs to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.cancel()
	s.ctx, s.cancel = nil, nil
	startedAt := s.startedAt
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped", "uptime", time.Since(startedAt).String())
	return nil
}

// IsRunning reports whether Start was called without a matching Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx != nil
}

// spawn must be called with s.mu held.
func (s *Scheduler) spawn(sj *scheduledJob) {
	ctx := s.ctx
	sj.nextRun = sj.schedule.Next(time.Now().In(s.timezone))
	s.wg.Add(1)
	go s.loop(ctx, sj)
}

func (s *Scheduler) loop(ctx context.Context, sj *scheduledJob) {
	defer s.wg.Done()

	timer := time.NewTimer(s.untilNext(sj))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if sj.running.TryLock() {
			result := s.execute(ctx, sj, false)
			sj.running.Unlock()
			s.logResult(result)
		} else {
			s.mu.Lock()
			sj.stats.Skipped++
			s.mu.Unlock()
			s.logger.Warn("job still running, skipping slot", "job", sj.job.Name())
		}

		s.mu.Lock()
		sj.nextRun = sj.schedule.Next(time.Now().In(s.timezone))
		s.mu.Unlock()
		timer.Reset(s.untilNext(sj))
	}
}

func (s *Scheduler) untilNext(sj *scheduledJob) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return max(time.Until(sj.nextRun), 0)
}

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

// RunNow executes a job outside its schedule. It fails with ErrJobRunning
// while the same job is in flight.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (*JobResult, error) {
	s.mu.Lock()
	sj, exists := s.jobs[jobName]
	s.mu.Unlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	if !sj.running.TryLock() {
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, jobName)
	}
	result := s.execute(ctx, sj, true)
	sj.running.Unlock()

	s.logResult(result)
	return result, result.Error
}

func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob, manual bool) *JobResult {
	name := sj.job.Name()
	s.logger.Debug("job started", "job", name, "manual", manual)

	started := time.Now()
	err := safeRun(ctx, sj.job)
	completed := time.Now()

	result := &JobResult{
		JobName:     name,
		StartedAt:   started,
		CompletedAt: completed,
		Duration:    completed.Sub(started),
		Success:     err == nil,
		Error:       err,
		Manual:      manual,
	}

	s.mu.Lock()
	sj.stats.Runs++
	if err != nil {
		sj.stats.Failures++
	}
	sj.last = result
	s.mu.Unlock()

	return result
}

func (s *Scheduler) logResult(r *JobResult) {
	if r.Error != nil {
		s.logger.Error("job failed",
			"job", r.JobName,
			"manual", r.Manual,
			"duration", r.Duration.String(),
			"error", r.Error,
		)
		return
	}
	s.logger.Info("job completed",
		"job", r.JobName,
		"manual", r.Manual,
		"duration", r.Duration.String(),
	)
}

func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrJobPanicked, job.Name(), r)
		}
	}()
	return job.Run(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo describes a registered job.
type JobInfo struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Schedule    string     `json:"schedule"`
	NextRun     time.Time  `json:"nextRun"`
	Stats       JobStats   `json:"stats"`
	LastResult  *JobResult `json:"-"`
}

// ListJobs returns the registered jobs in name order.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		infos = append(infos, JobInfo{
			Name:        name,
			Description: sj.job.Description(),
			Schedule:    sj.schedule.String(),
			NextRun:     sj.nextRun,
			Stats:       sj.stats,
			LastResult:  sj.last,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
