// Package jobs contains the scheduled jobs of the notifier.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/salonhub/salon-notifier/internal/application/command"
	"github.com/salonhub/salon-notifier/internal/domain/appointment"
	"github.com/salonhub/salon-notifier/internal/domain/notification"
	"github.com/salonhub/salon-notifier/internal/domain/settings"
	"github.com/salonhub/salon-notifier/internal/domain/shared"
	"github.com/salonhub/salon-notifier/internal/infrastructure/scheduler"
)

// SendRemindersJobName is the scheduler name of the reminder tick.
const SendRemindersJobName = "send_reminders"

// ErrClientNotLoaded is counted when an appointment arrives without its client
// and no user directory is wired.
var ErrClientNotLoaded = errors.New("appointment client not loaded")

// ══════════════════════════════════════════════════════════════════════════════
// SEND REMINDERS JOB
// ══════════════════════════════════════════════════════════════════════════════

// ReminderDispatcher delivers one reminder. *command.Dispatcher implements it.
type ReminderDispatcher interface {
	Dispatch(ctx context.Context, req command.DispatchRequest) (*notification.Notification, error)
}

// SendRemindersConfig contains configuration for the reminder tick.
type SendRemindersConfig struct {
	// Horizon bounds how far ahead appointments are loaded (default: 48h).
	Horizon time.Duration

	// Channel is the delivery channel of reminders (default: telegram).
	Channel notification.Channel

	// Concurrency is the number of appointments processed in parallel (default: 1).
	Concurrency int

	// Timeout bounds one tick. Zero means no limit.
	Timeout time.Duration
}

// DefaultSendRemindersConfig returns sensible defaults.
func DefaultSendRemindersConfig() SendRemindersConfig {
	return SendRemindersConfig{
		Horizon:     48 * time.Hour,
		Channel:     notification.ChannelTelegram,
		Concurrency: 1,
		Timeout:     10 * time.Minute,
	}
}

// SendRemindersDeps wires the collaborators of the job.
type SendRemindersDeps struct {
	Appointments appointment.Repository
	Ledger       notification.Ledger
	Settings     settings.Provider
	Dispatcher   ReminderDispatcher

	// Users is optional. It resolves reminder preferences of appointments
	// loaded without their client.
	Users appointment.UserDirectory

	// Guard is optional. Without it overlapping ticks rely on the ledger check.
	Guard scheduler.TickGuard

	// Events is optional.
	Events shared.EventPublisher

	Clock  shared.Clock
	Logger *slog.Logger
}

// TickStats contains the aggregate outcome of one tick.
type TickStats struct {
	StartedAt    time.Time     `json:"startedAt"`
	Appointments int           `json:"appointments"`
	Sent         int           `json:"sent"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"`
	Errors       int           `json:"errors"`
	Aborted      bool          `json:"aborted"`
	Contended    bool          `json:"contended,omitempty"`
	Duration     time.Duration `json:"-"`
	DurationMS   int64         `json:"durationMs"`
}

// SendRemindersJob sends appointment reminders whose window is open.
type SendRemindersJob struct {
	appointments appointment.Repository
	ledger       notification.Ledger
	settings     settings.Provider
	dispatcher   ReminderDispatcher
	users        appointment.UserDirectory
	guard        scheduler.TickGuard
	events       shared.EventPublisher
	clock        shared.Clock
	logger       *slog.Logger

	config SendRemindersConfig

	lastStats atomic.Pointer[TickStats]
}

// NewSendRemindersJob creates a new reminder job.
func NewSendRemindersJob(deps SendRemindersDeps, config SendRemindersConfig) (*SendRemindersJob, error) {
	var errs []error
	if deps.Appointments == nil {
		errs = append(errs, errors.New("appointment repository is required"))
	}
	if deps.Ledger == nil {
		errs = append(errs, errors.New("ledger is required"))
	}
	if deps.Settings == nil {
		errs = append(errs, errors.New("settings provider is required"))
	}
	if deps.Dispatcher == nil {
		errs = append(errs, errors.New("dispatcher is required"))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("send_reminders: %w", errors.Join(errs...))
	}

	defaults := DefaultSendRemindersConfig()
	if config.Horizon <= 0 {
		config.Horizon = defaults.Horizon
	}
	if config.Channel == "" {
		config.Channel = defaults.Channel
	}
	if !config.Channel.IsValid() {
		return nil, fmt.Errorf("send_reminders: unknown channel %q", config.Channel)
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if deps.Clock == nil {
		deps.Clock = shared.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &SendRemindersJob{
		appointments: deps.Appointments,
		ledger:       deps.Ledger,
		settings:     deps.Settings,
		dispatcher:   deps.Dispatcher,
		users:        deps.Users,
		guard:        deps.Guard,
		events:       deps.Events,
		clock:        deps.Clock,
		logger:       deps.Logger.With("component", "send_reminders"),
		config:       config,
	}, nil
}

var _ scheduler.Job = (*SendRemindersJob)(nil)

// Name returns the job name.
func (j *SendRemindersJob) Name() string {
	return SendRemindersJobName
}

// Description returns a human-readable description.
func (j *SendRemindersJob) Description() string {
	return "Sends appointment reminders whose interval window is open"
}

// Run executes one tick. Tick failures are reported in the stats, never as
// an error.
func (j *SendRemindersJob) Run(ctx context.Context) error {
	j.TickNow(ctx)
	return nil
}

// TickNow runs one tick at the current clock time.
func (j *SendRemindersJob) TickNow(ctx context.Context) TickStats {
	return j.Tick(ctx, j.clock.Now())
}

// LastStats returns the stats of the most recent tick, or nil.
func (j *SendRemindersJob) LastStats() *TickStats {
	return j.lastStats.Load()
}

// Tick evaluates every upcoming appointment against now. Each appointment
// gets at most one reminder per tick: the first unsent interval with an open
// window in configured order.
func (j *SendRemindersJob) Tick(ctx context.Context, now time.Time) (stats TickStats) {
	stats.StartedAt = now
	started := time.Now()
	defer func() {
		stats.Duration = time.Since(started)
		stats.DurationMS = stats.Duration.Milliseconds()
		snapshot := stats
		j.lastStats.Store(&snapshot)
	}()

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	if j.guard != nil {
		release, acquired, err := j.guard.TryAcquire(ctx, j.Name())
		switch {
		case err != nil:
			j.logger.Warn("tick guard unavailable, running unguarded", "error", err)
		case !acquired:
			j.logger.Info("another tick is running, skipping")
			stats.Contended = true
			return stats
		default:
			defer release()
		}
	}

	snap, err := j.settings.Snapshot(ctx)
	if err != nil {
		j.logger.Warn("settings unavailable, using defaults", "error", err)
		snap = settings.Default()
	}

	appts, err := j.appointments.FindConfirmedStartingBefore(ctx, now, now.Add(j.config.Horizon))
	if err != nil {
		j.logger.Error("failed to load upcoming appointments", "error", err)
		stats.Errors++
		stats.Aborted = true
		j.finish(ctx, &stats, started)
		return stats
	}
	stats.Appointments = len(appts)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.Concurrency)

	for _, a := range appts {
		if gctx.Err() != nil {
			stats.Aborted = true
			break
		}
		g.Go(func() error {
			result, err := j.processSafe(gctx, a, now, snap)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				stats.Errors++
				j.logger.Error("reminder evaluation failed", "appointment_id", a.ID, "error", err)
			case result == outcomeSent:
				stats.Sent++
			case result == outcomeFailed:
				stats.Failed++
			default:
				stats.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		stats.Aborted = true
	}

	j.finish(ctx, &stats, started)
	return stats
}

func (j *SendRemindersJob) finish(ctx context.Context, stats *TickStats, started time.Time) {
	j.logger.Info("reminder tick completed",
		"appointments", stats.Appointments,
		"sent", stats.Sent,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
		"aborted", stats.Aborted,
		"duration", time.Since(started).String(),
	)

	if j.events == nil {
		return
	}
	event := shared.ReminderTickCompletedEvent{
		BaseEvent:    shared.NewBaseEvent(shared.EventReminderTickCompleted, j.Name(), j.clock.Now()),
		Appointments: stats.Appointments,
		Sent:         stats.Sent,
		Failed:       stats.Failed,
		Skipped:      stats.Skipped,
		Errors:       stats.Errors,
	}
	if err := j.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		j.logger.Warn("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PER-APPOINTMENT EVALUATION
// ══════════════════════════════════════════════════════════════════════════════

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSent
	outcomeFailed
)

func (j *SendRemindersJob) processSafe(ctx context.Context, a *appointment.Appointment, now time.Time, snap settings.Snapshot) (result outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = outcomeSkipped, fmt.Errorf("panic while evaluating appointment: %v", r)
		}
	}()
	return j.process(ctx, a, now, snap)
}

func (j *SendRemindersJob) process(ctx context.Context, a *appointment.Appointment, now time.Time, snap settings.Snapshot) (outcome, error) {
	if a == nil || !a.IsReminderEligible(now) {
		return outcomeSkipped, nil
	}
	userID, pref, err := j.reminderPreference(ctx, a)
	if err != nil {
		return outcomeSkipped, err
	}
	if !pref.Enabled {
		return outcomeSkipped, nil
	}

	intervals := notification.EffectiveIntervals(pref, snap.Intervals())
	for _, h := range notification.OpenWindows(a.HoursUntil(now), intervals) {
		sent, err := j.ledger.ExistsSentReminder(ctx, userID, a.ID, h)
		if err != nil {
			return outcomeSkipped, fmt.Errorf("failed to check sent reminder %s/%dh: %w", a.ID, h, err)
		}
		if sent {
			continue
		}

		n, err := j.dispatcher.Dispatch(ctx, command.DispatchRequest{
			UserID:      userID,
			Kind:        notification.KindAppointmentReminder,
			Channel:     j.config.Channel,
			Reminder:    &notification.ReminderKey{AppointmentID: a.ID, Hours: h},
			Appointment: command.AppointmentInfoFrom(a),
			Settings:    &snap,
			At:          now,
		})
		if err != nil {
			return outcomeSkipped, fmt.Errorf("failed to dispatch reminder %s/%dh: %w", a.ID, h, err)
		}
		if n.Status == notification.StatusSent {
			return outcomeSent, nil
		}
		return outcomeFailed, nil
	}

	return outcomeSkipped, nil
}

// reminderPreference returns the recipient and preference of a. Without a
// loaded client the preference comes from the user directory.
func (j *SendRemindersJob) reminderPreference(ctx context.Context, a *appointment.Appointment) (string, appointment.ReminderPreference, error) {
	if a.Client != nil {
		userID := a.ClientID
		if userID == "" {
			userID = a.Client.ID
		}
		return userID, a.Client.Reminders, nil
	}
	if j.users == nil || a.ClientID == "" {
		return "", appointment.ReminderPreference{}, ErrClientNotLoaded
	}

	pref, err := j.users.GetReminderPreference(ctx, a.ClientID)
	if err != nil {
		return "", appointment.ReminderPreference{}, fmt.Errorf("failed to load reminder preference of %s: %w", a.ClientID, err)
	}
	return a.ClientID, pref, nil
}
