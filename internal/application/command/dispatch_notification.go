// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/salonhub/salon-notifier/internal/domain/appointment"
	"github.com/salonhub/salon-notifier/internal/domain/notification"
	"github.com/salonhub/salon-notifier/internal/domain/settings"
	"github.com/salonhub/salon-notifier/internal/domain/shared"
	"github.com/salonhub/salon-notifier/pkg/timeutil"
)

// DefaultDeliveryTimeout bounds a single channel send.
const DefaultDeliveryTimeout = 15 * time.Second

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCH REQUEST
// Renders, records and delivers exactly one notification to one user.
// ══════════════════════════════════════════════════════════════════════════════

// AppointmentInfo is the appointment context rendered into reminder and
// appointment notifications.
type AppointmentInfo struct {
	ID          string
	StartTime   time.Time
	MasterName  string
	ServiceName string
}

// AppointmentInfoFrom extracts the rendering context of an appointment.
func AppointmentInfoFrom(a *appointment.Appointment) *AppointmentInfo {
	return &AppointmentInfo{
		ID:          a.ID,
		StartTime:   a.StartTime,
		MasterName:  a.MasterName,
		ServiceName: a.ServiceName,
	}
}

// DispatchRequest describes one notification.
type DispatchRequest struct {
	// UserID is the recipient.
	UserID string

	Kind    notification.Kind
	Channel notification.Channel

	// Reminder is required for appointment_reminder and only allowed there.
	Reminder *notification.ReminderKey

	// Appointment is required for reminders and rendered for other kinds when set.
	Appointment *AppointmentInfo

	// Data is stored as the record payload and exposed to templates.
	Data map[string]any

	// Settings pins the snapshot used for rendering. When nil the dispatcher
	// reads a fresh one.
	Settings *settings.Snapshot

	// At is the instant relative words such as "завтра" are rendered against,
	// normally the tick time. Zero means the dispatcher clock.
	At time.Time
}

// Validate checks the request preconditions.
func (r DispatchRequest) Validate() error {
	const op = "Dispatch"

	if r.UserID == "" {
		return shared.Precondition("notification", op, "user id is required")
	}
	if !r.Kind.IsValid() {
		return shared.Precondition("notification", op, fmt.Sprintf("unknown kind %q", r.Kind))
	}
	if !r.Channel.IsValid() {
		return shared.Precondition("notification", op, fmt.Sprintf("unknown channel %q", r.Channel))
	}

	if r.Kind != notification.KindAppointmentReminder {
		if r.Reminder != nil {
			return shared.Precondition("notification", op, "reminder key is only valid for appointment_reminder")
		}
		return nil
	}

	switch {
	case r.Reminder == nil || r.Appointment == nil:
		return shared.Precondition("notification", op, "reminder requires appointment and interval")
	case r.Reminder.Hours <= 0:
		return shared.Precondition("notification", op, fmt.Sprintf("reminder hours must be positive, got %d", r.Reminder.Hours))
	case r.Reminder.AppointmentID == "" || r.Reminder.AppointmentID != r.Appointment.ID:
		return shared.Precondition("notification", op, "reminder key does not match appointment")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// DispatcherConfig wires the dispatcher's collaborators.
type DispatcherConfig struct {
	Ledger    notification.Ledger
	Templates notification.TemplateStore
	Users     appointment.UserDirectory
	Settings  settings.Provider
	Sender    notification.ChannelSender

	// Events receives notification.sent / notification.failed. Optional.
	Events shared.EventPublisher

	// NewID generates record ids. Defaults to uuid.NewString.
	NewID func() string

	// Clock defaults to shared.SystemClock.
	Clock shared.Clock

	// DeliveryTimeout bounds one Sender.Send call.
	DeliveryTimeout time.Duration

	Logger *slog.Logger
}

// Dispatcher orchestrates render, ledger write, send and status update.
type Dispatcher struct {
	ledger    notification.Ledger
	templates notification.TemplateStore
	users     appointment.UserDirectory
	settings  settings.Provider
	sender    notification.ChannelSender
	events    shared.EventPublisher
	newID     func() string
	clock     shared.Clock
	timeout   time.Duration
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	var errs []error
	if cfg.Ledger == nil {
		errs = append(errs, errors.New("ledger is required"))
	}
	if cfg.Templates == nil {
		errs = append(errs, errors.New("template store is required"))
	}
	if cfg.Users == nil {
		errs = append(errs, errors.New("user directory is required"))
	}
	if cfg.Settings == nil {
		errs = append(errs, errors.New("settings provider is required"))
	}
	if cfg.Sender == nil {
		errs = append(errs, errors.New("channel sender is required"))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("dispatcher: %w", errors.Join(errs...))
	}

	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Clock == nil {
		cfg.Clock = shared.SystemClock{}
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Dispatcher{
		ledger:    cfg.Ledger,
		templates: cfg.Templates,
		users:     cfg.Users,
		settings:  cfg.Settings,
		sender:    cfg.Sender,
		events:    cfg.Events,
		newID:     cfg.NewID,
		clock:     cfg.Clock,
		timeout:   cfg.DeliveryTimeout,
		logger:    cfg.Logger.With("component", "dispatcher"),
	}, nil
}

// Dispatch renders and delivers one notification and returns its terminal
// record. Delivery failures end in a failed record and a nil error. Errors are
// returned only for invalid requests (shared.ErrPrecondition) and for ledger
// failures; in the latter case the record is returned too if it was created.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (*notification.Notification, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	snap := d.snapshot(ctx, req.Settings)
	contact, contactErr := d.users.GetContact(ctx, req.UserID)

	at := req.At
	if at.IsZero() {
		at = d.clock.Now()
	}
	data := templateData(req, contact, snap, at)
	title, body, renderErr := d.render(ctx, req.Kind, req.Channel, data)

	n, err := notification.NewNotification(notification.NewNotificationParams{
		ID:        d.newID(),
		UserID:    req.UserID,
		Kind:      req.Kind,
		Channel:   req.Channel,
		Title:     title,
		Body:      body,
		Payload:   req.Data,
		Reminder:  req.Reminder,
		CreatedAt: d.clock.Now(),
	})
	if err != nil {
		return nil, shared.WrapError("notification", "Dispatch", shared.ErrPrecondition, "invalid notification", err)
	}

	if err := d.ledger.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("dispatch: failed to create notification: %w", err)
	}

	deliveryErr := renderErr
	if deliveryErr == nil {
		deliveryErr = d.deliver(ctx, n, contact, contactErr)
	}

	return d.finish(ctx, n, deliveryErr)
}

// snapshot returns the pinned snapshot or reads a fresh one. Read failures
// fall back to defaults.
func (d *Dispatcher) snapshot(ctx context.Context, pinned *settings.Snapshot) settings.Snapshot {
	if pinned != nil {
		return *pinned
	}
	snap, err := d.settings.Snapshot(ctx)
	if err != nil {
		d.logger.Warn("settings unavailable, using defaults", "error", err)
		return settings.Default()
	}
	return snap
}

// render applies the active template or the built-in text. A template store
// failure is reported as a delivery error; defaults are still rendered so the
// record carries readable content.
func (d *Dispatcher) render(ctx context.Context, kind notification.Kind, channel notification.Channel, data map[string]any) (string, string, error) {
	tmpl, err := d.templates.FindActive(ctx, kind, channel)
	if err != nil {
		return notification.DefaultTitle(kind), notification.DefaultBody(kind, data),
			fmt.Errorf("template lookup failed: %w", err)
	}
	if tmpl != nil {
		title, body := tmpl.Apply(data)
		return title, body, nil
	}
	return notification.DefaultTitle(kind), notification.DefaultBody(kind, data), nil
}

// deliver resolves the address and calls the sender under the delivery timeout.
func (d *Dispatcher) deliver(ctx context.Context, n *notification.Notification, contact appointment.Contact, contactErr error) error {
	if contactErr != nil {
		if shared.IsNotFound(contactErr) {
			return &notification.MissingAddressError{UserID: n.UserID, Channel: n.Channel}
		}
		return fmt.Errorf("resolve recipient %s: %w", n.UserID, contactErr)
	}

	address, err := notification.AddressFor(contact, n.Channel)
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	return d.safeSend(sendCtx, n.Channel, address, n.Title, n.Body)
}

func (d *Dispatcher) safeSend(ctx context.Context, channel notification.Channel, address, title, body string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel %s panicked: %v", channel, r)
		}
	}()
	return d.sender.Send(ctx, channel, address, title, body)
}

// finish writes the terminal status exactly once and publishes the outcome.
func (d *Dispatcher) finish(ctx context.Context, n *notification.Notification, deliveryErr error) (*notification.Notification, error) {
	if deliveryErr == nil {
		_ = n.MarkSent(d.clock.Now())
	} else {
		_ = n.MarkFailed(deliveryErr.Error())
	}

	// The terminal write must survive caller cancellation after a send.
	writeCtx := context.WithoutCancel(ctx)
	if err := d.ledger.UpdateStatus(writeCtx, n.ID, n.Status, n.SentAt, n.Error); err != nil {
		d.logger.Error("failed to persist notification status",
			"notification_id", n.ID,
			"status", n.Status,
			"error", err,
		)
		return n, fmt.Errorf("dispatch: failed to update status: %w", err)
	}

	logArgs := []any{
		"notification_id", n.ID,
		"user_id", n.UserID,
		"kind", n.Kind,
		"channel", n.Channel,
		"status", n.Status,
	}
	if n.Status == notification.StatusFailed {
		d.logger.Warn("notification delivery failed", append(logArgs, "error", n.Error)...)
	} else {
		d.logger.Debug("notification delivered", logArgs...)
	}

	d.publish(writeCtx, dispatchedEvent(n, d.clock.Now()))
	return n, nil
}

func (d *Dispatcher) publish(ctx context.Context, event shared.Event) {
	if d.events == nil {
		return
	}
	if err := d.events.Publish(ctx, event); err != nil {
		d.logger.Warn("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}

func dispatchedEvent(n *notification.Notification, at time.Time) shared.NotificationDispatchedEvent {
	eventType := shared.EventNotificationSent
	if n.Status == notification.StatusFailed {
		eventType = shared.EventNotificationFailed
	}
	return shared.NotificationDispatchedEvent{
		BaseEvent:   shared.NewBaseEvent(eventType, n.ID, at),
		UserID:      n.UserID,
		Kind:        n.Kind.String(),
		Channel:     n.Channel.String(),
		Status:      n.Status.String(),
		BroadcastID: n.BroadcastID,
		Error:       n.Error,
	}
}

// templateData builds the rendering context: the request data plus user,
// appointment, master, service and reminder sections. Times are rendered in
// the salon timezone.
func templateData(req DispatchRequest, contact appointment.Contact, snap settings.Snapshot, now time.Time) map[string]any {
	data := make(map[string]any, len(req.Data)+6)
	for k, v := range req.Data {
		data[k] = v
	}

	data["user"] = map[string]any{
		"id":   req.UserID,
		"name": contact.Name,
	}

	if a := req.Appointment; a != nil {
		loc := snap.Location()
		data["appointment"] = map[string]any{
			"id":        a.ID,
			"date":      timeutil.FormatDate(a.StartTime, loc),
			"time":      timeutil.FormatTime(a.StartTime, loc),
			"startTime": timeutil.FormatDateTime(a.StartTime, loc),
			"day":       timeutil.DayWordRu(a.StartTime, now, loc),
			"weekday":   timeutil.WeekdayNameRu(a.StartTime, loc),
		}
		data["master"] = map[string]any{"name": a.MasterName}
		data["service"] = map[string]any{"name": a.ServiceName}
	}

	if r := req.Reminder; r != nil {
		data["reminder"] = map[string]any{
			"hours":  r.Hours,
			"phrase": notification.ReminderPhrase(r.Hours),
		}
	}

	return data
}
