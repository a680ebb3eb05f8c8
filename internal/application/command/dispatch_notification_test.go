package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonhub/salon-notifier/internal/domain/notification"
	"github.com/salonhub/salon-notifier/internal/domain/settings"
	"github.com/salonhub/salon-notifier/internal/domain/shared"
)

func TestDispatcher_ReminderWithDefaultText(t *testing.T) {
	f := newFixture(t)

	n, err := f.dispatcher.Dispatch(context.Background(), reminderRequest("u-anna", 24))
	require.NoError(t, err)

	assert.Equal(t, notification.StatusSent, n.Status)
	assert.Equal(t, "Напоминание о записи", n.Title)
	assert.Equal(t, "Напоминаем: завтра у вас запись на Стрижка к мастеру Ирина (10.06.2024 в 13:00).", n.Body)
	require.NotNil(t, n.SentAt)
	assert.Equal(t, testNow, *n.SentAt)

	require.Len(t, f.sender.Calls(), 1)
	assert.Equal(t, sendCall{
		Channel: notification.ChannelTelegram,
		Address: "1001",
		Title:   n.Title,
		Body:    n.Body,
	}, f.sender.Calls()[0])

	stored, ok := f.ledger.Get(n.ID)
	require.True(t, ok)
	assert.Equal(t, notification.StatusSent, stored.Status)
	assert.Equal(t, "a-1", stored.Payload[notification.PayloadAppointmentID])
	assert.Equal(t, 24, stored.Payload[notification.PayloadReminderHours])
	assert.Equal(t, &notification.ReminderKey{AppointmentID: "a-1", Hours: 24}, stored.Reminder)

	sent, err := f.ledger.ExistsSentReminder(context.Background(), "u-anna", "a-1", 24)
	require.NoError(t, err)
	assert.True(t, sent)

	assert.Equal(t, []shared.EventType{shared.EventNotificationSent}, f.events.Types())
}

func TestDispatcher_ReminderPhrasePerInterval(t *testing.T) {
	f := newFixture(t)

	n, err := f.dispatcher.Dispatch(context.Background(), reminderRequest("u-anna", 2))
	require.NoError(t, err)
	assert.Contains(t, n.Body, "через 2 часа")
}

func TestDispatcher_DayWordFollowsRequestInstant(t *testing.T) {
	f := newFixture(t)
	// The dispatcher clock is on the appointment day, the tick ran the day before.
	f.clock.Set(time.Date(2024, 6, 10, 6, 0, 0, 0, time.UTC))
	f.templates.Put(&notification.Template{
		ID:      "t-day",
		Kind:    notification.KindAppointmentReminder,
		Channel: notification.ChannelTelegram,
		Subject: "Напоминание",
		Body:    "{{appointment.day}} в {{appointment.time}}",
		Active:  true,
	})

	req := reminderRequest("u-anna", 24)
	req.At = testNow

	n, err := f.dispatcher.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "завтра в 13:00", n.Body)

	n, err = f.dispatcher.Dispatch(context.Background(), reminderRequest("u-boris", 24))
	require.NoError(t, err)
	assert.Equal(t, "сегодня в 13:00", n.Body)
}

func TestDispatcher_RendersActiveTemplate(t *testing.T) {
	f := newFixture(t)
	f.templates.Put(&notification.Template{
		ID:      "t-1",
		Kind:    notification.KindAppointmentReminder,
		Channel: notification.ChannelTelegram,
		Subject: "{{user.name}}, напоминание",
		Body:    "{{service.name}} в {{appointment.time}}{{unknown.path}} ({{reminder.hours}} ч)",
		Active:  true,
	})

	n, err := f.dispatcher.Dispatch(context.Background(), reminderRequest("u-anna", 24))
	require.NoError(t, err)
	assert.Equal(t, "Анна, напоминание", n.Title)
	assert.Equal(t, "Стрижка в 13:00 (24 ч)", n.Body)
}

func TestDispatcher_PinnedSnapshotIsUsed(t *testing.T) {
	f := newFixture(t)
	snap := settings.Default()
	snap.Timezone = time.UTC

	req := reminderRequest("u-anna", 24)
	req.Settings = &snap

	n, err := f.dispatcher.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, n.Body, "10.06.2024 в 10:00")
	assert.Zero(t, f.settings.Reads())
}

func TestDispatcher_MissingAddressFails(t *testing.T) {
	f := newFixture(t)

	n, err := f.dispatcher.Dispatch(context.Background(), DispatchRequest{
		UserID:  "u-anna",
		Kind:    notification.KindBonusEarned,
		Channel: notification.ChannelSMS,
		Data:    map[string]any{"bonus": map[string]any{"amount": 150, "balance": 900}},
	})
	require.NoError(t, err)

	assert.Equal(t, notification.StatusFailed, n.Status)
	assert.Equal(t, "recipient u-anna has no sms address", n.Error)
	assert.Equal(t, "Вам начислено 150 бонусов. Баланс: 900.", n.Body)
	assert.Empty(t, f.sender.Calls())
	assert.Equal(t, []shared.EventType{shared.EventNotificationFailed}, f.events.Types())
}

func TestDispatcher_UnknownUserFails(t *testing.T) {
	f := newFixture(t)

	n, err := f.dispatcher.Dispatch(context.Background(), reminderRequest("u-ghost", 24))
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFailed, n.Status)
	assert.Equal(t, "recipient u-ghost has no telegram address", n.Error)
}

func TestDispatcher_SenderErrorFails(t *testing.T) {
	f := newFixture(t)
	f.sender.send = func(context.Context, sendCall) error {
		return errors.New("telegram api error 403: Forbidden: bot was blocked by the user")
	}

	n, err := f.dispatcher.Dispatch(context.Background(), reminderRequest("u-anna", 24))
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFailed, n.Status)
	assert.Equal(t, "telegram api error 403: Forbidden: bot was blocked by the user", n.Error)
	assert.Nil(t, n.SentAt)

	sent, err := f.ledger.ExistsSentReminder(context.Background(), "u-anna", "a-1", 24)
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestDispatcher_SenderPanicFails(t *testing.T) {
	f := newFixture(t)
	f.sender.send = func(context.Context, sendCall) error { panic("nil transport") }

	n, err := f.dispatcher.Dispatch(context.Background(), reminderRequest("u-anna", 24))
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFailed, n.Status)
	assert.Contains(t, n.Error, "panicked")
}

func TestDispatcher_DeliveryTimeout(t *testing.T) {
	f := newFixture(t)
	d, err := NewDispatcher(DispatcherConfig{
		Ledger:          f.ledger,
		Templates:       f.templates,
		Users:           f.users,
		Settings:        f.settings,
		Sender:          f.sender,
		Clock:           f.clock,
		DeliveryTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	f.sender.send = func(ctx context.Context, _ sendCall) error {
		<-ctx.Done()
		return ctx.Err()
	}

	n, err := d.Dispatch(context.Background(), reminderRequest("u-anna", 24))
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFailed, n.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), n.Error)
	assert.Len(t, n.ID, 36)
}

func TestDispatcher_TemplateLookupFailureIsDeliveryFailure(t *testing.T) {
	f := newFixture(t)
	f.templates.Err = errors.New("connection reset")

	n, err := f.dispatcher.Dispatch(context.Background(), reminderRequest("u-anna", 24))
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFailed, n.Status)
	assert.Contains(t, n.Error, "template lookup failed")
	assert.Equal(t, "Напоминание о записи", n.Title)
	assert.Empty(t, f.sender.Calls())
}

func TestDispatcher_Preconditions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *DispatchRequest)
	}{
		{"empty user", func(r *DispatchRequest) { r.UserID = "" }},
		{"unknown kind", func(r *DispatchRequest) { r.Kind = "sms_blast" }},
		{"unknown channel", func(r *DispatchRequest) { r.Channel = "pigeon" }},
		{"reminder without appointment", func(r *DispatchRequest) { r.Appointment = nil }},
		{"reminder without key", func(r *DispatchRequest) { r.Reminder = nil }},
		{"non-positive hours", func(r *DispatchRequest) { r.Reminder.Hours = 0 }},
		{"key mismatch", func(r *DispatchRequest) { r.Reminder.AppointmentID = "a-2" }},
		{"key on other kind", func(r *DispatchRequest) { r.Kind = notification.KindAppointmentConfirmed }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := reminderRequest("u-anna", 24)
			tt.mutate(&req)

			n, err := f.dispatcher.Dispatch(context.Background(), req)
			assert.Nil(t, n)
			assert.True(t, shared.IsPrecondition(err), "got %v", err)
			assert.Zero(t, f.ledger.Len())
			assert.Empty(t, f.sender.Calls())
		})
	}
}

func TestDispatcher_LedgerCreateFailure(t *testing.T) {
	f := newFixture(t)
	f.ledger.FailOn["Create"] = errors.New("db down")

	n, err := f.dispatcher.Dispatch(context.Background(), reminderRequest("u-anna", 24))
	assert.Nil(t, n)
	assert.ErrorContains(t, err, "db down")
	assert.False(t, shared.IsPrecondition(err))
	assert.Empty(t, f.sender.Calls())
}

func TestDispatcher_StatusUpdateFailure(t *testing.T) {
	f := newFixture(t)
	f.ledger.FailOn["UpdateStatus"] = errors.New("db down")

	n, err := f.dispatcher.Dispatch(context.Background(), reminderRequest("u-anna", 24))
	require.Error(t, err)
	require.NotNil(t, n)
	assert.Equal(t, notification.StatusSent, n.Status)
	assert.Empty(t, f.events.Types())
}

func TestNewDispatcher_RequiresCollaborators(t *testing.T) {
	_, err := NewDispatcher(DispatcherConfig{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "ledger is required")
	assert.ErrorContains(t, err, "channel sender is required")
}
