package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonhub/salon-notifier/internal/domain/appointment"
	"github.com/salonhub/salon-notifier/internal/domain/notification"
	"github.com/salonhub/salon-notifier/internal/domain/shared"
)

func newReminder(t *testing.T, id, user, appt string, hours int, at time.Time) *notification.Notification {
	t.Helper()
	n, err := notification.NewNotification(notification.NewNotificationParams{
		ID:        id,
		UserID:    user,
		Kind:      notification.KindAppointmentReminder,
		Channel:   notification.ChannelTelegram,
		Reminder:  &notification.ReminderKey{AppointmentID: appt, Hours: hours},
		CreatedAt: at,
	})
	require.NoError(t, err)
	return n
}

func TestLedger_ReminderDedup(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	at := time.Date(2024, 6, 9, 10, 0, 0, 0, time.UTC)

	n := newReminder(t, "n1", "u1", "a1", 24, at)
	require.NoError(t, l.Create(ctx, n))

	exists, err := l.ExistsSentReminder(ctx, "u1", "a1", 24)
	require.NoError(t, err)
	assert.False(t, exists, "pending does not count")

	require.NoError(t, l.UpdateStatus(ctx, "n1", notification.StatusSent, &at, ""))

	exists, err = l.ExistsSentReminder(ctx, "u1", "a1", 24)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, _ = l.ExistsSentReminder(ctx, "u1", "a1", 2)
	assert.False(t, exists)
	exists, _ = l.ExistsSentReminder(ctx, "u2", "a1", 24)
	assert.False(t, exists)
}

func TestLedger_FailedReminderDoesNotDedup(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	at := time.Date(2024, 6, 9, 10, 0, 0, 0, time.UTC)

	require.NoError(t, l.Create(ctx, newReminder(t, "n1", "u1", "a1", 24, at)))
	require.NoError(t, l.UpdateStatus(ctx, "n1", notification.StatusFailed, nil, "timeout"))

	exists, err := l.ExistsSentReminder(ctx, "u1", "a1", 24)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLedger_LegacyPayloadReminder(t *testing.T) {
	l := NewLedger()
	l.Put(&notification.Notification{
		ID:      "old",
		UserID:  "u1",
		Kind:    notification.KindAppointmentReminder,
		Channel: notification.ChannelTelegram,
		Status:  notification.StatusSent,
		// значения из JSON приходят как float64
		Payload: map[string]any{"appointmentId": "a1", "reminderHours": float64(2)},
	})

	exists, err := l.ExistsSentReminder(context.Background(), "u1", "a1", 2)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLedger_UpdateStatusOnce(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	at := time.Date(2024, 6, 9, 10, 0, 0, 0, time.UTC)
	require.NoError(t, l.Create(ctx, newReminder(t, "n1", "u1", "a1", 24, at)))

	require.NoError(t, l.UpdateStatus(ctx, "n1", notification.StatusSent, &at, ""))
	assert.ErrorIs(t, l.UpdateStatus(ctx, "n1", notification.StatusFailed, nil, "late"), shared.ErrStatusAlreadyFinal)
	assert.ErrorIs(t, l.UpdateStatus(ctx, "missing", notification.StatusSent, &at, ""), shared.ErrNotificationNotFound)
	assert.ErrorIs(t, l.UpdateStatus(ctx, "n1", notification.StatusPending, nil, ""), shared.ErrInvalidInput)

	got, ok := l.Get("n1")
	require.True(t, ok)
	assert.Equal(t, notification.StatusSent, got.Status)
}

func TestLedger_CreateStoresCopy(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	n := newReminder(t, "n1", "u1", "a1", 24, time.Now())
	require.NoError(t, l.Create(ctx, n))

	n.Status = notification.StatusSent
	got, _ := l.Get("n1")
	assert.Equal(t, notification.StatusPending, got.Status)

	assert.ErrorIs(t, l.Create(ctx, n), shared.ErrAlreadyExists)
}

func TestLedger_FindByUserAndDelete(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	base := time.Date(2024, 6, 9, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"n1", "n2", "n3"} {
		require.NoError(t, l.Create(ctx, newReminder(t, id, "u1", "a1", i+1, base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, l.Create(ctx, newReminder(t, "other", "u2", "a2", 1, base)))

	got, err := l.FindByUser(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "n3", got[0].ID)
	assert.Equal(t, "n2", got[1].ID)

	deleted, err := l.Delete(ctx, []string{"n1", "n3", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.Equal(t, 2, l.Len())
}

func TestLedger_FailOn(t *testing.T) {
	l := NewLedger()
	boom := errors.New("db down")
	l.FailOn["ExistsSentReminder"] = boom

	_, err := l.ExistsSentReminder(context.Background(), "u1", "a1", 24)
	assert.ErrorIs(t, err, boom)
}

func TestAppointments_Window(t *testing.T) {
	now := time.Date(2024, 6, 9, 10, 0, 0, 0, time.UTC)
	store := NewAppointments(
		&appointment.Appointment{ID: "past", Status: appointment.StatusConfirmed, StartTime: now.Add(-time.Hour)},
		&appointment.Appointment{ID: "now", Status: appointment.StatusConfirmed, StartTime: now},
		&appointment.Appointment{ID: "soon", Status: appointment.StatusConfirmed, StartTime: now.Add(2 * time.Hour)},
		&appointment.Appointment{ID: "edge", Status: appointment.StatusConfirmed, StartTime: now.Add(48 * time.Hour)},
		&appointment.Appointment{ID: "far", Status: appointment.StatusConfirmed, StartTime: now.Add(49 * time.Hour)},
		&appointment.Appointment{ID: "pending", Status: appointment.StatusPending, StartTime: now.Add(time.Hour)},
	)

	got, err := store.FindConfirmedStartingBefore(context.Background(), now, now.Add(48*time.Hour))
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, a := range got {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"soon", "edge"}, ids)
}

func TestUsers_Directory(t *testing.T) {
	ctx := context.Background()
	users := NewUsers(
		&appointment.Client{ID: "c2", Role: appointment.RoleClient, Phone: "+7999"},
		&appointment.Client{ID: "c1", Role: appointment.RoleClient},
		&appointment.Client{ID: "m1", Role: appointment.RoleMaster},
	)

	ids, err := users.ListIDsByRole(ctx, appointment.RoleClient)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, ids)

	contact, err := users.GetContact(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, "+7999", contact.Phone)

	_, err = users.GetContact(ctx, "nobody")
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}

func TestTemplates_LastActiveWins(t *testing.T) {
	store := NewTemplates(
		&notification.Template{ID: "t1", Kind: notification.KindMarketing, Channel: notification.ChannelSMS, Body: "old", Active: true},
		&notification.Template{ID: "t2", Kind: notification.KindMarketing, Channel: notification.ChannelSMS, Body: "new", Active: true},
		&notification.Template{ID: "t3", Kind: notification.KindMarketing, Channel: notification.ChannelSMS, Body: "off", Active: false},
	)

	tmpl, err := store.FindActive(context.Background(), notification.KindMarketing, notification.ChannelSMS)
	require.NoError(t, err)
	require.NotNil(t, tmpl)
	assert.Equal(t, "t2", tmpl.ID)

	tmpl, err = store.FindActive(context.Background(), notification.KindMarketing, notification.ChannelEmail)
	require.NoError(t, err)
	assert.Nil(t, tmpl)
}
