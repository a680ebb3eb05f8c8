package command

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/salonhub/salon-notifier/internal/domain/appointment"
	"github.com/salonhub/salon-notifier/internal/domain/notification"
	"github.com/salonhub/salon-notifier/internal/domain/settings"
	"github.com/salonhub/salon-notifier/internal/domain/shared"
	"github.com/salonhub/salon-notifier/internal/infrastructure/persistence/memory"
)

var testNow = time.Date(2024, 6, 9, 10, 0, 0, 0, time.UTC)

type sendCall struct {
	Channel notification.Channel
	Address string
	Title   string
	Body    string
}

type fakeSender struct {
	mu    sync.Mutex
	calls []sendCall
	send  func(ctx context.Context, call sendCall) error
}

func (s *fakeSender) Send(ctx context.Context, channel notification.Channel, address, title, body string) error {
	call := sendCall{Channel: channel, Address: address, Title: title, Body: body}
	s.mu.Lock()
	s.calls = append(s.calls, call)
	send := s.send
	s.mu.Unlock()

	if send != nil {
		return send(ctx, call)
	}
	return nil
}

func (s *fakeSender) Calls() []sendCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sendCall(nil), s.calls...)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []shared.Event
}

func (r *recordingEvents) Publish(_ context.Context, e shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEvents) Types() []shared.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shared.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType()
	}
	return out
}

type fixture struct {
	ledger    *memory.Ledger
	users     *memory.Users
	settings  *memory.Settings
	templates *memory.Templates
	sender    *fakeSender
	events    *recordingEvents
	clock     *shared.FixedClock

	dispatcher *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ledger: memory.NewLedger(),
		users: memory.NewUsers(
			&appointment.Client{ID: "u-anna", Name: "Анна", Role: appointment.RoleClient, TelegramChatID: 1001, Email: "anna@example.com"},
			&appointment.Client{ID: "u-boris", Name: "Борис", Role: appointment.RoleClient, TelegramChatID: 1002, Phone: "+79160000002"},
			&appointment.Client{ID: "u-irina", Name: "Ирина", Role: appointment.RoleMaster, TelegramChatID: 2001},
			&appointment.Client{ID: "u-oleg", Name: "Олег", Role: appointment.RoleMaster, Phone: "+79160000004"},
		),
		settings:  memory.NewSettings(settings.Default()),
		templates: memory.NewTemplates(),
		sender:    &fakeSender{},
		events:    &recordingEvents{},
		clock:     shared.NewFixedClock(testNow),
	}

	seq := 0
	d, err := NewDispatcher(DispatcherConfig{
		Ledger:    f.ledger,
		Templates: f.templates,
		Users:     f.users,
		Settings:  f.settings,
		Sender:    f.sender,
		Events:    f.events,
		NewID: func() string {
			seq++
			return fmt.Sprintf("n-%d", seq)
		},
		Clock:           f.clock,
		DeliveryTimeout: time.Second,
	})
	require.NoError(t, err)
	f.dispatcher = d
	return f
}

func reminderRequest(userID string, hours int) DispatchRequest {
	return DispatchRequest{
		UserID:  userID,
		Kind:    notification.KindAppointmentReminder,
		Channel: notification.ChannelTelegram,
		Reminder: &notification.ReminderKey{
			AppointmentID: "a-1",
			Hours:         hours,
		},
		Appointment: &AppointmentInfo{
			ID:          "a-1",
			StartTime:   time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC),
			MasterName:  "Ирина",
			ServiceName: "Стрижка",
		},
	}
}
