package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/salonhub/salon-notifier/internal/domain/appointment"
)

func TestRender(t *testing.T) {
	data := map[string]any{
		"user":    map[string]any{"name": "Мария"},
		"service": map[string]string{"name": "Стрижка"},
		"bonus":   map[string]any{"amount": 150, "rate": 0.5},
		"flag":    true,
	}

	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"plain text", "Без подстановок", "Без подстановок"},
		{"nested any", "Здравствуйте, {{user.name}}!", "Здравствуйте, Мария!"},
		{"nested string map", "{{service.name}}", "Стрижка"},
		{"spaces inside braces", "{{ user.name }}", "Мария"},
		{"int value", "{{bonus.amount}} бонусов", "150 бонусов"},
		{"float value", "{{bonus.rate}}", "0.5"},
		{"bool value", "{{flag}}", "true"},
		{"missing renders empty", "[{{master.name}}]", "[]"},
		{"map renders empty", "[{{user}}]", "[]"},
		{"path through scalar", "[{{flag.value}}]", "[]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.tmpl, data))
		})
	}
}

func TestRender_NilData(t *testing.T) {
	assert.Equal(t, "Привет, !", Render("Привет, {{user.name}}!", nil))
}

func TestTemplate_Apply(t *testing.T) {
	tmpl := &Template{
		Subject: "Запись {{appointment.date}}",
		Body:    "{{user.name}}, ждём вас в {{appointment.time}}",
	}
	title, body := tmpl.Apply(map[string]any{
		"user":        map[string]any{"name": "Ольга"},
		"appointment": map[string]any{"date": "10.06.2024", "time": "13:00"},
	})

	assert.Equal(t, "Запись 10.06.2024", title)
	assert.Equal(t, "Ольга, ждём вас в 13:00", body)
}

func TestDefaults(t *testing.T) {
	assert.Equal(t, "Напоминание о записи", DefaultTitle(KindAppointmentReminder))
	assert.Equal(t, "Уведомление", DefaultTitle("unknown"))

	body := DefaultBody(KindAppointmentReminder, map[string]any{
		"reminder":    map[string]any{"phrase": "завтра"},
		"service":     map[string]any{"name": "маникюр"},
		"master":      map[string]any{"name": "Анна"},
		"appointment": map[string]any{"date": "10.06.2024", "time": "13:00"},
	})
	assert.Equal(t, "Напоминаем: завтра у вас запись на маникюр к мастеру Анна (10.06.2024 в 13:00).", body)

	assert.Equal(t, "Скидка 20%", DefaultBody("unknown", map[string]any{"message": "Скидка 20%"}))
}

func TestReminderPhrase(t *testing.T) {
	tests := []struct {
		hours int
		want  string
	}{
		{1, "через час"},
		{2, "через 2 часа"},
		{3, "через 3 часа"},
		{5, "через 5 часов"},
		{6, "через 6 часов"},
		{11, "через 11 часов"},
		{12, "через 12 часов"},
		{21, "через 21 час"},
		{24, "завтра"},
		{48, "послезавтра"},
		{72, "через 72 часа"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ReminderPhrase(tt.hours), "hours=%d", tt.hours)
	}
}

func TestAddressFor(t *testing.T) {
	contact := appointment.Contact{
		UserID:         "u1",
		TelegramChatID: 123456,
		Phone:          " +79990001122 ",
	}

	addr, err := AddressFor(contact, ChannelTelegram)
	assert.NoError(t, err)
	assert.Equal(t, "123456", addr)

	addr, err = AddressFor(contact, ChannelSMS)
	assert.NoError(t, err)
	assert.Equal(t, "+79990001122", addr)

	_, err = AddressFor(contact, ChannelEmail)
	var missing *MissingAddressError
	assert.ErrorAs(t, err, &missing)
	assert.Equal(t, ChannelEmail, missing.Channel)
	assert.Equal(t, "recipient u1 has no email address", err.Error())

	_, err = AddressFor(contact, "fax")
	assert.ErrorIs(t, err, ErrInvalidChannel)
}
