// Package notification содержит доменную модель уведомлений салона: журнал
// попыток доставки, шаблоны, тексты по умолчанию и группировку рассылок.
package notification

import (
	"errors"
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// KIND
// ══════════════════════════════════════════════════════════════════════════════

// Kind определяет тип уведомления.
type Kind string

const (
	// KindAppointmentConfirmed - запись подтверждена.
	KindAppointmentConfirmed Kind = "appointment_confirmed"

	// KindAppointmentReminder - напоминание о предстоящей записи.
	// "Напоминаем: завтра в 13:00 у вас стрижка у Анны"
	KindAppointmentReminder Kind = "appointment_reminder"

	// KindAppointmentCancelled - запись отменена.
	KindAppointmentCancelled Kind = "appointment_cancelled"

	// KindAppointmentRescheduled - запись перенесена.
	KindAppointmentRescheduled Kind = "appointment_rescheduled"

	// KindBonusEarned - начислены бонусы.
	KindBonusEarned Kind = "bonus_earned"

	// KindFeedbackRequest - просьба оставить отзыв после визита.
	KindFeedbackRequest Kind = "feedback_request"

	// KindBirthdayGreeting - поздравление с днём рождения.
	KindBirthdayGreeting Kind = "birthday_greeting"

	// KindMarketing - рекламная рассылка.
	KindMarketing Kind = "marketing"
)

// IsValid проверяет, что тип уведомления корректен.
func (k Kind) IsValid() bool {
	switch k {
	case KindAppointmentConfirmed,
		KindAppointmentReminder,
		KindAppointmentCancelled,
		KindAppointmentRescheduled,
		KindBonusEarned,
		KindFeedbackRequest,
		KindBirthdayGreeting,
		KindMarketing:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление типа.
func (k Kind) String() string {
	return string(k)
}

// ══════════════════════════════════════════════════════════════════════════════
// CHANNEL
// ══════════════════════════════════════════════════════════════════════════════

// Channel - транспорт доставки.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
)

// IsValid проверяет, что канал поддерживается.
func (c Channel) IsValid() bool {
	switch c {
	case ChannelTelegram, ChannelSMS, ChannelEmail:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление канала.
func (c Channel) String() string {
	return string(c)
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status - статус записи журнала. pending -> sent | failed.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// IsValid проверяет, что статус корректен.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed:
		return true
	default:
		return false
	}
}

// IsFinal сообщает, что статус больше не меняется.
func (s Status) IsFinal() bool {
	return s == StatusSent || s == StatusFailed
}

// String возвращает строковое представление статуса.
func (s Status) String() string {
	return string(s)
}

// ══════════════════════════════════════════════════════════════════════════════
// REMINDER KEY
// ══════════════════════════════════════════════════════════════════════════════

// ReminderKey - ключ дедупликации напоминания. Вместе с UserID однозначно
// определяет "это напоминание уже отправлено".
type ReminderKey struct {
	AppointmentID string
	Hours         int
}

// IsValid проверяет ключ.
func (k ReminderKey) IsValid() bool {
	return k.AppointmentID != "" && k.Hours > 0
}

// String возвращает строковое представление ключа.
func (k ReminderKey) String() string {
	return fmt.Sprintf("%s/%dh", k.AppointmentID, k.Hours)
}

// Ключи payload.
const (
	PayloadAppointmentID = "appointmentId"
	PayloadReminderHours = "reminderHours"
	PayloadBroadcast     = "broadcast"
	PayloadBroadcastID   = "broadcastId"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// Notification - запись журнала: одна попытка доставки одному пользователю.
type Notification struct {
	ID      string
	UserID  string
	Kind    Kind
	Channel Channel
	Status  Status

	Title string
	Body  string

	// Payload - открытый набор данных для отчётов и шаблонов.
	Payload map[string]any

	// Reminder - ключ дедупликации, только для напоминаний.
	Reminder *ReminderKey

	// BroadcastID задан для записей массовой рассылки.
	BroadcastID string

	CreatedAt time.Time
	SentAt    *time.Time
	Error     string
}

// NewNotificationParams содержит параметры для создания записи.
type NewNotificationParams struct {
	ID          string
	UserID      string
	Kind        Kind
	Channel     Channel
	Title       string
	Body        string
	Payload     map[string]any
	Reminder    *ReminderKey
	BroadcastID string
	CreatedAt   time.Time
}

// NewNotification создаёт запись в статусе pending с валидацией.
func NewNotification(params NewNotificationParams) (*Notification, error) {
	if params.ID == "" {
		return nil, ErrInvalidNotificationID
	}
	if params.UserID == "" {
		return nil, ErrInvalidRecipientID
	}
	if !params.Kind.IsValid() {
		return nil, ErrInvalidKind
	}
	if !params.Channel.IsValid() {
		return nil, ErrInvalidChannel
	}
	if params.Kind == KindAppointmentReminder && (params.Reminder == nil || !params.Reminder.IsValid()) {
		return nil, ErrMissingReminderKey
	}

	payload := make(map[string]any, len(params.Payload)+2)
	for k, v := range params.Payload {
		payload[k] = v
	}

	var reminder *ReminderKey
	if params.Reminder != nil {
		key := *params.Reminder
		reminder = &key
		payload[PayloadAppointmentID] = key.AppointmentID
		payload[PayloadReminderHours] = key.Hours
	}
	if params.BroadcastID != "" {
		payload[PayloadBroadcast] = true
		payload[PayloadBroadcastID] = params.BroadcastID
	}

	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return &Notification{
		ID:          params.ID,
		UserID:      params.UserID,
		Kind:        params.Kind,
		Channel:     params.Channel,
		Status:      StatusPending,
		Title:       params.Title,
		Body:        params.Body,
		Payload:     payload,
		Reminder:    reminder,
		BroadcastID: params.BroadcastID,
		CreatedAt:   createdAt.UTC(),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// MarkSent помечает запись как доставленную.
func (n *Notification) MarkSent(at time.Time) error {
	if n.Status != StatusPending {
		return ErrInvalidStatusTransition
	}
	sentAt := at.UTC()
	n.Status = StatusSent
	n.SentAt = &sentAt
	n.Error = ""
	return nil
}

// MarkFailed помечает запись как неудачную.
func (n *Notification) MarkFailed(reason string) error {
	if n.Status != StatusPending {
		return ErrInvalidStatusTransition
	}
	if reason == "" {
		reason = "unknown delivery error"
	}
	n.Status = StatusFailed
	n.Error = reason
	return nil
}

// IsBroadcast сообщает, относится ли запись к рассылке. Старые записи
// помечены только флагом broadcast в payload, без идентификатора.
func (n *Notification) IsBroadcast() bool {
	if n.BroadcastID != "" {
		return true
	}
	flag, _ := n.Payload[PayloadBroadcast].(bool)
	return flag
}

// Clone создаёт глубокую копию записи.
func (n *Notification) Clone() *Notification {
	c := *n
	if n.Payload != nil {
		c.Payload = make(map[string]any, len(n.Payload))
		for k, v := range n.Payload {
			c.Payload[k] = v
		}
	}
	if n.Reminder != nil {
		key := *n.Reminder
		c.Reminder = &key
	}
	if n.SentAt != nil {
		at := *n.SentAt
		c.SentAt = &at
	}
	return &c
}

// String возвращает краткое описание записи для логов.
func (n *Notification) String() string {
	return fmt.Sprintf("Notification{id=%s, user=%s, kind=%s, channel=%s, status=%s}",
		n.ID, n.UserID, n.Kind, n.Channel, n.Status)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidNotificationID - невалидный ID уведомления.
	ErrInvalidNotificationID = errors.New("invalid notification id: cannot be empty")

	// ErrInvalidRecipientID - не указан получатель.
	ErrInvalidRecipientID = errors.New("invalid recipient id: cannot be empty")

	// ErrInvalidKind - неизвестный тип уведомления.
	ErrInvalidKind = errors.New("invalid notification kind")

	// ErrInvalidChannel - неизвестный канал доставки.
	ErrInvalidChannel = errors.New("invalid notification channel")

	// ErrMissingReminderKey - у напоминания нет appointmentId и reminderHours.
	ErrMissingReminderKey = errors.New("reminder requires appointment id and positive reminder hours")

	// ErrInvalidStatusTransition - статус записи уже финальный.
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)
