// Package appointment содержит модель записи клиента в салон и данные клиента,
// которые нужны движку напоминаний. Для движка эти сущности только для чтения.
package appointment

import (
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status определяет статус записи.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// IsValid проверяет, что статус корректен.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление статуса.
func (s Status) String() string {
	return string(s)
}

// ══════════════════════════════════════════════════════════════════════════════
// ROLE
// ══════════════════════════════════════════════════════════════════════════════

// Role определяет роль пользователя платформы.
type Role string

const (
	RoleClient Role = "client"
	RoleMaster Role = "master"
	RoleAdmin  Role = "admin"
)

// IsValid проверяет, что роль корректна.
func (r Role) IsValid() bool {
	switch r {
	case RoleClient, RoleMaster, RoleAdmin:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// ReminderPreference - настройки напоминаний пользователя.
type ReminderPreference struct {
	// Enabled - включены ли напоминания. По умолчанию true.
	Enabled bool

	// Intervals - персональный список интервалов в часах.
	// Пустой список означает глобальные настройки салона.
	Intervals []int
}

// HasOverride сообщает, задан ли персональный список интервалов.
func (p ReminderPreference) HasOverride() bool {
	return len(p.Intervals) > 0
}

// Client - пользователь, которому отправляются уведомления.
type Client struct {
	ID   string
	Name string
	Role Role

	// Адреса каналов доставки. Пустое значение - адрес не указан.
	TelegramChatID int64
	Phone          string
	Email          string

	Reminders ReminderPreference
}

// Contact - адреса пользователя для всех каналов.
type Contact struct {
	UserID         string
	Name           string
	TelegramChatID int64
	Phone          string
	Email          string
}

// Contact возвращает адреса клиента.
func (c *Client) Contact() Contact {
	return Contact{
		UserID:         c.ID,
		Name:           c.Name,
		TelegramChatID: c.TelegramChatID,
		Phone:          c.Phone,
		Email:          c.Email,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// APPOINTMENT
// ══════════════════════════════════════════════════════════════════════════════

// Appointment - запись клиента к мастеру на услугу.
type Appointment struct {
	ID        string
	ClientID  string
	MasterID  string
	ServiceID string

	// StartTime хранится в UTC.
	StartTime time.Time
	Status    Status

	// Связанные сущности загружаются вместе с записью.
	Client      *Client
	MasterName  string
	ServiceName string
}

// IsReminderEligible - только подтверждённые записи в будущем получают напоминания.
func (a *Appointment) IsReminderEligible(now time.Time) bool {
	return a.Status == StatusConfirmed && a.StartTime.After(now)
}

// HoursUntil возвращает дробное количество часов до начала записи.
func (a *Appointment) HoursUntil(now time.Time) float64 {
	return a.StartTime.Sub(now).Hours()
}
