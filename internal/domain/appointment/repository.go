package appointment

import (
	"context"
	"time"
)

// Repository - хранилище записей. Движок только читает записи.
type Repository interface {
	// FindConfirmedStartingBefore возвращает подтверждённые записи, которые
	// начинаются после now и до указанного момента. Клиент, мастер и услуга
	// загружаются вместе с записью.
	FindConfirmedStartingBefore(ctx context.Context, now, before time.Time) ([]*Appointment, error)
}

// UserDirectory - справочник пользователей для адресов доставки и рассылок.
type UserDirectory interface {
	// GetContact возвращает адреса пользователя.
	// Если пользователь не найден, возвращается shared.ErrUserNotFound.
	GetContact(ctx context.Context, userID string) (Contact, error)

	// GetReminderPreference возвращает настройки напоминаний пользователя.
	GetReminderPreference(ctx context.Context, userID string) (ReminderPreference, error)

	// ListIDsByRole возвращает идентификаторы всех пользователей с ролью.
	ListIDsByRole(ctx context.Context, role Role) ([]string, error)
}
