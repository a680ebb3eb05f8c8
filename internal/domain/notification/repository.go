package notification

import (
	"context"
	"time"
)

// Лимиты выборки журнала по пользователю.
const (
	DefaultUserLimit = 50
	MaxUserLimit     = 500
)

// ClampUserLimit приводит лимит выборки к допустимому диапазону.
func ClampUserLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultUserLimit
	case limit > MaxUserLimit:
		return MaxUserLimit
	default:
		return limit
	}
}

// Ledger - журнал попыток доставки. Единственный источник истины для
// дедупликации напоминаний и отчётов по рассылкам.
//
// Все записи однострочные. Проверка дедупликации читает журнал перед
// отправкой без блокировок: редкий дубль при гонке допустим.
type Ledger interface {
	// Create сохраняет новую запись в статусе pending.
	Create(ctx context.Context, n *Notification) error

	// UpdateStatus переводит запись в финальный статус ровно один раз.
	// Если запись уже в финальном статусе, возвращается shared.ErrStatusAlreadyFinal.
	UpdateStatus(ctx context.Context, id string, status Status, sentAt *time.Time, errMsg string) error

	// ExistsSentReminder проверяет, есть ли доставленное напоминание
	// для пользователя, записи и интервала.
	ExistsSentReminder(ctx context.Context, userID, appointmentID string, hours int) (bool, error)

	// FindByUser возвращает последние записи пользователя, новые первыми.
	FindByUser(ctx context.Context, userID string, limit int) ([]*Notification, error)

	// FindBroadcastGroup возвращает записи одной рассылки.
	FindBroadcastGroup(ctx context.Context, ref GroupRef) ([]*Notification, error)

	// ListBroadcasts возвращает все записи, помеченные как рассылка.
	ListBroadcasts(ctx context.Context) ([]*Notification, error)

	// Delete удаляет записи безвозвратно и возвращает число удалённых.
	Delete(ctx context.Context, ids []string) (int, error)
}
