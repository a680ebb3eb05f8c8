package postgres

import (
	"context"
	"fmt"

	"github.com/salonhub/salon-notifier/internal/domain/appointment"
	"github.com/salonhub/salon-notifier/internal/domain/shared"
)

// UserRepository implements appointment.UserDirectory for PostgreSQL.
type UserRepository struct {
	conn *Connection
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(conn *Connection) *UserRepository {
	return &UserRepository{conn: conn}
}

var _ appointment.UserDirectory = (*UserRepository)(nil)

// GetContact returns the delivery addresses of a user.
func (r *UserRepository) GetContact(ctx context.Context, userID string) (appointment.Contact, error) {
	query := `
		SELECT id, name, telegram_chat_id, COALESCE(phone, ''), COALESCE(email, '')
		FROM users
		WHERE id = $1
	`

	var (
		c      appointment.Contact
		chatID *int64
	)
	err := r.conn.QueryRow(ctx, query, userID).Scan(&c.UserID, &c.Name, &chatID, &c.Phone, &c.Email)
	if err != nil {
		if IsNoRows(err) {
			return appointment.Contact{}, shared.ErrUserNotFound
		}
		return appointment.Contact{}, fmt.Errorf("failed to get contact: %w", err)
	}
	if chatID != nil {
		c.TelegramChatID = *chatID
	}

	return c, nil
}

// GetReminderPreference returns the reminder settings of a user.
func (r *UserRepository) GetReminderPreference(ctx context.Context, userID string) (appointment.ReminderPreference, error) {
	query := `SELECT reminders_enabled, reminder_intervals FROM users WHERE id = $1`

	var (
		enabled   bool
		intervals []int32
	)
	err := r.conn.QueryRow(ctx, query, userID).Scan(&enabled, &intervals)
	if err != nil {
		if IsNoRows(err) {
			return appointment.ReminderPreference{}, shared.ErrUserNotFound
		}
		return appointment.ReminderPreference{}, fmt.Errorf("failed to get reminder preference: %w", err)
	}

	return appointment.ReminderPreference{Enabled: enabled, Intervals: toInts(intervals)}, nil
}

// ListIDsByRole returns ids of all users with a role.
func (r *UserRepository) ListIDsByRole(ctx context.Context, role appointment.Role) ([]string, error) {
	rows, err := r.conn.Query(ctx, `SELECT id FROM users WHERE role = $1 ORDER BY id`, string(role))
	if err != nil {
		return nil, fmt.Errorf("failed to list users by role: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
