package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/salonhub/salon-notifier/internal/domain/appointment"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPOINTMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AppointmentRepository implements appointment.Repository for PostgreSQL.
type AppointmentRepository struct {
	conn *Connection
}

// NewAppointmentRepository creates a new AppointmentRepository.
func NewAppointmentRepository(conn *Connection) *AppointmentRepository {
	return &AppointmentRepository{conn: conn}
}

var _ appointment.Repository = (*AppointmentRepository)(nil)

// FindConfirmedStartingBefore loads confirmed appointments in (now, before]
// together with the client, master name and service name.
func (r *AppointmentRepository) FindConfirmedStartingBefore(ctx context.Context, now, before time.Time) ([]*appointment.Appointment, error) {
	query := `
		SELECT a.id, a.client_id, COALESCE(a.master_id, ''), COALESCE(a.service_id, ''),
			   a.start_time, a.status,
			   c.id, COALESCE(c.name, ''), COALESCE(c.role, 'client'), c.telegram_chat_id,
			   COALESCE(c.phone, ''), COALESCE(c.email, ''),
			   COALESCE(c.reminders_enabled, TRUE), c.reminder_intervals,
			   COALESCE(m.name, ''), COALESCE(s.name, '')
		FROM appointments a
		LEFT JOIN users c ON c.id = a.client_id
		LEFT JOIN users m ON m.id = a.master_id
		LEFT JOIN services s ON s.id = a.service_id
		WHERE a.status = 'confirmed'
		  AND a.start_time > $1
		  AND a.start_time <= $2
		ORDER BY a.start_time, a.id
	`

	rows, err := r.conn.Query(ctx, query, now, before)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	var out []*appointment.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointments: %w", err)
	}

	return out, nil
}

func scanAppointment(row pgx.Row) (*appointment.Appointment, error) {
	var (
		a         appointment.Appointment
		status    string
		clientID  *string
		name      string
		role      string
		chatID    *int64
		phone     string
		email     string
		enabled   bool
		intervals []int32
	)

	err := row.Scan(
		&a.ID, &a.ClientID, &a.MasterID, &a.ServiceID,
		&a.StartTime, &status,
		&clientID, &name, &role, &chatID,
		&phone, &email,
		&enabled, &intervals,
		&a.MasterName, &a.ServiceName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan appointment: %w", err)
	}

	a.Status = appointment.Status(status)
	a.StartTime = a.StartTime.UTC()

	// Missing client rows surface as a nil Client and are counted by the scheduler.
	if clientID != nil {
		client := &appointment.Client{
			ID:    *clientID,
			Name:  name,
			Role:  appointment.Role(role),
			Phone: phone,
			Email: email,
			Reminders: appointment.ReminderPreference{
				Enabled:   enabled,
				Intervals: toInts(intervals),
			},
		}
		if chatID != nil {
			client.TelegramChatID = *chatID
		}
		a.Client = client
	}

	return &a, nil
}

func toInts(values []int32) []int {
	if len(values) == 0 {
		return nil
	}
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = int(v)
	}
	return out
}
