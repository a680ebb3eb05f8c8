package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/salonhub/salon-notifier/internal/domain/notification"
	"github.com/salonhub/salon-notifier/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION LEDGER IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// NotificationRepository implements notification.Ledger for PostgreSQL.
type NotificationRepository struct {
	conn *Connection
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(conn *Connection) *NotificationRepository {
	return &NotificationRepository{conn: conn}
}

var _ notification.Ledger = (*NotificationRepository)(nil)

const notificationColumns = `
	id, user_id, kind, channel, status, title, body, payload,
	appointment_id, reminder_hours, broadcast_id, error, created_at, sent_at
`

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// Create inserts a new pending record.
func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	var appointmentID *string
	var reminderHours *int
	if n.Reminder != nil {
		appointmentID = &n.Reminder.AppointmentID
		reminderHours = &n.Reminder.Hours
	}

	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = r.conn.Exec(ctx, query,
		n.ID,
		n.UserID,
		string(n.Kind),
		string(n.Channel),
		string(n.Status),
		n.Title,
		n.Body,
		payload,
		appointmentID,
		reminderHours,
		nullableString(n.BroadcastID),
		n.Error,
		n.CreatedAt,
		n.SentAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("notification %s: %w", n.ID, shared.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

// UpdateStatus moves a pending record to its terminal status.
func (r *NotificationRepository) UpdateStatus(ctx context.Context, id string, status notification.Status, sentAt *time.Time, errMsg string) error {
	if !status.IsFinal() {
		return fmt.Errorf("update status to %q: %w", status, shared.ErrInvalidInput)
	}

	query := `
		UPDATE notifications
		SET status = $2, sent_at = $3, error = $4
		WHERE id = $1 AND status = 'pending'
	`

	tag, err := r.conn.Exec(ctx, query, id, string(status), sentAt, errMsg)
	if err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = r.conn.QueryRow(ctx, `SELECT status FROM notifications WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if IsNoRows(err) {
			return shared.ErrNotificationNotFound
		}
		return fmt.Errorf("failed to read notification status: %w", err)
	}
	return shared.ErrStatusAlreadyFinal
}

// Delete removes records and returns the number deleted.
func (r *NotificationRepository) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := r.conn.Exec(ctx, `DELETE FROM notifications WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notifications: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// ExistsSentReminder checks the typed reminder columns and, for rows written
// before they existed, the payload keys.
func (r *NotificationRepository) ExistsSentReminder(ctx context.Context, userID, appointmentID string, hours int) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE user_id = $1
			  AND kind = 'appointment_reminder'
			  AND status = 'sent'
			  AND (
				(appointment_id = $2 AND reminder_hours = $3)
				OR (appointment_id IS NULL
					AND payload->>'appointmentId' = $2
					AND payload->>'reminderHours' = $4)
			  )
		)
	`

	var exists bool
	err := r.conn.QueryRow(ctx, query, userID, appointmentID, hours, strconv.Itoa(hours)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check sent reminder: %w", err)
	}
	return exists, nil
}

// FindByUser returns the newest records of a user.
func (r *NotificationRepository) FindByUser(ctx context.Context, userID string, limit int) ([]*notification.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, userID, notification.ClampUserLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query user notifications: %w", err)
	}
	return r.collect(rows)
}

// FindBroadcastGroup returns the records of one broadcast.
func (r *NotificationRepository) FindBroadcastGroup(ctx context.Context, ref notification.GroupRef) ([]*notification.Notification, error) {
	var (
		rows pgx.Rows
		err  error
	)

	switch {
	case ref.Legacy != nil:
		query := `
			SELECT ` + notificationColumns + `
			FROM notifications
			WHERE broadcast_id IS NULL
			  AND payload->'broadcast' = 'true'::jsonb
			  AND title = $1 AND body = $2 AND channel = $3
			  AND created_at >= $4 AND created_at < $4 + interval '1 minute'
			ORDER BY created_at, id
		`
		rows, err = r.conn.Query(ctx, query,
			ref.Legacy.Title, ref.Legacy.Body, string(ref.Legacy.Channel), ref.Legacy.Minute)
	case ref.BroadcastID != "":
		query := `
			SELECT ` + notificationColumns + `
			FROM notifications
			WHERE broadcast_id = $1
			   OR (broadcast_id IS NULL AND payload->>'broadcastId' = $1)
			ORDER BY created_at, id
		`
		rows, err = r.conn.Query(ctx, query, ref.BroadcastID)
	default:
		return nil, notification.ErrInvalidGroupRef
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query broadcast group: %w", err)
	}

	all, err := r.collect(rows)
	if err != nil {
		return nil, err
	}

	// SQL narrows the candidates, the exact key is matched in the domain.
	out := all[:0]
	for _, n := range all {
		if ref.Matches(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

// ListBroadcasts returns every broadcast-tagged record.
func (r *NotificationRepository) ListBroadcasts(ctx context.Context) ([]*notification.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE broadcast_id IS NOT NULL
		   OR payload->'broadcast' = 'true'::jsonb
		ORDER BY created_at DESC, id
	`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query broadcasts: %w", err)
	}
	return r.collect(rows)
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func (r *NotificationRepository) collect(rows pgx.Rows) ([]*notification.Notification, error) {
	defer rows.Close()

	var out []*notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return out, nil
}

func scanNotification(row pgx.Row) (*notification.Notification, error) {
	var (
		n             notification.Notification
		kind          string
		channel       string
		status        string
		payload       []byte
		appointmentID *string
		reminderHours *int32
		broadcastID   *string
	)

	err := row.Scan(
		&n.ID,
		&n.UserID,
		&kind,
		&channel,
		&status,
		&n.Title,
		&n.Body,
		&payload,
		&appointmentID,
		&reminderHours,
		&broadcastID,
		&n.Error,
		&n.CreatedAt,
		&n.SentAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}

	n.Kind = notification.Kind(kind)
	n.Channel = notification.Channel(channel)
	n.Status = notification.Status(status)
	n.CreatedAt = n.CreatedAt.UTC()

	n.Payload = map[string]any{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &n.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload of %s: %w", n.ID, err)
		}
	}

	if appointmentID != nil && reminderHours != nil {
		n.Reminder = &notification.ReminderKey{
			AppointmentID: *appointmentID,
			Hours:         int(*reminderHours),
		}
	}
	if broadcastID != nil {
		n.BroadcastID = *broadcastID
	}

	return &n, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
