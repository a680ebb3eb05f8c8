package postgres

import (
	"context"
	"fmt"

	"github.com/salonhub/salon-notifier/internal/domain/notification"
)

// TemplateRepository implements notification.TemplateStore for PostgreSQL.
type TemplateRepository struct {
	conn *Connection
}

// NewTemplateRepository creates a new TemplateRepository.
func NewTemplateRepository(conn *Connection) *TemplateRepository {
	return &TemplateRepository{conn: conn}
}

var _ notification.TemplateStore = (*TemplateRepository)(nil)

// FindActive returns the most recently updated active template, or nil.
func (r *TemplateRepository) FindActive(ctx context.Context, kind notification.Kind, channel notification.Channel) (*notification.Template, error) {
	query := `
		SELECT id, kind, channel, subject, body, is_active
		FROM notification_templates
		WHERE kind = $1 AND channel = $2 AND is_active
		ORDER BY updated_at DESC
		LIMIT 1
	`

	var (
		t          notification.Template
		kindStr    string
		channelStr string
	)
	err := r.conn.QueryRow(ctx, query, string(kind), string(channel)).
		Scan(&t.ID, &kindStr, &channelStr, &t.Subject, &t.Body, &t.Active)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find template: %w", err)
	}

	t.Kind = notification.Kind(kindStr)
	t.Channel = notification.Channel(channelStr)
	return &t, nil
}
