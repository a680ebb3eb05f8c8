package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/salonhub/salon-notifier/internal/domain/settings"
)

// SettingsRepository implements settings.Provider over the settings table.
type SettingsRepository struct {
	conn     *Connection
	defaults settings.Snapshot
	logger   *slog.Logger
}

// NewSettingsRepository creates a new SettingsRepository. Keys missing from
// the table take their value from defaults.
func NewSettingsRepository(conn *Connection, defaults settings.Snapshot, logger *slog.Logger) *SettingsRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsRepository{conn: conn, defaults: defaults, logger: logger}
}

var _ settings.Provider = (*SettingsRepository)(nil)

// Snapshot reads all engine settings in one query. Invalid stored values
// fall back to defaults and are logged.
func (r *SettingsRepository) Snapshot(ctx context.Context) (settings.Snapshot, error) {
	keys := []string{settings.KeyReminderIntervals, settings.KeyTimezone, settings.KeyBonusRules}

	rows, err := r.conn.Query(ctx, `SELECT key, value FROM settings WHERE key = ANY($1)`, keys)
	if err != nil {
		return settings.Snapshot{}, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	values := make(map[string]json.RawMessage, len(keys))
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return settings.Snapshot{}, fmt.Errorf("failed to scan setting: %w", err)
		}
		values[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return settings.Snapshot{}, fmt.Errorf("failed to iterate settings: %w", err)
	}

	snap, problems := settings.FromValues(r.defaults, values)
	for _, p := range problems {
		r.logger.Warn("invalid setting, using default", "error", p)
	}

	return snap, nil
}
