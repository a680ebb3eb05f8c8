package messaging

import (
	"context"
	"log/slog"

	"github.com/salonhub/salon-notifier/internal/domain/shared"
)

// LogPublisher writes every event as one structured log line.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger.With("component", "events")}
}

var _ shared.EventPublisher = (*LogPublisher)(nil)

// Publish implements shared.EventPublisher.
func (l *LogPublisher) Publish(ctx context.Context, event shared.Event) error {
	level := slog.LevelInfo
	if event.EventType() == shared.EventNotificationFailed {
		level = slog.LevelWarn
	}

	args := []any{
		"event_type", event.EventType(),
		"aggregate_id", event.AggregateID(),
		"occurred_at", event.OccurredAt(),
	}
	for k, v := range event.Payload() {
		args = append(args, k, v)
	}
	l.logger.Log(ctx, level, "domain event", args...)
	return nil
}

// Handle adapts the publisher to an EventHandler.
func (l *LogPublisher) Handle(ctx context.Context, event shared.Event) error {
	return l.Publish(ctx, event)
}

// NoopPublisher drops events.
type NoopPublisher struct{}

// Publish implements shared.EventPublisher.
func (NoopPublisher) Publish(context.Context, shared.Event) error { return nil }
