package shared

import (
	"context"
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. They are published after the ledger has been updated
// and consumed by external collaborators (audit log, analytics).
const (
	// Notification events
	EventNotificationSent    EventType = "notification.sent"
	EventNotificationFailed  EventType = "notification.failed"
	EventNotificationDeleted EventType = "notification.deleted"

	// Broadcast events
	EventBroadcastCompleted EventType = "broadcast.completed"

	// Reminder events
	EventReminderTickCompleted EventType = "reminder.tick_completed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped with the given time.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at.UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Notification Events
// ═══════════════════════════════════════════════════════════════════════════

// NotificationDispatchedEvent is emitted once a dispatch attempt reached a
// terminal status. Type is either notification.sent or notification.failed.
type NotificationDispatchedEvent struct {
	BaseEvent
	UserID      string `json:"user_id"`
	Kind        string `json:"kind"`
	Channel     string `json:"channel"`
	Status      string `json:"status"`
	BroadcastID string `json:"broadcast_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Payload implements Event interface.
func (e NotificationDispatchedEvent) Payload() map[string]interface{} {
	p := map[string]interface{}{
		"user_id": e.UserID,
		"kind":    e.Kind,
		"channel": e.Channel,
		"status":  e.Status,
	}
	if e.BroadcastID != "" {
		p["broadcast_id"] = e.BroadcastID
	}
	if e.Error != "" {
		p["error"] = e.Error
	}
	return p
}

// NotificationsDeletedEvent is emitted after an administrative hard delete.
type NotificationsDeletedEvent struct {
	BaseEvent
	IDs     []string `json:"ids"`
	Deleted int      `json:"deleted"`
}

// Payload implements Event interface.
func (e NotificationsDeletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"ids":     e.IDs,
		"deleted": e.Deleted,
	}
}

// BroadcastCompletedEvent is emitted after a broadcast fan-out finished.
type BroadcastCompletedEvent struct {
	BaseEvent
	Channel string `json:"channel"`
	Total   int    `json:"total"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
}

// Payload implements Event interface.
func (e BroadcastCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"channel": e.Channel,
		"total":   e.Total,
		"sent":    e.Sent,
		"failed":  e.Failed,
	}
}

// ReminderTickCompletedEvent carries the aggregate counts of one reminder tick.
type ReminderTickCompletedEvent struct {
	BaseEvent
	Appointments int `json:"appointments"`
	Sent         int `json:"sent"`
	Failed       int `json:"failed"`
	Skipped      int `json:"skipped"`
	Errors       int `json:"errors"`
}

// Payload implements Event interface.
func (e ReminderTickCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"appointments": e.Appointments,
		"sent":         e.Sent,
		"failed":       e.Failed,
		"skipped":      e.Skipped,
		"errors":       e.Errors,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	Type        EventType       `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Version     int             `json:"version"`
	Payload     json.RawMessage `json:"payload"`
}

// NewEventEnvelope serializes an event payload into an envelope.
func NewEventEnvelope(event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}
	return EventEnvelope{
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Payload:     payload,
	}, nil
}

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to the configured sink.
	Publish(ctx context.Context, event Event) error
}
