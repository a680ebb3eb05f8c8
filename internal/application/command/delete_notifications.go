package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/salonhub/salon-notifier/internal/domain/notification"
	"github.com/salonhub/salon-notifier/internal/domain/shared"
)

// MaxDeleteBatch caps the ids accepted by one delete command.
const MaxDeleteBatch = 500

// DeleteNotificationsCommand removes ledger records.
type DeleteNotificationsCommand struct {
	IDs []string

	// Actor is logged with the deletion.
	Actor string
}

// Validate validates the command.
func (c DeleteNotificationsCommand) Validate() error {
	if len(c.IDs) == 0 {
		return shared.NewDomainError("notification", "Delete", shared.ErrInvalidInput, "ids are required")
	}
	if len(c.IDs) > MaxDeleteBatch {
		return shared.NewDomainError("notification", "Delete", shared.ErrValueOutOfRange,
			fmt.Sprintf("at most %d ids per request", MaxDeleteBatch))
	}
	return nil
}

// DeleteNotificationsResult reports how many records were removed.
type DeleteNotificationsResult struct {
	Requested int `json:"requested"`
	Deleted   int `json:"deleted"`
}

// DeleteNotificationsHandler performs administrative hard deletes.
type DeleteNotificationsHandler struct {
	ledger notification.Ledger
	events shared.EventPublisher
	clock  shared.Clock
	logger *slog.Logger
}

// NewDeleteNotificationsHandler creates a new DeleteNotificationsHandler.
func NewDeleteNotificationsHandler(ledger notification.Ledger, events shared.EventPublisher, clock shared.Clock, logger *slog.Logger) *DeleteNotificationsHandler {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeleteNotificationsHandler{
		ledger: ledger,
		events: events,
		clock:  clock,
		logger: logger.With("component", "delete_notifications"),
	}
}

// Handle executes the delete command. Deleting a single missing id returns
// shared.ErrNotificationNotFound; batches report the deleted count.
func (h *DeleteNotificationsHandler) Handle(ctx context.Context, cmd DeleteNotificationsCommand) (DeleteNotificationsResult, error) {
	if err := cmd.Validate(); err != nil {
		return DeleteNotificationsResult{}, err
	}

	ids := dedupIDs(cmd.IDs)
	if len(ids) == 0 {
		return DeleteNotificationsResult{}, shared.NewDomainError("notification", "Delete", shared.ErrInvalidInput, "ids are required")
	}

	deleted, err := h.ledger.Delete(ctx, ids)
	if err != nil {
		return DeleteNotificationsResult{}, fmt.Errorf("delete_notifications: %w", err)
	}
	if len(ids) == 1 && deleted == 0 {
		return DeleteNotificationsResult{Requested: 1}, shared.ErrNotificationNotFound
	}

	h.logger.Info("notifications deleted", "requested", len(ids), "deleted", deleted, "actor", cmd.Actor)

	if h.events != nil && deleted > 0 {
		event := shared.NotificationsDeletedEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventNotificationDeleted, ids[0], h.clock.Now()),
			IDs:       ids,
			Deleted:   deleted,
		}
		if err := h.events.Publish(context.WithoutCancel(ctx), event); err != nil {
			h.logger.Warn("failed to publish event", "event_type", event.EventType(), "error", err)
		}
	}

	return DeleteNotificationsResult{Requested: len(ids), Deleted: deleted}, nil
}
