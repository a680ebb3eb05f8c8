package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/salonhub/salon-notifier/internal/domain/notification"
	"github.com/salonhub/salon-notifier/internal/domain/shared"
)

// NotificationDTO is a ledger record as shown to operators.
type NotificationDTO struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	Kind        string         `json:"kind"`
	Channel     string         `json:"channel"`
	Status      string         `json:"status"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Payload     map[string]any `json:"payload,omitempty"`
	BroadcastID string         `json:"broadcastId,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	SentAt      *time.Time     `json:"sentAt,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// NotificationToDTO converts a ledger record.
func NotificationToDTO(n *notification.Notification) NotificationDTO {
	return NotificationDTO{
		ID:          n.ID,
		UserID:      n.UserID,
		Kind:        n.Kind.String(),
		Channel:     n.Channel.String(),
		Status:      n.Status.String(),
		Title:       n.Title,
		Body:        n.Body,
		Payload:     n.Payload,
		BroadcastID: n.BroadcastID,
		CreatedAt:   n.CreatedAt,
		SentAt:      n.SentAt,
		Error:       n.Error,
	}
}

// UserNotificationsHandler returns the recent ledger records of one user.
type UserNotificationsHandler struct {
	ledger notification.Ledger
}

// NewUserNotificationsHandler creates a new UserNotificationsHandler.
func NewUserNotificationsHandler(ledger notification.Ledger) *UserNotificationsHandler {
	return &UserNotificationsHandler{ledger: ledger}
}

// Handle returns up to limit records, newest first. The limit is clamped to
// [1, notification.MaxUserLimit]; zero selects the default.
func (h *UserNotificationsHandler) Handle(ctx context.Context, userID string, limit int) ([]NotificationDTO, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, shared.NewDomainError("notification", "FindByUser", shared.ErrInvalidInput, "user id is required")
	}

	records, err := h.ledger.FindByUser(ctx, userID, notification.ClampUserLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to load notifications for %s: %w", userID, err)
	}

	out := make([]NotificationDTO, 0, len(records))
	for _, n := range records {
		out = append(out, NotificationToDTO(n))
	}
	return out, nil
}
