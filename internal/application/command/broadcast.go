package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/salonhub/salon-notifier/internal/domain/appointment"
	"github.com/salonhub/salon-notifier/internal/domain/notification"
	"github.com/salonhub/salon-notifier/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAN-OUT
// ══════════════════════════════════════════════════════════════════════════════

// BroadcastRequest sends one literal message to many users.
type BroadcastRequest struct {
	UserIDs []string
	Title   string
	Body    string
	Channel notification.Channel

	// BroadcastID tags every record. Generated when empty.
	BroadcastID string
}

// BroadcastResult aggregates the per-recipient outcomes.
type BroadcastResult struct {
	BroadcastID string `json:"broadcastId"`
	Total       int    `json:"total"`
	Sent        int    `json:"sent"`
	Failed      int    `json:"failed"`
}

// DispatchToMany runs the record/send/update pipeline for every recipient
// with the literal title and body. A failing recipient never stops the rest;
// recipients whose record could not be written count as failed.
func (d *Dispatcher) DispatchToMany(ctx context.Context, req BroadcastRequest) (BroadcastResult, error) {
	if !req.Channel.IsValid() {
		return BroadcastResult{}, shared.Precondition("notification", "DispatchToMany",
			fmt.Sprintf("unknown channel %q", req.Channel))
	}

	broadcastID := req.BroadcastID
	if broadcastID == "" {
		broadcastID = d.newID()
	}
	result := BroadcastResult{BroadcastID: broadcastID, Total: len(req.UserIDs)}

	for _, userID := range req.UserIDs {
		if err := ctx.Err(); err != nil {
			// Remaining recipients get no record at all.
			result.Failed += result.Total - result.Sent - result.Failed
			d.logger.Warn("broadcast interrupted", "broadcast_id", broadcastID, "error", err)
			break
		}

		n, err := d.dispatchLiteral(ctx, userID, req, broadcastID)
		if err != nil {
			d.logger.Error("broadcast recipient failed",
				"broadcast_id", broadcastID,
				"user_id", userID,
				"error", err,
			)
		}
		if n != nil && n.Status == notification.StatusSent {
			result.Sent++
		} else {
			result.Failed++
		}
	}

	d.logger.Info("broadcast completed",
		"broadcast_id", broadcastID,
		"channel", req.Channel,
		"total", result.Total,
		"sent", result.Sent,
		"failed", result.Failed,
	)

	d.publish(context.WithoutCancel(ctx), shared.BroadcastCompletedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventBroadcastCompleted, broadcastID, d.clock.Now()),
		Channel:   req.Channel.String(),
		Total:     result.Total,
		Sent:      result.Sent,
		Failed:    result.Failed,
	})

	return result, nil
}

func (d *Dispatcher) dispatchLiteral(ctx context.Context, userID string, req BroadcastRequest, broadcastID string) (*notification.Notification, error) {
	n, err := notification.NewNotification(notification.NewNotificationParams{
		ID:          d.newID(),
		UserID:      userID,
		Kind:        notification.KindMarketing,
		Channel:     req.Channel,
		Title:       req.Title,
		Body:        req.Body,
		BroadcastID: broadcastID,
		CreatedAt:   d.clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	if err := d.ledger.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	contact, contactErr := d.users.GetContact(ctx, userID)
	return d.finish(ctx, n, d.deliver(ctx, n, contact, contactErr))
}

// ══════════════════════════════════════════════════════════════════════════════
// BROADCAST COMMAND
// Operator-initiated message to a role or to an explicit list of users.
// ══════════════════════════════════════════════════════════════════════════════

// BroadcastCommand contains the data for an operator broadcast.
type BroadcastCommand struct {
	Title   string
	Body    string
	Channel notification.Channel

	// Exactly one of Role and UserIDs must be set.
	Role    appointment.Role
	UserIDs []string
}

// Validate validates the command.
func (c BroadcastCommand) Validate() error {
	const op = "Broadcast"

	if strings.TrimSpace(c.Title) == "" {
		return shared.NewDomainError("broadcast", op, shared.ErrInvalidInput, "title is required")
	}
	if strings.TrimSpace(c.Body) == "" {
		return shared.NewDomainError("broadcast", op, shared.ErrInvalidInput, "body is required")
	}
	if !c.Channel.IsValid() {
		return shared.NewDomainError("broadcast", op, shared.ErrInvalidInput,
			fmt.Sprintf("unknown channel %q", c.Channel))
	}

	hasRole := c.Role != ""
	hasUsers := len(c.UserIDs) > 0
	switch {
	case hasRole && hasUsers:
		return shared.NewDomainError("broadcast", op, shared.ErrInvalidInput, "role and userIds are mutually exclusive")
	case !hasRole && !hasUsers:
		return shared.NewDomainError("broadcast", op, shared.ErrInvalidInput, "role or userIds is required")
	case hasRole && !c.Role.IsValid():
		return shared.NewDomainError("broadcast", op, shared.ErrInvalidInput,
			fmt.Sprintf("unknown role %q", c.Role))
	}
	return nil
}

// BroadcastHandler resolves recipients and fans the message out.
type BroadcastHandler struct {
	dispatcher *Dispatcher
	users      appointment.UserDirectory
}

// NewBroadcastHandler creates a new BroadcastHandler.
func NewBroadcastHandler(dispatcher *Dispatcher, users appointment.UserDirectory) *BroadcastHandler {
	return &BroadcastHandler{dispatcher: dispatcher, users: users}
}

// Handle executes the broadcast command.
func (h *BroadcastHandler) Handle(ctx context.Context, cmd BroadcastCommand) (BroadcastResult, error) {
	if err := cmd.Validate(); err != nil {
		return BroadcastResult{}, err
	}

	recipients, err := h.recipients(ctx, cmd)
	if err != nil {
		return BroadcastResult{}, err
	}

	return h.dispatcher.DispatchToMany(ctx, BroadcastRequest{
		UserIDs: recipients,
		Title:   strings.TrimSpace(cmd.Title),
		Body:    strings.TrimSpace(cmd.Body),
		Channel: cmd.Channel,
	})
}

func (h *BroadcastHandler) recipients(ctx context.Context, cmd BroadcastCommand) ([]string, error) {
	if cmd.Role != "" {
		ids, err := h.users.ListIDsByRole(ctx, cmd.Role)
		if err != nil {
			return nil, fmt.Errorf("broadcast: failed to list %s users: %w", cmd.Role, err)
		}
		return ids, nil
	}
	ids := dedupIDs(cmd.UserIDs)
	if len(ids) == 0 {
		return nil, shared.NewDomainError("broadcast", "Broadcast", shared.ErrInvalidInput, "userIds contains no valid ids")
	}
	return ids, nil
}

// dedupIDs drops blanks and repeats, keeping first-seen order.
func dedupIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
