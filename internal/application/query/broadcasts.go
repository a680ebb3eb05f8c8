// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/salonhub/salon-notifier/internal/domain/notification"
	"github.com/salonhub/salon-notifier/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DTO
// ══════════════════════════════════════════════════════════════════════════════

// BroadcastSummaryDTO describes one logical broadcast without recipients.
type BroadcastSummaryDTO struct {
	Ref       string    `json:"ref"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Channel   string    `json:"channel"`
	CreatedAt time.Time `json:"createdAt"`
	Total     int       `json:"total"`
	Sent      int       `json:"sent"`
	Failed    int       `json:"failed"`
	Pending   int       `json:"pending"`
}

// RecipientDTO is the delivery outcome for one recipient.
type RecipientDTO struct {
	NotificationID string     `json:"notificationId"`
	UserID         string     `json:"userId"`
	Status         string     `json:"status"`
	Error          string     `json:"error,omitempty"`
	SentAt         *time.Time `json:"sentAt,omitempty"`
}

// BroadcastDetailDTO is a broadcast with its per-recipient outcomes.
type BroadcastDetailDTO struct {
	BroadcastSummaryDTO
	Recipients []RecipientDTO `json:"recipients"`
}

func summaryDTO(g notification.BroadcastGroup) BroadcastSummaryDTO {
	return BroadcastSummaryDTO{
		Ref:       g.Ref.String(),
		Title:     g.Title,
		Body:      g.Body,
		Channel:   g.Channel.String(),
		CreatedAt: g.CreatedAt,
		Total:     g.Total,
		Sent:      g.Sent,
		Failed:    g.Failed,
		Pending:   g.Pending,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BROADCAST HISTORY QUERY
// ══════════════════════════════════════════════════════════════════════════════

// HistoryQuery selects one page of broadcast history.
type HistoryQuery struct {
	Page     int
	PageSize int
}

// HistoryResult is one page of broadcasts, newest first.
type HistoryResult struct {
	Items    []BroadcastSummaryDTO `json:"items"`
	Total    int                   `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"pageSize"`
	HasMore  bool                  `json:"hasMore"`
}

// BroadcastHistoryHandler lists logical broadcasts assembled from the ledger.
type BroadcastHistoryHandler struct {
	ledger notification.Ledger
}

// NewBroadcastHistoryHandler creates a new BroadcastHistoryHandler.
func NewBroadcastHistoryHandler(ledger notification.Ledger) *BroadcastHistoryHandler {
	return &BroadcastHistoryHandler{ledger: ledger}
}

// Handle executes the query.
func (h *BroadcastHistoryHandler) Handle(ctx context.Context, q HistoryQuery) (*HistoryResult, error) {
	records, err := h.ledger.ListBroadcasts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list broadcasts: %w", err)
	}

	groups := notification.GroupBroadcasts(records)
	p := shared.NewPagination(q.Page, q.PageSize)

	start := min(p.Offset(), len(groups))
	end := min(start+p.Limit(), len(groups))

	items := make([]BroadcastSummaryDTO, 0, end-start)
	for _, g := range groups[start:end] {
		items = append(items, summaryDTO(g))
	}

	return &HistoryResult{
		Items:    items,
		Total:    len(groups),
		Page:     p.Page,
		PageSize: p.PageSize,
		HasMore:  end < len(groups),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BROADCAST DETAIL QUERY
// ══════════════════════════════════════════════════════════════════════════════

// BroadcastDetailHandler returns one broadcast with its recipients.
type BroadcastDetailHandler struct {
	ledger notification.Ledger
}

// NewBroadcastDetailHandler creates a new BroadcastDetailHandler.
func NewBroadcastDetailHandler(ledger notification.Ledger) *BroadcastDetailHandler {
	return &BroadcastDetailHandler{ledger: ledger}
}

// Handle looks the broadcast up by a broadcast id or a "legacy:" reference.
func (h *BroadcastDetailHandler) Handle(ctx context.Context, rawRef string) (*BroadcastDetailDTO, error) {
	ref, err := notification.ParseGroupRef(rawRef)
	if err != nil {
		if errors.Is(err, notification.ErrInvalidGroupRef) {
			return nil, shared.WrapError("notification", "FindBroadcast", shared.ErrInvalidInput, "invalid broadcast reference", err)
		}
		return nil, err
	}

	rows, err := h.ledger.FindBroadcastGroup(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to load broadcast %s: %w", ref, err)
	}

	// The store may match loosely; keep only rows of this group.
	matched := rows[:0:0]
	for _, n := range rows {
		if ref.Matches(n) {
			matched = append(matched, n)
		}
	}
	if len(matched) == 0 {
		return nil, shared.ErrBroadcastNotFound
	}

	g := notification.SummarizeGroup(ref, matched)
	dto := &BroadcastDetailDTO{
		BroadcastSummaryDTO: summaryDTO(g),
		Recipients:          make([]RecipientDTO, 0, len(g.Recipients)),
	}
	for _, r := range g.Recipients {
		dto.Recipients = append(dto.Recipients, RecipientDTO{
			NotificationID: r.NotificationID,
			UserID:         r.UserID,
			Status:         r.Status.String(),
			Error:          r.Error,
			SentAt:         r.SentAt,
		})
	}
	return dto, nil
}
