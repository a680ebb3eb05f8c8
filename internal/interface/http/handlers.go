package http

import (
	"net/http"

	"github.com/salonhub/salon-notifier/internal/application/command"
	"github.com/salonhub/salon-notifier/internal/application/query"
	"github.com/salonhub/salon-notifier/internal/domain/appointment"
	"github.com/salonhub/salon-notifier/internal/domain/notification"
	"github.com/salonhub/salon-notifier/internal/domain/shared"
	"github.com/salonhub/salon-notifier/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) health(r *http.Request) handlers.HealthStatus {
	if s.deps.HealthChecker != nil {
		return s.deps.HealthChecker.Check(r.Context())
	}
	return handlers.HealthStatus{
		Healthy: true,
		Ready:   true,
		Message: "OK",
		Uptime:  s.Uptime().String(),
		Version: s.config.Version,
	}
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.health(r)
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	respond(w, r, code, status, nil)
}

// handleReady handles GET /ready
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.health(r)
	if !status.Ready {
		respond(w, r, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": status.Message,
		}, nil)
		return
	}
	respond(w, r, http.StatusOK, map[string]string{"status": "ready"}, nil)
}

// handleLive handles GET /live
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, map[string]string{"status": "alive"}, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// REMINDER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRunReminders handles POST /api/v1/reminders/run
func (s *Server) handleRunReminders(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reminders == nil {
		fail(w, r, http.StatusNotImplemented, "not_implemented", "Reminder job not configured")
		return
	}

	stats := s.deps.Reminders.TickNow(r.Context())
	respond(w, r, http.StatusOK, stats, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// BROADCAST HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type broadcastRequest struct {
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Channel string   `json:"channel"`
	Role    string   `json:"role,omitempty"`
	UserIDs []string `json:"userIds,omitempty"`
}

// handleCreateBroadcast handles POST /api/v1/broadcasts
func (s *Server) handleCreateBroadcast(w http.ResponseWriter, r *http.Request) {
	if s.deps.Broadcast == nil {
		fail(w, r, http.StatusNotImplemented, "not_implemented", "Broadcast handler not configured")
		return
	}

	var req broadcastRequest
	if err := decodeBody(r, &req); err != nil {
		s.failWith(w, r, "broadcast", err)
		return
	}

	result, err := s.deps.Broadcast.Handle(r.Context(), command.BroadcastCommand{
		Title:   req.Title,
		Body:    req.Body,
		Channel: notification.Channel(req.Channel),
		Role:    appointment.Role(req.Role),
		UserIDs: req.UserIDs,
	})
	if err != nil {
		s.failWith(w, r, "broadcast", err)
		return
	}

	respond(w, r, http.StatusOK, result, nil)
}

// handleListBroadcasts handles GET /api/v1/broadcasts
func (s *Server) handleListBroadcasts(w http.ResponseWriter, r *http.Request) {
	if s.deps.BroadcastHistory == nil {
		fail(w, r, http.StatusNotImplemented, "not_implemented", "Broadcast history not configured")
		return
	}

	page, err := intParam(r, "page", 1)
	if err != nil {
		s.failWith(w, r, "list broadcasts", err)
		return
	}
	pageSize, err := intParam(r, "pageSize", shared.DefaultPageSize)
	if err != nil {
		s.failWith(w, r, "list broadcasts", err)
		return
	}

	result, err := s.deps.BroadcastHistory.Handle(r.Context(), query.HistoryQuery{Page: page, PageSize: pageSize})
	if err != nil {
		s.failWith(w, r, "list broadcasts", err)
		return
	}

	respond(w, r, http.StatusOK, result, &Meta{
		TotalCount: result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		HasMore:    result.HasMore,
	})
}

// handleGetBroadcast handles GET /api/v1/broadcasts/{ref}
func (s *Server) handleGetBroadcast(w http.ResponseWriter, r *http.Request) {
	if s.deps.BroadcastDetail == nil {
		fail(w, r, http.StatusNotImplemented, "not_implemented", "Broadcast detail not configured")
		return
	}

	detail, err := s.deps.BroadcastDetail.Handle(r.Context(), r.PathValue("ref"))
	if err != nil {
		s.failWith(w, r, "get broadcast", err)
		return
	}

	respond(w, r, http.StatusOK, detail, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleUserNotifications handles GET /api/v1/users/{id}/notifications
func (s *Server) handleUserNotifications(w http.ResponseWriter, r *http.Request) {
	if s.deps.UserNotifications == nil {
		fail(w, r, http.StatusNotImplemented, "not_implemented", "Notification history not configured")
		return
	}

	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.failWith(w, r, "user notifications", err)
		return
	}

	items, err := s.deps.UserNotifications.Handle(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.failWith(w, r, "user notifications", err)
		return
	}

	respond(w, r, http.StatusOK, items, &Meta{TotalCount: len(items)})
}

// handleDeleteNotification handles DELETE /api/v1/notifications/{id}
func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	s.deleteNotifications(w, r, []string{r.PathValue("id")})
}

type deleteRequest struct {
	IDs []string `json:"ids"`
}

// handleDeleteNotifications handles POST /api/v1/notifications/delete
func (s *Server) handleDeleteNotifications(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := decodeBody(r, &req); err != nil {
		s.failWith(w, r, "delete notifications", err)
		return
	}
	s.deleteNotifications(w, r, req.IDs)
}

func (s *Server) deleteNotifications(w http.ResponseWriter, r *http.Request, ids []string) {
	if s.deps.DeleteNotifications == nil {
		fail(w, r, http.StatusNotImplemented, "not_implemented", "Deletion not configured")
		return
	}

	result, err := s.deps.DeleteNotifications.Handle(r.Context(), command.DeleteNotificationsCommand{
		IDs:   ids,
		Actor: "api:" + clientIP(r),
	})
	if err != nil {
		s.failWith(w, r, "delete notifications", err)
		return
	}

	respond(w, r, http.StatusOK, result, nil)
}
