package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/salonhub/salon-notifier/internal/domain/shared"
	"github.com/salonhub/salon-notifier/pkg/logger"
)

// Response is the body of every reply.
type Response struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	Meta      *Meta     `json:"meta,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// APIError is the error part of a failed reply.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta carries the reply time and, for lists, paging.
type Meta struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version,omitempty"`
	TotalCount int       `json:"total_count,omitempty"`
	Page       int       `json:"page,omitempty"`
	PageSize   int       `json:"page_size,omitempty"`
	HasMore    bool      `json:"has_more,omitempty"`
}

// respond writes data with status. meta may be nil.
func respond(w http.ResponseWriter, r *http.Request, status int, data any, meta *Meta) {
	if meta == nil {
		meta = &Meta{}
	}
	meta.Timestamp = time.Now().UTC()
	meta.Version = "v1"

	send(w, status, Response{
		Success:   status < http.StatusBadRequest,
		Data:      data,
		Meta:      meta,
		RequestID: requestID(r.Context()),
	})
}

func fail(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	send(w, status, Response{
		Error:     &APIError{Code: code, Message: message},
		Meta:      &Meta{Timestamp: time.Now().UTC()},
		RequestID: requestID(r.Context()),
	})
}

func send(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// failWith maps a use-case error to a status: failed preconditions and bad
// input are 400, missing records 404, anything else 500.
func (s *Server) failWith(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case shared.IsPrecondition(err), shared.IsValidation(err):
		fail(w, r, http.StatusBadRequest, "invalid_request", humanMessage(err))
	case shared.IsNotFound(err):
		fail(w, r, http.StatusNotFound, "not_found", humanMessage(err))
	default:
		logger.FromContext(r.Context()).Error(op+" failed", logger.Err(err))
		fail(w, r, http.StatusInternalServerError, "internal_error", "Internal error")
	}
}

func humanMessage(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return err.Error()
}

// intParam reads an integer query parameter, def when absent.
func intParam(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, shared.NewDomainError("http", "Query", shared.ErrInvalidInput,
			fmt.Sprintf("%s must be an integer", key))
	}
	return n, nil
}

// decodeBody decodes a JSON request body; unknown fields are rejected.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return shared.NewDomainError("http", "Decode", shared.ErrInvalidInput,
			fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}
