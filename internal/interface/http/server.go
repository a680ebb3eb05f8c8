// Package http implements the operator REST API of the notifier: manual
// reminder ticks, broadcasts, broadcast history, per-user history and
// administrative deletion, plus health probes.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/salonhub/salon-notifier/internal/application/command"
	"github.com/salonhub/salon-notifier/internal/application/query"
	"github.com/salonhub/salon-notifier/internal/infrastructure/scheduler/jobs"
	"github.com/salonhub/salon-notifier/internal/interface/http/handlers"
	"github.com/salonhub/salon-notifier/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds listener limits of the operator API.
type Config struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	MaxHeaderBytes int
	// MaxBodyBytes caps request bodies; larger ones get 413.
	MaxBodyBytes int64

	// Version is reported by /health when no checker is configured.
	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   5 * time.Minute,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
		MaxBodyBytes:   1 << 20,
		Version:        "v1",
	}
}

// Address is the host:port to listen on.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// ReminderTicker runs one reminder tick synchronously.
type ReminderTicker interface {
	TickNow(ctx context.Context) jobs.TickStats
}

// Dependencies are the use cases behind the routes. A route whose handler
// is nil answers 501.
type Dependencies struct {
	Reminders ReminderTicker

	Broadcast           *command.BroadcastHandler
	DeleteNotifications *command.DeleteNotificationsHandler

	BroadcastHistory  *query.BroadcastHistoryHandler
	BroadcastDetail   *query.BroadcastDetailHandler
	UserNotifications *query.UserNotificationsHandler

	HealthChecker handlers.HealthChecker

	// Auth guards /api/. Nil leaves the API open.
	Auth *handlers.APIKeyAuth

	Logger *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server serves the operator API and the probes.
type Server struct {
	config  Config
	deps    Dependencies
	mux     *http.ServeMux
	srv     *http.Server
	logger  *slog.Logger
	started time.Time
}

// NewServer wires the routes. Nothing listens until Run.
func NewServer(config Config, deps Dependencies) *Server {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		config:  config,
		deps:    deps,
		mux:     http.NewServeMux(),
		logger:  log.With("component", "http"),
		started: time.Now(),
	}
	s.routes()
	s.srv = &http.Server{
		Addr:           config.Address(),
		Handler:        s.Handler(),
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(log.Handler(), slog.LevelWarn),
	}
	return s
}

// Handler is the full middleware chain around the routes.
func (s *Server) Handler() http.Handler {
	return handlers.Chain(
		s.recoverPanics,
		s.traceRequests,
		handlers.SecurityHeadersMiddleware,
		handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes),
	)(s.mux)
}

func (s *Server) routes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Probes
	// ─────────────────────────────────────────────────────────────────────────
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.HandleFunc("GET /live", s.handleLive)

	// ─────────────────────────────────────────────────────────────────────────
	// Operator API
	// ─────────────────────────────────────────────────────────────────────────
	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/reminders/run", s.handleRunReminders)
	api.HandleFunc("POST /api/v1/broadcasts", s.handleCreateBroadcast)
	api.HandleFunc("GET /api/v1/broadcasts", s.handleListBroadcasts)
	api.HandleFunc("GET /api/v1/broadcasts/{ref}", s.handleGetBroadcast)
	api.HandleFunc("GET /api/v1/users/{id}/notifications", s.handleUserNotifications)
	api.HandleFunc("DELETE /api/v1/notifications/{id}", s.handleDeleteNotification)
	api.HandleFunc("POST /api/v1/notifications/delete", s.handleDeleteNotifications)

	var guarded http.Handler = api
	if s.deps.Auth != nil {
		guarded = s.deps.Auth.Middleware(api)
	}
	s.mux.Handle("/api/", guarded)
}

// Run listens and serves until ctx ends, then lets in-flight requests finish
// within grace. A failure to bind is returned at once.
func (s *Server) Run(ctx context.Context, grace time.Duration) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	s.logger.Info("http server listening", "address", ln.Addr().String())

	served := make(chan error, 1)
	go func() { served <- s.srv.Serve(ln) }()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server stopped: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("draining http server", "grace", grace.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to drain http server: %w", err)
	}
	return nil
}

// Uptime is the time since NewServer.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.started)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

type ctxKey struct{}

// traceRequests assigns a request id, puts a request logger into the context
// and logs the outcome once the handler returns.
func (s *Server) traceRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		log := s.logger.With(logger.RequestIDKey, id)
		ctx := context.WithValue(r.Context(), ctxKey{}, id)
		ctx = logger.WithContext(ctx, log)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		began := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		log.Log(ctx, level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(began).Milliseconds(),
			"ip", clientIP(r),
		)
	})
}

// recoverPanics turns a handler panic into a 500 reply.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("panic recovered",
					"error", v,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				fail(w, r, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
