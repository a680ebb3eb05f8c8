// Package service contains infrastructure adapters that implement
// application-level ports: the channel router and id generation.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/salonhub/salon-notifier/internal/domain/notification"
	"github.com/salonhub/salon-notifier/internal/domain/shared"
	"github.com/salonhub/salon-notifier/pkg/circuitbreaker"
)

// ErrChannelNotConfigured is returned for channels without a transport.
var ErrChannelNotConfigured = errors.New("delivery channel is not configured")

// Transport delivers a rendered message to one address.
type Transport interface {
	Send(ctx context.Context, address, title, body string) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, address, title, body string) error

// Send implements Transport.
func (f TransportFunc) Send(ctx context.Context, address, title, body string) error {
	return f(ctx, address, title, body)
}

type route struct {
	transport Transport
	breaker   *circuitbreaker.Breaker
}

// ChannelRouter implements notification.ChannelSender by routing each send to
// the transport registered for its channel. Every transport sits behind its
// own circuit breaker.
type ChannelRouter struct {
	mu     sync.RWMutex
	routes map[notification.Channel]*route
	logger *slog.Logger
}

// NewChannelRouter creates an empty router.
func NewChannelRouter(logger *slog.Logger) *ChannelRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelRouter{
		routes: make(map[notification.Channel]*route),
		logger: logger.With("component", "channel_router"),
	}
}

var _ notification.ChannelSender = (*ChannelRouter)(nil)

// Register binds a transport to a channel, replacing any previous one.
func (r *ChannelRouter) Register(channel notification.Channel, transport Transport) error {
	if !channel.IsValid() {
		return fmt.Errorf("register %q: %w", channel, notification.ErrInvalidChannel)
	}
	if transport == nil {
		return fmt.Errorf("register %q: transport is nil", channel)
	}

	settings := circuitbreaker.Defaults("channel-" + channel.String())
	settings.OnTransition = r.onStateChange
	// Bad addresses say nothing about provider health.
	settings.ShouldCount = func(err error) bool { return !shared.IsValidation(err) }
	breaker := circuitbreaker.New(settings)

	r.mu.Lock()
	r.routes[channel] = &route{transport: transport, breaker: breaker}
	r.mu.Unlock()
	return nil
}

// Send implements notification.ChannelSender.
func (r *ChannelRouter) Send(ctx context.Context, channel notification.Channel, address, title, body string) error {
	r.mu.RLock()
	rt, ok := r.routes[channel]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s: %w", channel, ErrChannelNotConfigured)
	}

	err := rt.breaker.Do(ctx, func(ctx context.Context) error {
		return rt.transport.Send(ctx, address, title, body)
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s unavailable: %w", channel, err)
	}
	return err
}

// Channels returns the configured channels in name order.
func (r *ChannelRouter) Channels() []notification.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]notification.Channel, 0, len(r.routes))
	for ch := range r.routes {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BreakerStates reports the breaker state per configured channel.
func (r *ChannelRouter) BreakerStates() map[notification.Channel]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[notification.Channel]string, len(r.routes))
	for ch, rt := range r.routes {
		out[ch] = rt.breaker.State().String()
	}
	return out
}

func (r *ChannelRouter) onStateChange(name string, from, to circuitbreaker.State) {
	level := slog.LevelInfo
	if to == circuitbreaker.StateOpen {
		level = slog.LevelWarn
	}
	r.logger.Log(context.Background(), level, "channel breaker state changed",
		"breaker", name,
		"from", from.String(),
		"to", to.String(),
	)
}
