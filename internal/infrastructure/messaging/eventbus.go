// Package messaging delivers domain events (notification sent/failed,
// deletions, broadcast and tick summaries) to their sinks: the structured log
// and the Kafka audit topic.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/salonhub/salon-notifier/internal/domain/shared"
)

var (
	ErrEventBusClosed = errors.New("event bus is closed")
	ErrHandlerPanic   = errors.New("handler panicked")
)

// EventHandler consumes one event.
type EventHandler func(ctx context.Context, event shared.Event) error

// InMemoryEventBusConfig configures the bus.
type InMemoryEventBusConfig struct {
	// AsyncMode queues events for background workers. Otherwise Publish
	// runs the handlers inline.
	AsyncMode bool

	// WorkerPoolSize is the number of background workers.
	WorkerPoolSize int

	// QueueSize bounds the number of queued events. A full queue makes
	// Publish wait until a worker frees a slot or its context ends.
	QueueSize int

	// HandlerTimeout bounds one async handler call.
	HandlerTimeout time.Duration

	Logger *slog.Logger
}

// DefaultInMemoryEventBusConfig returns the async configuration.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 4,
		QueueSize:      256,
		HandlerTimeout: 10 * time.Second,
	}
}

type subscription struct {
	types   map[shared.EventType]struct{} // nil means every type
	handler EventHandler
}

func (s subscription) wants(t shared.EventType) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// InMemoryEventBus fans events out to subscribed handlers. Handler errors
// and panics are logged and counted, never returned to the publisher.
type InMemoryEventBus struct {
	config InMemoryEventBusConfig
	logger *slog.Logger

	subs atomic.Pointer[[]subscription] // copy-on-write

	mu     sync.RWMutex // guards closed and the queue send
	closed bool

	queue   chan shared.Event
	workers sync.WaitGroup

	published atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
}

// NewInMemoryEventBus creates a bus. In async mode the workers start at once.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 4
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = 10 * time.Second
	}

	b := &InMemoryEventBus{
		config: config,
		logger: config.Logger.With("component", "event_bus"),
	}
	if config.AsyncMode {
		b.queue = make(chan shared.Event, config.QueueSize)
		for i := 0; i < config.WorkerPoolSize; i++ {
			b.workers.Add(1)
			go b.work()
		}
	}
	return b
}

var _ shared.EventPublisher = (*InMemoryEventBus)(nil)

// Subscribe registers handler for the given event types, or for every
// event when no type is given.
func (b *InMemoryEventBus) Subscribe(handler EventHandler, types ...shared.EventType) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	sub := subscription{handler: handler}
	if len(types) > 0 {
		sub.types = make(map[shared.EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	var next []subscription
	if cur := b.subs.Load(); cur != nil {
		next = append(next, *cur...)
	}
	next = append(next, sub)
	b.subs.Store(&next)
	return nil
}

// Publish implements shared.EventPublisher.
func (b *InMemoryEventBus) Publish(ctx context.Context, event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	b.published.Add(1)

	if !b.config.AsyncMode {
		b.mu.RUnlock()
		b.dispatch(ctx, event)
		return nil
	}
	defer b.mu.RUnlock()

	select {
	case b.queue <- event:
		return nil
	case <-ctx.Done():
		b.logger.Warn("event dropped: queue full", "event_type", event.EventType())
		return ctx.Err()
	}
}

func (b *InMemoryEventBus) work() {
	defer b.workers.Done()
	for event := range b.queue {
		ctx, cancel := context.WithTimeout(context.Background(), b.config.HandlerTimeout)
		b.dispatch(ctx, event)
		cancel()
	}
}

func (b *InMemoryEventBus) dispatch(ctx context.Context, event shared.Event) {
	subs := b.subs.Load()
	if subs == nil {
		return
	}
	for _, sub := range *subs {
		if !sub.wants(event.EventType()) {
			continue
		}
		if err := safeHandle(ctx, sub.handler, event); err != nil {
			b.failed.Add(1)
			b.logger.Error("event handler failed", "event_type", event.EventType(), "error", err)
			continue
		}
		b.delivered.Add(1)
	}
}

func safeHandle(ctx context.Context, h EventHandler, event shared.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h(ctx, event)
}

// Close rejects new events and waits until the queue is drained.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.queue != nil {
		close(b.queue)
	}
	b.mu.Unlock()

	b.workers.Wait()
	b.logger.Info("event bus closed", "published", b.published.Load(), "failed", b.failed.Load())
	return nil
}

// BusStats are cumulative counters. Delivered and Failed count handler calls.
type BusStats struct {
	Published int64 `json:"published"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
}

// Stats returns the counters.
func (b *InMemoryEventBus) Stats() BusStats {
	return BusStats{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Failed:    b.failed.Load(),
	}
}
