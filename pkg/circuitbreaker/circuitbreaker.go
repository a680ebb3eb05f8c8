// Package circuitbreaker guards delivery transports. After a run of provider
// failures the breaker opens and sends fail fast until a cooldown passes and
// a probe send succeeds.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

var (
	// ErrCircuitOpen is returned while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when all half-open probes are in flight.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Settings configures a Breaker. Zero fields take the values of Defaults.
type Settings struct {
	Name string

	// Trips is the number of consecutive counted failures that opens the breaker.
	Trips int
	// Cooldown is how long the breaker stays open before letting probes through.
	Cooldown time.Duration
	// Probes is the number of concurrent sends allowed while half-open.
	// The same number of consecutive successes closes the breaker.
	Probes int

	// ShouldCount reports whether err says something about provider health.
	// Nil counts every error.
	ShouldCount func(err error) bool
	// OnTransition is called with the breaker lock held; keep it short.
	OnTransition func(name string, from, to State)
	Now          func() time.Time
}

// Defaults are tuned for a messaging provider: five failures in a row open
// the breaker for thirty seconds, then a single probe decides.
func Defaults(name string) Settings {
	return Settings{
		Name:     name,
		Trips:    5,
		Cooldown: 30 * time.Second,
		Probes:   1,
		Now:      time.Now,
	}
}

func (s Settings) withDefaults() Settings {
	d := Defaults(s.Name)
	if s.Trips <= 0 {
		s.Trips = d.Trips
	}
	if s.Cooldown <= 0 {
		s.Cooldown = d.Cooldown
	}
	if s.Probes <= 0 {
		s.Probes = d.Probes
	}
	if s.Now == nil {
		s.Now = d.Now
	}
	return s
}

// Stats are cumulative outcome counters.
type Stats struct {
	Allowed   int
	Rejected  int
	Successes int
	Failures  int
}

// Breaker is safe for concurrent use.
type Breaker struct {
	settings Settings

	mu        sync.Mutex
	state     State
	streak    int // consecutive failures when closed, successes when half-open
	inFlight  int // half-open probes not yet reported
	openUntil time.Time
	stats     Stats
}

// New creates a closed breaker.
func New(settings Settings) *Breaker {
	return &Breaker{settings: settings.withDefaults()}
}

// Name returns the breaker name.
func (b *Breaker) Name() string { return b.settings.Name }

// Do runs fn when the breaker admits it and records the outcome.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	done, err := b.Allow()
	if err != nil {
		return err
	}
	err = fn(ctx)
	done(err)
	return err
}

// Allow admits one call. The returned func must be called exactly once with
// the call's outcome.
func (b *Breaker) Allow() (func(error), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.settings.Now().Before(b.openUntil) {
			b.stats.Rejected++
			return nil, ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
	}
	probe := b.state == StateHalfOpen
	if probe {
		if b.inFlight >= b.settings.Probes {
			b.stats.Rejected++
			return nil, ErrTooManyRequests
		}
		b.inFlight++
	}
	b.stats.Allowed++

	var once sync.Once
	return func(err error) {
		once.Do(func() { b.report(probe, err) })
	}, nil
}

func (b *Breaker) report(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe && b.inFlight > 0 {
		b.inFlight--
	}
	failed := err != nil && (b.settings.ShouldCount == nil || b.settings.ShouldCount(err))
	if !failed {
		b.stats.Successes++
	} else {
		b.stats.Failures++
	}

	switch b.state {
	case StateClosed:
		if !failed {
			b.streak = 0
			return
		}
		b.streak++
		if b.streak >= b.settings.Trips {
			b.trip()
		}
	case StateHalfOpen:
		if failed {
			b.trip()
			return
		}
		b.streak++
		if b.streak >= b.settings.Probes {
			b.transition(StateClosed)
		}
	}
}

func (b *Breaker) trip() {
	b.openUntil = b.settings.Now().Add(b.settings.Cooldown)
	b.transition(StateOpen)
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.streak = 0
	b.inFlight = 0
	if b.settings.OnTransition != nil {
		b.settings.OnTransition(b.settings.Name, from, to)
	}
}

// State returns the current state. An open breaker whose cooldown has passed
// still reports open until the next call is admitted.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a copy of the counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Reset closes the breaker and clears the counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.streak = 0
	b.inFlight = 0
	b.stats = Stats{}
}
