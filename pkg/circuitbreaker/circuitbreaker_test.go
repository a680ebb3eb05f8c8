package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct{ t time.Time }

func (c *manualClock) now() time.Time { return c.t }

func newClock() *manualClock {
	return &manualClock{t: time.Date(2024, 6, 9, 10, 0, 0, 0, time.UTC)}
}

func TestBreaker_OpensAndRecovers(t *testing.T) {
	clock := newClock()
	var transitions []string

	b := New(Settings{
		Name:     "sms",
		Trips:    2,
		Cooldown: time.Minute,
		Now:      clock.now,
		OnTransition: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	boom := errors.New("gateway 502")
	fail := func(context.Context) error { return boom }
	ok := func(context.Context) error { return nil }
	ctx := context.Background()

	assert.ErrorIs(t, b.Do(ctx, fail), boom)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Do(ctx, fail), boom)
	assert.Equal(t, StateOpen, b.State())

	calls := 0
	err := b.Do(ctx, func(context.Context) error { calls++; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, calls)

	clock.t = clock.t.Add(time.Minute)
	assert.NoError(t, b.Do(ctx, ok))
	assert.Equal(t, StateClosed, b.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
	assert.Equal(t, Stats{Allowed: 3, Rejected: 1, Successes: 1, Failures: 2}, b.Stats())
}

func TestBreaker_SuccessResetsStreak(t *testing.T) {
	b := New(Settings{Name: "tg", Trips: 2})
	ctx := context.Background()
	boom := errors.New("down")

	_ = b.Do(ctx, func(context.Context) error { return boom })
	_ = b.Do(ctx, func(context.Context) error { return nil })
	_ = b.Do(ctx, func(context.Context) error { return boom })
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newClock()
	b := New(Settings{Name: "tg", Trips: 1, Cooldown: time.Second, Now: clock.now})
	ctx := context.Background()
	boom := errors.New("down")

	_ = b.Do(ctx, func(context.Context) error { return boom })
	assert.Equal(t, StateOpen, b.State())

	clock.t = clock.t.Add(time.Second)
	_ = b.Do(ctx, func(context.Context) error { return boom })
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Do(ctx, func(context.Context) error { return nil }), ErrCircuitOpen)
}

func TestBreaker_LimitsConcurrentProbes(t *testing.T) {
	clock := newClock()
	b := New(Settings{Name: "email", Trips: 1, Cooldown: time.Second, Now: clock.now})

	_ = b.Do(context.Background(), func(context.Context) error { return errors.New("smtp 421") })
	clock.t = clock.t.Add(time.Second)

	done, err := b.Allow()
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, b.State())

	_, err = b.Allow()
	assert.ErrorIs(t, err, ErrTooManyRequests)

	done(nil)
	done(errors.New("reported twice"))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ShouldCountFilter(t *testing.T) {
	permanent := errors.New("400")
	b := New(Settings{
		Name:        "email",
		Trips:       1,
		ShouldCount: func(err error) bool { return !errors.Is(err, permanent) },
	})

	_ = b.Do(context.Background(), func(context.Context) error { return permanent })
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 1, b.Stats().Successes)
}

func TestBreaker_Reset(t *testing.T) {
	b := New(Settings{Name: "sms", Trips: 1})
	_ = b.Do(context.Background(), func(context.Context) error { return errors.New("x") })
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, Stats{}, b.Stats())
	assert.Equal(t, "sms", b.Name())
}
