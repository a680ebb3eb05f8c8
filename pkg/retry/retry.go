// Package retry re-runs delivery calls (Telegram Bot API, SMS gateway, SMTP)
// that failed transiently. Only errors marked with Transient or TransientAfter
// are retried; anything else ends the loop on the spot.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

type transientError struct {
	err   error
	after time.Duration
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as worth another attempt.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// TransientAfter marks err as worth another attempt no sooner than after,
// e.g. a provider's Retry-After or Telegram's retry_after.
func TransientAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err, after: after}
}

// IsTransient reports whether err was marked by Transient or TransientAfter.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// Policy describes one retry loop. The zero Policy makes a single attempt.
type Policy struct {
	// Attempts counts the first call.
	Attempts int
	// Base is the wait after the first failure, multiplied by Factor after
	// each following one and capped at Max.
	Base   time.Duration
	Max    time.Duration
	Factor float64
	// Jitter spreads every wait by ±Jitter of its value.
	Jitter float64
	// MaxHint caps provider-requested waits. Zero keeps them uncapped.
	MaxHint time.Duration

	OnRetry func(attempt int, err error, wait time.Duration)
}

// Telegram is the policy for Bot API calls.
func Telegram() Policy {
	return Policy{
		Attempts: 3,
		Base:     300 * time.Millisecond,
		Max:      3 * time.Second,
		Factor:   2,
		Jitter:   0.1,
		MaxHint:  5 * time.Second,
	}
}

// Gateway is the policy for the SMS gateway and SMTP relay.
func Gateway() Policy {
	return Policy{
		Attempts: 2,
		Base:     500 * time.Millisecond,
		Max:      2 * time.Second,
		Factor:   2,
		Jitter:   0.2,
		MaxHint:  2 * time.Second,
	}
}

// Do calls fn until it succeeds, returns a non-transient error, the attempts
// run out or ctx ends. The returned error never carries the transient mark.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := max(p.Attempts, 1)

	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		var t *transientError
		if !errors.As(err, &t) {
			return err
		}
		last = t.err
		if attempt >= attempts {
			return last
		}

		wait := p.wait(attempt, t.after)
		if p.OnRetry != nil {
			p.OnRetry(attempt, last, wait)
		}
		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last
		case <-timer.C:
		}
	}
}

func (p Policy) wait(attempt int, hint time.Duration) time.Duration {
	if hint > 0 {
		if p.MaxHint > 0 && hint > p.MaxHint {
			return p.MaxHint
		}
		return hint
	}
	return p.Backoff(attempt)
}

// Backoff returns the jittered wait after the given failed attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}

	d := float64(p.Base) * math.Pow(factor, float64(attempt-1))
	if p.Max > 0 && d > float64(p.Max) {
		d = float64(p.Max)
	}
	if p.Jitter > 0 {
		d += d * p.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(max(d, 0))
}
