package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCompositeHealthChecker(t *testing.T) {
	c := NewCompositeHealthChecker("1.2.3")

	status := c.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, "No health checks registered", status.Message)

	c.AddCheck("postgres", NewPingCheck(pinger{}))
	c.AddCheck("redis", NewPingCheck(pinger{err: errors.New("dial tcp: refused")}))
	c.AddOptionalCheck("kafka", NewPingCheck(pinger{err: errors.New("no brokers")}))

	status = c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.False(t, status.Ready)
	assert.Equal(t, "Some checks failed: kafka, redis", status.Message)
	assert.Equal(t, "1.2.3", status.Version)
	require.Contains(t, status.Checks, "redis")
	assert.Equal(t, "dial tcp: refused", status.Checks["redis"].Message)
	assert.True(t, status.Checks["kafka"].Optional)
}

func TestCompositeHealthChecker_Timeout(t *testing.T) {
	c := NewCompositeHealthChecker("")
	c.SetTimeout(10 * time.Millisecond)
	c.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["slow"].Message)
}

type channel string

func TestNewBreakerCheck(t *testing.T) {
	states := map[channel]string{"telegram": "closed", "sms": "open", "email": "open"}
	check := NewBreakerCheck(func() map[channel]string { return states })

	assert.EqualError(t, check(context.Background()), "circuit open: email, sms")

	states["sms"], states["email"] = "half-open", "closed"
	assert.NoError(t, check(context.Background()))
}
