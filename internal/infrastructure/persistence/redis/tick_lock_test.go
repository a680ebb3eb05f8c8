package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLockClient keeps keys in a map and runs the release script as a
// compare-and-delete.
type fakeLockClient struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	setErr  error
	evals   int
	deleted int
}

func newFakeLockClient() *fakeLockClient {
	return &fakeLockClient{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeLockClient) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeLockClient) compareAndDelete(keys []string, args []interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.evals++
	if len(keys) != 1 || len(args) != 1 {
		return redis.NewCmdResult(nil, errors.New("wrong number of arguments"))
	}
	if f.values[keys[0]] != args[0] {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(f.values, keys[0])
	f.deleted++
	return redis.NewCmdResult(int64(1), nil)
}

func (f *fakeLockClient) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.compareAndDelete(keys, args)
}

func (f *fakeLockClient) EvalSha(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.compareAndDelete(keys, args)
}

func (f *fakeLockClient) EvalRO(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.compareAndDelete(keys, args)
}

func (f *fakeLockClient) EvalShaRO(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.compareAndDelete(keys, args)
}

func (f *fakeLockClient) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeLockClient) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func (f *fakeLockClient) value(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *fakeLockClient) set(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
}

var _ LockClient = (*fakeLockClient)(nil)

func TestTickLock_AcquireAndRelease(t *testing.T) {
	rdb := newFakeLockClient()
	l := NewTickLock(rdb, time.Minute, nil)

	release, ok, err := l.TryAcquire(context.Background(), "send_reminders")
	require.NoError(t, err)
	require.True(t, ok)

	token, held := rdb.value("lock:send_reminders")
	require.True(t, held)
	assert.Len(t, token, 36)
	assert.Equal(t, time.Minute, rdb.ttls["lock:send_reminders"])

	release()
	_, held = rdb.value("lock:send_reminders")
	assert.False(t, held)
	assert.Equal(t, 1, rdb.deleted)

	// The lock can be taken again once released.
	release, ok, err = l.TryAcquire(context.Background(), "send_reminders")
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}

func TestTickLock_Contended(t *testing.T) {
	rdb := newFakeLockClient()
	first := NewTickLock(rdb, time.Minute, nil)
	second := NewTickLock(rdb, time.Minute, nil)

	release, ok, err := first.TryAcquire(context.Background(), "send_reminders")
	require.NoError(t, err)
	require.True(t, ok)
	token, _ := rdb.value("lock:send_reminders")

	noop, ok, err := second.TryAcquire(context.Background(), "send_reminders")
	require.NoError(t, err)
	assert.False(t, ok)

	noop()
	assert.Zero(t, rdb.evals)
	current, held := rdb.value("lock:send_reminders")
	require.True(t, held)
	assert.Equal(t, token, current)

	release()
	_, held = rdb.value("lock:send_reminders")
	assert.False(t, held)
}

func TestTickLock_ReleaseKeepsForeignOwner(t *testing.T) {
	rdb := newFakeLockClient()
	l := NewTickLock(rdb, time.Minute, nil)

	release, ok, err := l.TryAcquire(context.Background(), "send_reminders")
	require.NoError(t, err)
	require.True(t, ok)

	// The TTL expired and another process took the lock.
	rdb.set("lock:send_reminders", "other-owner")

	release()
	assert.Equal(t, 1, rdb.evals)
	assert.Zero(t, rdb.deleted)
	current, held := rdb.value("lock:send_reminders")
	require.True(t, held)
	assert.Equal(t, "other-owner", current)
}

func TestTickLock_SetFailure(t *testing.T) {
	rdb := newFakeLockClient()
	rdb.setErr = errors.New("connection refused")
	l := NewTickLock(rdb, time.Minute, nil)

	release, ok, err := l.TryAcquire(context.Background(), "send_reminders")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock:send_reminders")
	assert.False(t, ok)
	release()
	assert.Zero(t, rdb.evals)
}
