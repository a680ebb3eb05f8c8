package scheduler

import (
	"context"
	"sync"
)

// TickGuard prevents two executions of the same job from overlapping.
// release must be called once when acquired is true; it is a no-op otherwise.
// *redis.TickLock implements it across replicas.
type TickGuard interface {
	TryAcquire(ctx context.Context, name string) (release func(), acquired bool, err error)
}

// LocalTickGuard is an in-process TickGuard keyed by job name.
type LocalTickGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalTickGuard creates a LocalTickGuard.
func NewLocalTickGuard() *LocalTickGuard {
	return &LocalTickGuard{held: make(map[string]struct{})}
}

// TryAcquire implements TickGuard.
func (g *LocalTickGuard) TryAcquire(_ context.Context, name string) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.held[name]; busy {
		return func() {}, false, nil
	}
	g.held[name] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, name)
			g.mu.Unlock()
		})
	}, true, nil
}
