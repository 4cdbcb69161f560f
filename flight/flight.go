// Package flight coordinates in-flight fetches so that at most one remote
// call per cache key is outstanding at a time. The first caller for a key
// owns the flight and does the real work; everyone else subscribes to a
// single-assignment result and re-checks the cache once it lands. Waiters
// subscribe to a channel rather than polling, and Wait honors context
// deadlines so a flight whose owner never completes cannot hang callers
// forever.
package flight

import (
	"context"
	"errors"
	"sync"
)

// ErrNotRegistered is returned when completing a key that has no flight.
var ErrNotRegistered = errors.New("flight: key not registered")

// Flight is the shared result of one in-progress fetch. It is resolved
// exactly once, after which every waiter observes the same value or error.
type Flight struct {
	done chan struct{}
	val  any
	err  error
}

// Wait blocks until the flight resolves or ctx is done. On a resolved flight
// it returns the shared value or error; on cancellation it returns ctx's
// error, and the caller should fall back to the cache or local data.
func (f *Flight) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Group tracks at most one Flight per key.
type Group struct {
	mu      sync.Mutex
	flights map[string]*Flight
}

// NewGroup creates an empty Group.
func NewGroup() *Group {
	return &Group{flights: make(map[string]*Flight)}
}

// InFlight reports whether a fetch for key is currently outstanding.
func (g *Group) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.flights[key]
	return ok
}

// Register returns the flight for key. The boolean reports ownership: true
// means this caller created the flight and must resolve it via Complete or
// CompleteError on every terminal path; false means another fetch is already
// underway and the caller should Wait on the returned flight instead.
func (g *Group) Register(key string) (*Flight, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if f, ok := g.flights[key]; ok {
		return f, false
	}
	f := &Flight{done: make(chan struct{})}
	g.flights[key] = f
	return f, true
}

// Complete resolves the flight for key with value and removes the in-flight
// marker, releasing every waiter.
func (g *Group) Complete(key string, value any) error {
	return g.resolve(key, value, nil)
}

// CompleteError resolves the flight for key with err and removes the
// in-flight marker, releasing every waiter.
func (g *Group) CompleteError(key string, err error) error {
	return g.resolve(key, nil, err)
}

func (g *Group) resolve(key string, value any, err error) error {
	g.mu.Lock()
	f, ok := g.flights[key]
	if ok {
		delete(g.flights, key)
	}
	g.mu.Unlock()

	if !ok {
		return ErrNotRegistered
	}
	f.val = value
	f.err = err
	close(f.done)
	return nil
}

// Forget drops the in-flight marker for key without resolving it. Existing
// waiters keep waiting on the old flight; new callers may start a fresh
// fetch. It exists to force-clear a flight whose owner is presumed stuck.
func (g *Group) Forget(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.flights, key)
}

// Do runs fn under single-flight coordination for key. The owning caller
// executes fn and resolves the flight; concurrent callers share its result.
// The boolean reports whether the result was shared from another caller's
// flight.
func (g *Group) Do(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, bool, error) {
	f, owner := g.Register(key)
	if !owner {
		v, err := f.Wait(ctx)
		return v, true, err
	}

	v, err := fn(ctx)
	if err != nil {
		g.CompleteError(key, err)
		return nil, false, err
	}
	g.Complete(key, v)
	return v, false, nil
}
