// Package latch provides one-shot synchronization primitives for lining
// worker goroutines up at a common start and collecting them at a common
// finish.
package latch

import (
	"context"
	"sort"
	"sync"
)

// Gate is a broadcast start barrier. Waiters block until Release; after
// the first Release every current and future waiter passes through.
type Gate struct {
	once sync.Once
	ch   chan struct{}
}

// NewGate returns a closed Gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Release opens the gate. Calling it more than once is harmless.
func (g *Gate) Release() {
	g.once.Do(func() { close(g.ch) })
}

// Wait blocks until the gate is released or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Group is a fan-in join over named tasks. All Add calls must happen
// before the first Wait; Done may be called from any goroutine, even
// while registration is still in progress. Waiters are released only
// once Wait has been entered and every registered task is done, so a
// transiently empty set during registration cannot release early.
type Group struct {
	mu      sync.Mutex
	pending map[string]struct{}
	empty   chan struct{}
	armed   bool
	closed  bool
}

// NewGroup returns a Group with no tasks registered.
func NewGroup() *Group {
	return &Group{
		pending: make(map[string]struct{}),
		empty:   make(chan struct{}),
	}
}

// Add registers a named task.
func (g *Group) Add(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending[name] = struct{}{}
}

// Done marks a named task finished. Finishing the last task releases
// every waiter.
func (g *Group) Done(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, name)
	g.drain()
}

// Wait blocks until every registered task is done or ctx expires. It
// returns the names of tasks still pending, sorted; an empty result
// means a clean join.
func (g *Group) Wait(ctx context.Context) []string {
	g.mu.Lock()
	g.armed = true
	g.drain()
	g.mu.Unlock()

	select {
	case <-g.empty:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		defer g.mu.Unlock()
		names := make([]string, 0, len(g.pending))
		for name := range g.pending {
			names = append(names, name)
		}
		sort.Strings(names)
		return names
	}
}

// drain releases waiters once the pending set is exhausted. It never
// fires before Wait has armed the group, so an early Done cannot mark
// the join complete while later tasks are still being registered.
// Callers must hold mu.
func (g *Group) drain() {
	if g.armed && len(g.pending) == 0 && !g.closed {
		g.closed = true
		close(g.empty)
	}
}
