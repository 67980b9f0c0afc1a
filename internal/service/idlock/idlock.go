package idlock

import (
	"context"
	"sync"
)

// Registry hands out exclusive in-process locks keyed by document id.
// Interactive operations Lock and wait; background sweeps TryLock and
// skip to the next tick on contention. Entries are refcounted so the
// map does not grow with every id ever seen.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	sem  chan struct{}
	refs int
}

func New() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

func (r *Registry) acquireEntry(id string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		r.entries[id] = e
	}
	e.refs++
	return e
}

func (r *Registry) releaseEntry(id string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(r.entries, id)
	}
}

// Lock blocks until the id is exclusively held or ctx is done.
func (r *Registry) Lock(ctx context.Context, id string) error {
	e := r.acquireEntry(id)
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		r.releaseEntry(id, e)
		return ctx.Err()
	}
}

// TryLock acquires the id without waiting. Returns false if held.
func (r *Registry) TryLock(id string) bool {
	e := r.acquireEntry(id)
	select {
	case e.sem <- struct{}{}:
		return true
	default:
		r.releaseEntry(id, e)
		return false
	}
}

// Unlock releases a lock previously acquired via Lock or TryLock.
func (r *Registry) Unlock(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return
	}

	<-e.sem
	r.releaseEntry(id, e)
}
