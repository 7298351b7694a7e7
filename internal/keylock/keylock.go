// Package keylock serializes work per key while letting different keys run
// concurrently.
package keylock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// Table holds one single-slot semaphore per key. Entries are dropped once no
// goroutine holds or waits for them.
type Table[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry
}

// New creates an empty lock table.
func New[K comparable]() *Table[K] {
	return &Table[K]{entries: make(map[K]*entry)}
}

func (t *Table[K]) acquireRef(key K) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		t.entries[key] = e
	}
	e.refs++
	return e
}

func (t *Table[K]) releaseRef(key K, e *entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(t.entries, key)
	}
}

// Lock blocks until key is free or ctx is done. The returned func releases it.
func (t *Table[K]) Lock(ctx context.Context, key K) (func(), error) {
	e := t.acquireRef(key)
	if err := e.sem.Acquire(ctx, 1); err != nil {
		t.releaseRef(key, e)
		return nil, err
	}
	return t.unlocker(key, e), nil
}

// TryLock takes key only if it is free right now.
func (t *Table[K]) TryLock(key K) (func(), bool) {
	e := t.acquireRef(key)
	if !e.sem.TryAcquire(1) {
		t.releaseRef(key, e)
		return nil, false
	}
	return t.unlocker(key, e), true
}

func (t *Table[K]) unlocker(key K, e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			t.releaseRef(key, e)
		})
	}
}

// Len reports how many keys are currently held or awaited.
func (t *Table[K]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
