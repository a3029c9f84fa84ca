// Package locking serializes ticket resolution per conversation pair. The
// in-process keyed mutex upholds the single-open-ticket invariant when all of
// a tenant's traffic funnels through one process; multi-process deployments
// additionally hold a Redis lock and the database advisory lock.
package locking

import (
	"sync"
)

// KeyedMutex provides per-key mutual exclusion with lazily created entries.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*entry)}
}

// Lock blocks until the key is held and returns its release function. Entries
// are reference counted so the map does not grow with every pair ever seen.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
