// Package userlock provides a bounded, TTL-evicting keyed-mutex registry for
// per-user mutual exclusion. Acquiring the lock for one user never blocks
// operations on a different user.
package userlock

import (
	"sync"
	"time"
)

const (
	// DefaultMaxEntries bounds the registry so it cannot grow with the user
	// population.
	DefaultMaxEntries = 10000
	// DefaultIdleTTL is how long an unused entry survives before eviction.
	DefaultIdleTTL = 30 * time.Minute
)

type entry struct {
	mu       sync.Mutex
	holders  int
	lastUsed time.Time
}

// Registry hands out one exclusive lock per key. Entries are created on
// demand and evicted once idle past the TTL or when the registry exceeds its
// bound.
type Registry struct {
	mu         sync.Mutex
	entries    map[string]*entry
	maxEntries int
	idleTTL    time.Duration
	nowF       func() time.Time
}

// NewRegistry returns a Registry with the given bound and idle TTL.
// Non-positive arguments fall back to the defaults.
func NewRegistry(maxEntries int, idleTTL time.Duration) *Registry {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Registry{
		entries:    make(map[string]*entry),
		maxEntries: maxEntries,
		idleTTL:    idleTTL,
		nowF:       time.Now,
	}
}

// Lock acquires the exclusive lock for key, blocking until it is free.
// The returned func releases it and must be called exactly once.
func (r *Registry) Lock(key string) (unlock func()) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		if len(r.entries) >= r.maxEntries {
			r.evictIdleLocked()
		}
		e = &entry{}
		r.entries[key] = e
	}
	e.holders++
	r.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		r.mu.Lock()
		e.holders--
		e.lastUsed = r.nowF()
		r.mu.Unlock()
	}
}

// Len reports the number of live entries. Used by tests and metrics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// evictIdleLocked removes entries with no holders that have been idle past
// the TTL. If none qualify and the map is still full, the single
// longest-idle unheld entry is removed so the registry stays bounded.
// Caller must hold r.mu.
func (r *Registry) evictIdleLocked() {
	now := r.nowF()
	var oldestKey string
	var oldestAt time.Time
	for k, e := range r.entries {
		if e.holders > 0 {
			continue
		}
		if now.Sub(e.lastUsed) >= r.idleTTL {
			delete(r.entries, k)
			continue
		}
		if oldestKey == "" || e.lastUsed.Before(oldestAt) {
			oldestKey, oldestAt = k, e.lastUsed
		}
	}
	if len(r.entries) >= r.maxEntries && oldestKey != "" {
		delete(r.entries, oldestKey)
	}
}
