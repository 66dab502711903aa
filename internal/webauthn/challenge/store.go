// Package challenge stores in-flight WebAuthn ceremony sessions. Sessions are
// single use and expire with the ceremony timeout.
package challenge

import (
	"context"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// Store holds ceremony session data keyed by an opaque session ID.
type Store interface {
	// Put stores session under sessionID until expiresAt.
	Put(ctx context.Context, sessionID string, session webauthn.SessionData, expiresAt time.Time)
	// Take returns and removes the session for sessionID. Returns ok false
	// when missing, expired, or already taken.
	Take(ctx context.Context, sessionID string) (session webauthn.SessionData, ok bool)
}

type entry struct {
	session   webauthn.SessionData
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu   sync.Mutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory challenge store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: time.Now().UTC,
	}
}

// Put stores session under sessionID until expiresAt.
func (s *MemoryStore) Put(ctx context.Context, sessionID string, session webauthn.SessionData, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[sessionID] = entry{session: session, expiresAt: expiresAt}
	// Opportunistic sweep keeps abandoned ceremonies from accumulating.
	now := s.nowF()
	for id, e := range s.m {
		if !e.expiresAt.After(now) {
			delete(s.m, id)
		}
	}
}

// Take returns and removes the session for sessionID.
func (s *MemoryStore) Take(ctx context.Context, sessionID string) (webauthn.SessionData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[sessionID]
	if !ok {
		return webauthn.SessionData{}, false
	}
	delete(s.m, sessionID)
	if !e.expiresAt.After(s.nowF()) {
		return webauthn.SessionData{}, false
	}
	return e.session, true
}
