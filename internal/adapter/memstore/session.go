// Package memstore provides in-memory implementations of the persistence
// ports, used when no Postgres DSN is configured (dev and test mode). The
// stores honor the same concurrency contracts as their SQL counterparts.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/Strob0t/SwarmGate/internal/domain"
	"github.com/Strob0t/SwarmGate/internal/domain/session"
)

// SessionStore is an in-memory sessionstore.Store with optimistic
// versioning.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*session.Session)}
}

// Load implements sessionstore.Store.
func (s *SessionStore) Load(_ context.Context, sessionID string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copySession(found), nil
}

// Save implements sessionstore.Store. The stored version must be exactly
// one behind the incoming one, or the session must be new at version 1.
func (s *SessionStore) Save(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[sess.ID]
	switch {
	case !ok && sess.Version != 1:
		return domain.ErrConflict
	case ok && current.Version != sess.Version-1:
		return domain.ErrConflict
	}
	s.sessions[sess.ID] = copySession(sess)
	return nil
}

// Delete implements sessionstore.Store.
func (s *SessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// ExpiredIDs implements sessionstore.Store.
func (s *SessionStore) ExpiredIDs(_ context.Context, before time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, sess := range s.sessions {
		if sess.Expired(before) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func copySession(in *session.Session) *session.Session {
	out := *in
	out.History = append([]session.Exchange(nil), in.History...)
	out.State = make(map[string]string, len(in.State))
	for k, v := range in.State {
		out.State[k] = v
	}
	return &out
}
