package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Strob0t/SwarmGate/internal/config"
	"github.com/Strob0t/SwarmGate/internal/domain"
	"github.com/Strob0t/SwarmGate/internal/domain/delegation"
	"github.com/Strob0t/SwarmGate/internal/domain/event"
	"github.com/Strob0t/SwarmGate/internal/domain/session"
	"github.com/Strob0t/SwarmGate/internal/port/cache"
	"github.com/Strob0t/SwarmGate/internal/port/eventstore"
	"github.com/Strob0t/SwarmGate/internal/port/sessionstore"
)

const sessionLockStripes = 64

// ApprovalSentinel is the session manager's view of the approval gate. It
// breaks the cycle between session teardown and live approvals without
// importing the gate directly.
type ApprovalSentinel interface {
	// HasPending reports whether the session has at least one approval
	// still awaiting a human decision.
	HasPending(ctx context.Context, sessionID string) (bool, error)

	// CancelForSession resolves every pending approval for the session as
	// timed out, unblocking their waiters.
	CancelForSession(ctx context.Context, sessionID string) error
}

// SessionManager owns all session state. Creation is idempotent, history
// appends are serialized per session, and expiry defers to the approval
// sentinel so a session is never torn down under a waiting human.
type SessionManager struct {
	cfg      config.Session
	store    sessionstore.Store
	cache    cache.Cache
	events   eventstore.Store
	sentinel ApprovalSentinel

	create singleflight.Group
	locks  [sessionLockStripes]sync.Mutex

	now func() time.Time
}

// NewSessionManager creates a session manager. Cache and events may be nil;
// the sentinel is wired after the approval gate exists via SetSentinel.
func NewSessionManager(cfg config.Session, store sessionstore.Store, c cache.Cache, events eventstore.Store) *SessionManager {
	return &SessionManager{
		cfg:    cfg,
		store:  store,
		cache:  c,
		events: events,
		now:    time.Now,
	}
}

// SetSentinel wires the approval gate in. Must be called before the sweeper
// starts.
func (m *SessionManager) SetSentinel(s ApprovalSentinel) { m.sentinel = s }

// GetOrCreate returns the session with the given ID, creating it if absent.
// Concurrent calls with the same ID collapse into one creation. An existing
// session owned by a different actor is never handed out; the caller gets a
// SessionConflictError instead.
func (m *SessionManager) GetOrCreate(ctx context.Context, sessionID, actorID string) (*session.Session, error) {
	v, err, _ := m.create.Do(sessionID, func() (any, error) {
		s, err := m.load(ctx, sessionID)
		switch {
		case err == nil:
			if s.Expired(m.now()) {
				if err := m.Expire(ctx, sessionID); err != nil {
					return nil, err
				}
			} else {
				return s, nil
			}
		case !errors.Is(err, domain.ErrNotFound):
			return nil, fmt.Errorf("load session %s: %w", sessionID, err)
		}

		now := m.now()
		s = &session.Session{
			ID:        sessionID,
			ActorID:   actorID,
			State:     make(map[string]string),
			Version:   1,
			CreatedAt: now,
			ExpiresAt: now.Add(m.cfg.TTL),
		}
		if err := m.store.Save(ctx, s); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				// Lost the race against another process. Their session wins.
				return m.load(ctx, sessionID)
			}
			return nil, fmt.Errorf("create session %s: %w", sessionID, err)
		}
		m.cacheSet(ctx, s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}

	s := v.(*session.Session)
	if s.ActorID != actorID {
		return nil, &delegation.SessionConflictError{
			SessionID: sessionID,
			Cause:     fmt.Errorf("owned by actor %s, requested by %s", s.ActorID, actorID),
		}
	}
	return s, nil
}

// Get returns the session by ID, or domain.ErrNotFound. Expired sessions are
// reported as missing.
func (m *SessionManager) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	s, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Expired(m.now()) {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

// Append records a completed exchange at the end of the session history.
// Exchanges land in completion order regardless of dispatch order. A version
// conflict in the store surfaces as a SessionConflictError.
func (m *SessionManager) Append(ctx context.Context, sessionID string, ex session.Exchange) error {
	lock := m.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	s, err := m.load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("append to session %s: %w", sessionID, err)
	}

	if ex.CompletedAt.IsZero() {
		ex.CompletedAt = m.now()
	}
	s.History = append(s.History, ex)
	s.Version++

	if err := m.store.Save(ctx, s); err != nil {
		m.cacheDelete(ctx, sessionID)
		if errors.Is(err, domain.ErrConflict) {
			return &delegation.SessionConflictError{
				RequestID: ex.Request.RequestID,
				SessionID: sessionID,
				Cause:     err,
			}
		}
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}
	m.cacheSet(ctx, s)
	return nil
}

// SetState writes one key into the session's scratch state map.
func (m *SessionManager) SetState(ctx context.Context, sessionID, key, value string) error {
	lock := m.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	s, err := m.load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("set state on session %s: %w", sessionID, err)
	}
	if s.State == nil {
		s.State = make(map[string]string)
	}
	s.State[key] = value
	s.Version++

	if err := m.store.Save(ctx, s); err != nil {
		m.cacheDelete(ctx, sessionID)
		if errors.Is(err, domain.ErrConflict) {
			return &delegation.SessionConflictError{SessionID: sessionID, Cause: err}
		}
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}
	m.cacheSet(ctx, s)
	return nil
}

// Expire removes a session whose TTL elapsed. While the session still has a
// pending approval the expiry is skipped entirely; the sweeper retries on
// its next pass after the gate resolves or times the approval out.
func (m *SessionManager) Expire(ctx context.Context, sessionID string) error {
	if m.sentinel != nil {
		pending, err := m.sentinel.HasPending(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("check pending approvals for session %s: %w", sessionID, err)
		}
		if pending {
			slog.Debug("expiry deferred, approval pending", "session_id", sessionID)
			return nil
		}
	}
	return m.remove(ctx, sessionID)
}

// Teardown forcibly removes a session. Pending approvals are cancelled
// first so no waiter is left suspended against dead state.
func (m *SessionManager) Teardown(ctx context.Context, sessionID string) error {
	if m.sentinel != nil {
		if err := m.sentinel.CancelForSession(ctx, sessionID); err != nil {
			return fmt.Errorf("cancel approvals for session %s: %w", sessionID, err)
		}
	}
	return m.remove(ctx, sessionID)
}

func (m *SessionManager) remove(ctx context.Context, sessionID string) error {
	if err := m.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	m.cacheDelete(ctx, sessionID)
	m.emit(ctx, sessionID, event.TypeSessionExpired)
	slog.Info("session removed", "session_id", sessionID)
	return nil
}

// RunSweeper runs the expiry GC loop until the context is cancelled.
func (m *SessionManager) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *SessionManager) sweep(ctx context.Context) {
	ids, err := m.store.ExpiredIDs(ctx, m.now())
	if err != nil {
		slog.Error("session sweep failed", "error", err)
		return
	}
	for _, id := range ids {
		if err := m.Expire(ctx, id); err != nil {
			slog.Error("session expiry failed", "session_id", id, "error", err)
		}
	}
}

func (m *SessionManager) load(ctx context.Context, sessionID string) (*session.Session, error) {
	if m.cache != nil {
		if raw, ok, err := m.cache.Get(ctx, sessionKey(sessionID)); err == nil && ok {
			var s session.Session
			if err := json.Unmarshal(raw, &s); err == nil {
				return &s, nil
			}
			m.cacheDelete(ctx, sessionID)
		}
	}
	s, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	m.cacheSet(ctx, s)
	return s, nil
}

func (m *SessionManager) cacheSet(ctx context.Context, s *session.Session) {
	if m.cache == nil {
		return
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return
	}
	if err := m.cache.Set(ctx, sessionKey(s.ID), raw, ttl); err != nil {
		slog.Debug("session cache set failed", "session_id", s.ID, "error", err)
	}
}

func (m *SessionManager) cacheDelete(ctx context.Context, sessionID string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Delete(ctx, sessionKey(sessionID)); err != nil {
		slog.Debug("session cache delete failed", "session_id", sessionID, "error", err)
	}
}

func (m *SessionManager) emit(ctx context.Context, sessionID string, t event.Type) {
	if m.events == nil {
		return
	}
	ev := &event.Event{
		SessionID: sessionID,
		Type:      t,
		CreatedAt: m.now(),
	}
	if err := m.events.Append(ctx, ev); err != nil {
		slog.Warn("audit event append failed", "type", t, "session_id", sessionID, "error", err)
	}
}

func (m *SessionManager) lockFor(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return &m.locks[h.Sum32()%sessionLockStripes]
}

func sessionKey(id string) string { return "session:" + id }
