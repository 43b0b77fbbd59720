package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/SwarmGate/internal/config"
	"github.com/Strob0t/SwarmGate/internal/domain"
	"github.com/Strob0t/SwarmGate/internal/domain/delegation"
	"github.com/Strob0t/SwarmGate/internal/domain/session"
	"github.com/Strob0t/SwarmGate/internal/service"
)

// mockSessionStore is an in-memory Store with optimistic versioning and
// call counters for assertions.
type mockSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	saves    int
	creates  int
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: make(map[string]*session.Session)}
}

func (s *mockSessionStore) Load(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *found
	cp.History = append([]session.Exchange(nil), found.History...)
	return &cp, nil
}

func (s *mockSessionStore) Save(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	current, ok := s.sessions[sess.ID]
	switch {
	case !ok && sess.Version != 1:
		return domain.ErrConflict
	case ok && current.Version != sess.Version-1:
		return domain.ErrConflict
	}
	if !ok {
		s.creates++
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *mockSessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *mockSessionStore) ExpiredIDs(_ context.Context, before time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, sess := range s.sessions {
		if sess.Expired(before) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *mockSessionStore) createCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

// mockSentinel is a scripted ApprovalSentinel.
type mockSentinel struct {
	mu        sync.Mutex
	pending   bool
	cancelled []string
}

func (s *mockSentinel) HasPending(context.Context, string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending, nil
}

func (s *mockSentinel) CancelForSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, id)
	return nil
}

func newSessionManager(store *mockSessionStore) *service.SessionManager {
	cfg := config.Session{TTL: time.Hour, SweepInterval: time.Minute}
	return service.NewSessionManager(cfg, store, nil, nil)
}

func TestSessionManager_GetOrCreate(t *testing.T) {
	store := newMockSessionStore()
	m := newSessionManager(store)
	ctx := context.Background()

	s, err := m.GetOrCreate(ctx, "sess-1", "actor-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Version != 1 {
		t.Errorf("expected fresh session at version 1, got %d", s.Version)
	}
	if s.ExpiresAt.Before(s.CreatedAt) {
		t.Error("expected TTL applied on creation")
	}

	again, err := m.GetOrCreate(ctx, "sess-1", "actor-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.ID != s.ID || store.createCount() != 1 {
		t.Errorf("expected idempotent creation, got %d creates", store.createCount())
	}
}

func TestSessionManager_GetOrCreateConcurrent(t *testing.T) {
	store := newMockSessionStore()
	m := newSessionManager(store)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.GetOrCreate(context.Background(), "sess-1", "actor-1"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if store.createCount() != 1 {
		t.Errorf("expected exactly one creation, got %d", store.createCount())
	}
}

func TestSessionManager_GetOrCreateActorMismatch(t *testing.T) {
	store := newMockSessionStore()
	m := newSessionManager(store)
	ctx := context.Background()

	if _, err := m.GetOrCreate(ctx, "sess-1", "actor-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := m.GetOrCreate(ctx, "sess-1", "actor-2")

	var cerr *delegation.SessionConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected SessionConflictError, got %v", err)
	}
}

func TestSessionManager_AppendCompletionOrder(t *testing.T) {
	store := newMockSessionStore()
	m := newSessionManager(store)
	ctx := context.Background()

	if _, err := m.GetOrCreate(ctx, "sess-1", "actor-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, id := range []string{"req-b", "req-a", "req-c"} {
		ex := session.Exchange{
			Request:  delegation.Request{RequestID: id, SessionID: "sess-1", ActorID: "actor-1", TaskType: "classify"},
			Response: delegation.Response{RequestID: id, Result: []byte(`"ok"`), Confidence: 0.9},
		}
		if err := m.Append(ctx, "sess-1", ex); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	s, err := m.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.History) != 3 {
		t.Fatalf("expected 3 exchanges, got %d", len(s.History))
	}
	for i, want := range []string{"req-b", "req-a", "req-c"} {
		if s.History[i].Request.RequestID != want {
			t.Errorf("history[%d] = %s, want %s", i, s.History[i].Request.RequestID, want)
		}
	}
	if s.Version != 4 {
		t.Errorf("expected version 4 after 3 appends, got %d", s.Version)
	}
}

func TestSessionManager_AppendMissingSession(t *testing.T) {
	m := newSessionManager(newMockSessionStore())
	err := m.Append(context.Background(), "ghost", session.Exchange{})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionManager_ExpireDeferredWhilePending(t *testing.T) {
	store := newMockSessionStore()
	m := newSessionManager(store)
	sentinel := &mockSentinel{pending: true}
	m.SetSentinel(sentinel)
	ctx := context.Background()

	if _, err := m.GetOrCreate(ctx, "sess-1", "actor-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := m.Expire(ctx, "sess-1"); err != nil {
		t.Fatalf("expire with pending approval must be a no-op, got %v", err)
	}
	if _, err := m.Get(ctx, "sess-1"); err != nil {
		t.Errorf("session must survive deferred expiry, got %v", err)
	}

	sentinel.mu.Lock()
	sentinel.pending = false
	sentinel.mu.Unlock()

	if err := m.Expire(ctx, "sess-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.Get(ctx, "sess-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected session gone after expiry, got %v", err)
	}
}

func TestSessionManager_TeardownCancelsApprovals(t *testing.T) {
	store := newMockSessionStore()
	m := newSessionManager(store)
	sentinel := &mockSentinel{pending: true}
	m.SetSentinel(sentinel)
	ctx := context.Background()

	if _, err := m.GetOrCreate(ctx, "sess-1", "actor-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Teardown(ctx, "sess-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sentinel.cancelled) != 1 || sentinel.cancelled[0] != "sess-1" {
		t.Errorf("expected approvals cancelled for sess-1, got %v", sentinel.cancelled)
	}
	if _, err := m.Get(ctx, "sess-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected session gone after teardown, got %v", err)
	}
}
