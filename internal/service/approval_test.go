package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/SwarmGate/internal/config"
	"github.com/Strob0t/SwarmGate/internal/domain"
	"github.com/Strob0t/SwarmGate/internal/domain/approval"
	"github.com/Strob0t/SwarmGate/internal/domain/delegation"
	"github.com/Strob0t/SwarmGate/internal/service"
)

// mockApprovalStore enforces the monotonic state machine in memory.
type mockApprovalStore struct {
	mu       sync.Mutex
	requests map[string]*approval.Request
}

func newMockApprovalStore() *mockApprovalStore {
	return &mockApprovalStore{requests: make(map[string]*approval.Request)}
}

func (s *mockApprovalStore) Create(_ context.Context, req *approval.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *req
	s.requests[req.ApprovalID] = &cp
	return nil
}

func (s *mockApprovalStore) Get(_ context.Context, id string) (*approval.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (s *mockApprovalStore) Resolve(_ context.Context, id string, status approval.Status, responder string) (*approval.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !req.Status.CanTransition(status) {
		return nil, domain.ErrConflict
	}
	now := time.Now()
	req.Status = status
	req.Responder = responder
	req.ResolvedAt = &now
	cp := *req
	return &cp, nil
}

func (s *mockApprovalStore) ListPending(_ context.Context) ([]approval.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []approval.Request
	for _, req := range s.requests {
		if req.Status == approval.StatusPending {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (s *mockApprovalStore) ListPendingBySession(_ context.Context, sessionID string) ([]approval.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []approval.Request
	for _, req := range s.requests {
		if req.Status == approval.StatusPending && req.SessionID == sessionID {
			out = append(out, *req)
		}
	}
	return out, nil
}

// spyApprover records submitted approvals.
type spyApprover struct {
	mu        sync.Mutex
	submitted []string
}

func (a *spyApprover) Name() string { return "spy" }

func (a *spyApprover) Submit(_ context.Context, req *approval.Request) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submitted = append(a.submitted, req.ApprovalID)
	return nil
}

func (a *spyApprover) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.submitted)
}

func gateRequest() *delegation.Request {
	return &delegation.Request{
		RequestID: "req-1",
		SessionID: "sess-1",
		ActorID:   "actor-1",
		TaskType:  "deploy",
	}
}

func TestApprovalGate_RequestFansOut(t *testing.T) {
	store := newMockApprovalStore()
	spy := &spyApprover{}
	gate := service.NewApprovalGate(config.Approval{Timeout: time.Second}, store, nil, spy)

	ar, err := gate.Request(context.Background(), gateRequest(), delegation.RiskHigh, "deploy to prod")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ar.Status != approval.StatusPending {
		t.Errorf("expected PENDING, got %s", ar.Status)
	}

	deadline := time.After(time.Second)
	for spy.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("approver never received the request")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestApprovalGate_ResolveWakesWaiter(t *testing.T) {
	store := newMockApprovalStore()
	gate := service.NewApprovalGate(config.Approval{Timeout: 5 * time.Second}, store, nil)
	ctx := context.Background()

	ar, err := gate.Request(ctx, gateRequest(), delegation.RiskHigh, "deploy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan approval.Status, 1)
	go func() {
		status, err := gate.AwaitDecision(ctx, ar.ApprovalID)
		if err != nil {
			t.Errorf("await failed: %v", err)
		}
		done <- status
	}()

	// Give the waiter time to register.
	time.Sleep(20 * time.Millisecond)

	if _, err := gate.Resolve(ctx, ar.ApprovalID, approval.StatusApproved, "alice"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	select {
	case status := <-done:
		if status != approval.StatusApproved {
			t.Errorf("expected APPROVED, got %s", status)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never woke up")
	}
}

func TestApprovalGate_AwaitTimesOut(t *testing.T) {
	store := newMockApprovalStore()
	gate := service.NewApprovalGate(config.Approval{Timeout: 20 * time.Millisecond}, store, nil)
	ctx := context.Background()

	ar, err := gate.Request(ctx, gateRequest(), delegation.RiskHigh, "deploy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status, err := gate.AwaitDecision(ctx, ar.ApprovalID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != approval.StatusTimedOut {
		t.Errorf("expected TIMED_OUT, got %s", status)
	}

	stored, err := store.Get(ctx, ar.ApprovalID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Status != approval.StatusTimedOut {
		t.Errorf("timeout must be persisted, got %s", stored.Status)
	}
}

func TestApprovalGate_SecondDecisionRejected(t *testing.T) {
	store := newMockApprovalStore()
	gate := service.NewApprovalGate(config.Approval{Timeout: time.Second}, store, nil)
	ctx := context.Background()

	ar, err := gate.Request(ctx, gateRequest(), delegation.RiskHigh, "deploy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := gate.Resolve(ctx, ar.ApprovalID, approval.StatusApproved, "alice"); err != nil {
		t.Fatalf("first decision failed: %v", err)
	}
	_, err = gate.Resolve(ctx, ar.ApprovalID, approval.StatusRejected, "bob")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for second decision, got %v", err)
	}

	stored, _ := store.Get(ctx, ar.ApprovalID)
	if stored.Status != approval.StatusApproved || stored.Responder != "alice" {
		t.Errorf("first decision must stand, got %s by %s", stored.Status, stored.Responder)
	}
}

func TestApprovalGate_ResolveToNonTerminalRejected(t *testing.T) {
	store := newMockApprovalStore()
	gate := service.NewApprovalGate(config.Approval{Timeout: time.Second}, store, nil)

	ar, err := gate.Request(context.Background(), gateRequest(), delegation.RiskHigh, "deploy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = gate.Resolve(context.Background(), ar.ApprovalID, approval.StatusPending, "alice")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestApprovalGate_AwaitSeesEarlierDecision(t *testing.T) {
	store := newMockApprovalStore()
	gate := service.NewApprovalGate(config.Approval{Timeout: time.Second}, store, nil)
	ctx := context.Background()

	ar, err := gate.Request(ctx, gateRequest(), delegation.RiskHigh, "deploy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := gate.Resolve(ctx, ar.ApprovalID, approval.StatusRejected, "alice"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	status, err := gate.AwaitDecision(ctx, ar.ApprovalID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != approval.StatusRejected {
		t.Errorf("expected REJECTED from earlier decision, got %s", status)
	}
}

// spyBroadcaster records broadcast event types.
type spyBroadcaster struct {
	mu    sync.Mutex
	types []string
}

func (b *spyBroadcaster) BroadcastEvent(_ context.Context, eventType string, _ any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.types = append(b.types, eventType)
}

func (b *spyBroadcaster) events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.types...)
}

func TestApprovalGate_ResolveBroadcasts(t *testing.T) {
	store := newMockApprovalStore()
	gate := service.NewApprovalGate(config.Approval{Timeout: time.Second}, store, nil)
	hub := &spyBroadcaster{}
	gate.SetBroadcaster(hub)
	ctx := context.Background()

	ar, err := gate.Request(ctx, gateRequest(), delegation.RiskHigh, "deploy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := gate.Resolve(ctx, ar.ApprovalID, approval.StatusApproved, "alice"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	got := hub.events()
	if len(got) != 1 || got[0] != "approval.resolved" {
		t.Errorf("expected one approval.resolved broadcast, got %v", got)
	}
}

func TestApprovalGate_CancelForSession(t *testing.T) {
	store := newMockApprovalStore()
	gate := service.NewApprovalGate(config.Approval{Timeout: 5 * time.Second}, store, nil)
	ctx := context.Background()

	ar, err := gate.Request(ctx, gateRequest(), delegation.RiskHigh, "deploy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan approval.Status, 1)
	go func() {
		status, _ := gate.AwaitDecision(ctx, ar.ApprovalID)
		done <- status
	}()
	time.Sleep(20 * time.Millisecond)

	if err := gate.CancelForSession(ctx, "sess-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case status := <-done:
		if status != approval.StatusTimedOut {
			t.Errorf("expected TIMED_OUT after teardown, got %s", status)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never woke up after session teardown")
	}

	pending, err := gate.HasPending(ctx, "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pending {
		t.Error("expected no pending approvals after teardown")
	}
}
