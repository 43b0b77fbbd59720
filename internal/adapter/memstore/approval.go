package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Strob0t/SwarmGate/internal/domain"
	"github.com/Strob0t/SwarmGate/internal/domain/approval"
)

// ApprovalStore is an in-memory approvalstore.Store enforcing the
// monotonic state machine.
type ApprovalStore struct {
	mu       sync.RWMutex
	requests map[string]*approval.Request
}

// NewApprovalStore creates an empty approval store.
func NewApprovalStore() *ApprovalStore {
	return &ApprovalStore{requests: make(map[string]*approval.Request)}
}

// Create implements approvalstore.Store.
func (s *ApprovalStore) Create(_ context.Context, req *approval.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ApprovalID]; exists {
		return domain.ErrConflict
	}
	cp := *req
	s.requests[req.ApprovalID] = &cp
	return nil
}

// Get implements approvalstore.Store.
func (s *ApprovalStore) Get(_ context.Context, approvalID string) (*approval.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[approvalID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

// Resolve implements approvalstore.Store. Exactly one terminal transition
// succeeds; every later attempt sees domain.ErrConflict.
func (s *ApprovalStore) Resolve(_ context.Context, approvalID string, status approval.Status, responder string) (*approval.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[approvalID]
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

// ListPending implements approvalstore.Store.
func (s *ApprovalStore) ListPending(_ context.Context) ([]approval.Request, error) {
	return s.listPending(func(*approval.Request) bool { return true })
}

// ListPendingBySession implements approvalstore.Store.
func (s *ApprovalStore) ListPendingBySession(_ context.Context, sessionID string) ([]approval.Request, error) {
	return s.listPending(func(req *approval.Request) bool { return req.SessionID == sessionID })
}

func (s *ApprovalStore) listPending(match func(*approval.Request) bool) ([]approval.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []approval.Request
	for _, req := range s.requests {
		if req.Status == approval.StatusPending && match(req) {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
