// Package approvalstore defines the persistence port for approval requests.
package approvalstore

import (
	"context"

	"github.com/Strob0t/SwarmGate/internal/domain/approval"
)

// Store persists approval requests so pending approvals survive restarts and
// remain queryable. Resolve must enforce the monotonic state machine: only a
// PENDING request may move to a terminal status; anything else returns
// domain.ErrConflict.
type Store interface {
	// Create persists a new approval request in PENDING state.
	Create(ctx context.Context, req *approval.Request) error

	// Get returns an approval request by ID, or domain.ErrNotFound.
	Get(ctx context.Context, approvalID string) (*approval.Request, error)

	// Resolve transitions a PENDING request to a terminal status and
	// records the responder and resolution time.
	Resolve(ctx context.Context, approvalID string, status approval.Status, responder string) (*approval.Request, error)

	// ListPending returns all PENDING requests, oldest first.
	ListPending(ctx context.Context) ([]approval.Request, error)

	// ListPendingBySession returns PENDING requests tied to a session.
	ListPendingBySession(ctx context.Context, sessionID string) ([]approval.Request, error)
}
