package ws

import (
	"context"

	"github.com/Strob0t/SwarmGate/internal/domain/approval"
)

// Approver surfaces approval requests to connected operator clients over
// the hub. Decisions come back through the HTTP resolve endpoint, not over
// the socket.
type Approver struct {
	hub *Hub
}

// NewApprover creates a hub-backed approver.
func NewApprover(hub *Hub) *Approver {
	return &Approver{hub: hub}
}

// Name implements approver.Approver.
func (a *Approver) Name() string { return "websocket" }

// Submit implements approver.Approver.
func (a *Approver) Submit(ctx context.Context, req *approval.Request) error {
	a.hub.BroadcastEvent(ctx, EventApprovalRequested, ApprovalRequestedEvent{
		ApprovalID:  req.ApprovalID,
		RequestID:   req.RequestID,
		SessionID:   req.SessionID,
		Description: req.Description,
		Risk:        req.Risk.String(),
	})
	return nil
}
