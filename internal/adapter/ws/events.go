package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventDelegationCreated   = "delegation.created"
	EventDelegationCompleted = "delegation.completed"
	EventDelegationFailed    = "delegation.failed"
	EventDelegationCancelled = "delegation.cancelled"
	EventApprovalRequested   = "approval.requested"
	EventApprovalResolved    = "approval.resolved"
)

// ApprovalRequestedEvent is broadcast when a delegation suspends behind a
// human decision.
type ApprovalRequestedEvent struct {
	ApprovalID  string `json:"approval_id"`
	RequestID   string `json:"request_id"`
	SessionID   string `json:"session_id"`
	Description string `json:"description"`
	Risk        string `json:"risk_level"`
}

// ApprovalResolvedEvent is broadcast when an approval reaches a terminal
// status.
type ApprovalResolvedEvent struct {
	ApprovalID string `json:"approval_id"`
	Status     string `json:"status"`
	Responder  string `json:"responder,omitempty"`
}

// BroadcastEvent marshals a typed event payload and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
