// Package event defines the append-only audit events emitted around every
// delegation lifecycle transition.
package event

import (
	"encoding/json"
	"time"
)

// Type identifies a delegation lifecycle event.
type Type string

const (
	TypeDelegationCreated Type = "delegation.created"
	TypeDelegationSent    Type = "delegation.sent"
	TypeDelegationDone    Type = "delegation.completed"
	TypeDelegationFailed  Type = "delegation.failed"
	TypeGuardrailBlocked  Type = "guardrail.blocked"
	TypeApprovalRequested Type = "approval.requested"
	TypeApprovalResolved  Type = "approval.resolved"
	TypeSessionExpired    Type = "session.expired"
)

// Event is a single immutable audit record in a delegation's trajectory.
// Consumers (triage tooling, metrics backends) read them back by request
// or session.
type Event struct {
	ID        string          `json:"id"`
	RequestID string          `json:"request_id"`
	SessionID string          `json:"session_id,omitempty"`
	AgentID   string          `json:"agent_id,omitempty"`
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
