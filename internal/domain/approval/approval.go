// Package approval defines the human-in-the-loop approval entity and its
// state machine.
package approval

import (
	"fmt"
	"time"

	"github.com/Strob0t/SwarmGate/internal/domain/delegation"
)

// Status is the approval state. Transitions are monotonic: once a request
// reaches a terminal state it never goes back.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusTimedOut Status = "TIMED_OUT"
)

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusTimedOut
}

// CanTransition reports whether moving from s to next is a legal transition.
func (s Status) CanTransition(next Status) bool {
	return s == StatusPending && next.IsTerminal()
}

// ParseStatus converts a textual status, accepting only known values.
func ParseStatus(v string) (Status, error) {
	switch Status(v) {
	case StatusPending, StatusApproved, StatusRejected, StatusTimedOut:
		return Status(v), nil
	}
	return "", fmt.Errorf("unknown approval status %q", v)
}

// Request is one suspended delegation awaiting a human decision. Exactly one
// approval request maps to one suspended delegation.
type Request struct {
	ApprovalID  string               `json:"approval_id"`
	RequestID   string               `json:"request_id"`
	SessionID   string               `json:"session_id"`
	Description string               `json:"description"`
	Risk        delegation.RiskLevel `json:"risk_level"`
	Status      Status               `json:"status"`
	Responder   string               `json:"responder,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	ResolvedAt  *time.Time           `json:"resolved_at,omitempty"`
}
