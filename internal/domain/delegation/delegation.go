// Package delegation defines the core delegation request/response entities
// and the outcome returned to callers.
package delegation

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TaskType identifies a category of work a specialist can handle.
type TaskType string

// RiskLevel classifies the impact of executing a delegation result.
// Levels are ordered: a response above the configured ceiling is gated
// behind human approval.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskNames = map[RiskLevel]string{
	RiskLow:      "low",
	RiskMedium:   "medium",
	RiskHigh:     "high",
	RiskCritical: "critical",
}

func (r RiskLevel) String() string {
	if name, ok := riskNames[r]; ok {
		return name
	}
	return fmt.Sprintf("risk(%d)", int(r))
}

// ParseRiskLevel converts a textual risk level to a RiskLevel.
func ParseRiskLevel(s string) (RiskLevel, error) {
	for level, name := range riskNames {
		if name == s {
			return level, nil
		}
	}
	return RiskLow, fmt.Errorf("unknown risk level %q", s)
}

// MarshalJSON encodes the risk level as its textual name.
func (r RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a textual risk level.
func (r *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	level, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*r = level
	return nil
}

// Request is one delegation dispatch attempt. Immutable once created.
type Request struct {
	RequestID          string          `json:"request_id"`
	SessionID          string          `json:"session_id"`
	ActorID            string          `json:"actor_id"`
	TaskType           TaskType        `json:"task_type"`
	Payload            json.RawMessage `json:"payload,omitempty"`
	RequiredConfidence float64         `json:"required_confidence"`
}

// Validate checks the request invariants before dispatch.
func (r *Request) Validate() error {
	if r.RequestID == "" {
		return errors.New("request_id is required")
	}
	if r.SessionID == "" {
		return errors.New("session_id is required")
	}
	if r.ActorID == "" {
		return errors.New("actor_id is required")
	}
	if r.TaskType == "" {
		return errors.New("task_type is required")
	}
	if r.RequiredConfidence < 0 || r.RequiredConfidence > 1 {
		return fmt.Errorf("required_confidence %v out of range [0,1]", r.RequiredConfidence)
	}
	return nil
}

// Response is a specialist's answer to a Request. Result and Error are
// mutually exclusive.
type Response struct {
	RequestID  string          `json:"request_id"`
	AgentID    string          `json:"agent_id,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Confidence float64         `json:"confidence"`
	Risk       RiskLevel       `json:"risk_level"`
}

// Validate checks the response invariants after decoding.
func (r *Response) Validate() error {
	if r.RequestID == "" {
		return errors.New("request_id is required")
	}
	if len(r.Result) > 0 && r.Error != "" {
		return errors.New("result and error are mutually exclusive")
	}
	if len(r.Result) == 0 && r.Error == "" {
		return errors.New("one of result or error is required")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range [0,1]", r.Confidence)
	}
	return nil
}

// Status is the terminal state of a delegation as seen by the caller.
type Status string

const (
	// StatusCompleted means a result was released to the caller.
	StatusCompleted Status = "completed"
	// StatusFailed means the specialist reported an error per contract.
	StatusFailed Status = "failed"
	// StatusCancelled means a human rejected the result or the session
	// was torn down while an approval was pending.
	StatusCancelled Status = "cancelled"
	// StatusPendingApproval means the delegation is suspended awaiting
	// a human decision.
	StatusPendingApproval Status = "pending_approval"
	// StatusRunning means the delegation is still in flight.
	StatusRunning Status = "running"
)

// Outcome is what the orchestrator hands back to the caller: a completed
// result, a cancelled marker, or a pending-approval handle. Typed failures
// are returned as errors alongside, never encoded here.
type Outcome struct {
	RequestID  string    `json:"request_id"`
	Status     Status    `json:"status"`
	Response   *Response `json:"response,omitempty"`
	ApprovalID string    `json:"approval_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}
