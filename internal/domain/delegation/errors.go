package delegation

import "fmt"

// ResolutionError means no capable agent could serve the task, either because
// none matched the task type or because every candidate failed.
type ResolutionError struct {
	RequestID string
	TaskType  TaskType
	Cause     error
}

func (e *ResolutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("resolve %s for request %s: all candidates failed: %v", e.TaskType, e.RequestID, e.Cause)
	}
	return fmt.Sprintf("resolve %s for request %s: no capable agent", e.TaskType, e.RequestID)
}

func (e *ResolutionError) Unwrap() error { return e.Cause }

// TransportError is a network-level failure after the retry budget is
// exhausted. Retried locally, then escalated.
type TransportError struct {
	RequestID string
	Endpoint  string
	Attempts  int
	Cause     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport to %s for request %s failed after %d attempts: %v", e.Endpoint, e.RequestID, e.Attempts, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// ProtocolError is a malformed contract: the specialist's reply violates the
// wire schema. Never retried.
type ProtocolError struct {
	RequestID string
	Endpoint  string
	Cause     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation from %s for request %s: %v", e.Endpoint, e.RequestID, e.Cause)
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

// GuardrailViolation means a pre-invoke hook blocked the delegation before
// it reached any specialist.
type GuardrailViolation struct {
	RequestID string
	Hook      string
	Reason    string
}

func (e *GuardrailViolation) Error() string {
	return fmt.Sprintf("guardrail %s blocked request %s: %s", e.Hook, e.RequestID, e.Reason)
}

// ApprovalTimeoutError means the human did not respond before the approval
// deadline; the delegation is cancelled, never silently completed.
type ApprovalTimeoutError struct {
	RequestID  string
	ApprovalID string
}

func (e *ApprovalTimeoutError) Error() string {
	return fmt.Sprintf("approval %s for request %s timed out", e.ApprovalID, e.RequestID)
}

// SessionConflictError means a concurrent mutation of the session was
// detected while persisting the exchange. The caller retries the whole
// delegation.
type SessionConflictError struct {
	RequestID string
	SessionID string
	Cause     error
}

func (e *SessionConflictError) Error() string {
	return fmt.Sprintf("session %s conflict for request %s: %v", e.SessionID, e.RequestID, e.Cause)
}

func (e *SessionConflictError) Unwrap() error { return e.Cause }
