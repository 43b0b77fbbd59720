package hook

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Strob0t/SwarmGate/internal/domain/event"
	"github.com/Strob0t/SwarmGate/internal/port/eventstore"
)

// AuditHook appends delegation lifecycle events to the audit store. Audit
// failures are logged, never fatal to the delegation.
type AuditHook struct {
	Events eventstore.Store
}

func (AuditHook) Name() string { return "audit" }

func (a AuditHook) PreInvoke(ctx context.Context, hc *Context) error {
	a.append(ctx, hc, event.TypeDelegationSent, nil)
	return nil
}

func (a AuditHook) PostInvoke(ctx context.Context, hc *Context) error {
	var payload json.RawMessage
	if hc.Response != nil {
		payload, _ = json.Marshal(map[string]any{
			"agent_id":   hc.Response.AgentID,
			"confidence": hc.Response.Confidence,
			"risk":       hc.Response.Risk.String(),
		})
	}
	a.append(ctx, hc, event.TypeDelegationDone, payload)
	return nil
}

func (a AuditHook) OnError(ctx context.Context, hc *Context, err error) {
	payload, _ := json.Marshal(map[string]string{"error": err.Error()})
	a.append(ctx, hc, event.TypeDelegationFailed, payload)
}

func (a AuditHook) append(ctx context.Context, hc *Context, typ event.Type, payload json.RawMessage) {
	agentID := ""
	if hc.Response != nil {
		agentID = hc.Response.AgentID
	}
	ev := &event.Event{
		RequestID: hc.Request.RequestID,
		SessionID: hc.Request.SessionID,
		AgentID:   agentID,
		Type:      typ,
		Payload:   payload,
	}
	if err := a.Events.Append(ctx, ev); err != nil {
		slog.Warn("audit append failed", "request_id", hc.Request.RequestID, "type", typ, "error", err)
	}
}
