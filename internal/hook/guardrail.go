package hook

import (
	"context"
	"fmt"

	"github.com/Strob0t/SwarmGate/internal/domain/delegation"
)

// RiskAnnotation is the annotation key under which the guardrail records
// its computed risk for the delegation. The orchestrator folds it into the
// approval decision alongside the specialist-reported risk.
const RiskAnnotation = "guardrail.risk"

// GuardrailHook enforces payload and task-type policy before any dispatch.
// A violation aborts the pipeline so the request never reaches a specialist.
type GuardrailHook struct {
	Base

	// MaxPayloadBytes rejects oversized payloads. Zero disables the check.
	MaxPayloadBytes int

	// DeniedTaskTypes are task types blocked outright.
	DeniedTaskTypes []delegation.TaskType

	// HighRiskTaskTypes are allowed through but annotated RiskHigh, which
	// forces the approval gate regardless of specialist confidence.
	HighRiskTaskTypes []delegation.TaskType
}

func (GuardrailHook) Name() string { return "guardrail" }

func (g GuardrailHook) PreInvoke(_ context.Context, hc *Context) error {
	if g.MaxPayloadBytes > 0 && len(hc.Request.Payload) > g.MaxPayloadBytes {
		return Abort(fmt.Sprintf("payload %d bytes exceeds limit %d", len(hc.Request.Payload), g.MaxPayloadBytes))
	}
	for _, denied := range g.DeniedTaskTypes {
		if hc.Request.TaskType == denied {
			return Abort(fmt.Sprintf("task type %q is denied by policy", denied))
		}
	}
	for _, risky := range g.HighRiskTaskTypes {
		if hc.Request.TaskType == risky {
			hc.SetAnnotation(RiskAnnotation, delegation.RiskHigh)
		}
	}
	return nil
}
