package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Strob0t/SwarmGate/internal/domain/approval"
)

// Approver counts approval requests as they are surfaced to operators. It
// sits beside the real approver surfaces in the gate's fan-out and never
// fails a submission.
type Approver struct {
	metrics *Metrics
}

// NewApprover creates the metrics-counting approver.
func NewApprover(m *Metrics) *Approver {
	return &Approver{metrics: m}
}

// Name implements approver.Approver.
func (*Approver) Name() string { return "metrics" }

// Submit implements approver.Approver.
func (a *Approver) Submit(ctx context.Context, req *approval.Request) error {
	a.metrics.ApprovalsRequested.Add(ctx, 1,
		metric.WithAttributes(attribute.String("risk", req.Risk.String())))
	return nil
}
