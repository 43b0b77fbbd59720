package otel

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Strob0t/SwarmGate/internal/domain/delegation"
	"github.com/Strob0t/SwarmGate/internal/hook"
)

const startedAtAnnotation = "otel.started_at"

// MetricsHook feeds the instrument set from the delegation pipeline. It
// measures wall time between pre- and post-invoke and records confidence
// on every decoded response.
type MetricsHook struct {
	hook.Base
	metrics *Metrics
}

// NewMetricsHook creates the pipeline hook over an instrument set.
func NewMetricsHook(m *Metrics) *MetricsHook {
	return &MetricsHook{metrics: m}
}

// Name implements hook.Hook.
func (*MetricsHook) Name() string { return "metrics" }

// PreInvoke implements hook.Hook.
func (h *MetricsHook) PreInvoke(ctx context.Context, hc *hook.Context) error {
	hc.SetAnnotation(startedAtAnnotation, time.Now())
	h.metrics.DelegationsStarted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("task_type", string(hc.Request.TaskType))))
	return nil
}

// PostInvoke implements hook.Hook.
func (h *MetricsHook) PostInvoke(ctx context.Context, hc *hook.Context) error {
	attrs := metric.WithAttributes(attribute.String("task_type", string(hc.Request.TaskType)))

	if v, ok := hc.Annotation(startedAtAnnotation); ok {
		if started, ok := v.(time.Time); ok {
			h.metrics.DelegationDuration.Record(ctx, time.Since(started).Seconds(), attrs)
		}
	}
	if hc.Response != nil {
		h.metrics.ResponseConfidence.Record(ctx, hc.Response.Confidence, attrs)
		if hc.Response.Error != "" {
			h.metrics.DelegationsFailed.Add(ctx, 1, attrs)
			return nil
		}
	}
	h.metrics.DelegationsCompleted.Add(ctx, 1, attrs)
	return nil
}

// OnError implements hook.Hook.
func (h *MetricsHook) OnError(ctx context.Context, hc *hook.Context, err error) {
	attrs := metric.WithAttributes(attribute.String("task_type", string(hc.Request.TaskType)))
	h.metrics.DelegationsFailed.Add(ctx, 1, attrs)

	var terr *delegation.ApprovalTimeoutError
	if errors.As(err, &terr) {
		h.metrics.ApprovalsTimedOut.Add(ctx, 1, attrs)
	}
}
