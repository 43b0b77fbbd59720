package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Strob0t/SwarmGate/internal/hook"
)

const (
	tracerName     = "swarmgate"
	spanAnnotation = "otel.span"
)

// TracingHook opens a span per delegation on pre-invoke and closes it
// symmetrically on post-invoke or error.
type TracingHook struct {
	hook.Base
}

// Name implements hook.Hook.
func (TracingHook) Name() string { return "tracing" }

// PreInvoke implements hook.Hook.
func (TracingHook) PreInvoke(ctx context.Context, hc *hook.Context) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "delegation",
		trace.WithAttributes(
			attribute.String("delegation.request_id", hc.Request.RequestID),
			attribute.String("delegation.session_id", hc.Request.SessionID),
			attribute.String("delegation.task_type", string(hc.Request.TaskType)),
		),
	)
	hc.SetAnnotation(spanAnnotation, span)
	return nil
}

// PostInvoke implements hook.Hook.
func (TracingHook) PostInvoke(_ context.Context, hc *hook.Context) error {
	if span, ok := spanFrom(hc); ok {
		if hc.Response != nil {
			span.SetAttributes(
				attribute.String("delegation.agent_id", hc.Response.AgentID),
				attribute.Float64("delegation.confidence", hc.Response.Confidence),
			)
		}
		span.End()
	}
	return nil
}

// OnError implements hook.Hook.
func (TracingHook) OnError(_ context.Context, hc *hook.Context, err error) {
	if span, ok := spanFrom(hc); ok {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
	}
}

func spanFrom(hc *hook.Context) (trace.Span, bool) {
	v, ok := hc.Annotation(spanAnnotation)
	if !ok {
		return nil, false
	}
	span, ok := v.(trace.Span)
	return span, ok
}
