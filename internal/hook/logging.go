package hook

import (
	"context"
	"log/slog"
	"time"
)

const startedAtAnnotation = "logging.started_at"

// LoggingHook logs delegation entry and exit with slog. Registered first so
// its PostInvoke runs last and observes every other hook's annotations.
type LoggingHook struct{}

func (LoggingHook) Name() string { return "logging" }

func (LoggingHook) PreInvoke(_ context.Context, hc *Context) error {
	hc.SetAnnotation(startedAtAnnotation, time.Now())
	slog.Info("delegation started",
		"request_id", hc.Request.RequestID,
		"session_id", hc.Request.SessionID,
		"task_type", hc.Request.TaskType,
		"required_confidence", hc.Request.RequiredConfidence,
	)
	return nil
}

func (LoggingHook) PostInvoke(_ context.Context, hc *Context) error {
	attrs := []any{
		"request_id", hc.Request.RequestID,
		"duration_ms", sinceStarted(hc).Milliseconds(),
	}
	if hc.Response != nil {
		attrs = append(attrs,
			"agent_id", hc.Response.AgentID,
			"confidence", hc.Response.Confidence,
			"risk", hc.Response.Risk.String(),
		)
	}
	slog.Info("delegation response", attrs...)
	return nil
}

func (LoggingHook) OnError(_ context.Context, hc *Context, err error) {
	slog.Error("delegation failed",
		"request_id", hc.Request.RequestID,
		"duration_ms", sinceStarted(hc).Milliseconds(),
		"error", err,
	)
}

func sinceStarted(hc *Context) time.Duration {
	if v, ok := hc.Annotation(startedAtAnnotation); ok {
		if start, ok := v.(time.Time); ok {
			return time.Since(start)
		}
	}
	return 0
}
