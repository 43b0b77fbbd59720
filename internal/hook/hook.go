// Package hook provides the cross-cutting interceptor pipeline invoked
// around every delegation.
package hook

import (
	"context"
	"fmt"

	"github.com/Strob0t/SwarmGate/internal/domain/delegation"
)

// Context is the ephemeral state passed by reference through the pipeline
// for one delegation. It carries the request, the partial response once one
// exists, and mutable annotations hooks may add. It never carries the
// session itself.
type Context struct {
	Request  *delegation.Request
	Response *delegation.Response

	annotations map[string]any
}

// NewContext creates a hook context for one delegation.
func NewContext(req *delegation.Request) *Context {
	return &Context{
		Request:     req,
		annotations: make(map[string]any),
	}
}

// SetAnnotation records a named annotation (e.g. a computed risk score).
func (c *Context) SetAnnotation(key string, value any) {
	c.annotations[key] = value
}

// Annotation returns a named annotation, if set.
func (c *Context) Annotation(key string) (any, bool) {
	v, ok := c.annotations[key]
	return v, ok
}

// Hook is a cross-cutting interceptor. PreInvoke runs before dispatch,
// PostInvoke after a response is obtained, OnError when the dispatch fails.
type Hook interface {
	// Name identifies the hook in logs and abort reasons.
	Name() string

	// PreInvoke runs before the delegation is dispatched. Returning an
	// error aborts the pipeline; wrap with Abort to signal a deliberate
	// guardrail block.
	PreInvoke(ctx context.Context, hc *Context) error

	// PostInvoke runs after a response is obtained, in reverse
	// registration order.
	PostInvoke(ctx context.Context, hc *Context) error

	// OnError is notified when the dispatch fails or a hook aborts.
	OnError(ctx context.Context, hc *Context, err error)
}

// AbortError is returned by a pre-invoke hook to block the delegation
// before it reaches any specialist.
type AbortError struct {
	Hook   string
	Reason string
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("hook %s aborted: %s", e.Hook, e.Reason)
}

// Abort builds an AbortError with the given reason. The pipeline fills in
// the hook name.
func Abort(reason string) error {
	return &AbortError{Reason: reason}
}

// Base is a no-op hook implementation for embedding. Hooks that only care
// about one phase embed Base and override what they need.
type Base struct{}

func (Base) PreInvoke(context.Context, *Context) error  { return nil }
func (Base) PostInvoke(context.Context, *Context) error { return nil }
func (Base) OnError(context.Context, *Context, error)   {}
