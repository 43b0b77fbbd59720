// Package provider defines the capability provider port: any component that
// can handle a delegation request qualifies as a specialist, independent of
// runtime substrate.
package provider

import (
	"context"

	"github.com/Strob0t/SwarmGate/internal/domain/delegation"
)

// Provider handles one category of task. Implementations may wrap a model
// inference service, a rules engine, or anything else; the orchestrator only
// sees this contract.
type Provider interface {
	// Name returns the unique provider identifier.
	Name() string

	// Handle processes a delegation request and returns a structured
	// response. A specialist-reported failure goes in Response.Error, not
	// in the returned error; the error return is for substrate failures.
	Handle(ctx context.Context, req *delegation.Request) (*delegation.Response, error)
}

// Func adapts a plain function to the Provider interface.
type Func struct {
	ID string
	Fn func(ctx context.Context, req *delegation.Request) (*delegation.Response, error)
}

func (f Func) Name() string { return f.ID }

func (f Func) Handle(ctx context.Context, req *delegation.Request) (*delegation.Response, error) {
	return f.Fn(ctx, req)
}
