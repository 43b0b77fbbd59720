// Package eventstore defines the port interface for the append-only audit
// event store.
package eventstore

import (
	"context"

	"github.com/Strob0t/SwarmGate/internal/domain/event"
)

// Store is the port interface for appending and loading delegation audit
// events.
type Store interface {
	// Append persists a new event to the store.
	Append(ctx context.Context, ev *event.Event) error

	// ListByRequest returns all events for the given request, oldest first.
	ListByRequest(ctx context.Context, requestID string) ([]event.Event, error)

	// ListBySession returns all events for the given session, oldest first.
	ListBySession(ctx context.Context, sessionID string) ([]event.Event, error)
}
