// Package sessionstore defines the session persistence port.
package sessionstore

import (
	"context"
	"time"

	"github.com/Strob0t/SwarmGate/internal/domain/session"
)

// Store is the port interface for durable session state. Save uses
// optimistic concurrency: it persists only when the stored version matches
// s.Version-1 (or the session is new and s.Version is 1), and returns
// domain.ErrConflict otherwise.
type Store interface {
	// Load returns a session by ID, or domain.ErrNotFound.
	Load(ctx context.Context, sessionID string) (*session.Session, error)

	// Save persists the session under optimistic version control.
	Save(ctx context.Context, s *session.Session) error

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// ExpiredIDs returns the IDs of sessions whose TTL elapsed before the
	// given instant. Used by the GC sweeper.
	ExpiredIDs(ctx context.Context, before time.Time) ([]string, error)
}
