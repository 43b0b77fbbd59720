// Package session defines the per-conversation state entity. Sessions are
// exclusively owned by the session manager and mutated only through its
// append/update operations.
package session

import (
	"time"

	"github.com/Strob0t/SwarmGate/internal/domain/delegation"
)

// Exchange is one completed (request, response) pair. History holds
// exchanges in completion order, not dispatch order.
type Exchange struct {
	Request     delegation.Request  `json:"request"`
	Response    delegation.Response `json:"response"`
	CompletedAt time.Time           `json:"completed_at"`
}

// Session is the durable conversation state keyed by session + actor
// identity. Version supports optimistic concurrency in the backing store.
type Session struct {
	ID        string            `json:"id"`
	ActorID   string            `json:"actor_id"`
	History   []Exchange        `json:"history"`
	State     map[string]string `json:"state"`
	Version   int               `json:"version"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// Expired reports whether the session's TTL elapsed at the given instant.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
