package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/SwarmGate/internal/domain/event"
)

// EventStore is an in-memory append-only eventstore.Store.
type EventStore struct {
	mu     sync.RWMutex
	events []event.Event
}

// NewEventStore creates an empty event store.
func NewEventStore() *EventStore {
	return &EventStore{}
}

// Append implements eventstore.Store. Missing IDs and timestamps are
// filled in, matching the SQL store's column defaults.
func (s *EventStore) Append(_ context.Context, ev *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *ev
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.events = append(s.events, cp)
	return nil
}

// ListByRequest implements eventstore.Store.
func (s *EventStore) ListByRequest(_ context.Context, requestID string) ([]event.Event, error) {
	return s.list(func(ev *event.Event) bool { return ev.RequestID == requestID })
}

// ListBySession implements eventstore.Store.
func (s *EventStore) ListBySession(_ context.Context, sessionID string) ([]event.Event, error) {
	return s.list(func(ev *event.Event) bool { return ev.SessionID == sessionID })
}

func (s *EventStore) list(match func(*event.Event) bool) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []event.Event
	for i := range s.events {
		if match(&s.events[i]) {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}
