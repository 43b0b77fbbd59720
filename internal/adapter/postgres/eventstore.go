package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/SwarmGate/internal/domain/event"
)

// EventStore implements eventstore.Store on PostgreSQL. The table is
// append-only; events are never updated or deleted.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates an EventStore backed by the given pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts a new event. ID and timestamp fall back to the column
// defaults when unset.
func (s *EventStore) Append(ctx context.Context, ev *event.Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO delegation_events (request_id, session_id, agent_id, event_type, payload)
		 VALUES ($1, $2, $3, $4, $5)`,
		ev.RequestID, ev.SessionID, ev.AgentID, string(ev.Type), ev.Payload)
	if err != nil {
		return fmt.Errorf("append event %s: %w", ev.Type, err)
	}
	return nil
}

const eventColumns = `id, request_id, session_id, agent_id, event_type, payload, created_at`

// ListByRequest returns all events for the given request, oldest first.
func (s *EventStore) ListByRequest(ctx context.Context, requestID string) ([]event.Event, error) {
	return s.list(ctx,
		fmt.Sprintf(`SELECT %s FROM delegation_events WHERE request_id = $1 ORDER BY created_at`, eventColumns),
		requestID)
}

// ListBySession returns all events for the given session, oldest first.
func (s *EventStore) ListBySession(ctx context.Context, sessionID string) ([]event.Event, error) {
	return s.list(ctx,
		fmt.Sprintf(`SELECT %s FROM delegation_events WHERE session_id = $1 ORDER BY created_at`, eventColumns),
		sessionID)
}

func (s *EventStore) list(ctx context.Context, query string, args ...any) ([]event.Event, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var ev event.Event
		if err := rows.Scan(&ev.ID, &ev.RequestID, &ev.SessionID, &ev.AgentID,
			&ev.Type, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
