package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/SwarmGate/internal/domain"
	"github.com/Strob0t/SwarmGate/internal/domain/session"
)

// SessionStore implements sessionstore.Store on PostgreSQL. History and
// state travel as JSONB; the version column carries the optimistic lock.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a SessionStore backed by the given pool.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// Load returns a session by ID.
func (s *SessionStore) Load(ctx context.Context, sessionID string) (*session.Session, error) {
	var (
		sess    session.Session
		history []byte
		state   []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, actor_id, history, state, version, created_at, expires_at
		 FROM sessions WHERE id = $1`, sessionID).
		Scan(&sess.ID, &sess.ActorID, &history, &state, &sess.Version, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("load session %s: %w", sessionID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	if err := json.Unmarshal(history, &sess.History); err != nil {
		return nil, fmt.Errorf("decode session %s history: %w", sessionID, err)
	}
	if err := json.Unmarshal(state, &sess.State); err != nil {
		return nil, fmt.Errorf("decode session %s state: %w", sessionID, err)
	}
	return &sess, nil
}

// Save persists the session. A version-1 session inserts; anything else
// updates the row holding exactly the previous version. Either way, losing
// the race surfaces as domain.ErrConflict.
func (s *SessionStore) Save(ctx context.Context, sess *session.Session) error {
	history, err := json.Marshal(sess.History)
	if err != nil {
		return fmt.Errorf("encode session %s history: %w", sess.ID, err)
	}
	state, err := json.Marshal(sess.State)
	if err != nil {
		return fmt.Errorf("encode session %s state: %w", sess.ID, err)
	}

	if sess.Version == 1 {
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO sessions (id, actor_id, history, state, version, created_at, expires_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO NOTHING`,
			sess.ID, sess.ActorID, history, state, sess.Version, sess.CreatedAt, sess.ExpiresAt)
		if err != nil {
			return fmt.Errorf("insert session %s: %w", sess.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("insert session %s: %w", sess.ID, domain.ErrConflict)
		}
		return nil
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET history = $2, state = $3, version = $4, expires_at = $5
		 WHERE id = $1 AND version = $6`,
		sess.ID, history, state, sess.Version, sess.ExpiresAt, sess.Version-1)
	if err != nil {
		return fmt.Errorf("update session %s: %w", sess.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update session %s: %w", sess.ID, domain.ErrConflict)
	}
	return nil
}

// Delete removes a session.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// ExpiredIDs returns sessions whose TTL elapsed before the given instant.
func (s *SessionStore) ExpiredIDs(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM sessions WHERE expires_at < $1`, before)
	if err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
