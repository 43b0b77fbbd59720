package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/SwarmGate/internal/domain"
	"github.com/Strob0t/SwarmGate/internal/domain/approval"
	"github.com/Strob0t/SwarmGate/internal/domain/delegation"
)

// ApprovalStore implements approvalstore.Store on PostgreSQL. The
// monotonic state machine is enforced by a conditional UPDATE: only the
// row still in PENDING can move, so exactly one resolution wins.
type ApprovalStore struct {
	pool *pgxpool.Pool
}

// NewApprovalStore creates an ApprovalStore backed by the given pool.
func NewApprovalStore(pool *pgxpool.Pool) *ApprovalStore {
	return &ApprovalStore{pool: pool}
}

const approvalColumns = `id, request_id, session_id, description, risk_level, status, responder, created_at, resolved_at`

func scanApproval(scanner interface{ Scan(dest ...any) error }, ar *approval.Request) error {
	var (
		risk   string
		status string
	)
	if err := scanner.Scan(&ar.ApprovalID, &ar.RequestID, &ar.SessionID, &ar.Description,
		&risk, &status, &ar.Responder, &ar.CreatedAt, &ar.ResolvedAt); err != nil {
		return err
	}
	level, err := delegation.ParseRiskLevel(risk)
	if err != nil {
		return err
	}
	parsed, err := approval.ParseStatus(status)
	if err != nil {
		return err
	}
	ar.Risk = level
	ar.Status = parsed
	return nil
}

// Create persists a new PENDING approval request.
func (s *ApprovalStore) Create(ctx context.Context, req *approval.Request) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO approvals (id, request_id, session_id, description, risk_level, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		req.ApprovalID, req.RequestID, req.SessionID, req.Description,
		req.Risk.String(), string(req.Status), req.CreatedAt)
	if err != nil {
		return fmt.Errorf("create approval %s: %w", req.ApprovalID, err)
	}
	return nil
}

// Get returns an approval request by ID.
func (s *ApprovalStore) Get(ctx context.Context, approvalID string) (*approval.Request, error) {
	var ar approval.Request
	err := scanApproval(s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM approvals WHERE id = $1`, approvalColumns), approvalID), &ar)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("approval %s: %w", approvalID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get approval %s: %w", approvalID, err)
	}
	return &ar, nil
}

// Resolve transitions a PENDING approval to a terminal status.
func (s *ApprovalStore) Resolve(ctx context.Context, approvalID string, status approval.Status, responder string) (*approval.Request, error) {
	var ar approval.Request
	err := scanApproval(s.pool.QueryRow(ctx,
		fmt.Sprintf(`UPDATE approvals SET status = $2, responder = $3, resolved_at = now()
		 WHERE id = $1 AND status = 'PENDING'
		 RETURNING %s`, approvalColumns),
		approvalID, string(status), responder), &ar)
	if err == nil {
		return &ar, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("resolve approval %s: %w", approvalID, err)
	}

	// No PENDING row matched: either the approval is unknown or a prior
	// resolution already won.
	if _, gerr := s.Get(ctx, approvalID); gerr != nil {
		return nil, gerr
	}
	return nil, fmt.Errorf("resolve approval %s: %w", approvalID, domain.ErrConflict)
}

// ListPending returns all PENDING approvals, oldest first.
func (s *ApprovalStore) ListPending(ctx context.Context) ([]approval.Request, error) {
	return s.listPending(ctx,
		fmt.Sprintf(`SELECT %s FROM approvals WHERE status = 'PENDING' ORDER BY created_at`, approvalColumns))
}

// ListPendingBySession returns PENDING approvals for one session.
func (s *ApprovalStore) ListPendingBySession(ctx context.Context, sessionID string) ([]approval.Request, error) {
	return s.listPending(ctx,
		fmt.Sprintf(`SELECT %s FROM approvals WHERE status = 'PENDING' AND session_id = $1 ORDER BY created_at`, approvalColumns),
		sessionID)
}

func (s *ApprovalStore) listPending(ctx context.Context, query string, args ...any) ([]approval.Request, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	defer rows.Close()

	var out []approval.Request
	for rows.Next() {
		var ar approval.Request
		if err := scanApproval(rows, &ar); err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		out = append(out, ar)
	}
	return out, rows.Err()
}
