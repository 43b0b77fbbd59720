package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/SwarmGate/internal/config"
	"github.com/Strob0t/SwarmGate/internal/domain"
	"github.com/Strob0t/SwarmGate/internal/domain/approval"
	"github.com/Strob0t/SwarmGate/internal/domain/delegation"
	"github.com/Strob0t/SwarmGate/internal/domain/event"
	"github.com/Strob0t/SwarmGate/internal/port/approver"
	"github.com/Strob0t/SwarmGate/internal/port/approvalstore"
	"github.com/Strob0t/SwarmGate/internal/port/broadcast"
	"github.com/Strob0t/SwarmGate/internal/port/eventstore"
)

// systemResponder marks resolutions made by the gate itself (timeouts,
// session teardown) rather than a human.
const systemResponder = "system"

// ApprovalGate suspends delegations that need a human decision. Each pending
// approval owns a buffered channel of size one in the waiters map; the first
// resolution wins and every later one is rejected by the store's monotonic
// state machine.
type ApprovalGate struct {
	cfg       config.Approval
	store     approvalstore.Store
	events    eventstore.Store
	approvers []approver.Approver
	hub       broadcast.Broadcaster

	waiters sync.Map // approvalID -> chan approval.Status

	now func() time.Time
}

// NewApprovalGate creates the gate. Approvers are notification channels only;
// decisions always come back through Resolve.
func NewApprovalGate(cfg config.Approval, store approvalstore.Store, events eventstore.Store, approvers ...approver.Approver) *ApprovalGate {
	return &ApprovalGate{
		cfg:       cfg,
		store:     store,
		events:    events,
		approvers: approvers,
		now:       time.Now,
	}
}

// SetBroadcaster attaches a real-time event surface. Resolutions, including
// system timeouts, are pushed to it.
func (g *ApprovalGate) SetBroadcaster(hub broadcast.Broadcaster) {
	g.hub = hub
}

// Request creates a PENDING approval for the delegation and fans it out to
// every registered approver channel.
func (g *ApprovalGate) Request(ctx context.Context, req *delegation.Request, risk delegation.RiskLevel, description string) (*approval.Request, error) {
	ar := &approval.Request{
		ApprovalID:  uuid.NewString(),
		RequestID:   req.RequestID,
		SessionID:   req.SessionID,
		Description: description,
		Risk:        risk,
		Status:      approval.StatusPending,
		CreatedAt:   g.now(),
	}
	if err := g.store.Create(ctx, ar); err != nil {
		return nil, fmt.Errorf("create approval for request %s: %w", req.RequestID, err)
	}

	for _, a := range g.approvers {
		go func(a approver.Approver) {
			if err := a.Submit(ctx, ar); err != nil {
				slog.Warn("approver submit failed",
					"approver", a.Name(),
					"approval_id", ar.ApprovalID,
					"error", err,
				)
			}
		}(a)
	}

	g.emit(ctx, ar, event.TypeApprovalRequested)
	slog.Info("approval requested",
		"approval_id", ar.ApprovalID,
		"request_id", ar.RequestID,
		"risk", risk.String(),
		"approvers", len(g.approvers),
	)
	return ar, nil
}

// AwaitDecision blocks until the approval reaches a terminal status or the
// gate's timeout elapses. This is the single suspension point for a
// delegation: the returned status is always terminal and already persisted.
func (g *ApprovalGate) AwaitDecision(ctx context.Context, approvalID string) (approval.Status, error) {
	ch := make(chan approval.Status, 1)
	g.waiters.Store(approvalID, ch)
	defer g.waiters.Delete(approvalID)

	// The decision may have landed between Request and this call.
	if ar, err := g.store.Get(ctx, approvalID); err == nil && ar.Status.IsTerminal() {
		return ar.Status, nil
	}

	select {
	case status := <-ch:
		return status, nil
	case <-time.After(g.cfg.Timeout):
		return g.expire(ctx, approvalID)
	case <-ctx.Done():
		if _, err := g.expire(context.WithoutCancel(ctx), approvalID); err != nil {
			slog.Warn("approval cleanup failed", "approval_id", approvalID, "error", err)
		}
		return "", ctx.Err()
	}
}

// Resolve records a human decision. Only PENDING approvals can be resolved;
// a second decision for the same approval returns domain.ErrConflict.
func (g *ApprovalGate) Resolve(ctx context.Context, approvalID string, status approval.Status, responder string) (*approval.Request, error) {
	if !approval.StatusPending.CanTransition(status) {
		return nil, fmt.Errorf("cannot resolve approval to %s: %w", status, domain.ErrConflict)
	}
	ar, err := g.store.Resolve(ctx, approvalID, status, responder)
	if err != nil {
		return nil, fmt.Errorf("resolve approval %s: %w", approvalID, err)
	}

	g.wake(approvalID, status)
	g.emit(ctx, ar, event.TypeApprovalResolved)
	g.broadcast(ctx, ar)
	slog.Info("approval resolved",
		"approval_id", approvalID,
		"status", status,
		"responder", responder,
	)
	return ar, nil
}

// Get returns an approval by ID.
func (g *ApprovalGate) Get(ctx context.Context, approvalID string) (*approval.Request, error) {
	return g.store.Get(ctx, approvalID)
}

// ListPending returns every approval still awaiting a decision.
func (g *ApprovalGate) ListPending(ctx context.Context) ([]approval.Request, error) {
	return g.store.ListPending(ctx)
}

// HasPending reports whether the session has an approval awaiting a human.
func (g *ApprovalGate) HasPending(ctx context.Context, sessionID string) (bool, error) {
	pending, err := g.store.ListPendingBySession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return len(pending) > 0, nil
}

// CancelForSession times out every pending approval of a session, waking its
// waiters. Used on session teardown.
func (g *ApprovalGate) CancelForSession(ctx context.Context, sessionID string) error {
	pending, err := g.store.ListPendingBySession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("list pending approvals for session %s: %w", sessionID, err)
	}
	for i := range pending {
		if _, err := g.expire(ctx, pending[i].ApprovalID); err != nil {
			return err
		}
	}
	return nil
}

// expire transitions an approval to TIMED_OUT. Racing against a human
// decision is fine: the store lets exactly one resolution through, and on
// conflict the already-recorded status is returned.
func (g *ApprovalGate) expire(ctx context.Context, approvalID string) (approval.Status, error) {
	ar, err := g.store.Resolve(ctx, approvalID, approval.StatusTimedOut, systemResponder)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			resolved, gerr := g.store.Get(ctx, approvalID)
			if gerr != nil {
				return "", fmt.Errorf("load approval %s after conflict: %w", approvalID, gerr)
			}
			return resolved.Status, nil
		}
		return "", fmt.Errorf("time out approval %s: %w", approvalID, err)
	}

	g.wake(approvalID, approval.StatusTimedOut)
	g.emit(ctx, ar, event.TypeApprovalResolved)
	g.broadcast(ctx, ar)
	slog.Warn("approval timed out", "approval_id", approvalID)
	return approval.StatusTimedOut, nil
}

func (g *ApprovalGate) wake(approvalID string, status approval.Status) {
	val, ok := g.waiters.LoadAndDelete(approvalID)
	if !ok {
		return
	}
	ch, _ := val.(chan approval.Status)
	if ch == nil {
		return
	}
	select {
	case ch <- status:
	default:
	}
}

func (g *ApprovalGate) broadcast(ctx context.Context, ar *approval.Request) {
	if g.hub == nil {
		return
	}
	g.hub.BroadcastEvent(ctx, "approval.resolved", map[string]string{
		"approval_id": ar.ApprovalID,
		"status":      string(ar.Status),
		"responder":   ar.Responder,
	})
}

func (g *ApprovalGate) emit(ctx context.Context, ar *approval.Request, t event.Type) {
	if g.events == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"approval_id": ar.ApprovalID,
		"status":      string(ar.Status),
	})
	ev := &event.Event{
		RequestID: ar.RequestID,
		SessionID: ar.SessionID,
		Type:      t,
		Payload:   payload,
		CreatedAt: g.now(),
	}
	if err := g.events.Append(ctx, ev); err != nil {
		slog.Warn("audit event append failed", "type", t, "approval_id", ar.ApprovalID, "error", err)
	}
}
