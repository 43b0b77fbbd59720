package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Strob0t/SwarmGate/internal/config"
	"github.com/Strob0t/SwarmGate/internal/domain/agent"
	"github.com/Strob0t/SwarmGate/internal/domain/approval"
	"github.com/Strob0t/SwarmGate/internal/domain/delegation"
	"github.com/Strob0t/SwarmGate/internal/domain/event"
	"github.com/Strob0t/SwarmGate/internal/domain/session"
	"github.com/Strob0t/SwarmGate/internal/hook"
	"github.com/Strob0t/SwarmGate/internal/port/broadcast"
	"github.com/Strob0t/SwarmGate/internal/port/eventstore"
)

// Dispatcher performs the wire exchange with one specialist. The protocol
// client is the production implementation.
type Dispatcher interface {
	Send(ctx context.Context, desc agent.Descriptor, req *delegation.Request) (*delegation.Response, error)
}

// Gate is the orchestrator's view of the approval gate.
type Gate interface {
	Request(ctx context.Context, req *delegation.Request, risk delegation.RiskLevel, description string) (*approval.Request, error)
	AwaitDecision(ctx context.Context, approvalID string) (approval.Status, error)
}

const (
	dispatchModeSingle = "single"
	dispatchModeSwarm  = "swarm"
)

// Orchestrator drives a delegation end to end: resolve candidates, run the
// hook pipeline, dispatch over the wire, gate low-confidence or high-risk
// results behind a human, and record the exchange in the session.
type Orchestrator struct {
	cfg      config.Swarm
	registry *Registry
	wire     Dispatcher
	sessions *SessionManager
	gate     Gate
	pipeline *hook.Pipeline
	events   eventstore.Store
	hub      broadcast.Broadcaster

	riskCeiling delegation.RiskLevel
	inflight    *semaphore.Weighted
	outcomes    sync.Map // requestID -> *delegation.Outcome

	now func() time.Time
}

// NewOrchestrator wires the orchestrator. Events and hub may be nil.
func NewOrchestrator(cfg config.Swarm, registry *Registry, wire Dispatcher, sessions *SessionManager, gate Gate, pipeline *hook.Pipeline, events eventstore.Store, hub broadcast.Broadcaster) (*Orchestrator, error) {
	ceiling, err := delegation.ParseRiskLevel(cfg.RiskCeiling)
	if err != nil {
		return nil, fmt.Errorf("orchestrator config: %w", err)
	}
	maxInflight := cfg.MaxInflight
	if maxInflight <= 0 {
		maxInflight = 1
	}
	return &Orchestrator{
		cfg:         cfg,
		registry:    registry,
		wire:        wire,
		sessions:    sessions,
		gate:        gate,
		pipeline:    pipeline,
		events:      events,
		hub:         hub,
		riskCeiling: ceiling,
		inflight:    semaphore.NewWeighted(maxInflight),
		now:         time.Now,
	}, nil
}

// Delegate runs one delegation to a terminal outcome. Typed failures
// (resolution, transport, protocol, guardrail, approval timeout, session
// conflict) come back as errors; completed, cancelled and specialist-failed
// results come back as outcomes.
func (o *Orchestrator) Delegate(ctx context.Context, req *delegation.Request) (*delegation.Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("delegate: %w", err)
	}

	if err := o.inflight.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("delegate %s: %w", req.RequestID, err)
	}
	defer o.inflight.Release(1)

	if _, err := o.sessions.GetOrCreate(ctx, req.SessionID, req.ActorID); err != nil {
		return nil, err
	}

	o.track(req.RequestID, &delegation.Outcome{RequestID: req.RequestID, Status: delegation.StatusRunning})
	o.emit(ctx, req, nil, event.TypeDelegationCreated, nil)
	o.broadcast(ctx, "delegation.created", req)

	hc := hook.NewContext(req)
	if err := o.pipeline.RunPre(ctx, hc); err != nil {
		return nil, o.blocked(ctx, req, hc, err)
	}

	candidates := o.registry.Resolve(req.TaskType)
	if len(candidates) == 0 {
		rerr := &delegation.ResolutionError{RequestID: req.RequestID, TaskType: req.TaskType}
		o.fail(ctx, req, hc, rerr)
		return nil, rerr
	}

	var (
		resp *delegation.Response
		err  error
	)
	if o.cfg.Mode == dispatchModeSwarm && len(candidates) > 1 {
		resp, err = o.fanOut(ctx, candidates, req)
	} else {
		resp, err = o.failover(ctx, candidates, req)
	}
	if err != nil {
		o.fail(ctx, req, hc, err)
		return nil, err
	}

	hc.Response = resp
	if err := o.pipeline.RunPost(ctx, hc); err != nil {
		slog.Warn("post-invoke hooks failed", "request_id", req.RequestID, "error", err)
	}

	if resp.Error != "" {
		return o.specialistFailed(ctx, req, resp)
	}

	if o.needsApproval(hc, req, resp) {
		return o.awaitApproval(ctx, req, resp, hc)
	}
	return o.complete(ctx, req, resp)
}

// Outcome returns the last known outcome for a request, for polling.
func (o *Orchestrator) Outcome(requestID string) (*delegation.Outcome, bool) {
	v, ok := o.outcomes.Load(requestID)
	if !ok {
		return nil, false
	}
	return v.(*delegation.Outcome), true
}

// needsApproval applies the release invariant: a result below the caller's
// confidence floor or above the risk ceiling is never released unreviewed.
func (o *Orchestrator) needsApproval(hc *hook.Context, req *delegation.Request, resp *delegation.Response) bool {
	if resp.Confidence < req.RequiredConfidence {
		return true
	}
	return o.effectiveRisk(hc, resp) > o.riskCeiling
}

// effectiveRisk folds the guardrail's annotated risk into the specialist's
// self-reported one, taking the higher of the two.
func (o *Orchestrator) effectiveRisk(hc *hook.Context, resp *delegation.Response) delegation.RiskLevel {
	risk := resp.Risk
	if v, ok := hc.Annotation(hook.RiskAnnotation); ok {
		if annotated, ok := v.(delegation.RiskLevel); ok && annotated > risk {
			risk = annotated
		}
	}
	return risk
}

// awaitApproval suspends the delegation behind exactly one approval request
// and maps the human's decision onto the outcome.
func (o *Orchestrator) awaitApproval(ctx context.Context, req *delegation.Request, resp *delegation.Response, hc *hook.Context) (*delegation.Outcome, error) {
	risk := o.effectiveRisk(hc, resp)
	desc := fmt.Sprintf("%s from %s: confidence %.2f (required %.2f), risk %s",
		req.TaskType, resp.AgentID, resp.Confidence, req.RequiredConfidence, risk)

	ar, err := o.gate.Request(ctx, req, risk, desc)
	if err != nil {
		o.fail(ctx, req, hc, err)
		return nil, err
	}

	o.track(req.RequestID, &delegation.Outcome{
		RequestID:  req.RequestID,
		Status:     delegation.StatusPendingApproval,
		ApprovalID: ar.ApprovalID,
	})
	o.broadcast(ctx, "approval.requested", ar)

	status, err := o.gate.AwaitDecision(ctx, ar.ApprovalID)
	if err != nil {
		// The caller went away mid-wait; the gate has already driven the
		// approval to a terminal status. Clean up on a detached context.
		bg := context.WithoutCancel(ctx)
		o.pipeline.RunOnError(bg, hc, err)
		o.track(req.RequestID, &delegation.Outcome{
			RequestID:  req.RequestID,
			Status:     delegation.StatusCancelled,
			ApprovalID: ar.ApprovalID,
			Reason:     "cancelled while awaiting approval",
			FinishedAt: o.now(),
		})
		o.emit(bg, req, resp, event.TypeDelegationFailed, map[string]string{"reason": "await_cancelled"})
		return nil, err
	}

	switch status {
	case approval.StatusApproved:
		return o.complete(ctx, req, resp)
	case approval.StatusRejected:
		outcome := &delegation.Outcome{
			RequestID:  req.RequestID,
			Status:     delegation.StatusCancelled,
			ApprovalID: ar.ApprovalID,
			Reason:     "rejected by operator",
			FinishedAt: o.now(),
		}
		o.track(req.RequestID, outcome)
		o.emit(ctx, req, resp, event.TypeDelegationFailed, map[string]string{"reason": "rejected"})
		o.broadcast(ctx, "delegation.cancelled", outcome)
		return outcome, nil
	default:
		terr := &delegation.ApprovalTimeoutError{RequestID: req.RequestID, ApprovalID: ar.ApprovalID}
		o.pipeline.RunOnError(ctx, hc, terr)
		outcome := &delegation.Outcome{
			RequestID:  req.RequestID,
			Status:     delegation.StatusCancelled,
			ApprovalID: ar.ApprovalID,
			Reason:     "approval timed out",
			FinishedAt: o.now(),
		}
		o.track(req.RequestID, outcome)
		o.emit(ctx, req, resp, event.TypeDelegationFailed, map[string]string{"reason": "approval_timeout"})
		o.broadcast(ctx, "delegation.cancelled", outcome)
		return nil, terr
	}
}

// complete records the exchange in the session and releases the result.
func (o *Orchestrator) complete(ctx context.Context, req *delegation.Request, resp *delegation.Response) (*delegation.Outcome, error) {
	ex := session.Exchange{Request: *req, Response: *resp, CompletedAt: o.now()}
	if err := o.sessions.Append(ctx, req.SessionID, ex); err != nil {
		return nil, err
	}

	outcome := &delegation.Outcome{
		RequestID:  req.RequestID,
		Status:     delegation.StatusCompleted,
		Response:   resp,
		FinishedAt: o.now(),
	}
	o.track(req.RequestID, outcome)
	o.emit(ctx, req, resp, event.TypeDelegationDone, nil)
	o.broadcast(ctx, "delegation.completed", outcome)
	slog.Info("delegation completed",
		"request_id", req.RequestID,
		"session_id", req.SessionID,
		"agent_id", resp.AgentID,
		"confidence", resp.Confidence,
	)
	return outcome, nil
}

// specialistFailed handles a contract-conformant error reply. The exchange
// still lands in history; the specialist answered, it just answered no.
func (o *Orchestrator) specialistFailed(ctx context.Context, req *delegation.Request, resp *delegation.Response) (*delegation.Outcome, error) {
	ex := session.Exchange{Request: *req, Response: *resp, CompletedAt: o.now()}
	if err := o.sessions.Append(ctx, req.SessionID, ex); err != nil {
		return nil, err
	}

	outcome := &delegation.Outcome{
		RequestID:  req.RequestID,
		Status:     delegation.StatusFailed,
		Response:   resp,
		Reason:     resp.Error,
		FinishedAt: o.now(),
	}
	o.track(req.RequestID, outcome)
	o.emit(ctx, req, resp, event.TypeDelegationFailed, map[string]string{"reason": resp.Error})
	o.broadcast(ctx, "delegation.failed", outcome)
	return outcome, nil
}

// failover tries candidates one at a time in resolution order. Only wire
// failures advance to the next candidate; anything else is final.
func (o *Orchestrator) failover(ctx context.Context, candidates []agent.Descriptor, req *delegation.Request) (*delegation.Response, error) {
	var lastErr error
	for _, desc := range candidates {
		o.emit(ctx, req, nil, event.TypeDelegationSent, map[string]string{"agent_id": desc.ID})

		sendCtx, cancel := context.WithTimeout(ctx, o.cfg.CandidateTimeout)
		resp, err := o.wire.Send(sendCtx, desc, req)
		cancel()
		if err == nil {
			return resp, nil
		}

		if !wireFailure(err) {
			return nil, err
		}
		slog.Warn("candidate failed, trying next",
			"request_id", req.RequestID,
			"agent_id", desc.ID,
			"error", err,
		)
		lastErr = err
	}
	return nil, &delegation.ResolutionError{RequestID: req.RequestID, TaskType: req.TaskType, Cause: lastErr}
}

// wireFailure reports whether the error is a per-candidate wire failure
// that failover may route around.
func wireFailure(err error) bool {
	var terr *delegation.TransportError
	var perr *delegation.ProtocolError
	return errors.As(err, &terr) || errors.As(err, &perr)
}

func (o *Orchestrator) blocked(ctx context.Context, req *delegation.Request, hc *hook.Context, err error) error {
	var abort *hook.AbortError
	if errors.As(err, &abort) {
		o.emit(ctx, req, nil, event.TypeGuardrailBlocked, map[string]string{
			"hook":   abort.Hook,
			"reason": abort.Reason,
		})
		verr := &delegation.GuardrailViolation{RequestID: req.RequestID, Hook: abort.Hook, Reason: abort.Reason}
		o.fail(ctx, req, hc, verr)
		return verr
	}
	o.fail(ctx, req, hc, err)
	return err
}

func (o *Orchestrator) fail(ctx context.Context, req *delegation.Request, hc *hook.Context, cause error) {
	o.pipeline.RunOnError(ctx, hc, cause)
	o.track(req.RequestID, &delegation.Outcome{
		RequestID:  req.RequestID,
		Status:     delegation.StatusFailed,
		Reason:     cause.Error(),
		FinishedAt: o.now(),
	})
	o.emit(ctx, req, nil, event.TypeDelegationFailed, map[string]string{"reason": cause.Error()})
	o.broadcast(ctx, "delegation.failed", req)
}

func (o *Orchestrator) track(requestID string, outcome *delegation.Outcome) {
	o.outcomes.Store(requestID, outcome)
}

func (o *Orchestrator) emit(ctx context.Context, req *delegation.Request, resp *delegation.Response, t event.Type, fields map[string]string) {
	if o.events == nil {
		return
	}
	ev := &event.Event{
		RequestID: req.RequestID,
		SessionID: req.SessionID,
		Type:      t,
		CreatedAt: o.now(),
	}
	if resp != nil {
		ev.AgentID = resp.AgentID
	}
	if fields != nil {
		ev.Payload, _ = json.Marshal(fields)
	}
	if err := o.events.Append(ctx, ev); err != nil {
		slog.Warn("audit event append failed", "type", t, "request_id", req.RequestID, "error", err)
	}
}

func (o *Orchestrator) broadcast(ctx context.Context, eventType string, payload any) {
	if o.hub == nil {
		return
	}
	o.hub.BroadcastEvent(ctx, eventType, payload)
}
