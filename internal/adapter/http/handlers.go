// Package http provides the REST API handlers and middleware.
package http

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/Strob0t/SwarmGate/internal/domain/agent"
	"github.com/Strob0t/SwarmGate/internal/domain/approval"
	"github.com/Strob0t/SwarmGate/internal/domain/delegation"
	"github.com/Strob0t/SwarmGate/internal/port/eventstore"
	"github.com/Strob0t/SwarmGate/internal/service"
)

// Handlers bundles the service dependencies for all API endpoints.
type Handlers struct {
	Orchestrator *service.Orchestrator
	Registry     *service.Registry
	Sessions     *service.SessionManager
	Approvals    *service.ApprovalGate
	Events       eventstore.Store

	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64
}

// CreateDelegation handles POST /api/v1/delegations. The call is
// synchronous: it returns once the delegation reaches a terminal outcome,
// including the time spent waiting on a human decision.
func (h *Handlers) CreateDelegation(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[delegation.Request](w, r, h.MaxBodyBytes)
	if !ok {
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.Orchestrator.Delegate(r.Context(), &req)
	if err != nil {
		writeDelegationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// GetDelegation handles GET /api/v1/delegations/{id}.
func (h *Handlers) GetDelegation(w http.ResponseWriter, r *http.Request) {
	outcome, ok := h.Orchestrator.Outcome(urlParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "delegation not found")
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// ListDelegationEvents handles GET /api/v1/delegations/{id}/events.
func (h *Handlers) ListDelegationEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Events.ListByRequest(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "delegation not found")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(events))
}

// ListAgents handles GET /api/v1/agents.
func (h *Handlers) ListAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, orEmpty(h.Registry.List()))
}

// RegisterAgent handles POST /api/v1/agents.
func (h *Handlers) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	desc, ok := readJSON[agent.Descriptor](w, r, h.MaxBodyBytes)
	if !ok {
		return
	}
	if err := desc.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Registry.Register(desc); err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusCreated, desc)
}

// GetAgent handles GET /api/v1/agents/{id}.
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	desc, err := h.Registry.Get(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

// GetSession handles GET /api/v1/sessions/{id}.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.Sessions.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// DeleteSession handles DELETE /api/v1/sessions/{id}. Pending approvals of
// the session are cancelled before the state is dropped.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Teardown(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSessionEvents handles GET /api/v1/sessions/{id}/events.
func (h *Handlers) ListSessionEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Events.ListBySession(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(events))
}

// ListPendingApprovals handles GET /api/v1/approvals.
func (h *Handlers) ListPendingApprovals(w http.ResponseWriter, r *http.Request) {
	pending, err := h.Approvals.ListPending(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(pending))
}

// GetApproval handles GET /api/v1/approvals/{id}.
func (h *Handlers) GetApproval(w http.ResponseWriter, r *http.Request) {
	ar, err := h.Approvals.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "approval not found")
		return
	}
	writeJSON(w, http.StatusOK, ar)
}

type resolveApprovalRequest struct {
	Status    string `json:"status"`
	Responder string `json:"responder"`
}

// ResolveApproval handles POST /api/v1/approvals/{id}/resolve. The first
// decision wins; a second one gets 409.
func (h *Handlers) ResolveApproval(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[resolveApprovalRequest](w, r, h.MaxBodyBytes)
	if !ok {
		return
	}
	if !requireField(w, body.Status, "status") || !requireField(w, body.Responder, "responder") {
		return
	}

	status, err := approval.ParseStatus(body.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ar, err := h.Approvals.Resolve(r.Context(), urlParam(r, "id"), status, body.Responder)
	if err != nil {
		writeDomainError(w, err, "approval not found")
		return
	}
	writeJSON(w, http.StatusOK, ar)
}

// writeDelegationError maps the typed delegation failures onto HTTP status
// codes.
func writeDelegationError(w http.ResponseWriter, err error) {
	var (
		rerr *delegation.ResolutionError
		terr *delegation.TransportError
		perr *delegation.ProtocolError
		gerr *delegation.GuardrailViolation
		aerr *delegation.ApprovalTimeoutError
		cerr *delegation.SessionConflictError
	)
	switch {
	case errors.As(err, &gerr):
		writeError(w, http.StatusForbidden, gerr.Error())
	case errors.As(err, &aerr):
		writeError(w, http.StatusGatewayTimeout, aerr.Error())
	case errors.As(err, &cerr):
		writeError(w, http.StatusConflict, cerr.Error())
	case errors.As(err, &rerr), errors.As(err, &terr), errors.As(err, &perr):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeInternalError(w, err)
	}
}
