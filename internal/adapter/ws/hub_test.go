package ws

import (
	"context"
	"testing"

	"github.com/Strob0t/SwarmGate/internal/domain/approval"
	"github.com/Strob0t/SwarmGate/internal/domain/delegation"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()
	if hub == nil {
		t.Fatal("expected non-nil hub")
	}
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestHubBroadcastNoConnections(t *testing.T) {
	hub := NewHub()

	// Broadcast with no connections should not panic.
	hub.Broadcast(context.Background(), Message{
		Type:    "test",
		Payload: []byte(`{"key":"value"}`),
	})
}

func TestHubBroadcastEventNoConnections(t *testing.T) {
	hub := NewHub()

	hub.BroadcastEvent(context.Background(), EventApprovalResolved, ApprovalResolvedEvent{
		ApprovalID: "ap-1",
		Status:     "APPROVED",
		Responder:  "alice",
	})
}

func TestHubBroadcastEventMarshalError(t *testing.T) {
	hub := NewHub()

	// A channel cannot be marshaled to JSON; should log, not panic.
	hub.BroadcastEvent(context.Background(), "bad", make(chan int))
}

func TestHubRemoveNonexistent(t *testing.T) {
	hub := NewHub()

	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &conn{ws: nil, cancel: cancel}
	hub.remove(c)
}

func TestApproverSubmit(t *testing.T) {
	a := NewApprover(NewHub())
	if a.Name() != "websocket" {
		t.Errorf("unexpected approver name %q", a.Name())
	}

	err := a.Submit(context.Background(), &approval.Request{
		ApprovalID: "ap-1",
		RequestID:  "req-1",
		SessionID:  "sess-1",
		Risk:       delegation.RiskHigh,
		Status:     approval.StatusPending,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
