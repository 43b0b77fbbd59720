// Package inproc implements the wire transport for specialists hosted in
// the orchestrator's own process. Endpoints use the inproc://<provider>
// scheme; the round trip still goes through the full envelope codec so an
// in-process specialist obeys the same contract as a remote one.
package inproc

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Strob0t/SwarmGate/internal/domain/delegation"
	"github.com/Strob0t/SwarmGate/internal/port/provider"
	"github.com/Strob0t/SwarmGate/internal/port/transport"
)

const scheme = "inproc"

// Transport dispatches to registered in-process providers.
type Transport struct {
	mu        sync.RWMutex
	providers map[string]provider.Provider
}

// New creates an in-process transport over the given providers.
func New(providers ...provider.Provider) *Transport {
	t := &Transport{providers: make(map[string]provider.Provider, len(providers))}
	for _, p := range providers {
		t.providers[p.Name()] = p
	}
	return t
}

// Register adds a provider. A later registration with the same name
// replaces the earlier one.
func (t *Transport) Register(p provider.Provider) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.providers[p.Name()] = p
}

// Scheme implements transport.Transport.
func (t *Transport) Scheme() string { return scheme }

// RoundTrip decodes the envelope, hands the request to the named provider
// and encodes its reply. A provider reply that fails response validation is
// reported as a contract violation, exactly like a remote specialist's.
func (t *Transport) RoundTrip(ctx context.Context, endpoint string, payload []byte) ([]byte, error) {
	name := strings.TrimPrefix(endpoint, scheme+"://")

	t.mu.RLock()
	p, ok := t.providers[name]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no in-process provider %q", name)
	}

	req, err := delegation.DecodeRequest(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrContract, err)
	}

	resp, err := p.Handle(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", name, err)
	}
	if resp.RequestID == "" {
		resp.RequestID = req.RequestID
	}
	if resp.AgentID == "" {
		resp.AgentID = name
	}

	out, err := delegation.EncodeResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: provider %s: %v", transport.ErrContract, name, err)
	}
	return out, nil
}
