package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cenkalti/backoff/v5"

	"github.com/Strob0t/SwarmGate/internal/config"
	"github.com/Strob0t/SwarmGate/internal/domain/agent"
	"github.com/Strob0t/SwarmGate/internal/domain/delegation"
	"github.com/Strob0t/SwarmGate/internal/port/transport"
	"github.com/Strob0t/SwarmGate/internal/resilience"
)

// ProtocolClient performs the wire exchange with a specialist: encode the
// request, transmit over the binding matching the endpoint scheme, decode
// and validate the reply. Transport failures are retried with exponential
// backoff and jitter up to the configured budget; schema violations are
// never retried, because a malformed contract cannot self-heal.
type ProtocolClient struct {
	cfg        config.Protocol
	transports map[string]transport.Transport
	breakers   *resilience.BreakerSet
}

// NewProtocolClient creates a client over the given transport bindings.
func NewProtocolClient(cfg config.Protocol, breakers *resilience.BreakerSet, bindings ...transport.Transport) *ProtocolClient {
	transports := make(map[string]transport.Transport, len(bindings))
	for _, b := range bindings {
		transports[b.Scheme()] = b
	}
	return &ProtocolClient{
		cfg:        cfg,
		transports: transports,
		breakers:   breakers,
	}
}

// Send dispatches the request to the descriptor's endpoint and returns the
// decoded response. Failures come back as *delegation.TransportError (retry
// budget exhausted) or *delegation.ProtocolError (malformed contract).
func (c *ProtocolClient) Send(ctx context.Context, desc agent.Descriptor, req *delegation.Request) (*delegation.Response, error) {
	tr, err := c.transportFor(desc.Endpoint)
	if err != nil {
		return nil, &delegation.TransportError{
			RequestID: req.RequestID,
			Endpoint:  desc.Endpoint,
			Attempts:  0,
			Cause:     err,
		}
	}

	payload, err := delegation.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	attempts := 0
	op := func() (*delegation.Response, error) {
		attempts++

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		defer cancel()

		var raw []byte
		err := c.breakers.For(desc.Endpoint).Execute(func() error {
			var rerr error
			raw, rerr = tr.RoundTrip(attemptCtx, desc.Endpoint, payload)
			return rerr
		})
		if err != nil {
			if errors.Is(err, transport.ErrContract) {
				return nil, backoff.Permanent(&delegation.ProtocolError{
					RequestID: req.RequestID,
					Endpoint:  desc.Endpoint,
					Cause:     err,
				})
			}
			slog.Debug("transport attempt failed",
				"request_id", req.RequestID,
				"endpoint", desc.Endpoint,
				"attempt", attempts,
				"error", err,
			)
			return nil, err
		}

		resp, err := delegation.DecodeResponse(raw)
		if err != nil {
			return nil, backoff.Permanent(&delegation.ProtocolError{
				RequestID: req.RequestID,
				Endpoint:  desc.Endpoint,
				Cause:     err,
			})
		}
		if resp.RequestID != req.RequestID {
			return nil, backoff.Permanent(&delegation.ProtocolError{
				RequestID: req.RequestID,
				Endpoint:  desc.Endpoint,
				Cause:     fmt.Errorf("response for request %s, expected %s", resp.RequestID, req.RequestID),
			})
		}
		return resp, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialBackoff
	bo.MaxInterval = c.cfg.MaxBackoff

	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries+1)),
	)
	if err != nil {
		var perr *delegation.ProtocolError
		if errors.As(err, &perr) {
			return nil, perr
		}
		return nil, &delegation.TransportError{
			RequestID: req.RequestID,
			Endpoint:  desc.Endpoint,
			Attempts:  attempts,
			Cause:     err,
		}
	}

	if resp.AgentID == "" {
		resp.AgentID = desc.ID
	}
	return resp, nil
}

// transportFor picks the binding matching the endpoint scheme.
func (c *ProtocolClient) transportFor(endpoint string) (transport.Transport, error) {
	scheme, _, ok := strings.Cut(endpoint, "://")
	if !ok {
		return nil, fmt.Errorf("endpoint %q has no scheme", endpoint)
	}
	tr, ok := c.transports[scheme]
	if !ok {
		return nil, fmt.Errorf("no transport binding for scheme %q", scheme)
	}
	return tr, nil
}
