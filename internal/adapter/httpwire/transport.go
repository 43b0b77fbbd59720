// Package httpwire implements the wire transport for specialists reachable
// over HTTP. The delegation envelope is POSTed to the endpoint as JSON and
// the reply body carries the response envelope.
package httpwire

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Strob0t/SwarmGate/internal/port/transport"
)

// maxResponseBytes caps how much of a specialist reply is read.
const maxResponseBytes = 4 << 20

// Transport posts delegation envelopes to http:// and https:// endpoints.
type Transport struct {
	scheme string
	client *http.Client
}

// New creates the transport for the given scheme ("http" or "https").
// Outgoing requests are traced via otelhttp.
func New(scheme string) *Transport {
	return &Transport{
		scheme: scheme,
		client: &http.Client{
			Timeout:   60 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Scheme implements transport.Transport.
func (t *Transport) Scheme() string { return t.scheme }

// RoundTrip implements transport.Transport. A 4xx status means the
// specialist rejected the envelope itself, which is a contract violation;
// 5xx and network errors are transient and left to the caller's retry
// policy.
func (t *Transport) RoundTrip(ctx context.Context, endpoint string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read reply from %s: %w", endpoint, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%w: %s returned status %d", transport.ErrContract, endpoint, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%s returned status %d", endpoint, resp.StatusCode)
	}
}
