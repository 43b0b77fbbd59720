// Package transport defines the wire transport port for the delegation
// protocol. A transport moves opaque envelope bytes to a specialist endpoint
// and returns the reply bytes; encoding and retry policy live in the
// protocol client, not here.
package transport

import (
	"context"
	"errors"
)

// ErrContract marks a failure where the remote side rejected the request
// shape itself (e.g. an HTTP 4xx). The protocol client treats it as a
// protocol violation and never retries it.
var ErrContract = errors.New("contract rejected by remote")

// Transport is one protocol binding (HTTP, NATS request/reply, in-process).
type Transport interface {
	// Scheme returns the endpoint scheme this binding serves (e.g. "https").
	Scheme() string

	// RoundTrip sends the request envelope to the endpoint and returns the
	// raw response envelope. The context bounds the exchange.
	RoundTrip(ctx context.Context, endpoint string, payload []byte) ([]byte, error)
}
