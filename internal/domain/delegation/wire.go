package delegation

import (
	"encoding/json"
	"fmt"
)

// WireVersion is the current version of the delegation protocol envelope.
// Decoders accept any version up to this one; newer versions are rejected
// as protocol violations rather than guessed at.
const WireVersion = 1

type requestEnvelope struct {
	Version int     `json:"v"`
	Request Request `json:"request"`
}

type responseEnvelope struct {
	Version  int      `json:"v"`
	Response Response `json:"response"`
}

// EncodeRequest wraps a request in the versioned wire envelope.
func EncodeRequest(req *Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return json.Marshal(requestEnvelope{Version: WireVersion, Request: *req})
}

// DecodeRequest unwraps a versioned request envelope. Used by specialist
// hosts serving the protocol.
func DecodeRequest(data []byte) (*Request, error) {
	var env requestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode request envelope: %w", err)
	}
	if env.Version <= 0 || env.Version > WireVersion {
		return nil, fmt.Errorf("unsupported wire version %d", env.Version)
	}
	if err := env.Request.Validate(); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return &env.Request, nil
}

// EncodeResponse wraps a response in the versioned wire envelope.
func EncodeResponse(resp *Response) ([]byte, error) {
	if err := resp.Validate(); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return json.Marshal(responseEnvelope{Version: WireVersion, Response: *resp})
}

// DecodeResponse unwraps and validates a versioned response envelope.
// Any failure here is a schema violation: the protocol client reports it
// as a ProtocolError and never retries.
func DecodeResponse(data []byte) (*Response, error) {
	var env responseEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode response envelope: %w", err)
	}
	if env.Version <= 0 || env.Version > WireVersion {
		return nil, fmt.Errorf("unsupported wire version %d", env.Version)
	}
	if err := env.Response.Validate(); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &env.Response, nil
}
