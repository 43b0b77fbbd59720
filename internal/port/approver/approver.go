// Package approver defines the human approval channel port. The gate only
// needs to surface a request to an operator; decisions come back through the
// gate's Resolve entry point, whatever the transport.
package approver

import (
	"context"

	"github.com/Strob0t/SwarmGate/internal/domain/approval"
)

// Approver surfaces approval requests to a human operator (WebSocket
// broadcast, chat integration, pager). Submit must not block on the human;
// it only delivers the request.
type Approver interface {
	// Name identifies the channel in logs and audit records.
	Name() string

	// Submit delivers a pending approval request to the channel.
	Submit(ctx context.Context, req *approval.Request) error
}
