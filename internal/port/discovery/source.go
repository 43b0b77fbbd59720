// Package discovery defines the capability discovery port: a read-only
// lookup exposing agent descriptors, consumed by the registry at startup or
// on demand.
package discovery

import (
	"context"

	"github.com/Strob0t/SwarmGate/internal/domain/agent"
)

// Source lists specialist descriptors from some catalog (static config,
// service registry, announce subjects).
type Source interface {
	// Descriptors returns all known agent descriptors.
	Descriptors(ctx context.Context) ([]agent.Descriptor, error)
}
