// Package service implements business logic on top of ports.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Strob0t/SwarmGate/internal/domain"
	"github.com/Strob0t/SwarmGate/internal/domain/agent"
	"github.com/Strob0t/SwarmGate/internal/domain/delegation"
	"github.com/Strob0t/SwarmGate/internal/port/discovery"
)

// Registry is the catalog of registered specialists. Reads are unlimited and
// concurrent; registration is single-writer. Descriptors are immutable once
// registered.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]int
	order []agent.Descriptor // registration order, for deterministic tie-breaking
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]int)}
}

// Register adds a descriptor to the catalog. Registering an existing ID
// fails with domain.ErrDuplicateAgent.
func (r *Registry) Register(d agent.Descriptor) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("register agent: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[d.ID]; exists {
		return fmt.Errorf("register agent %s: %w", d.ID, domain.ErrDuplicateAgent)
	}

	if d.RegisteredAt.IsZero() {
		d.RegisteredAt = time.Now()
	}
	r.byID[d.ID] = len(r.order)
	r.order = append(r.order, d)

	slog.Info("agent registered",
		"agent_id", d.ID,
		"endpoint", d.Endpoint,
		"trust", int(d.Trust),
		"capabilities", len(d.Capabilities),
	)
	return nil
}

// Get returns a descriptor by ID, or domain.ErrNotFound.
func (r *Registry) Get(id string) (agent.Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byID[id]
	if !ok {
		return agent.Descriptor{}, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	return r.order[idx], nil
}

// List returns all descriptors in registration order.
func (r *Registry) List() []agent.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]agent.Descriptor, len(r.order))
	copy(out, r.order)
	return out
}

// Resolve returns all descriptors whose capability set contains taskType,
// ordered by trust level descending then registration order. The ordering is
// stable and deterministic across repeated calls. No match returns an empty
// slice, not an error: the orchestrator decides that is a resolution
// failure.
func (r *Registry) Resolve(taskType delegation.TaskType) []agent.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []agent.Descriptor
	for _, d := range r.order {
		if d.Supports(taskType) {
			out = append(out, d)
		}
	}

	// out is already in registration order; a stable sort by trust keeps
	// that order inside each trust band.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Trust > out[j].Trust
	})
	return out
}

// LoadFrom registers every descriptor a discovery source lists. Duplicate
// IDs are skipped with a warning so re-announcing agents are harmless.
func (r *Registry) LoadFrom(ctx context.Context, src discovery.Source) error {
	descriptors, err := src.Descriptors(ctx)
	if err != nil {
		return fmt.Errorf("discover agents: %w", err)
	}

	for _, d := range descriptors {
		if err := r.Register(d); err != nil {
			slog.Warn("skipping agent from discovery", "agent_id", d.ID, "error", err)
		}
	}
	return nil
}
