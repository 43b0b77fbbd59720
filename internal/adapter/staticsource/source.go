// Package staticsource exposes statically configured agents as a discovery
// source for the registry.
package staticsource

import (
	"context"

	"github.com/Strob0t/SwarmGate/internal/config"
	"github.com/Strob0t/SwarmGate/internal/domain/agent"
	"github.com/Strob0t/SwarmGate/internal/domain/delegation"
)

// Source adapts the agents section of the config file to discovery.Source.
type Source struct {
	agents []config.AgentConfig
}

func New(agents []config.AgentConfig) *Source {
	return &Source{agents: agents}
}

// Descriptors converts the configured agents into registry descriptors.
func (s *Source) Descriptors(_ context.Context) ([]agent.Descriptor, error) {
	out := make([]agent.Descriptor, 0, len(s.agents))
	for _, a := range s.agents {
		caps := make([]delegation.TaskType, 0, len(a.Capabilities))
		for _, c := range a.Capabilities {
			caps = append(caps, delegation.TaskType(c))
		}
		out = append(out, agent.Descriptor{
			ID:           a.ID,
			Capabilities: caps,
			Endpoint:     a.Endpoint,
			Trust:        agent.TrustLevel(a.TrustLevel),
		})
	}
	return out, nil
}
