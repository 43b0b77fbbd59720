// Package agent defines the specialist descriptor held by the registry.
package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/Strob0t/SwarmGate/internal/domain/delegation"
)

// TrustLevel ranks how much weight the orchestrator gives an agent when
// ordering resolution candidates. Higher is more trusted.
type TrustLevel int

const (
	TrustUntrusted TrustLevel = iota
	TrustBasic
	TrustVerified
	TrustOperator
)

// Descriptor describes one registered specialist. Immutable once registered.
type Descriptor struct {
	ID           string                `json:"id"`
	Capabilities []delegation.TaskType `json:"capabilities"`
	Endpoint     string                `json:"endpoint"`
	Trust        TrustLevel            `json:"trust_level"`
	RegisteredAt time.Time             `json:"registered_at,omitzero"`
}

// Validate checks descriptor invariants before registration.
func (d *Descriptor) Validate() error {
	if d.ID == "" {
		return errors.New("agent id is required")
	}
	if len(d.Capabilities) == 0 {
		return fmt.Errorf("agent %s declares no capabilities", d.ID)
	}
	if d.Endpoint == "" {
		return fmt.Errorf("agent %s has no endpoint", d.ID)
	}
	return nil
}

// Supports reports whether the descriptor's capability set contains taskType.
func (d *Descriptor) Supports(taskType delegation.TaskType) bool {
	for _, c := range d.Capabilities {
		if c == taskType {
			return true
		}
	}
	return false
}
