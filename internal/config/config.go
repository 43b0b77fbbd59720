// Package config provides hierarchical configuration loading for SwarmGate.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the SwarmGate core service.
type Config struct {
	Server    Server        `yaml:"server"`
	Postgres  Postgres      `yaml:"postgres"`
	NATS      NATS          `yaml:"nats"`
	Logging   Logging       `yaml:"logging"`
	Breaker   Breaker       `yaml:"breaker"`
	Protocol  Protocol      `yaml:"protocol"`
	Session   Session       `yaml:"session"`
	Approval  Approval      `yaml:"approval"`
	Swarm     Swarm         `yaml:"swarm"`
	Guardrail Guardrail     `yaml:"guardrail"`
	Telemetry Telemetry     `yaml:"telemetry"`
	Agents    []AgentConfig `yaml:"agents"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Postgres holds PostgreSQL connection configuration. An empty DSN selects
// the in-memory stores (dev/test mode).
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
}

// NATS holds NATS configuration for the wire transport and agent announce
// subscriptions. An empty URL disables the NATS binding.
type NATS struct {
	URL             string `yaml:"url"`
	AnnounceSubject string `yaml:"announce_subject"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// Breaker holds the per-endpoint circuit breaker configuration.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Protocol holds delegation protocol client configuration.
type Protocol struct {
	MaxRetries     int           `yaml:"max_retries"`     // Retry budget per candidate (default: 3)
	InitialBackoff time.Duration `yaml:"initial_backoff"` // First backoff interval (default: 100ms)
	MaxBackoff     time.Duration `yaml:"max_backoff"`     // Backoff ceiling (default: 5s)
	AttemptTimeout time.Duration `yaml:"attempt_timeout"` // Per-attempt wire deadline (default: 30s)
}

// Session holds session manager configuration.
type Session struct {
	TTL           time.Duration `yaml:"ttl"`             // Session lifetime (default: 24h)
	SweepInterval time.Duration `yaml:"sweep_interval"`  // GC sweep cadence (default: 5m)
	CacheMaxBytes int64         `yaml:"cache_max_bytes"` // L1 session cache size; 0 disables
}

// Approval holds human-in-the-loop gate configuration.
type Approval struct {
	Timeout time.Duration `yaml:"timeout"` // How long to wait for a human (default: 5m)
}

// Swarm holds orchestrator dispatch configuration.
type Swarm struct {
	Mode             string        `yaml:"mode"`              // "single" | "swarm" (default: "single")
	Policy           string        `yaml:"policy"`            // "first_success" | "quorum" (default: "first_success")
	Quorum           int           `yaml:"quorum"`            // Agreeing results required; 0 = majority of fanout
	MaxFanout        int           `yaml:"max_fanout"`        // Candidates dispatched concurrently (default: 3)
	MaxInflight      int64         `yaml:"max_inflight"`      // Global concurrent dispatch cap (default: 32)
	CandidateTimeout time.Duration `yaml:"candidate_timeout"` // Independent per-candidate deadline (default: 60s)
	RiskCeiling      string        `yaml:"risk_ceiling"`      // Highest risk released without approval (default: "medium")
}

// Guardrail holds built-in guardrail hook configuration.
type Guardrail struct {
	MaxPayloadBytes   int      `yaml:"max_payload_bytes"`
	DeniedTaskTypes   []string `yaml:"denied_task_types"`
	HighRiskTaskTypes []string `yaml:"high_risk_task_types"`
}

// Telemetry holds OpenTelemetry exporter configuration.
type Telemetry struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// AgentConfig is one statically configured specialist descriptor, loaded
// into the registry at startup.
type AgentConfig struct {
	ID           string   `yaml:"id"`
	Endpoint     string   `yaml:"endpoint"`
	TrustLevel   int      `yaml:"trust_level"`
	Capabilities []string `yaml:"capabilities"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
		},
		Postgres: Postgres{
			DSN:             "",
			MaxConns:        10,
			MinConns:        2,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
			HealthCheck:     time.Minute,
		},
		NATS: NATS{
			URL:             "",
			AnnounceSubject: "agents.announce",
		},
		Logging: Logging{
			Level:   "info",
			Service: "swarmgate-core",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Protocol: Protocol{
			MaxRetries:     3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			AttemptTimeout: 30 * time.Second,
		},
		Session: Session{
			TTL:           24 * time.Hour,
			SweepInterval: 5 * time.Minute,
			CacheMaxBytes: 32 << 20,
		},
		Approval: Approval{
			Timeout: 5 * time.Minute,
		},
		Swarm: Swarm{
			Mode:             "single",
			Policy:           "first_success",
			Quorum:           0,
			MaxFanout:        3,
			MaxInflight:      32,
			CandidateTimeout: 60 * time.Second,
			RiskCeiling:      "medium",
		},
		Guardrail: Guardrail{
			MaxPayloadBytes: 1 << 20,
		},
	}
}
