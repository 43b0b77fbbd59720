package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "swarmgate.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "SWARMGATE_PORT")
	setString(&cfg.Server.CORSOrigin, "SWARMGATE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "SWARMGATE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "SWARMGATE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "SWARMGATE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "SWARMGATE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "SWARMGATE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.AnnounceSubject, "SWARMGATE_ANNOUNCE_SUBJECT")
	setString(&cfg.Logging.Level, "SWARMGATE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "SWARMGATE_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "SWARMGATE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "SWARMGATE_BREAKER_TIMEOUT")
	setInt(&cfg.Protocol.MaxRetries, "SWARMGATE_PROTO_MAX_RETRIES")
	setDuration(&cfg.Protocol.InitialBackoff, "SWARMGATE_PROTO_INITIAL_BACKOFF")
	setDuration(&cfg.Protocol.MaxBackoff, "SWARMGATE_PROTO_MAX_BACKOFF")
	setDuration(&cfg.Protocol.AttemptTimeout, "SWARMGATE_PROTO_ATTEMPT_TIMEOUT")
	setDuration(&cfg.Session.TTL, "SWARMGATE_SESSION_TTL")
	setDuration(&cfg.Session.SweepInterval, "SWARMGATE_SESSION_SWEEP_INTERVAL")
	setInt64(&cfg.Session.CacheMaxBytes, "SWARMGATE_SESSION_CACHE_BYTES")
	setDuration(&cfg.Approval.Timeout, "SWARMGATE_APPROVAL_TIMEOUT")
	setString(&cfg.Swarm.Mode, "SWARMGATE_SWARM_MODE")
	setString(&cfg.Swarm.Policy, "SWARMGATE_SWARM_POLICY")
	setInt(&cfg.Swarm.Quorum, "SWARMGATE_SWARM_QUORUM")
	setInt(&cfg.Swarm.MaxFanout, "SWARMGATE_SWARM_MAX_FANOUT")
	setInt64(&cfg.Swarm.MaxInflight, "SWARMGATE_SWARM_MAX_INFLIGHT")
	setDuration(&cfg.Swarm.CandidateTimeout, "SWARMGATE_SWARM_CANDIDATE_TIMEOUT")
	setString(&cfg.Swarm.RiskCeiling, "SWARMGATE_RISK_CEILING")
	setInt(&cfg.Guardrail.MaxPayloadBytes, "SWARMGATE_GUARDRAIL_MAX_PAYLOAD")
	setBool(&cfg.Telemetry.Enabled, "SWARMGATE_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.OTLPEndpoint, "SWARMGATE_OTLP_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN != "" && cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Protocol.MaxRetries < 0 {
		return errors.New("protocol.max_retries must be >= 0")
	}
	switch cfg.Swarm.Mode {
	case "single", "swarm":
	default:
		return fmt.Errorf("swarm.mode must be single or swarm, got %q", cfg.Swarm.Mode)
	}
	switch cfg.Swarm.Policy {
	case "first_success", "quorum":
	default:
		return fmt.Errorf("swarm.policy must be first_success or quorum, got %q", cfg.Swarm.Policy)
	}
	if cfg.Swarm.MaxFanout < 1 {
		return errors.New("swarm.max_fanout must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
