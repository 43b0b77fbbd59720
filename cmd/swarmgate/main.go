package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	sghttp "github.com/Strob0t/SwarmGate/internal/adapter/http"
	"github.com/Strob0t/SwarmGate/internal/adapter/httpwire"
	"github.com/Strob0t/SwarmGate/internal/adapter/inproc"
	"github.com/Strob0t/SwarmGate/internal/adapter/memstore"
	"github.com/Strob0t/SwarmGate/internal/adapter/natskv"
	"github.com/Strob0t/SwarmGate/internal/adapter/natswire"
	sgotel "github.com/Strob0t/SwarmGate/internal/adapter/otel"
	"github.com/Strob0t/SwarmGate/internal/adapter/postgres"
	"github.com/Strob0t/SwarmGate/internal/adapter/ristretto"
	"github.com/Strob0t/SwarmGate/internal/adapter/staticsource"
	"github.com/Strob0t/SwarmGate/internal/adapter/tiered"
	"github.com/Strob0t/SwarmGate/internal/adapter/ws"
	"github.com/Strob0t/SwarmGate/internal/config"
	"github.com/Strob0t/SwarmGate/internal/domain/delegation"
	"github.com/Strob0t/SwarmGate/internal/hook"
	"github.com/Strob0t/SwarmGate/internal/logger"
	"github.com/Strob0t/SwarmGate/internal/port/approvalstore"
	"github.com/Strob0t/SwarmGate/internal/port/cache"
	"github.com/Strob0t/SwarmGate/internal/port/eventstore"
	"github.com/Strob0t/SwarmGate/internal/port/sessionstore"
	"github.com/Strob0t/SwarmGate/internal/port/transport"
	"github.com/Strob0t/SwarmGate/internal/resilience"
	"github.com/Strob0t/SwarmGate/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"swarm_mode", cfg.Swarm.Mode,
		"risk_ceiling", cfg.Swarm.RiskCeiling,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	otelShutdown, err := sgotel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	// --- Stores ---
	var (
		sessionStore  sessionstore.Store
		approvalStore approvalstore.Store
		events        eventstore.Store
	)
	if cfg.Postgres.DSN == "" {
		slog.Info("no postgres dsn configured, using in-memory stores")
		sessionStore = memstore.NewSessionStore()
		approvalStore = memstore.NewApprovalStore()
		events = memstore.NewEventStore()
	} else {
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		slog.Info("postgres connected, migrations applied")

		sessionStore = postgres.NewSessionStore(pool)
		approvalStore = postgres.NewApprovalStore(pool)
		events = postgres.NewEventStore(pool)
	}

	var nconn *natswire.Conn
	if cfg.NATS.URL != "" {
		nconn, err = natswire.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer nconn.Close()
	}

	// Session cache: ristretto in-process, tiered over a shared NATS KV
	// bucket when a cluster transport is available.
	var sessionCache cache.Cache
	if cfg.Session.CacheMaxBytes > 0 {
		rc, err := ristretto.New(cfg.Session.CacheMaxBytes)
		if err != nil {
			return fmt.Errorf("session cache: %w", err)
		}
		defer rc.Close()
		sessionCache = rc

		if nconn != nil {
			kv, err := nconn.KeyValue(ctx, "swarmgate-sessions", cfg.Session.TTL)
			if err != nil {
				return fmt.Errorf("session kv bucket: %w", err)
			}
			sessionCache = tiered.New(rc, natskv.New(kv), time.Minute)
		}
	}

	// --- Services ---
	hub := ws.NewHub()

	metrics, err := sgotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	gate := service.NewApprovalGate(cfg.Approval, approvalStore, events,
		ws.NewApprover(hub), sgotel.NewApprover(metrics))
	gate.SetBroadcaster(hub)

	sessions := service.NewSessionManager(cfg.Session, sessionStore, sessionCache, events)
	sessions.SetSentinel(gate)
	go sessions.RunSweeper(ctx)

	registry := service.NewRegistry()
	if err := registry.LoadFrom(ctx, staticsource.New(cfg.Agents)); err != nil {
		return fmt.Errorf("static agents: %w", err)
	}

	// --- Wire transports ---
	bindings := []transport.Transport{
		inproc.New(),
		httpwire.New("http"),
		httpwire.New("https"),
	}

	if nconn != nil {
		bindings = append(bindings, nconn)

		unsubscribe, err := nconn.SubscribeAnnouncements(ctx, cfg.NATS.AnnounceSubject, registry)
		if err != nil {
			return fmt.Errorf("agent announcements: %w", err)
		}
		defer unsubscribe()
	}

	breakers := resilience.NewBreakerSet(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	wire := service.NewProtocolClient(cfg.Protocol, breakers, bindings...)

	// --- Hook pipeline ---
	pipeline := hook.NewPipeline(
		sgotel.TracingHook{},
		sgotel.NewMetricsHook(metrics),
		hook.LoggingHook{},
		hook.GuardrailHook{
			MaxPayloadBytes:   cfg.Guardrail.MaxPayloadBytes,
			DeniedTaskTypes:   taskTypes(cfg.Guardrail.DeniedTaskTypes),
			HighRiskTaskTypes: taskTypes(cfg.Guardrail.HighRiskTaskTypes),
		},
		hook.AuditHook{Events: events},
	)

	orch, err := service.NewOrchestrator(cfg.Swarm, registry, wire, sessions, gate, pipeline, events, hub)
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}

	// --- HTTP ---
	handlers := &sghttp.Handlers{
		Orchestrator: orch,
		Registry:     registry,
		Sessions:     sessions,
		Approvals:    gate,
		Events:       events,
		MaxBodyBytes: 4 << 20,
	}

	r := chi.NewRouter()
	r.Use(sghttp.CORS(cfg.Server.CORSOrigin))
	r.Use(sghttp.SecurityHeaders)
	r.Use(sghttp.RequestID)
	r.Use(sghttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(sgotel.HTTPMiddleware(cfg.Logging.Service))

	r.Get("/health", healthHandler(cfg, hub))
	r.Get("/ws", hub.HandleWS)
	sghttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Minute, // delegations may wait on a human decision
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func taskTypes(values []string) []delegation.TaskType {
	out := make([]delegation.TaskType, 0, len(values))
	for _, v := range values {
		out = append(out, delegation.TaskType(v))
	}
	return out
}

// healthHandler reports service liveness and connected dashboard count.
func healthHandler(cfg *config.Config, hub *ws.Hub) http.HandlerFunc {
	type healthStatus struct {
		Status      string `json:"status"`
		Mode        string `json:"mode"`
		Connections int    `json:"ws_connections"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{
			Status:      "ok",
			Mode:        cfg.Swarm.Mode,
			Connections: hub.ConnectionCount(),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
