// @title           Radio Station Backend API
// @version         1.0.0
// @description     Station staff API: authentication, news and podcast categories, and the administrator activity log.
// @basePath        /
// @schemes         http https
// @securityDefinitions.apiKey  Bearer
// @in                          header
// @name                         Authorization
// @description                  "JWT token: 'Bearer {token}'"
//
// @tag.name         System
// @tag.description  Health, readiness and version endpoints.
//
// @tag.name         Observability
// @tag.description  Prometheus metrics are served on a dedicated side-channel port (default: 9090), configured with RADIO_TELEMETRY_METRICS_PROMETHEUS_PORT. The endpoint path is always GET /metrics and is not served by the Gin router.

// Package main is the entry point for the station backend binary.
// It dispatches four subcommands (serve, migrate, audit-schema and version) via a
// switch on os.Args. The serve command runs migrations on startup and then
// bootstraps the activity log schema in the background.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/radiowave/station-backend/internal/api"
	"github.com/radiowave/station-backend/internal/audit"
	"github.com/radiowave/station-backend/internal/auth"
	"github.com/radiowave/station-backend/internal/config"
	"github.com/radiowave/station-backend/internal/db"
	"github.com/radiowave/station-backend/internal/db/models"
	"github.com/radiowave/station-backend/internal/db/repositories"
	"github.com/radiowave/station-backend/internal/safego"
	"github.com/radiowave/station-backend/internal/telemetry"
)

// systemStartWait bounds how long the system_start record waits for the
// activity log bootstrap
const systemStartWait = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if command == "version" {
		fmt.Printf("Radio Station Backend %s\n", api.Version)
		return nil
	}

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)
	telemetry.WithService(cfg.Telemetry.ServiceName)

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "audit-schema":
		return ensureAuditSchema(cfg)
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, audit-schema, version", command)
	}
}

func serve(cfg *config.Config) error {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Validate JWT secret configuration (fails in production if not set)
	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("connecting to database",
		"host", cfg.Database.Host, "port", cfg.Database.Port,
		"name", cfg.Database.Name, "ssl_mode", cfg.Database.SSLMode)
	database, err := db.Connect(ctx, cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if cfg.Telemetry.Enabled {
		telemetry.StartDBStatsCollector(ctx, database.DB)
	}

	// The activity log schema references users, so its bootstrap waits on this
	// barrier until the ordered migrations have run.
	migrated := make(chan struct{})
	bootstrap := audit.NewBootstrap(audit.NewSchemaManager(database), migrated, cfg.Audit.Bootstrap)
	bootstrap.Start(ctx)

	slog.Info("running database migrations")
	if err := db.RunMigrations(database.DB, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if version, dirty, err := db.GetMigrationVersion(database.DB); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database migrations completed", "version", version, "dirty", dirty)
	}
	close(migrated)

	if err := seedAdmin(ctx, repositories.NewUserRepository(database), &cfg.Auth); err != nil {
		slog.Warn("admin seeding failed", "error", err)
	}

	// Activity log fan-out: live feed and external shippers
	recorder := audit.NewRecorder(repositories.NewAuditRepository(database), &cfg.Audit)
	var hub *audit.Hub
	if cfg.Audit.Stream.Enabled {
		hub = audit.NewHub(cfg.Audit.Stream.BufferSize)
		recorder.WithHub(hub)
		defer hub.Close()
	}
	shippers, err := audit.NewMultiShipper(cfg.Audit.Shippers)
	if err != nil {
		return fmt.Errorf("failed to configure audit shippers: %w", err)
	}
	if shippers.Len() > 0 {
		recorder.WithShipper(shippers)
		slog.Info("audit shippers configured", "count", shippers.Len())
	}
	defer func() {
		if err := shippers.Close(); err != nil {
			slog.Error("failed to close audit shippers", "error", err)
		}
	}()

	redisClient, revoker := newRevoker(ctx, &cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}

	if metricsEnabled(&cfg.Telemetry) {
		startMetricsServer(cfg.Telemetry.Metrics.PrometheusPort)
	}
	cfg.Watch(telemetry.SetLogLevel)

	router, bgServices, err := api.NewRouter(cfg, database, api.Services{
		Recorder:  recorder,
		Bootstrap: bootstrap,
		Hub:       hub,
		Revoker:   revoker,
		Redis:     redisClient,
	})
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      api.NewCORS(cfg).Handler(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	safego.Go(func() {
		slog.Info("starting server", "addr", cfg.Server.GetAddress(), "tls", cfg.Security.TLS.Enabled)
		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	})

	// On a first boot the activity log table only exists once the bootstrap is done
	safego.Go(func() {
		recordWhenReady(ctx, bootstrap.Done(), systemStartWait, func() {
			recorder.Record(ctx, audit.Entry{
				Action:   models.ActionSystemStart,
				Metadata: map[string]any{"version": api.Version, "address": cfg.Server.GetAddress()},
			})
		})
	})

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("failed to start server: %w", err)
	}

	slog.Info("shutting down server")

	// Graceful shutdown with timeout. ctx is already cancelled at this point.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	bgServices.Shutdown()

	recorder.Record(shutdownCtx, audit.Entry{
		Action:   models.ActionSystemStop,
		Metadata: map[string]any{"version": api.Version},
	})

	slog.Info("server stopped gracefully")
	return nil
}

// recordWhenReady calls record once done is closed or timeout has elapsed,
// whichever comes first. Nothing is recorded when ctx is cancelled before that.
func recordWhenReady(ctx context.Context, done <-chan struct{}, timeout time.Duration, record func()) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		slog.Warn("activity log bootstrap still running, recording startup anyway", "waited", timeout)
	case <-ctx.Done():
		return
	}
	record()
}

// metricsEnabled reports whether the Prometheus side-channel should be served.
// telemetry.enabled switches off all metrics export at once.
func metricsEnabled(cfg *config.TelemetryConfig) bool {
	return cfg.Enabled && cfg.Metrics.Enabled
}

// newRevoker returns a Redis backed revoker when Redis is configured and reachable,
// otherwise an in-process one. The client is nil in the fallback case.
func newRevoker(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, auth.Revoker) {
	if !cfg.Enabled {
		return nil, auth.NewMemoryRevoker()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis unreachable, falling back to in-memory revocation and rate limiting",
			"addr", cfg.Addr, "error", err)
		client.Close()
		return nil, auth.NewMemoryRevoker()
	}
	slog.Info("connected to redis", "addr", cfg.Addr)
	return client, auth.NewRedisRevoker(client)
}

// startMetricsServer serves Prometheus metrics on a dedicated port so the scrape
// path is not reachable through the public API listener.
func startMetricsServer(port int) {
	addr := fmt.Sprintf(":%d", port)
	safego.Go(func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		slog.Info("starting Prometheus metrics server", "addr", addr)
		srv := &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	})
}

func connect(cfg *config.Config) (*sqlx.DB, error) {
	database, err := db.Connect(context.Background(), cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return database, nil
}

func runMigrations(cfg *config.Config, direction string) error {
	database, err := connect(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	slog.Info("running migrations", "direction", direction)
	if err := db.RunMigrations(database.DB, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := db.GetMigrationVersion(database.DB)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	slog.Info("migration completed", "version", version, "dirty", dirty)
	return nil
}

// ensureAuditSchema runs the activity log schema initialisation once in the
// foreground, for operators who want to apply it outside of serve.
func ensureAuditSchema(cfg *config.Config) error {
	database, err := connect(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	schema := audit.NewSchemaManager(database)
	if err := schema.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure activity log schema: %w", err)
	}
	version, err := schema.ConstraintVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read action constraint version: %w", err)
	}
	fmt.Printf("activity log schema ready (action constraint version %d)\n", version)
	return nil
}
