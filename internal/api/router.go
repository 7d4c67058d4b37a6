// Package api wires together all HTTP routes for the radio station backend.
//
// Route grouping:
//   - /health, /ready and /version are public probes.
//   - /api/v1/auth/login is public but has its own, stricter rate limit.
//   - Everything else under /api/v1 requires a bearer token. Category writes need
//     the editor or admin role; the activity log is admin only and never cached.
//
// CORS is applied outside gin by wrapping the engine with NewCORS in cmd/server,
// so preflight requests are answered before any route matching.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/radiowave/station-backend/internal/api/admin"
	"github.com/radiowave/station-backend/internal/audit"
	"github.com/radiowave/station-backend/internal/auth"
	"github.com/radiowave/station-backend/internal/config"
	"github.com/radiowave/station-backend/internal/db/models"
	"github.com/radiowave/station-backend/internal/db/repositories"
	"github.com/radiowave/station-backend/internal/middleware"
)

// Version is the build version, overridden at link time with -ldflags "-X ...".
var Version = "dev"

// Services are the long-lived collaborators the router's handlers share with
// the rest of the process.
type Services struct {
	Recorder  *audit.Recorder
	Bootstrap *audit.Bootstrap
	// Hub feeds the live activity stream; nil disables the stream endpoint
	Hub     *audit.Hub
	Revoker auth.Revoker
	// Redis, when set, backs the rate limiters so instances share budgets
	Redis *redis.Client
}

// BackgroundServices holds references to background resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	rateLimiters []*middleware.MemoryLimiter
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sqlx.DB, svc Services) (*gin.Engine, *BackgroundServices, error) {
	if err := admin.RegisterValidators(); err != nil {
		return nil, nil, fmt.Errorf("failed to register request validators: %w", err)
	}

	router := gin.New()
	bg := &BackgroundServices{}

	userRepo := repositories.NewUserRepository(db)

	// Add middleware
	router.Use(middleware.RecoveryMiddleware(svc.Recorder))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))

	router.GET("/health", healthCheckHandler(db))
	var schema schemaStatus
	if svc.Bootstrap != nil {
		schema = svc.Bootstrap
	}
	router.GET("/ready", readinessHandler(db, schema))
	router.GET("/version", versionHandler())

	newLimiter := func(rl middleware.RateLimitConfig) gin.HandlerFunc {
		if !cfg.Security.RateLimiting.Enabled {
			return func(c *gin.Context) { c.Next() }
		}
		if svc.Redis != nil {
			return middleware.RateLimitMiddleware(middleware.NewRedisLimiter(svc.Redis, rl))
		}
		limiter := middleware.NewMemoryLimiter(rl)
		bg.rateLimiters = append(bg.rateLimiters, limiter)
		return middleware.RateLimitMiddleware(limiter)
	}
	generalLimit := newLimiter(middleware.DefaultRateLimitConfig(
		cfg.Security.RateLimiting.RequestsPerMinute, cfg.Security.RateLimiting.Burst))
	loginLimit := newLimiter(middleware.LoginRateLimitConfig(cfg.Security.RateLimiting.LoginRequestsPerMinute))

	authHandlers := admin.NewAuthHandlers(&cfg.Auth, db, svc.Recorder, svc.Revoker)
	categoryHandlers := admin.NewCategoryHandlers(db, svc.Recorder)
	activityHandlers := admin.NewActivityLogHandlers(&cfg.Audit, db, svc.Recorder, svc.Hub, cfg.Security.CORS.AllowedOrigins)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/auth/login", loginLimit, authHandlers.LoginHandler())

		authenticatedGroup := apiV1.Group("")
		authenticatedGroup.Use(generalLimit)
		authenticatedGroup.Use(middleware.AuthMiddleware(userRepo, svc.Revoker))
		if cfg.Audit.LogHTTPWrites {
			authenticatedGroup.Use(middleware.HTTPAuditMiddleware(svc.Recorder))
		}
		{
			authenticatedGroup.POST("/auth/logout", authHandlers.LogoutHandler())
			authenticatedGroup.GET("/auth/me", authHandlers.MeHandler())

			categoriesGroup := authenticatedGroup.Group("/categories")
			{
				categoriesGroup.GET("", categoryHandlers.ListCategoriesHandler())
				categoriesGroup.GET("/:id", categoryHandlers.GetCategoryHandler())

				writers := middleware.RequireRole(svc.Recorder, models.RoleAdmin, models.RoleEditor)
				categoriesGroup.POST("", writers, categoryHandlers.CreateCategoryHandler())
				categoriesGroup.PUT("/:id", writers, categoryHandlers.UpdateCategoryHandler())
				categoriesGroup.DELETE("/:id", writers, categoryHandlers.DeleteCategoryHandler())
			}

			// Activity log: admin only, never cached
			activityGroup := authenticatedGroup.Group("/admin/activity-logs")
			activityGroup.Use(middleware.NoCacheMiddleware())
			activityGroup.Use(middleware.RequireAdmin(svc.Recorder))
			{
				activityGroup.GET("", activityHandlers.ListActivityLogsHandler())
				activityGroup.GET("/actions", activityHandlers.ListActionsHandler())
				activityGroup.GET("/stream", activityHandlers.StreamActivityLogsHandler())
				activityGroup.GET("/:id", activityHandlers.GetActivityLogHandler())
			}
		}
	}

	return router, bg, nil
}

// pinger is the part of the connection pool the probes need
type pinger interface {
	PingContext(ctx context.Context) error
}

// schemaStatus reports the activity log bootstrap state
type schemaStatus interface {
	Status() string
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler returns the readiness status of the service. Only the database
// gates readiness; the activity log schema state is reported alongside.
func readinessHandler(db pinger, bootstrap schemaStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}
		if bootstrap != nil {
			checks["audit_schema"] = bootstrap.Status()
		}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logRequest(c, time.Since(start), path, query)
	}
}

// logRequest emits one slog record per request; the handler configured in
// telemetry.SetupLogger decides between JSON and text output.
func logRequest(c *gin.Context, latency time.Duration, path, query string) {
	// the stream endpoint accepts its token as a query parameter
	if c.Query("token") != "" {
		query = "token=REDACTED"
	}
	level := slog.LevelInfo
	if c.Writer.Status() >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.LogAttrs(
		c.Request.Context(),
		level,
		"http request",
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", middleware.RequestID(c)),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}

// NewCORS builds the CORS policy from configuration
func NewCORS(cfg *config.Config) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   cfg.Security.CORS.AllowedOrigins,
		AllowedMethods:   cfg.Security.CORS.AllowedMethods,
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           3600,
	})
}
