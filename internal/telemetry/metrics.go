// Package telemetry provides application-level observability for the station backend.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<RADIO_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. It is NOT served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Activity log writes, queries and schema bootstrap attempts
//   - Live activity feed subscribers
//   - Database connection pool gauge (polled every 30 s)
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template and status code.
//
// The path label holds the Gin route template (e.g. /api/v1/categories/:id),
// NOT the raw URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Activity log metrics.
//
// AuditLogWritesTotal is a CounterVec with labels {action, result}. result is
// "success" or "failure". Write failures never surface to the caller, so an alert on
//
//	increase(audit_log_writes_total{result="failure"}[15m]) > 0
//
// is the only signal that events are being dropped.
//
// AuditLogQueryDuration observes each paged read (COUNT + page query together).
//
// AuditSchemaBootstrapAttemptsTotal counts schema initialisation attempts by
// result ("success", "failure", "exhausted").
var (
	AuditLogWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_log_writes_total",
			Help: "Total number of activity log write attempts, by action and result.",
		},
		[]string{"action", "result"},
	)

	AuditLogQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audit_log_query_duration_seconds",
			Help:    "Duration of paged activity log queries.",
			Buckets: prometheus.DefBuckets,
		},
	)

	AuditSchemaBootstrapAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_schema_bootstrap_attempts_total",
			Help: "Total number of activity log schema bootstrap attempts, by result.",
		},
		[]string{"result"},
	)

	AuditShipperErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_shipper_errors_total",
			Help: "Total number of failed deliveries to external audit shippers, by shipper type.",
		},
		[]string{"shipper"},
	)
)

// AuditStreamSubscribers is a Gauge of currently connected live-feed websocket clients.
var AuditStreamSubscribers = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "audit_stream_subscribers",
		Help: "Current number of connected activity feed subscribers.",
	},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool. It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits when ctx is cancelled or the database becomes unreachable.
func StartDBStatsCollector(ctx context.Context, db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}
