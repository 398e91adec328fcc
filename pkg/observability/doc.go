// Package observability provides structured logging, Prometheus metrics, health
// checks, and OpenTelemetry export for the Helios platform.
//
// # Structured Logging
//
// Logger is a thin wrapper over logrus emitting JSON lines:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("project_id", id).Info("metrics broadcast")
//
// Request-scoped loggers travel in the context:
//
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).Warn("slow query")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//
// Recording helpers (RecordAuthFailure, RecordBroadcast, ...) are nil-safe so
// components can run without metrics in tests.
//
// # Health Checks
//
// HealthChecker reports Postgres and Redis status. Redis backs the optional
// session store, so its failure degrades rather than fails readiness.
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/httputil: Request logging middleware
package observability
