// Package observability provides structured logging, Prometheus metrics,
// health checks and graceful shutdown.
//
// # Structured Logging
//
// Logger wraps logrus with a JSON formatter:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("user_id", id).Info("login succeeded")
//
// Request-scoped loggers pick up request and user ids from the context:
//
//	observability.FromContext(r.Context()).Warn("rate limit store unavailable")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//
// HTTP metrics are labelled by mux route template, never by raw path.
//
// # Health Checks
//
// Every dependency probe races a timer; a probe that outlives its budget
// counts as unhealthy:
//
//	checker := observability.NewHealthChecker(db, redisClient).WithProbeTimeout(2 * time.Second)
//	observability.RegisterHealthRoutes(healthMux, checker)
//
// Postgres failures make the service unhealthy. Redis failures only degrade
// it: Redis-backed rate limits fail open.
package observability
