// Package observability provides structured logging, Prometheus metrics, OpenTelemetry tracing,
// health checks and shutdown helpers.
//
// # Structured Logging
//
// Logger wraps logrus and emits JSON by default:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("tenant_id", 7).Warn("cross-tenant write rejected")
//
// Request-scoped loggers travel in the context:
//
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).Info("handled")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.AuthzDecisionsTotal.WithLabelValues("project", "update", "deny").Inc()
//
// # Tracing
//
// InitOTel installs global providers; components obtain spans from Tracer().
package observability
