// Package config loads application configuration from environment variables.
//
// Every setting has a default except the token signing secret. Server:
//
//	TENANTGUARD_HOST="0.0.0.0"
//	TENANTGUARD_PORT="8080"
//	TENANTGUARD_READ_TIMEOUT="15s"
//	TENANTGUARD_RATE_LIMIT="600"          # requests per window, 0 disables
//	TENANTGUARD_RATE_LIMIT_WINDOW="1m"
//
// Storage:
//
//	TENANTGUARD_DB_DRIVER="postgres"      # postgres or sqlite3
//	TENANTGUARD_DB_URL="postgres://localhost/tenantguard?sslmode=disable"
//	TENANTGUARD_REDIS_URL="redis://localhost:6379"  # optional
//
// Auth:
//
//	TENANTGUARD_SIGNING_SECRET="..."      # at least 32 bytes
//	TENANTGUARD_TOKEN_TTL="60m"
//	TENANTGUARD_REFRESH_TTL="168h"
//	TENANTGUARD_LOCKOUT_ATTEMPTS="5"
//	TENANTGUARD_LOGIN_FAILURE_LIMIT="10"
//
// Audit:
//
//	TENANTGUARD_AUDIT_RETENTION_YEARS="7"
//	TENANTGUARD_AUDIT_CLEANUP_SCHEDULE="0 3 * * *"
//	TENANTGUARD_AUDIT_FAILURE_MODE="continue"        # or fatal
//	TENANTGUARD_AUDIT_FATAL_ACTIONS="deleted,role_assigned"
//	TENANTGUARD_AUDIT_SENSITIVE_PATTERNS="iban,routing_number"
//	TENANTGUARD_AUDIT_PATTERNS_FILE="/etc/tenantguard/patterns.yaml"
//
// Observability:
//
//	TENANTGUARD_LOG_LEVEL="info"          # debug, info, warn, error
//	TENANTGUARD_LOG_FORMAT="json"         # or text
//	TENANTGUARD_OTEL_ENABLED="true"
//	TENANTGUARD_OTEL_ENDPOINT="otel-collector:4317"
//
// Usage:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	logger := cfg.Observability.NewLogger()
package config
