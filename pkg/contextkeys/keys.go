// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// Request-scoped identity and tenant state travels through context.Context only;
// there is no process-wide "current tenant".
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/tenantguard/pkg/contextkeys"
//	ctx = contextkeys.WithPrincipal(ctx, principal)
//	principal, _ := ctx.Value(contextkeys.PrincipalKey).(*auth.Principal)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains *auth.Principal
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: All protected API endpoints, policy checks
	// Type: *auth.Principal
	PrincipalKey Key = "principal"

	// TenantScopeKey contains tenant.Scope
	// Set by: middleware.AuthMiddleware, tenant.ForTenant, tenant.AsSystem
	// Required by: tenant.Repository, audit trail queries
	// Type: tenant.Scope
	TenantScopeKey Key = "tenant_scope"

	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestContext
	// Used by: Logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated subject ID
	// Set by: Auth middleware after token validation
	// Used by: Logger, audit attribution
	// Type: int64
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: Observability middleware
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// ClientIPKey contains the caller IP address
	// Set by: middleware.RequestContext
	// Used by: audit attribution, login rate limiting
	// Type: string
	ClientIPKey Key = "client_ip"

	// UserAgentKey contains the caller User-Agent header
	// Set by: middleware.RequestContext
	// Used by: audit attribution
	// Type: string
	UserAgentKey Key = "user_agent"
)

// WithPrincipal adds the authenticated principal to the context
func WithPrincipal(ctx context.Context, principal interface{}) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// WithTenantScope adds the tenant scope to the context
func WithTenantScope(ctx context.Context, scope interface{}) context.Context {
	return context.WithValue(ctx, TenantScopeKey, scope)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds the subject ID to the context
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithClientInfo adds the caller IP and user agent to the context
func WithClientInfo(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ClientIPKey, ip)
	return context.WithValue(ctx, UserAgentKey, userAgent)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves the subject ID from context
func GetUserID(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	return userID, ok && userID != 0
}

// GetClientIP retrieves the caller IP from context
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ClientIPKey).(string); ok {
		return ip
	}
	return ""
}

// GetUserAgent retrieves the caller user agent from context
func GetUserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(UserAgentKey).(string); ok {
		return ua
	}
	return ""
}
