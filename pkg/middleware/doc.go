// Package middleware provides the HTTP middleware that establishes who is
// calling and in which tenant.
//
// # Middleware Components
//
// RequestContext: request id, client IP and user agent in the context
//
//	router.Use(middleware.RequestContext(logger))
//
// AuthMiddleware: bearer token authentication and tenant scope
//
//	authn := middleware.NewAuthMiddleware(tokens, users,
//		middleware.WithTenantLookup(tenants),
//		middleware.WithAuditor(recorder))
//	protected.Use(authn.Handler)
//
// The middleware validates the token, loads the subject and installs an
// auth.Principal and a tenant.Scope. The optional X-Tenant-ID header must
// match the token's tenant. A system-global subject may send it to act
// inside that tenant; the assumption is written to the audit trail. Without
// it a system-global subject gets a system scope, which carries the
// X-Scope-Reason header as the bypass reason.
//
// RequirePermission: type-level authorization through the policy engine
//
//	auditRouter.Use(middleware.RequirePermission(engine, policy.ActionViewAny, "audit"))
//
// RateLimit: fixed-window limiting, in memory or in Redis
//
//	limiter := middleware.NewRedisRateLimiter(redisClient, middleware.DefaultRateLimitConfig(), "ratelimit:api")
//	router.Use(middleware.RateLimit(limiter, middleware.KeyByPrincipalOrIP, logger))
//
// Both limiters also satisfy auth.FailureLimiter for login failure counting.
//
// Every rejection uses the same generic bodies: {"error":"unauthenticated"},
// {"error":"forbidden"} and {"error":"too many requests"}.
package middleware
