// Package api is the HTTP surface of tenantguard.
//
// Public routes:
//
//	POST /v1/auth/login
//	GET  /health, /health/live, /health/ready
//	GET  /metrics
//
// Authenticated routes (bearer token, optional X-Tenant-ID):
//
//	POST   /v1/auth/refresh
//	POST   /v1/auth/logout
//	POST   /v1/auth/logout-all
//	GET    /v1/auth/me
//	GET    /v1/projects
//	POST   /v1/projects
//	GET    /v1/projects/{id}
//	PUT    /v1/projects/{id}
//	DELETE /v1/projects/{id}
//	GET    /v1/contracts
//	POST   /v1/contracts
//	GET    /v1/contracts/{id}
//	PUT    /v1/contracts/{id}
//	POST   /v1/contracts/{id}/submit
//	POST   /v1/contracts/{id}/approve
//	POST   /v1/contracts/{id}/reject
//	GET    /v1/roles
//	POST   /v1/users/{id}/roles
//	DELETE /v1/users/{id}/roles/{role}
//	POST   /v1/users/{id}/deactivate
//	GET    /v1/audit/events
//	GET    /v1/audit/export
//	GET    /v1/audit/{entityType}/{entityID}
//
// Every data route resolves the caller's tenant scope in middleware, asks the
// policy engine before touching an entity, and records mutations in the
// audit log. Errors use the generic bodies of package httputil: an entity in
// another tenant is indistinguishable from one that does not exist.
package api
