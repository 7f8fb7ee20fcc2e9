// Package tenant enforces tenant isolation at the query level.
//
// A request's tenant travels in its context.Context as a Scope. Repositories
// built with NewRepository read the scope on every call and add the tenant
// filter to the statements they generate, stamp the tenant on inserts and
// refuse writes aimed at another tenant:
//
//	ctx = tenant.ForTenant(ctx, user.TenantID, user.ID)
//	p, err := projects.Get(ctx, id) // ErrNotFound for rows of other tenants
//
// Cross-tenant work requires AsSystem with a reason. Every repository call made
// under a system scope is reported to the configured EventRecorder.
package tenant
