// Package rbac resolves a subject's effective permissions from its roles.
//
// # Model
//
// Permissions are atomic capabilities named by a module.action code such as
// "task.create" or "contract.approve". Roles bundle permissions and have one
// of two scopes:
//
//	system - applies in every tenant (super_admin, auditor)
//	tenant - applies only inside the tenant the role belongs to
//
// A subject's effective set inside tenant T is the union of the permissions of
// all its system roles and all its tenant roles bound to T. Roles of other
// tenants never contribute, even if assigned by mistake.
//
// # Usage
//
//	resolver := rbac.NewResolver(rbac.NewStore(db), rbac.WithLogger(logger))
//	if resolver.HasPermission(ctx, user.ID, user.TenantID, "project.update") {
//		...
//	}
//
// HasPermission never returns an error: absent subjects, malformed codes and
// storage failures all answer false.
//
// # Caching
//
// Effective sets are cached in an expirable LRU. Assignment changes made
// through the Resolver invalidate the affected subject; grant changes purge
// the cache. Changes written directly through the Store become visible after
// the cache TTL.
//
// # Seeding
//
// The permission catalog and built-in roles ship as an embedded YAML file.
// Seed writes the catalog and system roles, SeedTenant the per-tenant roles.
// Both are idempotent.
package rbac
