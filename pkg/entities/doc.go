// Package entities holds the tenant-aware domain types: projects, tasks,
// documents, contracts and templates.
//
// Each type implements tenant.Entity, so it is read and written through a
// tenant.Repository, and policy.Owned, so ownership rules apply to it.
// RegisterPolicies installs the per-type rules that differ from the default
// "<type>.<action>" permission check.
package entities
