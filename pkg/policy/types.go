package policy

import (
	"context"
	"errors"

	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

// Actions with special meaning to the engine. viewAny and create are
// type-level: they are checked without an entity.
const (
	ActionViewAny = "viewAny"
	ActionView    = "view"
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
)

// ErrForbidden is the only error callers see for a denied action. Cross-tenant
// denials and missing permissions are indistinguishable.
var ErrForbidden = errors.New("forbidden")

// Subject is the caller a decision is made for. A nil TenantID marks a
// system-global subject.
type Subject struct {
	ID       int64
	TenantID *int64
}

// Owned is implemented by entities that record who created them
type Owned interface {
	OwnerID() int64
}

// PermissionChecker answers permission questions. rbac.Resolver implements it.
type PermissionChecker interface {
	HasPermission(ctx context.Context, subjectID int64, tenantID *int64, code string) bool
}

// Decision is the outcome of an evaluation. Reason is internal and must not
// be sent to clients.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow returns an allowing decision
func Allow(reason string) Decision {
	return Decision{Allowed: true, Reason: reason}
}

// Deny returns a denying decision
func Deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Check is what a Rule sees. The tenant check has already passed.
type Check struct {
	Subject    Subject
	Action     string
	EntityType string
	// Entity is nil for type-level actions
	Entity tenant.Entity
	// TenantID is the tenant permissions are evaluated in
	TenantID *int64

	perms PermissionChecker
}

// HasPermission reports whether the subject holds code in the check's tenant
func (c Check) HasPermission(ctx context.Context, code string) bool {
	if c.perms == nil {
		return false
	}
	return c.perms.HasPermission(ctx, c.Subject.ID, c.TenantID, code)
}

// IsOwner reports whether the entity is owned by the subject
func (c Check) IsOwner() bool {
	owned, ok := c.Entity.(Owned)
	return ok && owned.OwnerID() != 0 && owned.OwnerID() == c.Subject.ID
}

// Rule decides one (entityType, action) pair
type Rule func(ctx context.Context, c Check) Decision

// PermissionCode returns the default permission for an action:
// "<entityType>.<action>", with viewAny mapped to view.
func PermissionCode(entityType, action string) string {
	if action == ActionViewAny {
		action = ActionView
	}
	return entityType + "." + action
}
