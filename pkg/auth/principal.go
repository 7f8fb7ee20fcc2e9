package auth

import (
	"context"

	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
)

// Principal is the authenticated caller of a request
type Principal struct {
	User   *User
	Claims *Claims
}

// ID returns the subject id
func (p *Principal) ID() int64 {
	if p == nil || p.User == nil {
		return 0
	}
	return p.User.ID
}

// TenantID returns the subject's home tenant, nil for system-global subjects
func (p *Principal) TenantID() *int64 {
	if p == nil || p.User == nil {
		return nil
	}
	return p.User.TenantID
}

// IsSystem reports whether the principal has no home tenant
func (p *Principal) IsSystem() bool {
	return p != nil && p.User != nil && p.User.IsSystem()
}

// WithPrincipal stores p in ctx
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	ctx = contextkeys.WithPrincipal(ctx, p)
	if p != nil && p.User != nil {
		ctx = contextkeys.WithUserID(ctx, p.User.ID)
	}
	return ctx
}

// PrincipalFromContext returns the principal installed by the auth middleware
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextkeys.PrincipalKey).(*Principal)
	return p, ok && p != nil && p.User != nil
}
