package tenant

import (
	"context"
	"errors"

	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
)

var (
	// ErrNoTenantContext is returned when a tenant-aware operation runs without a scope
	ErrNoTenantContext = errors.New("no tenant context")
	// ErrTenantMismatch is returned for writes that target another tenant
	ErrTenantMismatch = errors.New("tenant mismatch")
	// ErrTenantRequired is returned when a system scope creates an entity without naming its tenant
	ErrTenantRequired = errors.New("tenant id required")
	// ErrBypassReasonRequired is returned when a system scope carries no reason
	ErrBypassReasonRequired = errors.New("system scope requires a reason")
	// ErrNotFound is returned for rows that don't exist or are outside the caller's tenant
	ErrNotFound = errors.New("not found")
)

// IsDenied reports whether err is one of the scope denials.
// Callers map both to the same generic response.
func IsDenied(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrTenantMismatch)
}

// Scope is the tenant context of a single request.
// A tenant scope has System false and a non-zero TenantID. A system scope
// skips tenant filtering and must carry a Reason.
type Scope struct {
	TenantID  int64
	SubjectID int64
	System    bool
	Reason    string
}

// HasTenant reports whether the scope is bound to a tenant
func (s Scope) HasTenant() bool {
	return s.TenantID != 0
}

// WithScope returns a copy of ctx carrying scope
func WithScope(ctx context.Context, scope Scope) context.Context {
	return contextkeys.WithTenantScope(ctx, scope)
}

// FromContext returns the scope carried by ctx
func FromContext(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(contextkeys.TenantScopeKey).(Scope)
	return scope, ok
}

// ForTenant binds ctx to tenantID on behalf of subjectID
func ForTenant(ctx context.Context, tenantID, subjectID int64) context.Context {
	return WithScope(ctx, Scope{TenantID: tenantID, SubjectID: subjectID})
}

// AsSystem opts ctx out of tenant filtering. Every repository call made with the
// returned context is reported to the configured EventRecorder.
func AsSystem(ctx context.Context, subjectID int64, reason string) context.Context {
	return WithScope(ctx, Scope{SubjectID: subjectID, System: true, Reason: reason})
}

// Require returns the scope from ctx, or an error when it is absent or unusable
func Require(ctx context.Context) (Scope, error) {
	scope, ok := FromContext(ctx)
	if !ok {
		return Scope{}, ErrNoTenantContext
	}
	if scope.System {
		if scope.Reason == "" {
			return Scope{}, ErrBypassReasonRequired
		}
		return scope, nil
	}
	if !scope.HasTenant() {
		return Scope{}, ErrNoTenantContext
	}
	return scope, nil
}
