package middleware

import (
	"context"
	"net/http"

	"github.com/platinummonkey/tenantguard/pkg/policy"
	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

// Authorizer decides type-level actions
type Authorizer interface {
	CanPerform(ctx context.Context, subject *policy.Subject, action, entityType string, entity tenant.Entity) bool
}

// RequirePermission rejects requests whose subject may not perform action on
// entityType as a whole. It must run after AuthMiddleware.
func RequirePermission(authz Authorizer, action, entityType string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := SubjectFromContext(r.Context())
			if subject == nil {
				unauthenticated(w)
				return
			}
			if !authz.CanPerform(r.Context(), subject, action, entityType, nil) {
				forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
