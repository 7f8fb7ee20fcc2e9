package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/policy"
	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

// Request headers read by AuthMiddleware
const (
	TenantHeader      = "X-Tenant-ID"
	ScopeReasonHeader = "X-Scope-Reason"
)

// TokenValidator validates bearer tokens
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*auth.Claims, error)
}

// UserLoader loads the subject named by a token
type UserLoader interface {
	GetByID(ctx context.Context, id int64) (*auth.User, error)
}

// Auditor records security events
type Auditor interface {
	LogAction(ctx context.Context, entry audit.Entry) (*audit.AuditLog, error)
}

// AuthOption configures an AuthMiddleware
type AuthOption func(*AuthMiddleware)

// WithTenantLookup rejects tokens of subjects whose tenant is disabled
func WithTenantLookup(tenants auth.TenantLookup) AuthOption {
	return func(m *AuthMiddleware) { m.tenants = tenants }
}

// WithAuditor records tenant assumptions and header mismatches
func WithAuditor(auditor Auditor) AuthOption {
	return func(m *AuthMiddleware) { m.auditor = auditor }
}

// WithLogger sets the logger
func WithLogger(logger *observability.Logger) AuthOption {
	return func(m *AuthMiddleware) { m.logger = logger }
}

// WithMetrics counts tenant header violations
func WithMetrics(metrics *observability.Metrics) AuthOption {
	return func(m *AuthMiddleware) { m.metrics = metrics }
}

// AuthMiddleware authenticates bearer tokens and installs the principal and
// tenant scope for the rest of the request
type AuthMiddleware struct {
	tokens  TokenValidator
	users   UserLoader
	tenants auth.TenantLookup
	auditor Auditor
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokens TokenValidator, users UserLoader, opts ...AuthOption) *AuthMiddleware {
	m := &AuthMiddleware{tokens: tokens, users: users}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = observability.OrNop(m.logger)
	return m
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, ok := BearerToken(r)
		if !ok {
			unauthenticated(w)
			return
		}

		principal, err := m.authenticate(ctx, token)
		if err != nil {
			m.logger.WithError(err).WithField("request_id", contextkeys.GetRequestID(ctx)).Info("request authentication failed")
			unauthenticated(w)
			return
		}
		ctx = auth.WithPrincipal(ctx, principal)

		scope, err := m.scope(ctx, principal, r)
		if err != nil {
			forbidden(w)
			return
		}
		ctx = tenant.WithScope(ctx, scope)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) authenticate(ctx context.Context, token string) (*auth.Principal, error) {
	claims, err := m.tokens.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	subjectID, err := claims.SubjectID()
	if err != nil {
		return nil, err
	}

	user, err := m.users.GetByID(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, errors.New("subject is inactive")
	}
	// a token is bound to the tenant it was issued for
	if !sameTenant(claims.TenantID, user.TenantID) {
		return nil, errors.New("token tenant does not match subject")
	}

	if user.TenantID != nil && m.tenants != nil {
		t, err := m.tenants.Get(ctx, *user.TenantID)
		if err != nil {
			return nil, err
		}
		if !t.IsActive() {
			return nil, errors.New("tenant is disabled")
		}
	}
	return &auth.Principal{User: user, Claims: claims}, nil
}

func (m *AuthMiddleware) scope(ctx context.Context, p *auth.Principal, r *http.Request) (tenant.Scope, error) {
	header := strings.TrimSpace(r.Header.Get(TenantHeader))
	logger := m.logger.WithFields(map[string]interface{}{
		"subject_id":    p.ID(),
		"tenant_header": header,
	})

	var requested int64
	if header != "" {
		id, err := strconv.ParseInt(header, 10, 64)
		if err != nil || id <= 0 {
			logger.Info("malformed tenant header")
			return tenant.Scope{}, errors.New("malformed tenant header")
		}
		requested = id
	}

	if !p.IsSystem() {
		home := *p.TenantID()
		if requested != 0 && requested != home {
			m.mismatch(ctx, p, requested)
			return tenant.Scope{}, tenant.ErrTenantMismatch
		}
		return tenant.Scope{TenantID: home, SubjectID: p.ID()}, nil
	}

	if requested == 0 {
		return tenant.Scope{
			SubjectID: p.ID(),
			System:    true,
			Reason:    strings.TrimSpace(r.Header.Get(ScopeReasonHeader)),
		}, nil
	}

	if m.tenants != nil {
		t, err := m.tenants.Get(ctx, requested)
		if err != nil || !t.IsActive() {
			logger.Info("system subject requested an unknown or disabled tenant")
			return tenant.Scope{}, tenant.ErrNotFound
		}
	}
	m.assumed(ctx, p, requested, r.Header.Get(ScopeReasonHeader))
	return tenant.Scope{TenantID: requested, SubjectID: p.ID()}, nil
}

func (m *AuthMiddleware) mismatch(ctx context.Context, p *auth.Principal, requested int64) {
	m.logger.WithFields(map[string]interface{}{
		"subject_id":       p.ID(),
		"tenant_id":        *p.TenantID(),
		"requested_tenant": requested,
	}).Warn("tenant header does not match token")
	if m.metrics != nil {
		m.metrics.TenantViolations.WithLabelValues("request", "tenant_header").Inc()
	}
	if m.auditor == nil {
		return
	}
	home := *p.TenantID()
	m.record(ctx, audit.Entry{
		TenantID:   &home,
		Action:     audit.ActionTenantMismatch,
		EntityType: "tenant",
		EntityID:   strconv.FormatInt(requested, 10),
		NewData:    map[string]any{"operation": "request", "requested_tenant_id": requested},
	})
}

func (m *AuthMiddleware) assumed(ctx context.Context, p *auth.Principal, tenantID int64, reason string) {
	m.logger.WithFields(map[string]interface{}{
		"subject_id": p.ID(),
		"tenant_id":  tenantID,
	}).Info("system subject assumed tenant")
	if m.auditor == nil {
		return
	}
	data := map[string]any{"operation": "assume"}
	if reason = strings.TrimSpace(reason); reason != "" {
		data["reason"] = reason
	}
	m.record(ctx, audit.Entry{
		TenantID:   &tenantID,
		Action:     audit.ActionTenantAssumed,
		EntityType: "tenant",
		EntityID:   strconv.FormatInt(tenantID, 10),
		NewData:    data,
	})
}

func (m *AuthMiddleware) record(ctx context.Context, entry audit.Entry) {
	if _, err := m.auditor.LogAction(ctx, entry); err != nil {
		m.logger.WithError(err).WithField("action", entry.Action).Error("failed to audit request scope event")
	}
}

// SubjectFromContext returns the policy subject of the request. Its tenant is
// the scope's tenant, which differs from the home tenant when a system
// subject assumed one.
func SubjectFromContext(ctx context.Context) *policy.Subject {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return nil
	}
	subject := &policy.Subject{ID: p.ID(), TenantID: p.TenantID()}
	if scope, ok := tenant.FromContext(ctx); ok && scope.HasTenant() {
		id := scope.TenantID
		subject.TenantID = &id
	}
	return subject
}

// BearerToken extracts the token of a "Bearer" Authorization header
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func sameTenant(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func unauthenticated(w http.ResponseWriter) {
	httputil.WriteUnauthorized(w, httputil.MsgUnauthenticated)
}

func forbidden(w http.ResponseWriter) {
	httputil.WriteForbidden(w, httputil.MsgForbidden)
}
