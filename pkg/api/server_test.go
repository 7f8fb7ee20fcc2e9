package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/entities"
	"github.com/platinummonkey/tenantguard/pkg/middleware"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/policy"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/storage"
	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

const testSecret = "0123456789abcdef0123456789abcdef"

const testPassword = "correct horse battery"

type fixture struct {
	server   *Server
	users    *auth.UserStore
	tenants  *tenant.Store
	tokens   *auth.TokenService
	recorder *audit.Recorder
	repos    *entities.Repositories
	registry *prometheus.Registry

	acme, bolt *tenant.Tenant

	// acme: alice is admin, carol manager, bob member. dave is bolt's admin.
	// root is a system-global super_admin.
	alice, bob, carol, dave, root *auth.User
}

type fixtureOption func(*Config)

func withLimiter(l middleware.Limiter) fixtureOption {
	return func(c *Config) { c.Limiter = l }
}

func withLoginLimiter(l auth.FailureLimiter) fixtureOption {
	return func(c *Config) {
		c.Authenticator = auth.NewAuthenticator(c.Users, c.Tokens,
			auth.WithTenantLookup(c.Tenants),
			auth.WithFailureLimiter(l),
		)
	}
}

func setup(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	ctx := context.Background()
	db := storage.OpenTestDB(t)

	f := &fixture{
		users:    auth.NewUserStore(db, auth.WithHashCost(bcrypt.MinCost)),
		tenants:  tenant.NewStore(db, nil),
		recorder: audit.NewRecorder(audit.NewStore(db)),
		registry: prometheus.NewRegistry(),
	}

	f.acme = &tenant.Tenant{Name: "Acme", Domain: "acme.example"}
	require.NoError(t, f.tenants.Create(ctx, f.acme))
	f.bolt = &tenant.Tenant{Name: "Bolt", Domain: "bolt.example"}
	require.NoError(t, f.tenants.Create(ctx, f.bolt))

	roles := rbac.NewStore(db)
	catalog, err := rbac.DefaultCatalog()
	require.NoError(t, err)
	require.NoError(t, rbac.Seed(ctx, roles, catalog))
	require.NoError(t, rbac.SeedTenant(ctx, roles, catalog, f.acme.ID))
	require.NoError(t, rbac.SeedTenant(ctx, roles, catalog, f.bolt.ID))
	resolver := rbac.NewResolver(roles)

	f.alice = f.createUser(t, resolver, roles, &f.acme.ID, "alice@acme.example", "admin")
	f.bob = f.createUser(t, resolver, roles, &f.acme.ID, "bob@acme.example", "member")
	f.carol = f.createUser(t, resolver, roles, &f.acme.ID, "carol@acme.example", "manager")
	f.dave = f.createUser(t, resolver, roles, &f.bolt.ID, "dave@bolt.example", "admin")
	f.root = f.createUser(t, resolver, roles, nil, "root@tenantguard.example", "super_admin")

	f.tokens, err = auth.NewTokenService(testSecret)
	require.NoError(t, err)

	f.repos, err = entities.NewRepositories(db,
		tenant.WithEventRecorder(audit.NewBypassAuditor(f.recorder, nil)))
	require.NoError(t, err)

	engine := policy.NewEngine(resolver)
	require.NoError(t, entities.RegisterPolicies(engine.Registry()))

	metrics := observability.NewMetrics(f.registry)
	cfg := Config{
		DB:            db,
		Users:         f.users,
		Tenants:       f.tenants,
		Tokens:        f.tokens,
		Authenticator: auth.NewAuthenticator(f.users, f.tokens, auth.WithTenantLookup(f.tenants)),
		Permissions:   resolver,
		Roles:         resolver,
		Engine:        engine,
		Repos:         f.repos,
		Recorder:      f.recorder,
		Metrics:       metrics,
		Registry:      f.registry,
		Version:       "test",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	f.server, err = NewServer(cfg)
	require.NoError(t, err)
	return f
}

func (f *fixture) createUser(t *testing.T, resolver *rbac.Resolver, roles *rbac.Store, tenantID *int64, email, role string) *auth.User {
	t.Helper()
	ctx := context.Background()

	user := &auth.User{TenantID: tenantID, Email: email}
	require.NoError(t, f.users.Create(ctx, user, testPassword))

	r, err := roles.FindRole(ctx, role, tenantID)
	require.NoError(t, err)
	require.NoError(t, resolver.AssignRole(ctx, user.ID, r.ID, nil))
	return user
}

func (f *fixture) token(t *testing.T, user *auth.User) string {
	t.Helper()
	signed, err := f.tokens.IssueToken(user)
	require.NoError(t, err)
	return signed.Token
}

// request is one call against the full server handler
type request struct {
	method  string
	path    string
	token   string
	body    interface{}
	headers map[string]string
}

func (f *fixture) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	r := httptest.NewRequest(req.method, req.path, body)
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, r)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// auditActions returns the recorded actions for an entity, oldest first
func (f *fixture) auditActions(t *testing.T, entityType string, id int64) []string {
	t.Helper()
	ctx := tenant.AsSystem(context.Background(), f.root.ID, "test assertion")
	logs, err := f.recorder.GetAuditTrail(ctx, entityType, strconv.FormatInt(id, 10))
	require.NoError(t, err)

	actions := make([]string, 0, len(logs))
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	return actions
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestServer_Health(t *testing.T) {
	f := setup(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		t.Run(path, func(t *testing.T) {
			rec := f.do(t, request{method: http.MethodGet, path: path})
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), observability.StatusHealthy)
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	f := setup(t)

	f.do(t, request{method: http.MethodGet, path: "/health/live"})
	rec := f.do(t, request{method: http.MethodGet, path: "/metrics"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/health/live"`)
}

func TestServer_UnknownRoute(t *testing.T) {
	f := setup(t)

	rec := f.do(t, request{method: http.MethodGet, path: "/v1/nothing-here", token: f.token(t, f.alice)})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())
}

func TestServer_RequestID(t *testing.T) {
	f := setup(t)

	rec := f.do(t, request{method: http.MethodGet, path: "/health/live"})
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	rec = f.do(t, request{
		method:  http.MethodGet,
		path:    "/health/live",
		headers: map[string]string{middleware.RequestIDHeader: "req-123"},
	})
	assert.Equal(t, "req-123", rec.Header().Get(middleware.RequestIDHeader))
}

func TestServer_RateLimit(t *testing.T) {
	limiter := middleware.NewMemoryRateLimiter(middleware.RateLimitConfig{Limit: 2, Window: time.Minute})
	f := setup(t, withLimiter(limiter))
	token := f.token(t, f.alice)

	for i := 0; i < 2; i++ {
		rec := f.do(t, request{method: http.MethodGet, path: "/v1/auth/me", token: token})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := f.do(t, request{method: http.MethodGet, path: "/v1/auth/me", token: token})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"too many requests"}`, rec.Body.String())

	// the budget is per subject
	rec = f.do(t, request{method: http.MethodGet, path: "/v1/auth/me", token: f.token(t, f.bob)})
	assert.Equal(t, http.StatusOK, rec.Code)
}
