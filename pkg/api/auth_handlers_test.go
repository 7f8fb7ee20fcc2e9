package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/middleware"
	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

func (f *fixture) login(t *testing.T, email, password string) *httptest.ResponseRecorder {
	t.Helper()
	return f.do(t, request{
		method: http.MethodPost,
		path:   "/v1/auth/login",
		body:   LoginRequest{Email: email, Password: password},
	})
}

func (f *fixture) searchAudit(t *testing.T, action string) []*audit.AuditLog {
	t.Helper()
	ctx := tenant.AsSystem(context.Background(), f.root.ID, "test assertion")
	logs, err := f.recorder.Search(ctx, audit.SearchFilter{Actions: []string{action}})
	require.NoError(t, err)
	return logs
}

func TestLogin(t *testing.T) {
	f := setup(t)

	rec := f.login(t, "Alice@Acme.example ", testPassword)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[map[string]interface{}](t, rec)
	assert.NotEmpty(t, resp["token"])
	assert.Equal(t, "Bearer", resp["token_type"])
	user := resp["user"].(map[string]interface{})
	assert.Equal(t, "alice@acme.example", user["email"])
	assert.NotContains(t, rec.Body.String(), "password")

	logs := f.searchAudit(t, audit.ActionLogin)
	require.Len(t, logs, 1)
	assert.Equal(t, f.alice.ID, *logs[0].UserID)
	assert.Equal(t, f.acme.ID, *logs[0].TenantID)

	// the issued token works
	me := f.do(t, request{method: http.MethodGet, path: "/v1/auth/me", token: resp["token"].(string)})
	assert.Equal(t, http.StatusOK, me.Code)
}

func TestLogin_FailuresAreUniform(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "alice@acme.example", "nope"},
		{"unknown email", "nobody@acme.example", testPassword},
		{"empty password", "alice@acme.example", ""},
		{"empty email", "", testPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.login(t, tt.email, tt.password)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"error":"authentication failed"}`, rec.Body.String())
		})
	}

	logs := f.searchAudit(t, audit.ActionLoginFailed)
	require.Len(t, logs, len(tests))
	var ids []string
	for _, l := range logs {
		ids = append(ids, l.EntityID)
	}
	assert.Contains(t, ids, "*", "a blank identity is still recorded")
}

func TestLogin_DisabledTenant(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.tenants.Disable(context.Background(), f.acme.ID))

	rec := f.login(t, "alice@acme.example", testPassword)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"authentication failed"}`, rec.Body.String())
}

func TestLogin_RateLimited(t *testing.T) {
	limiter := middleware.NewMemoryRateLimiter(middleware.RateLimitConfig{Limit: 2, Window: time.Minute})
	f := setup(t, withLoginLimiter(limiter))

	for i := 0; i < 2; i++ {
		rec := f.login(t, "bob@acme.example", "wrong")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	// even the right password is refused until the window passes
	rec := f.login(t, "bob@acme.example", testPassword)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"too many requests"}`, rec.Body.String())
}

func TestLogin_MalformedBody(t *testing.T) {
	f := setup(t)

	rec := f.do(t, request{
		method: http.MethodPost,
		path:   "/v1/auth/login",
		body:   map[string]string{"email": "alice@acme.example", "tenant_id": "2"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMe(t *testing.T) {
	f := setup(t)

	rec := f.do(t, request{method: http.MethodGet, path: "/v1/auth/me", token: f.token(t, f.bob)})
	require.Equal(t, http.StatusOK, rec.Code)

	me := decode[MeResponse](t, rec)
	assert.Equal(t, f.bob.ID, me.User.ID)
	require.NotNil(t, me.TenantID)
	assert.Equal(t, f.acme.ID, *me.TenantID)
	assert.False(t, me.System)
	assert.Contains(t, me.Permissions, "project.view")
	assert.NotContains(t, me.Permissions, "project.delete")
}

func TestMe_SystemSubjectAssumingTenant(t *testing.T) {
	f := setup(t)

	rec := f.do(t, request{
		method:  http.MethodGet,
		path:    "/v1/auth/me",
		token:   f.token(t, f.root),
		headers: map[string]string{middleware.TenantHeader: strconv.FormatInt(f.acme.ID, 10)},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	me := decode[MeResponse](t, rec)
	require.NotNil(t, me.TenantID)
	assert.Equal(t, f.acme.ID, *me.TenantID)
	assert.Contains(t, me.Permissions, "contract.approve")
	assert.Len(t, f.searchAudit(t, audit.ActionTenantAssumed), 1)
}

func TestMe_Unauthenticated(t *testing.T) {
	f := setup(t)

	rec := f.do(t, request{method: http.MethodGet, path: "/v1/auth/me"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthenticated"}`, rec.Body.String())
}

func TestRefresh(t *testing.T) {
	f := setup(t)
	original := f.token(t, f.alice)

	rec := f.do(t, request{method: http.MethodPost, path: "/v1/auth/refresh", token: original})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[map[string]interface{}](t, rec)
	refreshed := resp["token"].(string)
	assert.NotEqual(t, original, refreshed)

	// both stay valid until they expire
	for _, token := range []string{original, refreshed} {
		me := f.do(t, request{method: http.MethodGet, path: "/v1/auth/me", token: token})
		assert.Equal(t, http.StatusOK, me.Code)
	}
	assert.Len(t, f.searchAudit(t, audit.ActionTokenRefreshed), 1)
}

func TestLogout(t *testing.T) {
	f := setup(t)
	token := f.token(t, f.alice)

	rec := f.do(t, request{method: http.MethodPost, path: "/v1/auth/logout", token: token})
	require.Equal(t, http.StatusNoContent, rec.Code)

	for _, path := range []string{"/v1/auth/me", "/v1/auth/refresh"} {
		method := http.MethodGet
		if path == "/v1/auth/refresh" {
			method = http.MethodPost
		}
		rec = f.do(t, request{method: method, path: path, token: token})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	assert.Len(t, f.searchAudit(t, audit.ActionLogout), 1)
}

func TestLogoutAll(t *testing.T) {
	f := setup(t)
	first := f.token(t, f.alice)
	second := f.token(t, f.alice)
	other := f.token(t, f.bob)

	rec := f.do(t, request{method: http.MethodPost, path: "/v1/auth/logout-all", token: first})
	require.Equal(t, http.StatusNoContent, rec.Code)

	for _, token := range []string{first, second} {
		rec = f.do(t, request{method: http.MethodGet, path: "/v1/auth/me", token: token})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec = f.do(t, request{method: http.MethodGet, path: "/v1/auth/me", token: other})
	assert.Equal(t, http.StatusOK, rec.Code)

	// logging straight back in, usually within the same second, yields a working token
	rec = f.login(t, "alice@acme.example", testPassword)
	require.Equal(t, http.StatusOK, rec.Code)
	fresh := decode[map[string]interface{}](t, rec)["token"].(string)
	rec = f.do(t, request{method: http.MethodGet, path: "/v1/auth/me", token: fresh})
	assert.Equal(t, http.StatusOK, rec.Code)

	logs := f.searchAudit(t, audit.ActionSessionsEnded)
	require.Len(t, logs, 1)
	assert.Equal(t, strconv.FormatInt(f.alice.ID, 10), logs[0].EntityID)
}
