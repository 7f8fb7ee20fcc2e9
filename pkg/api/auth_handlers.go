package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/middleware"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

const entityUser = "user"

// LoginRequest is the body of POST /v1/auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned by login and refresh
type TokenResponse struct {
	*auth.SignedToken
	User *auth.User `json:"user,omitempty"`
}

// MeResponse describes the caller of GET /v1/auth/me
type MeResponse struct {
	User        *auth.User `json:"user"`
	TenantID    *int64     `json:"tenant_id,omitempty"`
	System      bool       `json:"system"`
	Permissions []string   `json:"permissions,omitempty"`
}

// AuthHandlers handles session requests
type AuthHandlers struct {
	authn    *auth.Authenticator
	tokens   *auth.TokenService
	recorder *audit.Recorder
	perms    PermissionLister
}

// NewAuthHandlers creates a new auth handlers instance. perms may be nil, in
// which case /me omits permissions.
func NewAuthHandlers(authn *auth.Authenticator, tokens *auth.TokenService, recorder *audit.Recorder, perms PermissionLister) *AuthHandlers {
	return &AuthHandlers{
		authn:    authn,
		tokens:   tokens,
		recorder: recorder,
		perms:    perms,
	}
}

// RegisterPublicRoutes registers the routes that take no bearer token
func (h *AuthHandlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
}

// RegisterRoutes registers the authenticated session routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/refresh", h.refresh).Methods(http.MethodPost)
	router.HandleFunc("/auth/logout", h.logout).Methods(http.MethodPost)
	router.HandleFunc("/auth/logout-all", h.logoutAll).Methods(http.MethodPost)
	router.HandleFunc("/auth/me", h.me).Methods(http.MethodGet)
}

// login handles POST /v1/auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	ctx := r.Context()

	user, token, err := h.authn.Login(ctx, auth.Credentials{
		Email:    req.Email,
		Password: req.Password,
		IP:       middleware.ClientIP(r),
	})
	if err != nil {
		h.loginFailed(w, r, req.Email, err)
		return
	}

	h.record(r, audit.Entry{
		ActorID:    &user.ID,
		TenantID:   user.TenantID,
		Action:     audit.ActionLogin,
		EntityType: entityUser,
		EntityID:   strconv.FormatInt(user.ID, 10),
	})
	httputil.WriteSuccess(w, TokenResponse{SignedToken: token, User: user})
}

func (h *AuthHandlers) loginFailed(w http.ResponseWriter, r *http.Request, email string, err error) {
	switch {
	case errors.Is(err, auth.ErrRateLimited):
		httputil.WriteTooManyRequests(w, httputil.MsgTooManyRequests)
	case auth.IsAuthFailure(err):
		httputil.WriteUnauthorized(w, httputil.MsgAuthFailed)
	default:
		observability.FromContext(r.Context()).WithError(err).Error("login failed")
		httputil.WriteInternalError(w)
		return
	}

	identity := auth.NormalizeEmail(email)
	if identity == "" {
		identity = "*"
	}
	h.record(r, audit.Entry{
		Action:     audit.ActionLoginFailed,
		EntityType: entityUser,
		EntityID:   identity,
	})
}

// refresh handles POST /v1/auth/refresh
func (h *AuthHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	raw, _ := middleware.BearerToken(r)
	principal, _ := auth.PrincipalFromContext(r.Context())

	token, err := h.tokens.RefreshToken(r.Context(), raw)
	if errors.Is(err, auth.ErrUnauthenticated) {
		httputil.WriteUnauthorized(w, httputil.MsgUnauthenticated)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.record(r, audit.Entry{
		Action:     audit.ActionTokenRefreshed,
		EntityType: entityUser,
		EntityID:   strconv.FormatInt(principal.ID(), 10),
	})
	httputil.WriteSuccess(w, TokenResponse{SignedToken: token})
}

// logout handles POST /v1/auth/logout
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	raw, _ := middleware.BearerToken(r)
	principal, _ := auth.PrincipalFromContext(r.Context())

	if err := h.tokens.Revoke(r.Context(), raw); err != nil {
		writeError(w, r, err)
		return
	}

	h.record(r, audit.Entry{
		Action:     audit.ActionLogout,
		EntityType: entityUser,
		EntityID:   strconv.FormatInt(principal.ID(), 10),
	})
	httputil.WriteNoContent(w)
}

// logoutAll handles POST /v1/auth/logout-all, ending every session of the caller
func (h *AuthHandlers) logoutAll(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	if err := h.tokens.RevokeSubject(r.Context(), principal.ID()); err != nil {
		writeError(w, r, err)
		return
	}

	h.record(r, audit.Entry{
		Action:     audit.ActionSessionsEnded,
		EntityType: entityUser,
		EntityID:   strconv.FormatInt(principal.ID(), 10),
	})
	httputil.WriteNoContent(w)
}

// me handles GET /v1/auth/me
func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, _ := auth.PrincipalFromContext(ctx)
	subject := middleware.SubjectFromContext(ctx)
	scope, _ := tenant.FromContext(ctx)

	resp := MeResponse{
		User:     principal.User,
		TenantID: subject.TenantID,
		System:   scope.System,
	}
	if h.perms != nil {
		set, err := h.perms.EffectivePermissions(ctx, subject.ID, subject.TenantID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp.Permissions = set.Codes()
	}
	httputil.WriteSuccess(w, resp)
}

// record writes a session event. These are never fatal to the request.
func (h *AuthHandlers) record(r *http.Request, entry audit.Entry) {
	if _, err := h.recorder.LogAction(r.Context(), entry); err != nil {
		observability.FromContext(r.Context()).WithError(err).WithField("action", entry.Action).
			Error("failed to record session event")
	}
}
