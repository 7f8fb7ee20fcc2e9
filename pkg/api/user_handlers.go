package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/policy"
	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

const actionDeactivate = "deactivate"

// UserHandlers serves user administration within the caller's tenant
type UserHandlers struct {
	users    *auth.UserStore
	tokens   *auth.TokenService
	engine   *policy.Engine
	recorder *audit.Recorder
}

// NewUserHandlers creates user handlers
func NewUserHandlers(users *auth.UserStore, tokens *auth.TokenService, engine *policy.Engine, recorder *audit.Recorder) *UserHandlers {
	return &UserHandlers{users: users, tokens: tokens, engine: engine, recorder: recorder}
}

// RegisterRoutes registers user routes
func (h *UserHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users/{id}/deactivate", h.deactivate).Methods(http.MethodPost)
}

// deactivate handles POST /v1/users/{id}/deactivate. The user can no longer
// log in and every token issued to them so far is revoked.
func (h *UserHandlers) deactivate(w http.ResponseWriter, r *http.Request) {
	subject, ok := authorizeType(w, r, h.engine, actionDeactivate, entityUser)
	if !ok {
		return
	}
	scope, err := tenant.Require(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteNotFound(w)
		return
	}
	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user.TenantID == nil || *user.TenantID != scope.TenantID {
		httputil.WriteNotFound(w)
		return
	}
	if user.ID == subject.ID {
		httputil.WriteBadRequest(w, "cannot deactivate yourself")
		return
	}

	if err := h.users.Deactivate(r.Context(), user.ID); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.tokens.RevokeSubject(r.Context(), user.ID); err != nil {
		writeError(w, r, err)
		return
	}

	_, err = h.recorder.LogAction(r.Context(), audit.Entry{
		TenantID:   user.TenantID,
		Action:     audit.ActionDeactivated,
		EntityType: entityUser,
		EntityID:   strconv.FormatInt(user.ID, 10),
		OldData:    map[string]any{"active": user.Active},
		NewData:    map[string]any{"active": false},
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
