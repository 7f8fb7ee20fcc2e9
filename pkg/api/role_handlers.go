package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/policy"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

// role management is checked as "role.view" and "role.assign"
const (
	typeRole     = "role"
	actionAssign = "assign"
)

// RoleRequest is the body of a role assignment
type RoleRequest struct {
	Role string `json:"role"`
}

// RoleHandlers serves tenant role management. Only the caller's tenant roles
// can be granted, and only to users of that tenant.
type RoleHandlers struct {
	resolver *rbac.Resolver
	users    *auth.UserStore
	engine   *policy.Engine
	recorder *audit.Recorder
}

// NewRoleHandlers creates role handlers
func NewRoleHandlers(resolver *rbac.Resolver, users *auth.UserStore, engine *policy.Engine, recorder *audit.Recorder) *RoleHandlers {
	return &RoleHandlers{resolver: resolver, users: users, engine: engine, recorder: recorder}
}

// RegisterRoutes registers role routes
func (h *RoleHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/roles", h.list).Methods(http.MethodGet)
	router.HandleFunc("/users/{id}/roles", h.assign).Methods(http.MethodPost)
	router.HandleFunc("/users/{id}/roles/{role}", h.revoke).Methods(http.MethodDelete)
}

// list handles GET /v1/roles
func (h *RoleHandlers) list(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorizeType(w, r, h.engine, policy.ActionViewAny, typeRole); !ok {
		return
	}
	scope, err := tenant.Require(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	roles, err := h.resolver.Store().ListRoles(r.Context(), &scope.TenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if roles == nil {
		roles = []rbac.Role{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"roles": roles})
}

// assign handles POST /v1/users/{id}/roles
func (h *RoleHandlers) assign(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	user, role, subject, ok := h.resolve(w, r, func() (string, bool) {
		if !httputil.ParseJSONOrError(w, r, &req) {
			return "", false
		}
		return req.Role, true
	})
	if !ok {
		return
	}

	if err := h.resolver.AssignRole(r.Context(), user.ID, role.ID, &subject.ID); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.record(r, audit.ActionRoleAssigned, user, nil, role); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// revoke handles DELETE /v1/users/{id}/roles/{role}
func (h *RoleHandlers) revoke(w http.ResponseWriter, r *http.Request) {
	user, role, _, ok := h.resolve(w, r, func() (string, bool) {
		return mux.Vars(r)["role"], true
	})
	if !ok {
		return
	}

	if err := h.resolver.RevokeRole(r.Context(), user.ID, role.ID); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.record(r, audit.ActionRoleRevoked, user, role, nil); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// resolve authorizes the request and loads the target user and the named
// tenant role. A user of another tenant is reported as not found.
func (h *RoleHandlers) resolve(w http.ResponseWriter, r *http.Request, roleName func() (string, bool)) (*auth.User, *rbac.Role, *policy.Subject, bool) {
	subject, ok := authorizeType(w, r, h.engine, actionAssign, typeRole)
	if !ok {
		return nil, nil, nil, false
	}
	scope, err := tenant.Require(r.Context())
	if err != nil {
		writeError(w, r, err)
		return nil, nil, nil, false
	}

	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteNotFound(w)
		return nil, nil, nil, false
	}
	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return nil, nil, nil, false
	}
	if user.TenantID == nil || *user.TenantID != scope.TenantID {
		httputil.WriteNotFound(w)
		return nil, nil, nil, false
	}

	name, ok := roleName()
	if !ok {
		return nil, nil, nil, false
	}
	role, err := h.resolver.Store().FindRole(r.Context(), name, &scope.TenantID)
	if errors.Is(err, rbac.ErrRoleNotFound) {
		httputil.WriteBadRequest(w, "unknown role")
		return nil, nil, nil, false
	}
	if err != nil {
		writeError(w, r, err)
		return nil, nil, nil, false
	}
	return user, role, subject, true
}

func (h *RoleHandlers) record(r *http.Request, action string, user *auth.User, old, new *rbac.Role) error {
	_, err := h.recorder.LogAction(r.Context(), audit.Entry{
		TenantID:   user.TenantID,
		Action:     action,
		EntityType: entityUser,
		EntityID:   strconv.FormatInt(user.ID, 10),
		OldData:    roleSnapshot(old),
		NewData:    roleSnapshot(new),
	})
	return err
}

func roleSnapshot(role *rbac.Role) map[string]any {
	if role == nil {
		return nil
	}
	return map[string]any{"role": role.Name, "role_id": role.ID}
}
