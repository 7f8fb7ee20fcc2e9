package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCode(t *testing.T) {
	module, action, err := ParseCode("contract.approve")
	require.NoError(t, err)
	assert.Equal(t, "contract", module)
	assert.Equal(t, "approve", action)

	module, action, err = ParseCode("project.viewAny")
	require.NoError(t, err)
	assert.Equal(t, "project", module)
	assert.Equal(t, "viewAny", action)

	_, _, err = ParseCode("contract")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestRole_Validate(t *testing.T) {
	tests := []struct {
		name    string
		role    Role
		wantErr error
	}{
		{"system", Role{Name: "a", Scope: ScopeSystem}, nil},
		{"tenant", Role{Name: "a", Scope: ScopeTenant, TenantID: int64Ptr(1)}, nil},
		{"system with tenant", Role{Name: "a", Scope: ScopeSystem, TenantID: int64Ptr(1)}, ErrInvalidRoleScope},
		{"tenant without tenant", Role{Name: "a", Scope: ScopeTenant}, ErrInvalidRoleScope},
		{"unknown scope", Role{Name: "a", Scope: "global"}, ErrInvalidRoleScope},
		{"bad code", Role{Name: "a", Scope: ScopeSystem, Permissions: []string{"nope"}}, ErrInvalidCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.role.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}

	assert.Error(t, (&Role{Scope: ScopeSystem}).Validate())
}

func TestStore_Permissions(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	p := &Permission{Code: "task.assign", Description: "Assign tasks"}
	require.NoError(t, store.CreatePermission(ctx, p))
	assert.NotZero(t, p.ID)
	assert.Equal(t, "task", p.Module)
	assert.Equal(t, "assign", p.Action)

	assert.ErrorIs(t, store.CreatePermission(ctx, &Permission{Code: "task.assign"}), ErrDuplicatePermission)
	assert.ErrorIs(t, store.CreatePermission(ctx, &Permission{Code: "Task.assign"}), ErrInvalidCode)

	again := &Permission{Code: "task.assign"}
	require.NoError(t, store.EnsurePermission(ctx, again))
	assert.Equal(t, p.ID, again.ID)

	_, err := store.GetPermission(ctx, "task.missing")
	assert.ErrorIs(t, err, ErrPermissionNotFound)

	perms, err := store.ListPermissions(ctx)
	require.NoError(t, err)
	assert.Len(t, perms, 1)
}

func TestStore_Roles(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t, "project.view", "project.update")

	role := createRole(t, store, "editor", ScopeTenant, int64Ptr(4), "project.update", "project.view")
	createRole(t, store, "global", ScopeSystem, nil)
	createRole(t, store, "other", ScopeTenant, int64Ptr(5))

	err := store.CreateRole(ctx, &Role{Name: "x", Scope: ScopeSystem, Permissions: []string{"project.delete"}})
	assert.ErrorIs(t, err, ErrPermissionNotFound)

	got, err := store.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"project.update", "project.view"}, got.Permissions)
	require.NotNil(t, got.TenantID)
	assert.Equal(t, int64(4), *got.TenantID)

	found, err := store.FindRole(ctx, "editor", int64Ptr(4))
	require.NoError(t, err)
	assert.Equal(t, role.ID, found.ID)

	_, err = store.FindRole(ctx, "editor", nil)
	assert.ErrorIs(t, err, ErrRoleNotFound)

	roles, err := store.ListRoles(ctx, int64Ptr(4))
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "global", roles[0].Name)
	assert.Equal(t, "editor", roles[1].Name)

	roles, err = store.ListRoles(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, roles, 1)

	require.NoError(t, store.AttachPermission(ctx, role.ID, "project.view"))
	require.NoError(t, store.DetachPermission(ctx, role.ID, "project.update"))
	require.NoError(t, store.DetachPermission(ctx, role.ID, "project.update"))
	got, err = store.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"project.view"}, got.Permissions)

	require.NoError(t, store.AssignRole(ctx, 9, role.ID, int64Ptr(1)))
	require.NoError(t, store.AssignRole(ctx, 9, role.ID, int64Ptr(1)))
	assigned, err := store.RolesForUser(ctx, 9)
	require.NoError(t, err)
	assert.Len(t, assigned, 1)

	require.NoError(t, store.DeleteRole(ctx, role.ID))
	assigned, err = store.RolesForUser(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, assigned)

	assert.ErrorIs(t, store.DeleteRole(ctx, role.ID), ErrRoleNotFound)
	require.NoError(t, store.RevokeRole(ctx, 9, role.ID))
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	require.NoError(t, Seed(ctx, store, catalog))
	require.NoError(t, Seed(ctx, store, catalog))

	perms, err := store.ListPermissions(ctx)
	require.NoError(t, err)
	assert.Len(t, perms, len(catalog.Permissions))

	admin, err := store.FindRole(ctx, "super_admin", nil)
	require.NoError(t, err)
	assert.Len(t, admin.Permissions, len(catalog.Permissions))

	require.NoError(t, SeedTenant(ctx, store, catalog, 3))
	require.NoError(t, SeedTenant(ctx, store, catalog, 3))

	manager, err := store.FindRole(ctx, "manager", int64Ptr(3))
	require.NoError(t, err)
	assert.Contains(t, manager.Permissions, "contract.approve")
	assert.NotContains(t, manager.Permissions, "role.assign")

	roles, err := store.ListRoles(ctx, int64Ptr(3))
	require.NoError(t, err)
	assert.Len(t, roles, len(catalog.SystemRoles)+len(catalog.TenantRoles))
}

func TestParseCatalog_Errors(t *testing.T) {
	_, err := ParseCatalog([]byte("permissions: [{code: bad}]"))
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, err = ParseCatalog([]byte("permissions: [{code: a.b}, {code: a.b}]"))
	assert.ErrorIs(t, err, ErrDuplicatePermission)

	_, err = ParseCatalog([]byte(`
permissions: [{code: a.b}]
system_roles:
  - name: r
    permissions: [c.*]
`))
	assert.ErrorIs(t, err, ErrPermissionNotFound)

	_, err = ParseCatalog([]byte("permissions: ["))
	assert.Error(t, err)
}
