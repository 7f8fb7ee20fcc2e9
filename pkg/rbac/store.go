package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/storage"
)

// Store handles RBAC data persistence
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// CreatePermission adds a permission to the catalog
func (s *Store) CreatePermission(ctx context.Context, perm *Permission) error {
	module, action, err := ParseCode(perm.Code)
	if err != nil {
		return err
	}
	perm.Module = module
	perm.Action = action

	query := `
		INSERT INTO permissions (code, module, action, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query, perm.Code, perm.Module, perm.Action, perm.Description).Scan(&perm.ID)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return fmt.Errorf("%s: %w", perm.Code, ErrDuplicatePermission)
		}
		return fmt.Errorf("failed to create permission: %w", err)
	}
	return nil
}

// EnsurePermission creates the permission unless its code already exists
func (s *Store) EnsurePermission(ctx context.Context, perm *Permission) error {
	existing, err := s.GetPermission(ctx, perm.Code)
	if err == nil {
		*perm = *existing
		return nil
	}
	if !errors.Is(err, ErrPermissionNotFound) {
		return err
	}
	return s.CreatePermission(ctx, perm)
}

// GetPermission returns the permission with code
func (s *Store) GetPermission(ctx context.Context, code string) (*Permission, error) {
	query := `SELECT id, code, module, action, description FROM permissions WHERE code = $1`

	var p Permission
	err := s.db.QueryRowContext(ctx, query, code).Scan(&p.ID, &p.Code, &p.Module, &p.Action, &p.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", code, ErrPermissionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return &p, nil
}

// ListPermissions returns the catalog ordered by code
func (s *Store) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, code, module, action, description FROM permissions ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Module, &p.Action, &p.Description); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// CreateRole inserts role and attaches its permissions in one transaction.
// Every permission code must already exist in the catalog.
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	if err := role.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	query := `
		INSERT INTO roles (name, scope, tenant_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	if err := tx.QueryRowContext(ctx, query, role.Name, role.Scope, role.TenantID, role.Description, now).Scan(&role.ID); err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	for _, code := range role.Permissions {
		if err := attach(ctx, tx, role.ID, code); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role: %w", err)
	}
	role.CreatedAt = now
	return nil
}

// GetRole retrieves a role and its permission codes
func (s *Store) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	query := `SELECT id, name, scope, tenant_id, description, created_at FROM roles WHERE id = $1`
	role, err := scanRole(s.db.QueryRowContext(ctx, query, roleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("role %d: %w", roleID, ErrRoleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	if err := s.loadPermissions(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// FindRole looks a role up by name. A nil tenantID looks among system roles.
func (s *Store) FindRole(ctx context.Context, name string, tenantID *int64) (*Role, error) {
	var row *sql.Row
	if tenantID == nil {
		row = s.db.QueryRowContext(ctx, `
			SELECT id, name, scope, tenant_id, description, created_at
			FROM roles WHERE name = $1 AND scope = 'system'`, name)
	} else {
		row = s.db.QueryRowContext(ctx, `
			SELECT id, name, scope, tenant_id, description, created_at
			FROM roles WHERE name = $1 AND scope = 'tenant' AND tenant_id = $2`, name, *tenantID)
	}

	role, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("role %q: %w", name, ErrRoleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find role: %w", err)
	}
	if err := s.loadPermissions(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// ListRoles returns system roles plus the roles of tenantID, if given
func (s *Store) ListRoles(ctx context.Context, tenantID *int64) ([]Role, error) {
	query := `
		SELECT id, name, scope, tenant_id, description, created_at
		FROM roles
		WHERE scope = 'system' OR tenant_id = $1
		ORDER BY scope ASC, name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	roles, err := collectRoles(rows)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		if err := s.loadPermissions(ctx, &roles[i]); err != nil {
			return nil, err
		}
	}
	return roles, nil
}

// DeleteRole removes a role together with its grants and assignments
func (s *Store) DeleteRole(ctx context.Context, roleID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// sqlite only cascades with foreign_keys enabled, so clean up explicitly
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to delete role assignments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to delete role permissions: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("role %d: %w", roleID, ErrRoleNotFound)
	}
	return tx.Commit()
}

// AttachPermission grants code to a role. Attaching twice is a no-op.
func (s *Store) AttachPermission(ctx context.Context, roleID int64, code string) error {
	return attach(ctx, s.db, roleID, code)
}

// DetachPermission removes code from a role. Detaching a missing grant is a no-op.
func (s *Store) DetachPermission(ctx context.Context, roleID int64, code string) error {
	query := `
		DELETE FROM role_permissions
		WHERE role_id = $1 AND permission_id IN (SELECT id FROM permissions WHERE code = $2)
	`
	if _, err := s.db.ExecContext(ctx, query, roleID, code); err != nil {
		return fmt.Errorf("failed to detach permission: %w", err)
	}
	return nil
}

// AssignRole binds a role to a user. Assigning twice is a no-op.
func (s *Store) AssignRole(ctx context.Context, userID, roleID int64, grantedBy *int64) error {
	query := `
		INSERT INTO user_roles (user_id, role_id, granted_by, granted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, role_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, userID, roleID, grantedBy, s.now()); err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

// RevokeRole unbinds a role from a user. Revoking a missing assignment is a no-op.
func (s *Store) RevokeRole(ctx context.Context, userID, roleID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID); err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	return nil
}

// RolesForUser returns every role assigned to userID, regardless of scope
func (s *Store) RolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	query := `
		SELECT r.id, r.name, r.scope, r.tenant_id, r.description, r.created_at
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.id
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	roles, err := collectRoles(rows)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		if err := s.loadPermissions(ctx, &roles[i]); err != nil {
			return nil, err
		}
	}
	return roles, nil
}

// PermissionCodes returns the distinct permission codes granted to userID by
// system roles and by tenant roles of tenantID. A nil tenantID matches no
// tenant role.
func (s *Store) PermissionCodes(ctx context.Context, userID int64, tenantID *int64) ([]string, error) {
	query := `
		SELECT DISTINCT p.code
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		JOIN role_permissions rp ON rp.role_id = r.id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1
		  AND (r.scope = 'system' OR (r.scope = 'tenant' AND r.tenant_id = $2))
	`
	rows, err := s.db.QueryContext(ctx, query, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permissions: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (s *Store) loadPermissions(ctx context.Context, role *Role) error {
	query := `
		SELECT p.code
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.code
	`
	rows, err := s.db.QueryContext(ctx, query, role.ID)
	if err != nil {
		return fmt.Errorf("failed to load role permissions: %w", err)
	}
	defer rows.Close()

	role.Permissions = []string{}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return fmt.Errorf("failed to scan role permission: %w", err)
		}
		role.Permissions = append(role.Permissions, code)
	}
	return rows.Err()
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func attach(ctx context.Context, q execQuerier, roleID int64, code string) error {
	var permID int64
	err := q.QueryRowContext(ctx, `SELECT id FROM permissions WHERE code = $1`, code).Scan(&permID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", code, ErrPermissionNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up permission: %w", err)
	}

	query := `
		INSERT INTO role_permissions (role_id, permission_id)
		VALUES ($1, $2)
		ON CONFLICT (role_id, permission_id) DO NOTHING
	`
	if _, err := q.ExecContext(ctx, query, roleID, permID); err != nil {
		return fmt.Errorf("failed to attach permission: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (*Role, error) {
	var role Role
	var tenantID sql.NullInt64
	if err := row.Scan(&role.ID, &role.Name, &role.Scope, &tenantID, &role.Description, &role.CreatedAt); err != nil {
		return nil, err
	}
	if tenantID.Valid {
		id := tenantID.Int64
		role.TenantID = &id
	}
	return &role, nil
}

func collectRoles(rows *sql.Rows) ([]Role, error) {
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return roles, nil
}
