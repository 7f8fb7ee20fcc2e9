package rbac

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidCode         = errors.New("malformed permission code")
	ErrPermissionNotFound  = errors.New("permission not found")
	ErrDuplicatePermission = errors.New("permission already exists")
	ErrRoleNotFound        = errors.New("role not found")
	ErrInvalidRoleScope    = errors.New("invalid role scope")
)

// codePattern is the module.action grammar of permission codes
var codePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*\.[a-z][a-zA-Z0-9_]*$`)

// ValidCode reports whether code is a well-formed permission code
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// ParseCode splits a permission code into module and action
func ParseCode(code string) (module, action string, err error) {
	if !ValidCode(code) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	module, action, _ = strings.Cut(code, ".")
	return module, action, nil
}

// Permission is an atomic capability such as "task.create"
type Permission struct {
	ID          int64  `json:"id"`
	Code        string `json:"code" yaml:"code"`
	Module      string `json:"module"`
	Action      string `json:"action"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// RoleScope determines where a role's permissions apply
type RoleScope string

const (
	// ScopeSystem roles apply in every tenant
	ScopeSystem RoleScope = "system"
	// ScopeTenant roles apply only inside their own tenant
	ScopeTenant RoleScope = "tenant"
)

// Role is a named bundle of permissions
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Scope       RoleScope `json:"scope"`
	TenantID    *int64    `json:"tenant_id,omitempty"` // set iff Scope is tenant
	Description string    `json:"description,omitempty"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks the scope/tenant pairing and the permission codes
func (r *Role) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("role name is required")
	}
	switch r.Scope {
	case ScopeSystem:
		if r.TenantID != nil {
			return fmt.Errorf("%w: system role %q cannot belong to a tenant", ErrInvalidRoleScope, r.Name)
		}
	case ScopeTenant:
		if r.TenantID == nil || *r.TenantID == 0 {
			return fmt.Errorf("%w: tenant role %q requires a tenant", ErrInvalidRoleScope, r.Name)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRoleScope, r.Scope)
	}
	for _, code := range r.Permissions {
		if !ValidCode(code) {
			return fmt.Errorf("%w: %q", ErrInvalidCode, code)
		}
	}
	return nil
}

// Assignment binds a role to a user
type Assignment struct {
	UserID    int64     `json:"user_id"`
	RoleID    int64     `json:"role_id"`
	GrantedBy *int64    `json:"granted_by,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
}

// PermissionSet is a set of permission codes
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from codes
func NewPermissionSet(codes ...string) PermissionSet {
	set := make(PermissionSet, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}

// Has reports whether code is in the set
func (s PermissionSet) Has(code string) bool {
	_, ok := s[code]
	return ok
}

// Codes returns the codes in sorted order
func (s PermissionSet) Codes() []string {
	codes := make([]string, 0, len(s))
	for c := range s {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
