package rbac

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var defaultCatalog []byte

// Catalog is the YAML permission catalog with its built-in roles
type Catalog struct {
	Permissions []Permission `yaml:"permissions"`
	SystemRoles []RoleSpec   `yaml:"system_roles"`
	TenantRoles []RoleSpec   `yaml:"tenant_roles"`
}

// RoleSpec describes a role in the catalog. Permissions may use "module.*" or "*".
type RoleSpec struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// DefaultCatalog returns the embedded catalog
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog from a YAML file
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(c.Permissions))
	for _, p := range c.Permissions {
		if !ValidCode(p.Code) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCode, p.Code)
		}
		if _, dup := seen[p.Code]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicatePermission, p.Code)
		}
		seen[p.Code] = struct{}{}
	}

	for _, specs := range [][]RoleSpec{c.SystemRoles, c.TenantRoles} {
		for _, spec := range specs {
			if _, err := c.expand(spec.Permissions); err != nil {
				return nil, fmt.Errorf("role %q: %w", spec.Name, err)
			}
		}
	}
	return &c, nil
}

// expand resolves wildcards against the catalog
func (c *Catalog) expand(patterns []string) ([]string, error) {
	set := make(PermissionSet)
	for _, pattern := range patterns {
		matched := false
		for _, p := range c.Permissions {
			if pattern == "*" || pattern == p.Code ||
				(strings.HasSuffix(pattern, ".*") && strings.HasPrefix(p.Code, strings.TrimSuffix(pattern, "*"))) {
				set[p.Code] = struct{}{}
				matched = true
			}
		}
		if !matched {
			return nil, fmt.Errorf("%w: %q", ErrPermissionNotFound, pattern)
		}
	}
	return set.Codes(), nil
}

// Seed writes the catalog's permissions and system roles. It is idempotent:
// existing permissions and roles are kept and missing grants are added.
func Seed(ctx context.Context, store *Store, catalog *Catalog) error {
	for i := range catalog.Permissions {
		perm := catalog.Permissions[i]
		if err := store.EnsurePermission(ctx, &perm); err != nil {
			return fmt.Errorf("failed to seed permission %s: %w", perm.Code, err)
		}
	}

	for _, spec := range catalog.SystemRoles {
		if err := ensureRole(ctx, store, catalog, spec, ScopeSystem, nil); err != nil {
			return err
		}
	}
	return nil
}

// SeedTenant creates the catalog's tenant roles for tenantID
func SeedTenant(ctx context.Context, store *Store, catalog *Catalog, tenantID int64) error {
	for _, spec := range catalog.TenantRoles {
		if err := ensureRole(ctx, store, catalog, spec, ScopeTenant, &tenantID); err != nil {
			return err
		}
	}
	return nil
}

func ensureRole(ctx context.Context, store *Store, catalog *Catalog, spec RoleSpec, scope RoleScope, tenantID *int64) error {
	codes, err := catalog.expand(spec.Permissions)
	if err != nil {
		return fmt.Errorf("role %q: %w", spec.Name, err)
	}

	existing, err := store.FindRole(ctx, spec.Name, tenantID)
	switch {
	case err == nil:
		for _, code := range codes {
			if err := store.AttachPermission(ctx, existing.ID, code); err != nil {
				return fmt.Errorf("failed to seed role %s: %w", spec.Name, err)
			}
		}
		return nil
	case !errors.Is(err, ErrRoleNotFound):
		return err
	}

	role := &Role{
		Name:        spec.Name,
		Scope:       scope,
		TenantID:    tenantID,
		Description: spec.Description,
		Permissions: codes,
	}
	if err := store.CreateRole(ctx, role); err != nil {
		return fmt.Errorf("failed to seed role %s: %w", spec.Name, err)
	}
	return nil
}
