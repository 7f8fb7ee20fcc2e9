package tenant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/storage"
)

// ErrDuplicateDomain is returned when a tenant domain is already taken
var ErrDuplicateDomain = errors.New("tenant domain already exists")

// Store provisions and looks up tenants. The tenants table itself is not
// tenant-scoped, so callers are expected to be provisioning code or the
// authentication path.
type Store struct {
	db     *sql.DB
	schema SettingsSchema
	now    func() time.Time
}

// NewStore creates a tenant store validating settings against schema.
// A nil schema uses DefaultSettingsSchema.
func NewStore(db *sql.DB, schema SettingsSchema) *Store {
	if schema == nil {
		schema = DefaultSettingsSchema
	}
	return &Store{
		db:     db,
		schema: schema,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

const tenantColumns = "id, name, domain, settings, status, created_at, updated_at"

// Create provisions a new active tenant
func (s *Store) Create(ctx context.Context, t *Tenant) error {
	if strings.TrimSpace(t.Name) == "" || strings.TrimSpace(t.Domain) == "" {
		return fmt.Errorf("tenant name and domain are required")
	}

	settings, err := s.schema.Validate(t.Settings)
	if err != nil {
		return err
	}
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	now := s.now()
	t.Domain = strings.ToLower(strings.TrimSpace(t.Domain))
	t.Settings = settings
	t.Status = StatusActive
	t.CreatedAt = now
	t.UpdatedAt = now

	query := `
		INSERT INTO tenants (name, domain, settings, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query, t.Name, t.Domain, string(settingsJSON), t.Status, now, now).Scan(&t.ID)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return fmt.Errorf("%s: %w", t.Domain, ErrDuplicateDomain)
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// Get returns the tenant with id
func (s *Store) Get(ctx context.Context, id int64) (*Tenant, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+tenantColumns+" FROM tenants WHERE id = $1", id)
	return scanTenant(row)
}

// GetByDomain returns the tenant with domain
func (s *Store) GetByDomain(ctx context.Context, domain string) (*Tenant, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+tenantColumns+" FROM tenants WHERE domain = $1",
		strings.ToLower(strings.TrimSpace(domain)))
	return scanTenant(row)
}

// List returns all tenants ordered by id
func (s *Store) List(ctx context.Context) ([]*Tenant, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+tenantColumns+" FROM tenants ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// UpdateSettings replaces the tenant's settings after validation
func (s *Store) UpdateSettings(ctx context.Context, id int64, raw map[string]any) (Settings, error) {
	settings, err := s.schema.Validate(raw)
	if err != nil {
		return nil, err
	}
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings: %w", err)
	}

	res, err := s.db.ExecContext(ctx, "UPDATE tenants SET settings = $1, updated_at = $2 WHERE id = $3",
		string(settingsJSON), s.now(), id)
	if err := checkAffected(res, err, id); err != nil {
		return nil, err
	}
	return settings, nil
}

// Disable soft-disables a tenant
func (s *Store) Disable(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, StatusDisabled)
}

// Enable re-activates a disabled tenant
func (s *Store) Enable(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, StatusActive)
}

func (s *Store) setStatus(ctx context.Context, id int64, status Status) error {
	res, err := s.db.ExecContext(ctx, "UPDATE tenants SET status = $1, updated_at = $2 WHERE id = $3",
		status, s.now(), id)
	return checkAffected(res, err, id)
}

func checkAffected(res sql.Result, err error, id int64) error {
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("tenant %d: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (*Tenant, error) {
	t := &Tenant{}
	var settingsJSON sql.NullString
	err := row.Scan(&t.ID, &t.Name, &t.Domain, &settingsJSON, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tenant: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan tenant: %w", err)
	}

	if settingsJSON.Valid && settingsJSON.String != "" {
		if err := json.Unmarshal([]byte(settingsJSON.String), &t.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}
	return t, nil
}
