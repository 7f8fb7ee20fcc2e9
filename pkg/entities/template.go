package entities

import (
	"errors"
	"strings"

	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

// Template is a reusable document or contract body
type Template struct {
	ID        int64  `json:"id"`
	TenantID  int64  `json:"tenant_id"`
	Name      string `json:"name"`
	Kind      string `json:"kind,omitempty"`
	Body      string `json:"body,omitempty"`
	CreatedBy int64  `json:"created_by"`
	tenant.Timestamps
}

func (t *Template) EntityType() string   { return TypeTemplate }
func (t *Template) GetID() int64         { return t.ID }
func (t *Template) SetID(id int64)       { t.ID = id }
func (t *Template) GetTenantID() int64   { return t.TenantID }
func (t *Template) SetTenantID(id int64) { t.TenantID = id }
func (t *Template) OwnerID() int64       { return t.CreatedBy }

// Validate normalizes and checks the template
func (t *Template) Validate() error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return errors.Join(ErrInvalid, errors.New("name is required"))
	}
	return nil
}

// Snapshot returns the audited view of the template. The body is left out.
func (t *Template) Snapshot() map[string]any {
	return map[string]any{
		"name":       t.Name,
		"kind":       t.Kind,
		"created_by": t.CreatedBy,
	}
}

// TemplateMapper maps Template onto the templates table
var TemplateMapper = tenant.Mapper[*Template]{
	Table:      "templates",
	Columns:    []string{"name", "kind", "body", "created_by", "created_at", "updated_at"},
	CreateOnly: []string{"created_by", "created_at"},
	New:        func() *Template { return &Template{} },
	Values: func(t *Template) []any {
		return []any{t.Name, t.Kind, t.Body, t.CreatedBy, t.CreatedAt, t.UpdatedAt}
	},
	Targets: func(t *Template) []any {
		return []any{&t.Name, &t.Kind, &t.Body, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt}
	},
}
