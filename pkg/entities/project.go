package entities

import (
	"errors"
	"strings"

	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

// Entity type names
const (
	TypeProject  = "project"
	TypeTask     = "task"
	TypeDocument = "document"
	TypeContract = "contract"
	TypeTemplate = "template"
)

// ErrInvalid is returned when an entity fails validation
var ErrInvalid = errors.New("invalid entity")

// Project statuses
const (
	ProjectActive   = "active"
	ProjectArchived = "archived"
)

// Project groups tasks, documents and contracts
type Project struct {
	ID          int64  `json:"id"`
	TenantID    int64  `json:"tenant_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	CreatedBy   int64  `json:"created_by"`
	tenant.Timestamps
}

func (p *Project) EntityType() string   { return TypeProject }
func (p *Project) GetID() int64         { return p.ID }
func (p *Project) SetID(id int64)       { p.ID = id }
func (p *Project) GetTenantID() int64   { return p.TenantID }
func (p *Project) SetTenantID(id int64) { p.TenantID = id }
func (p *Project) OwnerID() int64       { return p.CreatedBy }

// Validate normalizes and checks the project
func (p *Project) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return errors.Join(ErrInvalid, errors.New("name is required"))
	}
	switch p.Status {
	case "":
		p.Status = ProjectActive
	case ProjectActive, ProjectArchived:
	default:
		return errors.Join(ErrInvalid, errors.New("unknown status "+p.Status))
	}
	return nil
}

// Snapshot returns the audited view of the project
func (p *Project) Snapshot() map[string]any {
	return map[string]any{
		"name":        p.Name,
		"description": p.Description,
		"status":      p.Status,
		"created_by":  p.CreatedBy,
	}
}

// ProjectMapper maps Project onto the projects table
var ProjectMapper = tenant.Mapper[*Project]{
	Table:      "projects",
	Columns:    []string{"name", "description", "status", "created_by", "created_at", "updated_at"},
	CreateOnly: []string{"created_by", "created_at"},
	New:        func() *Project { return &Project{} },
	Values: func(p *Project) []any {
		return []any{p.Name, p.Description, p.Status, p.CreatedBy, p.CreatedAt, p.UpdatedAt}
	},
	Targets: func(p *Project) []any {
		return []any{&p.Name, &p.Description, &p.Status, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt}
	},
}
