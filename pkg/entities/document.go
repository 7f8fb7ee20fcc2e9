package entities

import (
	"errors"
	"strings"

	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

// Document is file metadata. The bytes live in external storage under StorageKey.
type Document struct {
	ID          int64  `json:"id"`
	TenantID    int64  `json:"tenant_id"`
	ProjectID   *int64 `json:"project_id,omitempty"`
	Title       string `json:"title"`
	ContentType string `json:"content_type,omitempty"`
	StorageKey  string `json:"storage_key,omitempty"`
	CreatedBy   int64  `json:"created_by"`
	tenant.Timestamps
}

func (d *Document) EntityType() string   { return TypeDocument }
func (d *Document) GetID() int64         { return d.ID }
func (d *Document) SetID(id int64)       { d.ID = id }
func (d *Document) GetTenantID() int64   { return d.TenantID }
func (d *Document) SetTenantID(id int64) { d.TenantID = id }
func (d *Document) OwnerID() int64       { return d.CreatedBy }

// Validate normalizes and checks the document
func (d *Document) Validate() error {
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" {
		return errors.Join(ErrInvalid, errors.New("title is required"))
	}
	return nil
}

// Snapshot returns the audited view of the document
func (d *Document) Snapshot() map[string]any {
	snap := map[string]any{
		"title":        d.Title,
		"content_type": d.ContentType,
		"storage_key":  d.StorageKey,
		"created_by":   d.CreatedBy,
	}
	if d.ProjectID != nil {
		snap["project_id"] = *d.ProjectID
	}
	return snap
}

// DocumentMapper maps Document onto the documents table
var DocumentMapper = tenant.Mapper[*Document]{
	Table:      "documents",
	Columns:    []string{"project_id", "title", "content_type", "storage_key", "created_by", "created_at", "updated_at"},
	CreateOnly: []string{"created_by", "created_at"},
	New:        func() *Document { return &Document{} },
	Values: func(d *Document) []any {
		return []any{nullInt64(d.ProjectID), d.Title, d.ContentType, d.StorageKey, d.CreatedBy, d.CreatedAt, d.UpdatedAt}
	},
	Targets: func(d *Document) []any {
		return []any{optionalInt64{&d.ProjectID}, &d.Title, &d.ContentType, &d.StorageKey, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt}
	},
}
