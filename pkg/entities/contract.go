package entities

import (
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

// Contract statuses. A draft is submitted for approval; approval is final.
const (
	ContractDraft     = "draft"
	ContractSubmitted = "submitted"
	ContractApproved  = "approved"
	ContractRejected  = "rejected"
)

// ErrInvalidTransition is returned for a status change the workflow doesn't allow
var ErrInvalidTransition = errors.New("invalid contract status transition")

// Contract is an agreement with a counterparty
type Contract struct {
	ID           int64  `json:"id"`
	TenantID     int64  `json:"tenant_id"`
	ProjectID    *int64 `json:"project_id,omitempty"`
	Title        string `json:"title"`
	Counterparty string `json:"counterparty,omitempty"`
	ValueCents   int64  `json:"value_cents"`
	Status       string `json:"status"`
	ApprovedBy   *int64 `json:"approved_by,omitempty"`
	CreatedBy    int64  `json:"created_by"`
	tenant.Timestamps
}

func (c *Contract) EntityType() string   { return TypeContract }
func (c *Contract) GetID() int64         { return c.ID }
func (c *Contract) SetID(id int64)       { c.ID = id }
func (c *Contract) GetTenantID() int64   { return c.TenantID }
func (c *Contract) SetTenantID(id int64) { c.TenantID = id }
func (c *Contract) OwnerID() int64       { return c.CreatedBy }

// Editable reports whether the contract's terms may still change
func (c *Contract) Editable() bool {
	return c.Status == ContractDraft || c.Status == ContractRejected
}

// Validate normalizes and checks the contract
func (c *Contract) Validate() error {
	c.Title = strings.TrimSpace(c.Title)
	switch {
	case c.Title == "":
		return errors.Join(ErrInvalid, errors.New("title is required"))
	case c.ValueCents < 0:
		return errors.Join(ErrInvalid, errors.New("value_cents must not be negative"))
	}
	if c.Status == "" {
		c.Status = ContractDraft
	}
	return nil
}

var contractTransitions = map[string][]string{
	ContractDraft:     {ContractSubmitted},
	ContractSubmitted: {ContractApproved, ContractRejected},
	ContractRejected:  {ContractDraft},
}

// Transition moves the contract to status. Approval records approver.
func (c *Contract) Transition(status string, approver int64) error {
	for _, next := range contractTransitions[c.Status] {
		if next != status {
			continue
		}
		c.Status = status
		if status == ContractApproved {
			c.ApprovedBy = &approver
		}
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, status)
}

// Snapshot returns the audited view of the contract
func (c *Contract) Snapshot() map[string]any {
	snap := map[string]any{
		"title":        c.Title,
		"counterparty": c.Counterparty,
		"value_cents":  c.ValueCents,
		"status":       c.Status,
		"created_by":   c.CreatedBy,
	}
	if c.ProjectID != nil {
		snap["project_id"] = *c.ProjectID
	}
	if c.ApprovedBy != nil {
		snap["approved_by"] = *c.ApprovedBy
	}
	return snap
}

// ContractMapper maps Contract onto the contracts table
var ContractMapper = tenant.Mapper[*Contract]{
	Table: "contracts",
	Columns: []string{
		"project_id", "title", "counterparty", "value_cents", "status", "approved_by",
		"created_by", "created_at", "updated_at",
	},
	CreateOnly: []string{"created_by", "created_at"},
	New:        func() *Contract { return &Contract{} },
	Values: func(c *Contract) []any {
		return []any{
			nullInt64(c.ProjectID), c.Title, c.Counterparty, c.ValueCents, c.Status, nullInt64(c.ApprovedBy),
			c.CreatedBy, c.CreatedAt, c.UpdatedAt,
		}
	},
	Targets: func(c *Contract) []any {
		return []any{
			optionalInt64{&c.ProjectID}, &c.Title, &c.Counterparty, &c.ValueCents, &c.Status, optionalInt64{&c.ApprovedBy},
			&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
		}
	},
}
