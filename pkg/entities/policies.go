package entities

import (
	"context"

	"github.com/platinummonkey/tenantguard/pkg/policy"
)

// Custom actions
const (
	ActionAssign  = "assign"
	ActionSubmit  = "submit"
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// RegisterPolicies installs the rules that differ from the default
// "<type>.<action>" permission check
func RegisterPolicies(registry *policy.Registry) error {
	rules := []struct {
		entityType string
		action     string
		rule       policy.Rule
	}{
		// creators manage their own projects, documents and templates
		{TypeProject, policy.ActionUpdate, policy.OwnerOrPermission("project.update")},
		{TypeDocument, policy.ActionUpdate, policy.OwnerOrPermission("document.update")},
		{TypeDocument, policy.ActionDelete, policy.OwnerOrPermission("document.delete")},
		{TypeTemplate, policy.ActionUpdate, policy.OwnerOrPermission("template.update")},

		// the assignee may move a task along without task.update
		{TypeTask, policy.ActionUpdate, policy.AnyOf(assignee, policy.OwnerOrPermission("task.update"))},
		{TypeTask, ActionAssign, policy.RequirePermission("task.assign")},

		// terms are frozen once a contract leaves draft
		{TypeContract, policy.ActionUpdate, policy.AllOf(contractEditable, policy.OwnerOrPermission("contract.update"))},
		{TypeContract, policy.ActionDelete, policy.AllOf(contractEditable, policy.RequirePermission("contract.delete"))},
		{TypeContract, ActionSubmit, policy.OwnerOrPermission("contract.update")},
		{TypeContract, ActionApprove, policy.NotOwnerAndPermission("contract.approve")},
		{TypeContract, ActionReject, policy.NotOwnerAndPermission("contract.approve")},
	}

	for _, r := range rules {
		if err := registry.Register(r.entityType, r.action, r.rule); err != nil {
			return err
		}
	}
	return nil
}

func assignee(_ context.Context, c policy.Check) policy.Decision {
	if t, ok := c.Entity.(*Task); ok && t.IsAssignedTo(c.Subject.ID) {
		return policy.Allow("assignee")
	}
	return policy.Deny("not the assignee")
}

func contractEditable(_ context.Context, c policy.Check) policy.Decision {
	if ct, ok := c.Entity.(*Contract); ok && ct.Editable() {
		return policy.Allow("contract editable")
	}
	return policy.Deny("contract is not editable")
}
