package audit

import (
	"context"
	"strconv"

	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

// BypassAuditor writes tenant scope bypasses and rejected cross-tenant writes
// to the audit trail. It implements tenant.EventRecorder.
type BypassAuditor struct {
	recorder *Recorder
	logger   *observability.Logger
}

var _ tenant.EventRecorder = (*BypassAuditor)(nil)

// NewBypassAuditor creates a bypass auditor
func NewBypassAuditor(recorder *Recorder, logger *observability.Logger) *BypassAuditor {
	return &BypassAuditor{recorder: recorder, logger: observability.OrNop(logger)}
}

// RecordBypass implements tenant.EventRecorder
func (b *BypassAuditor) RecordBypass(ctx context.Context, event tenant.Event) {
	b.record(ctx, ActionTenantBypass, event)
}

// RecordViolation implements tenant.EventRecorder
func (b *BypassAuditor) RecordViolation(ctx context.Context, event tenant.Event) {
	b.record(ctx, ActionTenantMismatch, event)
}

func (b *BypassAuditor) record(ctx context.Context, action string, event tenant.Event) {
	entry := Entry{
		Action:     action,
		EntityType: event.EntityType,
		EntityID:   "*",
		NewData: map[string]any{
			"operation": event.Operation,
		},
	}
	if event.EntityID != 0 {
		entry.EntityID = strconv.FormatInt(event.EntityID, 10)
	}
	if event.SubjectID != 0 {
		id := event.SubjectID
		entry.ActorID = &id
	}
	if event.TenantID != 0 {
		id := event.TenantID
		entry.TenantID = &id
	}
	if event.Reason != "" {
		entry.NewData["reason"] = event.Reason
	}
	if event.ScopeTenantID != 0 {
		entry.NewData["scope_tenant_id"] = event.ScopeTenantID
	}

	if _, err := b.recorder.LogAction(ctx, entry); err != nil {
		b.logger.WithError(err).WithField("action", action).Error("failed to audit tenant scope event")
	}
}
