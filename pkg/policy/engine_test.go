package policy

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

type grant struct {
	subjectID int64
	tenantID  int64
	code      string
}

// staticPermissions grants codes per (subject, tenant). tenantID 0 stands for
// system-wide grants.
type staticPermissions map[grant]bool

func (p staticPermissions) HasPermission(_ context.Context, subjectID int64, tenantID *int64, code string) bool {
	if p[grant{subjectID, 0, code}] {
		return true
	}
	return tenantID != nil && p[grant{subjectID, *tenantID, code}]
}

type contract struct {
	ID        int64
	TenantID  int64
	CreatedBy int64
}

func (c *contract) EntityType() string   { return "contract" }
func (c *contract) GetID() int64         { return c.ID }
func (c *contract) SetID(id int64)       { c.ID = id }
func (c *contract) GetTenantID() int64   { return c.TenantID }
func (c *contract) SetTenantID(id int64) { c.TenantID = id }
func (c *contract) OwnerID() int64       { return c.CreatedBy }

// unowned has no owner
type unowned struct {
	ID       int64
	TenantID int64
}

func (u *unowned) EntityType() string   { return "contract" }
func (u *unowned) GetID() int64         { return u.ID }
func (u *unowned) SetID(id int64)       { u.ID = id }
func (u *unowned) GetTenantID() int64   { return u.TenantID }
func (u *unowned) SetTenantID(id int64) { u.TenantID = id }

func subjectIn(id, tenantID int64) *Subject {
	return &Subject{ID: id, TenantID: &tenantID}
}

const (
	tenantA = int64(1)
	tenantB = int64(2)
)

func TestEngine_TenantCheckShortCircuits(t *testing.T) {
	perms := staticPermissions{
		{10, tenantA, "contract.update"}: true,
		{10, tenantA, "contract.view"}:   true,
	}
	engine := NewEngine(perms)
	ctx := context.Background()
	alice := subjectIn(10, tenantA)

	own := &contract{ID: 1, TenantID: tenantA, CreatedBy: 99}
	foreign := &contract{ID: 2, TenantID: tenantB, CreatedBy: 10}

	assert.True(t, engine.CanPerform(ctx, alice, ActionUpdate, "contract", own))

	d := engine.Authorize(ctx, alice, ActionUpdate, "contract", foreign)
	assert.False(t, d.Allowed)
	assert.Equal(t, "tenant mismatch", d.Reason)

	// ownership and permissions in tenant A don't matter
	engine.Registry().MustRegister("contract", ActionDelete, OwnerOrPermission("contract.delete"))
	assert.False(t, engine.CanPerform(ctx, alice, ActionDelete, "contract", foreign))
}

func TestEngine_SystemSubjectNeedsSystemScope(t *testing.T) {
	perms := staticPermissions{{1, 0, "contract.view"}: true}
	engine := NewEngine(perms)
	root := &Subject{ID: 1}
	entity := &contract{ID: 5, TenantID: tenantB}

	assert.False(t, engine.CanPerform(context.Background(), root, ActionView, "contract", entity))

	ctx := tenant.AsSystem(context.Background(), 1, "support ticket 42")
	assert.True(t, engine.CanPerform(ctx, root, ActionView, "contract", entity))

	// a system scope belonging to someone else doesn't count
	other := tenant.AsSystem(context.Background(), 2, "other")
	assert.False(t, engine.CanPerform(other, root, ActionView, "contract", entity))
}

func TestEngine_TypeLevelActions(t *testing.T) {
	perms := staticPermissions{
		{10, tenantA, "contract.view"}:   true,
		{10, tenantA, "contract.create"}: true,
		{1, 0, "contract.view"}:          true,
	}
	engine := NewEngine(perms)
	ctx := context.Background()

	alice := subjectIn(10, tenantA)
	assert.True(t, engine.CanPerform(ctx, alice, ActionViewAny, "contract", nil), "viewAny maps to view")
	assert.True(t, engine.CanPerform(ctx, alice, ActionCreate, "contract", nil))
	assert.False(t, engine.CanPerform(ctx, subjectIn(10, tenantB), ActionCreate, "contract", nil))

	root := &Subject{ID: 1}
	assert.False(t, engine.CanPerform(ctx, root, ActionViewAny, "contract", nil))

	sys := tenant.AsSystem(ctx, 1, "report")
	assert.False(t, engine.CanPerform(sys, root, ActionViewAny, "contract", nil), "no target tenant")

	target := tenant.WithScope(ctx, tenant.Scope{TenantID: tenantB, SubjectID: 1, System: true, Reason: "report"})
	assert.True(t, engine.CanPerform(target, root, ActionViewAny, "contract", nil))
}

func TestEngine_AbsentSubject(t *testing.T) {
	engine := NewEngine(staticPermissions{})
	entity := &contract{ID: 1, TenantID: tenantA}

	assert.False(t, engine.CanPerform(context.Background(), nil, ActionView, "contract", entity))
	assert.False(t, engine.CanPerform(context.Background(), &Subject{}, ActionView, "contract", entity))
	assert.ErrorIs(t, engine.Require(context.Background(), nil, ActionView, "contract", entity), ErrForbidden)
}

func TestEngine_EntityTypeMismatch(t *testing.T) {
	engine := NewEngine(staticPermissions{{10, tenantA, "project.view"}: true})
	entity := &contract{ID: 1, TenantID: tenantA}

	assert.False(t, engine.CanPerform(context.Background(), subjectIn(10, tenantA), ActionView, "project", entity))
}

func TestEngine_ApprovalSeparationOfDuties(t *testing.T) {
	perms := staticPermissions{
		{10, tenantA, "contract.approve"}: true,
		{11, tenantA, "contract.approve"}: true,
	}
	engine := NewEngine(perms)
	engine.Registry().MustRegister("contract", "approve", NotOwnerAndPermission("contract.approve"))
	ctx := context.Background()

	draft := &contract{ID: 1, TenantID: tenantA, CreatedBy: 10}

	assert.False(t, engine.CanPerform(ctx, subjectIn(10, tenantA), "approve", "contract", draft), "creator")
	assert.True(t, engine.CanPerform(ctx, subjectIn(11, tenantA), "approve", "contract", draft))
	assert.False(t, engine.CanPerform(ctx, subjectIn(12, tenantA), "approve", "contract", draft), "no permission")
}

func TestRules(t *testing.T) {
	perms := staticPermissions{{10, tenantA, "contract.update"}: true}
	owned := &contract{ID: 1, TenantID: tenantA, CreatedBy: 20}
	noOwner := &unowned{ID: 2, TenantID: tenantA}

	tests := []struct {
		name    string
		rule    Rule
		subject int64
		entity  tenant.Entity
		want    bool
	}{
		{"require granted", RequirePermission("contract.update"), 10, owned, true},
		{"require missing", RequirePermission("contract.delete"), 10, owned, false},
		{"owner or permission: owner", OwnerOrPermission("contract.delete"), 20, owned, true},
		{"owner or permission: permission", OwnerOrPermission("contract.update"), 10, owned, true},
		{"owner or permission: neither", OwnerOrPermission("contract.delete"), 10, owned, false},
		{"owner and permission: owner without", OwnerAndPermission("contract.update"), 20, owned, false},
		{"owner and permission: permission without owner", OwnerAndPermission("contract.update"), 10, owned, false},
		{"not owner: unowned entity", NotOwnerAndPermission("contract.update"), 10, noOwner, false},
		{"any of", AnyOf(RequirePermission("contract.delete"), RequirePermission("contract.update")), 10, owned, true},
		{"any of empty", AnyOf(), 10, owned, false},
		{"all of", AllOf(RequirePermission("contract.update"), OwnerOrPermission("contract.update")), 10, owned, true},
		{"all of one denies", AllOf(RequirePermission("contract.update"), RequirePermission("contract.delete")), 10, owned, false},
		{"all of empty", AllOf(), 10, owned, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Check{
				Subject:  *subjectIn(tt.subject, tenantA),
				Action:   "test",
				Entity:   tt.entity,
				TenantID: &[]int64{tenantA}[0],
				perms:    perms,
			}
			assert.Equal(t, tt.want, tt.rule(context.Background(), c).Allowed)
		})
	}
}

func TestEngine_PanickingRuleDenies(t *testing.T) {
	engine := NewEngine(staticPermissions{})
	engine.Registry().MustRegister("contract", "explode", func(context.Context, Check) Decision {
		panic("boom")
	})

	d := engine.Authorize(context.Background(), subjectIn(10, tenantA), "explode", "contract", &contract{TenantID: tenantA})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "boom")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("task", "assign", RequirePermission("task.assign")))
	assert.ErrorIs(t, r.Register("task", "assign", RequirePermission("task.assign")), ErrDuplicateRule)
	assert.Error(t, r.Register("", "assign", RequirePermission("task.assign")))
	assert.Error(t, r.Register("task", "assign2", nil))

	_, ok := r.Lookup("task", "assign")
	assert.True(t, ok)
	_, ok = r.Lookup("task", "view")
	assert.False(t, ok)

	assert.Panics(t, func() { r.MustRegister("task", "assign", RequirePermission("task.assign")) })
}

func TestPermissionCode(t *testing.T) {
	assert.Equal(t, "project.view", PermissionCode("project", ActionViewAny))
	assert.Equal(t, "project.update", PermissionCode("project", ActionUpdate))
}

func TestEngine_MetricsAndTracing(t *testing.T) {
	metrics := observability.NewNopMetrics()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	engine := NewEngine(staticPermissions{{10, tenantA, "contract.view"}: true},
		WithMetrics(metrics),
		WithTracer(provider.Tracer("test")),
	)
	ctx := context.Background()
	alice := subjectIn(10, tenantA)

	engine.CanPerform(ctx, alice, ActionView, "contract", &contract{TenantID: tenantA})
	engine.CanPerform(ctx, alice, ActionView, "contract", &contract{TenantID: tenantB})

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthzDecisionsTotal.WithLabelValues("contract", ActionView, "allow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthzDecisionsTotal.WithLabelValues("contract", ActionView, "deny")))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "policy.Authorize", spans[0].Name())
}
