package policy

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithRegistry sets the rule registry
func WithRegistry(registry *Registry) EngineOption {
	return func(e *Engine) { e.registry = registry }
}

// WithLogger sets the logger
func WithLogger(logger *observability.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics enables decision counters
func WithMetrics(metrics *observability.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = metrics }
}

// WithTracer overrides the tracer
func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *Engine) { e.tracer = tracer }
}

// Engine is the single entry point for authorization decisions
type Engine struct {
	perms    PermissionChecker
	registry *Registry
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer
}

// NewEngine creates an engine that checks permissions with perms
func NewEngine(perms PermissionChecker, opts ...EngineOption) *Engine {
	e := &Engine{perms: perms}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = NewRegistry()
	}
	if e.tracer == nil {
		e.tracer = observability.Tracer()
	}
	e.logger = observability.OrNop(e.logger)
	return e
}

// Registry returns the engine's rule registry
func (e *Engine) Registry() *Registry {
	return e.registry
}

// CanPerform reports whether subject may perform action on entityType.
// entity is nil for type-level actions such as viewAny and create.
func (e *Engine) CanPerform(ctx context.Context, subject *Subject, action, entityType string, entity tenant.Entity) bool {
	return e.Authorize(ctx, subject, action, entityType, entity).Allowed
}

// Require is CanPerform returning ErrForbidden on denial
func (e *Engine) Require(ctx context.Context, subject *Subject, action, entityType string, entity tenant.Entity) error {
	if !e.CanPerform(ctx, subject, action, entityType, entity) {
		return ErrForbidden
	}
	return nil
}

// Authorize evaluates a request: the tenant check first, then the registered
// rule or the default permission check.
func (e *Engine) Authorize(ctx context.Context, subject *Subject, action, entityType string, entity tenant.Entity) Decision {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "policy.Authorize", trace.WithAttributes(
		attribute.String("policy.entity_type", entityType),
		attribute.String("policy.action", action),
	))
	defer span.End()

	decision := e.evaluate(ctx, subject, action, entityType, entity)

	span.SetAttributes(attribute.Bool("policy.allowed", decision.Allowed))
	if !decision.Allowed {
		span.SetStatus(codes.Error, "denied")
	}
	e.observe(entityType, action, decision, time.Since(start))

	fields := map[string]interface{}{
		"entity_type": entityType,
		"action":      action,
		"reason":      decision.Reason,
	}
	if subject != nil {
		fields["subject_id"] = subject.ID
	}
	if entity != nil {
		fields["entity_id"] = entity.GetID()
	}
	logger := e.logger.WithFields(fields)
	if decision.Allowed {
		logger.Debug("authorization allowed")
	} else {
		logger.Info("authorization denied")
	}
	return decision
}

func (e *Engine) evaluate(ctx context.Context, subject *Subject, action, entityType string, entity tenant.Entity) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			decision = Deny(fmt.Sprintf("rule panicked: %v", r))
		}
	}()

	if subject == nil || subject.ID == 0 {
		return Deny("no subject")
	}
	if entityType == "" || action == "" {
		return Deny("entity type and action are required")
	}
	if entity != nil && entity.EntityType() != entityType {
		return Deny(fmt.Sprintf("entity is a %s, not a %s", entity.EntityType(), entityType))
	}

	tenantID, d := e.tenantCheck(ctx, subject, entity)
	if !d.Allowed {
		return d
	}

	check := Check{
		Subject:    *subject,
		Action:     action,
		EntityType: entityType,
		Entity:     entity,
		TenantID:   tenantID,
		perms:      e.perms,
	}
	if rule, ok := e.registry.Lookup(entityType, action); ok {
		return rule(ctx, check)
	}
	return RequirePermission(PermissionCode(entityType, action))(ctx, check)
}

// tenantCheck returns the tenant permissions are evaluated in. It denies
// before any permission or ownership check runs.
func (e *Engine) tenantCheck(ctx context.Context, subject *Subject, entity tenant.Entity) (*int64, Decision) {
	scope, hasScope := tenant.FromContext(ctx)
	system := hasScope && scope.System && scope.SubjectID == subject.ID

	if entity != nil {
		entityTenant := entity.GetTenantID()
		if system {
			return &entityTenant, Allow("system scope")
		}
		if subject.TenantID == nil || *subject.TenantID != entityTenant {
			return nil, Deny("tenant mismatch")
		}
		return &entityTenant, Allow("same tenant")
	}

	if system {
		if scope.TenantID == 0 {
			return nil, Deny("system scope without target tenant")
		}
		target := scope.TenantID
		return &target, Allow("system scope")
	}
	if subject.TenantID == nil {
		return nil, Deny("subject has no tenant")
	}
	return subject.TenantID, Allow("subject tenant")
}

func (e *Engine) observe(entityType, action string, d Decision, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	result := "deny"
	if d.Allowed {
		result = "allow"
	}
	e.metrics.AuthzDecisionsTotal.WithLabelValues(entityType, action, result).Inc()
	e.metrics.AuthzDecisionLatency.WithLabelValues(entityType).Observe(elapsed.Seconds())
}
