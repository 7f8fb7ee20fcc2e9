package audit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

// FailureMode decides what a failed audit write means for the caller
type FailureMode string

const (
	// FailureContinue logs the failure and lets the operation proceed
	FailureContinue FailureMode = "continue"
	// FailureFatal returns ErrAuditWriteFailure
	FailureFatal FailureMode = "fatal"
)

// ParseFailureMode parses a configured mode, defaulting to continue
func ParseFailureMode(s string) (FailureMode, error) {
	switch FailureMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", FailureContinue:
		return FailureContinue, nil
	case FailureFatal:
		return FailureFatal, nil
	}
	return "", fmt.Errorf("unknown audit failure mode %q", s)
}

// FailurePolicy decides per entry whether a write failure is fatal
type FailurePolicy struct {
	Mode         FailureMode
	FatalActions []string
}

func (p FailurePolicy) fatal(e Entry) bool {
	if e.Critical || p.Mode == FailureFatal {
		return true
	}
	for _, action := range p.FatalActions {
		if action == e.Action {
			return true
		}
	}
	return false
}

// RecorderOption configures a Recorder
type RecorderOption func(*Recorder)

// WithFailurePolicy sets the failure policy
func WithFailurePolicy(policy FailurePolicy) RecorderOption {
	return func(r *Recorder) { r.policy = policy }
}

// WithRedactor sets the redactor applied to snapshots
func WithRedactor(redactor *Redactor) RecorderOption {
	return func(r *Recorder) { r.redactor = redactor }
}

// WithLogger sets the operational logger write failures are reported on
func WithLogger(logger *observability.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = logger }
}

// WithMetrics enables audit counters
func WithMetrics(metrics *observability.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = metrics }
}

// WithTracer overrides the tracer
func WithTracer(tracer trace.Tracer) RecorderOption {
	return func(r *Recorder) { r.tracer = tracer }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// Recorder writes and reads the audit trail. It is safe for concurrent use.
type Recorder struct {
	store    *Store
	policy   FailurePolicy
	redactor *Redactor
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer
	now      func() time.Time

	cleanupMu sync.Mutex
}

// NewRecorder creates a recorder over store
func NewRecorder(store *Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:  store,
		policy: FailurePolicy{Mode: FailureContinue},
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.redactor == nil {
		r.redactor = NewRedactor()
	}
	if r.tracer == nil {
		r.tracer = observability.Tracer()
	}
	r.logger = observability.OrNop(r.logger)
	return r
}

// Redactor returns the redactor applied to snapshots
func (r *Recorder) Redactor() *Redactor {
	return r.redactor
}

// LogAction records entry. Snapshots are redacted first. When the write fails
// the record is returned unsaved (ID 0) with a nil error, unless the failure
// policy makes it fatal.
func (r *Recorder) LogAction(ctx context.Context, entry Entry) (*AuditLog, error) {
	if err := entry.validate(); err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "audit.LogAction", trace.WithAttributes(
		attribute.String("audit.action", entry.Action),
		attribute.String("audit.entity_type", entry.EntityType),
	))
	defer span.End()

	log := r.build(ctx, entry)

	if err := r.store.Insert(ctx, log); err != nil {
		fatal := r.policy.fatal(entry)
		span.RecordError(err)
		span.SetStatus(codes.Error, "audit write failed")

		r.logger.WithError(err).WithFields(map[string]interface{}{
			"action":      log.Action,
			"entity_type": log.EntityType,
			"entity_id":   log.EntityID,
			"fatal":       fatal,
		}).Error("audit write failed")
		if r.metrics != nil {
			r.metrics.AuditWriteFailuresTotal.WithLabelValues(log.Action, strconv.FormatBool(fatal)).Inc()
		}

		if fatal {
			return log, fmt.Errorf("%w: %v", ErrAuditWriteFailure, err)
		}
		return log, nil
	}

	if r.metrics != nil {
		r.metrics.AuditWritesTotal.WithLabelValues(log.Action).Inc()
	}
	return log, nil
}

// build fills attribution from ctx where entry leaves it empty
func (r *Recorder) build(ctx context.Context, entry Entry) *AuditLog {
	log := &AuditLog{
		TenantID:   entry.TenantID,
		UserID:     entry.ActorID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		OldData:    r.redactor.Filter(entry.OldData),
		NewData:    r.redactor.Filter(entry.NewData),
		IPAddress:  entry.IPAddress,
		UserAgent:  entry.UserAgent,
		RequestID:  entry.RequestID,
		CreatedAt:  r.now(),
	}

	if log.UserID == nil {
		if id, ok := contextkeys.GetUserID(ctx); ok {
			log.UserID = &id
		}
	}
	if log.TenantID == nil {
		if scope, ok := tenant.FromContext(ctx); ok && scope.HasTenant() {
			id := scope.TenantID
			log.TenantID = &id
		}
	}
	if log.IPAddress == "" {
		log.IPAddress = contextkeys.GetClientIP(ctx)
	}
	if log.UserAgent == "" {
		log.UserAgent = contextkeys.GetUserAgent(ctx)
	}
	if log.RequestID == "" {
		log.RequestID = contextkeys.GetRequestID(ctx)
	}
	return log
}

// GetAuditTrail returns the history of one entity, oldest first, limited to
// the scope's tenant. System scopes see every tenant.
func (r *Recorder) GetAuditTrail(ctx context.Context, entityType, entityID string) ([]*AuditLog, error) {
	tenantID, err := scopeTenant(ctx)
	if err != nil {
		return nil, err
	}
	return r.store.Trail(ctx, entityType, entityID, tenantID)
}

// Search returns records matching filter within the scope's tenant
func (r *Recorder) Search(ctx context.Context, filter SearchFilter) ([]*AuditLog, error) {
	tenantID, err := scopeTenant(ctx)
	if err != nil {
		return nil, err
	}
	return r.store.Search(ctx, filter, tenantID)
}

// Export encodes the records matching filter
func (r *Recorder) Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error) {
	logs, err := r.Search(ctx, filter)
	if err != nil {
		return nil, err
	}
	return export(logs, format)
}

// CleanupOldLogs deletes records older than retentionYears and returns how
// many were removed. Concurrent calls run one at a time.
func (r *Recorder) CleanupOldLogs(ctx context.Context, retentionYears int) (int64, error) {
	if retentionYears < 1 {
		return 0, ErrInvalidRetention
	}

	r.cleanupMu.Lock()
	defer r.cleanupMu.Unlock()

	cutoff := r.now().AddDate(-retentionYears, 0, 0)
	deleted, err := r.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if r.metrics != nil {
		r.metrics.AuditRetentionDeleted.Add(float64(deleted))
	}
	r.logger.WithFields(map[string]interface{}{
		"cutoff":  cutoff.Format(time.RFC3339),
		"deleted": deleted,
	}).Info("audit retention cleanup finished")
	return deleted, nil
}

// scopeTenant returns the tenant filter for reads, nil for system scopes
func scopeTenant(ctx context.Context) (*int64, error) {
	scope, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	if scope.System {
		return nil, nil
	}
	id := scope.TenantID
	return &id, nil
}
