package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// ErrUnknownColumn is returned for filters or orderings on columns the mapper doesn't declare
var ErrUnknownColumn = errors.New("unknown column")

// Filter is an equality condition on a mapped column
type Filter struct {
	Column string
	Value  any
}

// ListOptions controls List queries
type ListOptions struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// RepositoryOption configures a Repository
type RepositoryOption func(*repositoryOptions)

type repositoryOptions struct {
	recorder EventRecorder
	logger   *observability.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// WithEventRecorder reports bypasses and violations to recorder
func WithEventRecorder(recorder EventRecorder) RepositoryOption {
	return func(o *repositoryOptions) { o.recorder = recorder }
}

// WithLogger sets the operational logger
func WithLogger(logger *observability.Logger) RepositoryOption {
	return func(o *repositoryOptions) { o.logger = logger }
}

// WithMetrics enables violation counters
func WithMetrics(metrics *observability.Metrics) RepositoryOption {
	return func(o *repositoryOptions) { o.metrics = metrics }
}

// WithClock overrides the time source used for timestamps
func WithClock(now func() time.Time) RepositoryOption {
	return func(o *repositoryOptions) { o.now = now }
}

// Repository reads and writes one tenant-aware entity type.
// Every statement it builds carries the caller's tenant filter unless the
// context holds an explicit system scope.
type Repository[T Entity] struct {
	db        *sql.DB
	mapper    Mapper[T]
	entity    string
	selectSQL string
	columns   map[string]struct{}
	updateIdx []int
	opts      repositoryOptions
}

// NewRepository validates mapper and returns a repository for it
func NewRepository[T Entity](db *sql.DB, mapper Mapper[T], opts ...RepositoryOption) (*Repository[T], error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if mapper.Table == "" || mapper.New == nil || mapper.Values == nil || mapper.Targets == nil {
		return nil, fmt.Errorf("mapper for %q is incomplete", mapper.Table)
	}

	o := repositoryOptions{
		recorder: noopRecorder{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = observability.OrNop(o.logger)

	createOnly := make(map[string]struct{}, len(mapper.CreateOnly))
	for _, c := range mapper.CreateOnly {
		createOnly[c] = struct{}{}
	}

	columns := map[string]struct{}{"id": {}, "tenant_id": {}}
	var updateIdx []int
	for i, c := range mapper.Columns {
		columns[c] = struct{}{}
		if _, skip := createOnly[c]; !skip {
			updateIdx = append(updateIdx, i)
		}
	}

	selectCols := append([]string{"id", "tenant_id"}, mapper.Columns...)

	return &Repository[T]{
		db:        db,
		mapper:    mapper,
		entity:    mapper.New().EntityType(),
		selectSQL: fmt.Sprintf("SELECT %s FROM %s", strings.Join(selectCols, ", "), mapper.Table),
		columns:   columns,
		updateIdx: updateIdx,
		opts:      o,
	}, nil
}

// EntityType returns the entity type this repository serves
func (r *Repository[T]) EntityType() string {
	return r.entity
}

// Get returns the entity with id inside the caller's tenant.
// Rows of other tenants are reported exactly like missing rows.
func (r *Repository[T]) Get(ctx context.Context, id int64) (T, error) {
	var zero T

	scope, err := Require(ctx)
	if err != nil {
		return zero, err
	}

	query := r.selectSQL + " WHERE id = $1"
	args := []any{id}
	if !scope.System {
		query += " AND tenant_id = $2"
		args = append(args, scope.TenantID)
	}

	entity := r.mapper.New()
	err = r.db.QueryRowContext(ctx, query, args...).Scan(r.targets(entity)...)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, fmt.Errorf("%s %d: %w", r.entity, id, ErrNotFound)
	}
	if err != nil {
		return zero, fmt.Errorf("failed to get %s: %w", r.entity, err)
	}

	if scope.System {
		r.bypass(ctx, scope, "get", id, entity.GetTenantID())
	}
	return entity, nil
}

// List returns the caller's entities matching opts
func (r *Repository[T]) List(ctx context.Context, opts ListOptions) ([]T, error) {
	scope, err := Require(ctx)
	if err != nil {
		return nil, err
	}

	where, args, err := r.where(scope, opts.Filters)
	if err != nil {
		return nil, err
	}

	orderBy := "id"
	if opts.OrderBy != "" {
		if _, ok := r.columns[opts.OrderBy]; !ok {
			return nil, fmt.Errorf("order by %q: %w", opts.OrderBy, ErrUnknownColumn)
		}
		orderBy = opts.OrderBy
	}
	direction := "ASC"
	if opts.Desc {
		direction = "DESC"
	}

	query := fmt.Sprintf("%s%s ORDER BY %s %s, id %s", r.selectSQL, where, orderBy, direction, direction)
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
		if opts.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", opts.Offset)
		}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.entity, err)
	}
	defer rows.Close()

	var result []T
	for rows.Next() {
		entity := r.mapper.New()
		if err := rows.Scan(r.targets(entity)...); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", r.entity, err)
		}
		result = append(result, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.entity, err)
	}

	if scope.System {
		r.bypass(ctx, scope, "list", 0, 0)
	}
	return result, nil
}

// Count returns the number of the caller's entities matching filters
func (r *Repository[T]) Count(ctx context.Context, filters ...Filter) (int64, error) {
	scope, err := Require(ctx)
	if err != nil {
		return 0, err
	}

	where, args, err := r.where(scope, filters)
	if err != nil {
		return 0, err
	}

	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", r.mapper.Table, where)
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", r.entity, err)
	}

	if scope.System {
		r.bypass(ctx, scope, "count", 0, 0)
	}
	return count, nil
}

// Create stamps the caller's tenant on entity and inserts it.
// An explicit tenant different from the caller's is rejected, never corrected.
func (r *Repository[T]) Create(ctx context.Context, entity T) error {
	scope, err := Require(ctx)
	if err != nil {
		return err
	}

	switch {
	case entity.GetTenantID() == 0 && scope.System:
		return fmt.Errorf("create %s: %w", r.entity, ErrTenantRequired)
	case entity.GetTenantID() == 0:
		entity.SetTenantID(scope.TenantID)
	case !scope.System && entity.GetTenantID() != scope.TenantID:
		r.violation(ctx, scope, "create", 0, entity.GetTenantID())
		return fmt.Errorf("create %s: %w", r.entity, ErrTenantMismatch)
	}

	if t, ok := any(entity).(toucher); ok {
		t.Touch(r.opts.now())
	}

	cols := append([]string{"tenant_id"}, r.mapper.Columns...)
	args := append([]any{entity.GetTenantID()}, r.mapper.Values(entity)...)

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		r.mapper.Table, strings.Join(cols, ", "), placeholders(1, len(cols)))

	var id int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return fmt.Errorf("failed to create %s: %w", r.entity, err)
	}
	entity.SetID(id)

	if scope.System {
		r.bypass(ctx, scope, "create", id, entity.GetTenantID())
	}
	return nil
}

// Update writes entity's mutable columns. tenant_id is never part of the SET
// clause, and the WHERE clause is bound to the caller's tenant.
func (r *Repository[T]) Update(ctx context.Context, entity T) error {
	scope, err := Require(ctx)
	if err != nil {
		return err
	}

	if !scope.System {
		switch entity.GetTenantID() {
		case 0:
			entity.SetTenantID(scope.TenantID)
		case scope.TenantID:
		default:
			r.violation(ctx, scope, "update", entity.GetID(), entity.GetTenantID())
			return fmt.Errorf("update %s %d: %w", r.entity, entity.GetID(), ErrTenantMismatch)
		}
	}

	if t, ok := any(entity).(toucher); ok {
		t.Touch(r.opts.now())
	}

	values := r.mapper.Values(entity)
	sets := make([]string, 0, len(r.updateIdx))
	args := make([]any, 0, len(r.updateIdx)+2)
	for n, i := range r.updateIdx {
		sets = append(sets, fmt.Sprintf("%s = $%d", r.mapper.Columns[i], n+1))
		args = append(args, values[i])
	}

	args = append(args, entity.GetID())
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", r.mapper.Table, strings.Join(sets, ", "), len(args))
	if !scope.System {
		args = append(args, scope.TenantID)
		query += fmt.Sprintf(" AND tenant_id = $%d", len(args))
	}

	if err := r.execOne(ctx, query, args, "update", entity.GetID()); err != nil {
		return err
	}

	if scope.System {
		r.bypass(ctx, scope, "update", entity.GetID(), entity.GetTenantID())
	}
	return nil
}

// Delete removes the entity with id inside the caller's tenant
func (r *Repository[T]) Delete(ctx context.Context, id int64) error {
	scope, err := Require(ctx)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", r.mapper.Table)
	args := []any{id}
	if !scope.System {
		query += " AND tenant_id = $2"
		args = append(args, scope.TenantID)
	}

	if err := r.execOne(ctx, query, args, "delete", id); err != nil {
		return err
	}

	if scope.System {
		r.bypass(ctx, scope, "delete", id, 0)
	}
	return nil
}

func (r *Repository[T]) execOne(ctx context.Context, query string, args []any, op string, id int64) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", op, r.entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", op, r.entity, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s %d: %w", op, r.entity, id, ErrNotFound)
	}
	return nil
}

func (r *Repository[T]) where(scope Scope, filters []Filter) (string, []any, error) {
	var conds []string
	var args []any

	if !scope.System {
		args = append(args, scope.TenantID)
		conds = append(conds, "tenant_id = $1")
	}

	for _, f := range filters {
		if _, ok := r.columns[f.Column]; !ok {
			return "", nil, fmt.Errorf("filter %q: %w", f.Column, ErrUnknownColumn)
		}
		args = append(args, f.Value)
		conds = append(conds, fmt.Sprintf("%s = $%d", f.Column, len(args)))
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func (r *Repository[T]) targets(entity T) []any {
	return append([]any{scanInt64(entity.SetID), scanInt64(entity.SetTenantID)}, r.mapper.Targets(entity)...)
}

func (r *Repository[T]) bypass(ctx context.Context, scope Scope, op string, id, tenantID int64) {
	event := Event{
		Operation:  op,
		EntityType: r.entity,
		EntityID:   id,
		TenantID:   tenantID,
		SubjectID:  scope.SubjectID,
		Reason:     scope.Reason,
	}
	r.opts.logger.WithFields(map[string]interface{}{
		"operation":   op,
		"entity_type": r.entity,
		"entity_id":   id,
		"subject_id":  scope.SubjectID,
		"reason":      scope.Reason,
	}).Info("tenant scope bypassed")
	r.opts.recorder.RecordBypass(ctx, event)
}

func (r *Repository[T]) violation(ctx context.Context, scope Scope, op string, id, tenantID int64) {
	event := Event{
		Operation:     op,
		EntityType:    r.entity,
		EntityID:      id,
		TenantID:      tenantID,
		ScopeTenantID: scope.TenantID,
		SubjectID:     scope.SubjectID,
	}
	r.opts.logger.WithFields(map[string]interface{}{
		"operation":       op,
		"entity_type":     r.entity,
		"entity_id":       id,
		"target_tenant":   tenantID,
		"scope_tenant_id": scope.TenantID,
		"subject_id":      scope.SubjectID,
	}).Warn("cross-tenant write rejected")
	if r.opts.metrics != nil {
		r.opts.metrics.TenantViolations.WithLabelValues(r.entity, op).Inc()
	}
	r.opts.recorder.RecordViolation(ctx, event)
}

// scanInt64 forwards a scanned integer column to a setter
type scanInt64 func(int64)

func (s scanInt64) Scan(src any) error {
	var n sql.NullInt64
	if err := n.Scan(src); err != nil {
		return err
	}
	s(n.Int64)
	return nil
}

func placeholders(start, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(ph, ", ")
}
