package rbac

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

const (
	DefaultCacheSize = 4096
	DefaultCacheTTL  = time.Minute
)

// cacheKey identifies an effective permission set. hasTenant separates a
// nil tenant from tenant 0.
type cacheKey struct {
	subjectID int64
	tenantID  int64
	hasTenant bool
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithCache sets the size and ttl of the effective permission cache.
// A ttl of zero disables caching.
func WithCache(size int, ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.cacheSize = size
		r.cacheTTL = ttl
	}
}

// WithLogger sets the logger storage errors are reported on
func WithLogger(logger *observability.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// WithMetrics enables cache hit/miss counters
func WithMetrics(metrics *observability.Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = metrics }
}

// Resolver answers "does subject X have permission Y in tenant T".
// It is safe for concurrent use.
type Resolver struct {
	store     *Store
	cache     *lru.LRU[cacheKey, PermissionSet]
	cacheSize int
	cacheTTL  time.Duration
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewResolver creates a resolver over store
func NewResolver(store *Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:     store,
		cacheSize: DefaultCacheSize,
		cacheTTL:  DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = observability.OrNop(r.logger)

	if r.cacheTTL > 0 {
		r.cache = lru.NewLRU[cacheKey, PermissionSet](r.cacheSize, nil, r.cacheTTL)
	}
	return r
}

// Store returns the underlying store
func (r *Resolver) Store() *Store {
	return r.store
}

// EffectivePermissions returns the union of the permissions of every role
// assigned to subjectID that is either system-scoped or bound to tenantID.
// A nil tenantID yields system roles only.
func (r *Resolver) EffectivePermissions(ctx context.Context, subjectID int64, tenantID *int64) (PermissionSet, error) {
	key := cacheKey{subjectID: subjectID}
	if tenantID != nil {
		key.tenantID = *tenantID
		key.hasTenant = true
	}

	if r.cache != nil {
		if set, ok := r.cache.Get(key); ok {
			if r.metrics != nil {
				r.metrics.PermissionCacheHits.Inc()
			}
			return set, nil
		}
		if r.metrics != nil {
			r.metrics.PermissionCacheMiss.Inc()
		}
	}

	codes, err := r.store.PermissionCodes(ctx, subjectID, tenantID)
	if err != nil {
		return nil, err
	}
	set := NewPermissionSet(codes...)

	if r.cache != nil {
		r.cache.Add(key, set)
	}
	return set, nil
}

// HasPermission reports whether subjectID holds code in tenantID. It returns
// false for an absent subject, a malformed code, or a storage failure.
func (r *Resolver) HasPermission(ctx context.Context, subjectID int64, tenantID *int64, code string) bool {
	if subjectID == 0 || !ValidCode(code) {
		return false
	}

	set, err := r.EffectivePermissions(ctx, subjectID, tenantID)
	if err != nil {
		r.logger.WithError(err).WithFields(map[string]interface{}{
			"subject_id": subjectID,
			"permission": code,
		}).Error("permission lookup failed")
		return false
	}
	return set.Has(code)
}

// AssignRole assigns a role and drops the subject's cached sets
func (r *Resolver) AssignRole(ctx context.Context, userID, roleID int64, grantedBy *int64) error {
	if err := r.store.AssignRole(ctx, userID, roleID, grantedBy); err != nil {
		return err
	}
	r.Invalidate(userID)
	return nil
}

// RevokeRole revokes a role and drops the subject's cached sets
func (r *Resolver) RevokeRole(ctx context.Context, userID, roleID int64) error {
	if err := r.store.RevokeRole(ctx, userID, roleID); err != nil {
		return err
	}
	r.Invalidate(userID)
	return nil
}

// AttachPermission changes a role, which may affect any subject, so the whole cache is purged
func (r *Resolver) AttachPermission(ctx context.Context, roleID int64, code string) error {
	if err := r.store.AttachPermission(ctx, roleID, code); err != nil {
		return err
	}
	r.Purge()
	return nil
}

// DetachPermission removes a grant and purges the cache
func (r *Resolver) DetachPermission(ctx context.Context, roleID int64, code string) error {
	if err := r.store.DetachPermission(ctx, roleID, code); err != nil {
		return err
	}
	r.Purge()
	return nil
}

// DeleteRole removes a role with its grants and assignments and purges the cache
func (r *Resolver) DeleteRole(ctx context.Context, roleID int64) error {
	if err := r.store.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	r.Purge()
	return nil
}

// Invalidate drops every cached set of subjectID
func (r *Resolver) Invalidate(subjectID int64) {
	if r.cache == nil {
		return
	}
	for _, key := range r.cache.Keys() {
		if key.subjectID == subjectID {
			r.cache.Remove(key)
		}
	}
}

// Purge empties the cache
func (r *Resolver) Purge() {
	if r.cache != nil {
		r.cache.Purge()
	}
}
