package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/middleware"
	"github.com/platinummonkey/tenantguard/pkg/policy"
	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// snapshotter is implemented by every audited entity
type snapshotter interface {
	tenant.Entity
	Snapshot() map[string]any
}

type getter[T tenant.Entity] interface {
	Get(ctx context.Context, id int64) (T, error)
}

// authorizeType checks a type-level action and writes the error response on denial
func authorizeType(w http.ResponseWriter, r *http.Request, engine *policy.Engine, action, entityType string) (*policy.Subject, bool) {
	subject := middleware.SubjectFromContext(r.Context())
	if subject == nil {
		httputil.WriteUnauthorized(w, httputil.MsgUnauthenticated)
		return nil, false
	}
	if err := engine.Require(r.Context(), subject, action, entityType, nil); err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return subject, true
}

// loadAuthorized fetches the entity named by the {id} path variable and
// checks action on it. Entities of other tenants are never found.
func loadAuthorized[T tenant.Entity](w http.ResponseWriter, r *http.Request, repo getter[T], engine *policy.Engine, action string) (T, *policy.Subject, bool) {
	var zero T
	subject := middleware.SubjectFromContext(r.Context())
	if subject == nil {
		httputil.WriteUnauthorized(w, httputil.MsgUnauthenticated)
		return zero, nil, false
	}

	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteNotFound(w)
		return zero, nil, false
	}

	entity, err := repo.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return zero, nil, false
	}
	if err := engine.Require(r.Context(), subject, action, entity.EntityType(), entity); err != nil {
		writeError(w, r, err)
		return zero, nil, false
	}
	return entity, subject, true
}

// pageOptions reads limit and offset query parameters
func pageOptions(r *http.Request) (tenant.ListOptions, error) {
	limit, err := httputil.ParseQueryInt(r, "limit", defaultPageSize)
	if err != nil {
		return tenant.ListOptions{}, err
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		return tenant.ListOptions{}, err
	}
	if limit <= 0 || limit > maxPageSize || offset < 0 {
		return tenant.ListOptions{}, errInvalidPage
	}
	return tenant.ListOptions{OrderBy: "id", Limit: limit, Offset: offset}, nil
}

// recordChange audits a mutation of entity. old and new are snapshots taken
// around the change; either may be nil. The error is non-nil only when the
// recorder's failure policy makes the write fatal.
func recordChange(r *http.Request, recorder *audit.Recorder, action string, entity snapshotter, old, new map[string]any) error {
	tenantID := entity.GetTenantID()
	_, err := recorder.LogAction(r.Context(), audit.Entry{
		TenantID:   &tenantID,
		Action:     action,
		EntityType: entity.EntityType(),
		EntityID:   strconv.FormatInt(entity.GetID(), 10),
		OldData:    old,
		NewData:    new,
	})
	return err
}
