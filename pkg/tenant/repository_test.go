package tenant

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/storage"
)

// project is a minimal tenant-aware entity stored in the projects table
type project struct {
	ID          int64
	TenantID    int64
	Name        string
	Description string
	Status      string
	CreatedBy   int64
	Timestamps
}

func (p *project) EntityType() string   { return "project" }
func (p *project) GetID() int64         { return p.ID }
func (p *project) SetID(id int64)       { p.ID = id }
func (p *project) GetTenantID() int64   { return p.TenantID }
func (p *project) SetTenantID(id int64) { p.TenantID = id }

var projectMapper = Mapper[*project]{
	Table:      "projects",
	Columns:    []string{"name", "description", "status", "created_by", "created_at", "updated_at"},
	CreateOnly: []string{"created_by", "created_at"},
	New:        func() *project { return &project{} },
	Values: func(p *project) []any {
		return []any{p.Name, p.Description, p.Status, p.CreatedBy, p.CreatedAt, p.UpdatedAt}
	},
	Targets: func(p *project) []any {
		return []any{&p.Name, &p.Description, &p.Status, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt}
	},
}

type recordingRecorder struct {
	mu         sync.Mutex
	bypasses   []Event
	violations []Event
}

func (r *recordingRecorder) RecordBypass(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bypasses = append(r.bypasses, e)
}

func (r *recordingRecorder) RecordViolation(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.violations = append(r.violations, e)
}

func setupRepo(t *testing.T) (*Repository[*project], *recordingRecorder, *sql.DB) {
	t.Helper()
	db := storage.OpenTestDB(t)
	rec := &recordingRecorder{}
	repo, err := NewRepository(db, projectMapper, WithEventRecorder(rec))
	require.NoError(t, err)
	return repo, rec, db
}

const (
	tenantA = int64(1)
	tenantB = int64(2)
)

func TestNewRepository_Validation(t *testing.T) {
	db := storage.OpenTestDB(t)

	_, err := NewRepository(nil, projectMapper)
	assert.Error(t, err)

	_, err = NewRepository(db, Mapper[*project]{Table: "projects"})
	assert.ErrorContains(t, err, "incomplete")
}

func TestRepository_RequiresScope(t *testing.T) {
	repo, _, _ := setupRepo(t)
	ctx := context.Background()

	_, err := repo.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNoTenantContext)

	_, err = repo.List(ctx, ListOptions{})
	assert.ErrorIs(t, err, ErrNoTenantContext)

	err = repo.Create(ctx, &project{Name: "x"})
	assert.ErrorIs(t, err, ErrNoTenantContext)

	err = repo.Create(AsSystem(ctx, 9, ""), &project{Name: "x", TenantID: tenantA})
	assert.ErrorIs(t, err, ErrBypassReasonRequired)
}

func TestRepository_AlphaScenario(t *testing.T) {
	repo, _, _ := setupRepo(t)
	ctxA := ForTenant(context.Background(), tenantA, 10)
	ctxB := ForTenant(context.Background(), tenantB, 20)

	alpha := &project{Name: "Alpha", Status: "active", CreatedBy: 10}
	require.NoError(t, repo.Create(ctxA, alpha))
	assert.Equal(t, int64(1), alpha.ID)
	assert.Equal(t, tenantA, alpha.TenantID)
	assert.False(t, alpha.CreatedAt.IsZero())

	_, err := repo.Get(ctxB, alpha.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, missingErr := repo.Get(ctxB, 999)
	assert.ErrorIs(t, missingErr, ErrNotFound)

	got, err := repo.Get(ctxA, alpha.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alpha", got.Name)
	assert.Equal(t, tenantA, got.TenantID)
	assert.Equal(t, int64(10), got.CreatedBy)
}

func TestRepository_ListAndCountAreScoped(t *testing.T) {
	repo, _, _ := setupRepo(t)
	ctxA := ForTenant(context.Background(), tenantA, 10)
	ctxB := ForTenant(context.Background(), tenantB, 20)

	for _, name := range []string{"a1", "a2", "a3"} {
		require.NoError(t, repo.Create(ctxA, &project{Name: name, Status: "active", CreatedBy: 10}))
	}
	require.NoError(t, repo.Create(ctxB, &project{Name: "b1", Status: "archived", CreatedBy: 20}))

	list, err := repo.List(ctxA, ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	for _, p := range list {
		assert.Equal(t, tenantA, p.TenantID)
	}

	list, err = repo.List(ctxB, ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b1", list[0].Name)

	// filtering on another tenant's id never widens the result
	list, err = repo.List(ctxA, ListOptions{Filters: []Filter{{Column: "tenant_id", Value: tenantB}}})
	require.NoError(t, err)
	assert.Empty(t, list)

	count, err := repo.Count(ctxA)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	count, err = repo.Count(ctxA, Filter{Column: "status", Value: "archived"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestRepository_ListOptions(t *testing.T) {
	repo, _, _ := setupRepo(t)
	ctx := ForTenant(context.Background(), tenantA, 10)

	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, repo.Create(ctx, &project{Name: name, Status: "active", CreatedBy: 10}))
	}

	list, err := repo.List(ctx, ListOptions{OrderBy: "name"})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{list[0].Name, list[1].Name, list[2].Name})

	list, err = repo.List(ctx, ListOptions{OrderBy: "name", Desc: true, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].Name)

	_, err = repo.List(ctx, ListOptions{OrderBy: "name; DROP TABLE projects"})
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = repo.List(ctx, ListOptions{Filters: []Filter{{Column: "secret", Value: 1}}})
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestRepository_CreateRejectsForeignTenant(t *testing.T) {
	repo, rec, db := setupRepo(t)
	ctxA := ForTenant(context.Background(), tenantA, 10)

	err := repo.Create(ctxA, &project{Name: "sneaky", TenantID: tenantB, CreatedBy: 10})
	assert.ErrorIs(t, err, ErrTenantMismatch)
	assert.True(t, IsDenied(err))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM projects").Scan(&count))
	assert.Equal(t, 0, count)

	require.Len(t, rec.violations, 1)
	assert.Equal(t, "create", rec.violations[0].Operation)
	assert.Equal(t, tenantB, rec.violations[0].TenantID)
	assert.Equal(t, tenantA, rec.violations[0].ScopeTenantID)

	// matching explicit tenant is accepted
	require.NoError(t, repo.Create(ctxA, &project{Name: "ok", TenantID: tenantA, CreatedBy: 10}))
}

func TestRepository_UpdateAndDeleteAcrossTenants(t *testing.T) {
	repo, rec, _ := setupRepo(t)
	ctxA := ForTenant(context.Background(), tenantA, 10)
	ctxB := ForTenant(context.Background(), tenantB, 20)

	p := &project{Name: "Alpha", Status: "active", CreatedBy: 10}
	require.NoError(t, repo.Create(ctxA, p))

	// B loaded nothing, but tries to write by id with its own tenant
	hijack := &project{ID: p.ID, Name: "pwned", Status: "active"}
	err := repo.Update(ctxB, hijack)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsDenied(err))

	// B passes the row as loaded elsewhere, tenant id intact
	foreign := &project{ID: p.ID, TenantID: tenantA, Name: "pwned", Status: "active"}
	err = repo.Update(ctxB, foreign)
	assert.ErrorIs(t, err, ErrTenantMismatch)
	assert.Len(t, rec.violations, 1)

	err = repo.Delete(ctxB, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := repo.Get(ctxA, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alpha", got.Name)
}

func TestRepository_UpdateKeepsTenantAndCreateOnlyColumns(t *testing.T) {
	repo, _, db := setupRepo(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	repo.opts.now = func() time.Time { return now }
	ctx := ForTenant(context.Background(), tenantA, 10)

	p := &project{Name: "Alpha", Status: "active", CreatedBy: 10}
	require.NoError(t, repo.Create(ctx, p))

	later := now.Add(time.Hour)
	repo.opts.now = func() time.Time { return later }

	p.Name = "Alpha v2"
	p.CreatedBy = 99
	require.NoError(t, repo.Update(ctx, p))

	got, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alpha v2", got.Name)
	assert.Equal(t, int64(10), got.CreatedBy)
	assert.True(t, got.CreatedAt.Equal(now))
	assert.True(t, got.UpdatedAt.Equal(later))

	var tenantID int64
	require.NoError(t, db.QueryRow("SELECT tenant_id FROM projects WHERE id = $1", p.ID).Scan(&tenantID))
	assert.Equal(t, tenantA, tenantID)
}

func TestRepository_Delete(t *testing.T) {
	repo, _, _ := setupRepo(t)
	ctx := ForTenant(context.Background(), tenantA, 10)

	p := &project{Name: "Alpha", CreatedBy: 10}
	require.NoError(t, repo.Create(ctx, p))
	require.NoError(t, repo.Delete(ctx, p.ID))

	_, err := repo.Get(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, p.ID), ErrNotFound)
}

func TestRepository_SystemScope(t *testing.T) {
	repo, rec, _ := setupRepo(t)
	ctxA := ForTenant(context.Background(), tenantA, 10)
	ctxB := ForTenant(context.Background(), tenantB, 20)
	sys := AsSystem(context.Background(), 1, "support ticket 42")

	require.NoError(t, repo.Create(ctxA, &project{Name: "a", CreatedBy: 10}))
	require.NoError(t, repo.Create(ctxB, &project{Name: "b", CreatedBy: 20}))
	assert.Empty(t, rec.bypasses)

	list, err := repo.List(sys, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	err = repo.Create(sys, &project{Name: "orphan", CreatedBy: 1})
	assert.ErrorIs(t, err, ErrTenantRequired)

	p := &project{Name: "provisioned", TenantID: tenantB, CreatedBy: 1}
	require.NoError(t, repo.Create(sys, p))

	got, err := repo.Get(ctxB, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "provisioned", got.Name)

	require.Len(t, rec.bypasses, 2)
	assert.Equal(t, "list", rec.bypasses[0].Operation)
	assert.Equal(t, "create", rec.bypasses[1].Operation)
	assert.Equal(t, "support ticket 42", rec.bypasses[1].Reason)
	assert.Equal(t, int64(1), rec.bypasses[1].SubjectID)
	assert.Equal(t, tenantB, rec.bypasses[1].TenantID)
}

func TestRepository_ConcurrentTenants(t *testing.T) {
	repo, _, _ := setupRepo(t)

	var wg sync.WaitGroup
	for _, tid := range []int64{tenantA, tenantB} {
		wg.Add(1)
		go func(tid int64) {
			defer wg.Done()
			ctx := ForTenant(context.Background(), tid, tid*10)
			for i := 0; i < 10; i++ {
				assert.NoError(t, repo.Create(ctx, &project{Name: "p", CreatedBy: tid * 10}))
			}
		}(tid)
	}
	wg.Wait()

	for _, tid := range []int64{tenantA, tenantB} {
		list, err := repo.List(ForTenant(context.Background(), tid, 0), ListOptions{})
		require.NoError(t, err)
		assert.Len(t, list, 10)
		for _, p := range list {
			assert.Equal(t, tid, p.TenantID)
		}
	}
}
