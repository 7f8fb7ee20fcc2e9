package tenant

import (
	"context"
	"time"
)

// Entity is the capability every tenant-aware domain type implements.
// The repository relies on it instead of per-type special cases.
type Entity interface {
	EntityType() string
	GetID() int64
	SetID(id int64)
	GetTenantID() int64
	SetTenantID(id int64)
}

// Timestamps can be embedded by entities that track created_at/updated_at
type Timestamps struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Touch sets CreatedAt on first call and UpdatedAt on every call
func (t *Timestamps) Touch(now time.Time) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
}

type toucher interface {
	Touch(now time.Time)
}

// Mapper describes how an entity type maps onto its table.
// Columns exclude id and tenant_id, which the repository manages itself.
type Mapper[T Entity] struct {
	Table   string
	Columns []string
	// CreateOnly lists columns written on insert and never updated, e.g. created_by
	CreateOnly []string
	New        func() T
	// Values returns column values in Columns order
	Values func(T) []any
	// Targets returns scan destinations in Columns order
	Targets func(T) []any
}

// Event describes a scope bypass or a rejected cross-tenant access
type Event struct {
	Operation     string
	EntityType    string
	EntityID      int64
	TenantID      int64
	ScopeTenantID int64
	SubjectID     int64
	Reason        string
}

// EventRecorder receives security-relevant scope events
type EventRecorder interface {
	RecordBypass(ctx context.Context, event Event)
	RecordViolation(ctx context.Context, event Event)
}

type noopRecorder struct{}

func (noopRecorder) RecordBypass(context.Context, Event)    {}
func (noopRecorder) RecordViolation(context.Context, Event) {}
