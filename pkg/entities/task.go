package entities

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

// Task statuses
const (
	TaskOpen       = "open"
	TaskInProgress = "in_progress"
	TaskDone       = "done"
)

// Task is a unit of work inside a project
type Task struct {
	ID         int64  `json:"id"`
	TenantID   int64  `json:"tenant_id"`
	ProjectID  int64  `json:"project_id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	AssigneeID *int64 `json:"assignee_id,omitempty"`
	CreatedBy  int64  `json:"created_by"`
	tenant.Timestamps
}

func (t *Task) EntityType() string   { return TypeTask }
func (t *Task) GetID() int64         { return t.ID }
func (t *Task) SetID(id int64)       { t.ID = id }
func (t *Task) GetTenantID() int64   { return t.TenantID }
func (t *Task) SetTenantID(id int64) { t.TenantID = id }
func (t *Task) OwnerID() int64       { return t.CreatedBy }

// IsAssignedTo reports whether subjectID is the assignee
func (t *Task) IsAssignedTo(subjectID int64) bool {
	return t.AssigneeID != nil && *t.AssigneeID == subjectID
}

// Validate normalizes and checks the task
func (t *Task) Validate() error {
	t.Title = strings.TrimSpace(t.Title)
	switch {
	case t.Title == "":
		return errors.Join(ErrInvalid, errors.New("title is required"))
	case t.ProjectID <= 0:
		return errors.Join(ErrInvalid, errors.New("project_id is required"))
	}
	switch t.Status {
	case "":
		t.Status = TaskOpen
	case TaskOpen, TaskInProgress, TaskDone:
	default:
		return errors.Join(ErrInvalid, errors.New("unknown status "+t.Status))
	}
	return nil
}

// Snapshot returns the audited view of the task
func (t *Task) Snapshot() map[string]any {
	snap := map[string]any{
		"project_id": t.ProjectID,
		"title":      t.Title,
		"status":     t.Status,
		"created_by": t.CreatedBy,
	}
	if t.AssigneeID != nil {
		snap["assignee_id"] = *t.AssigneeID
	}
	return snap
}

// TaskMapper maps Task onto the tasks table
var TaskMapper = tenant.Mapper[*Task]{
	Table:      "tasks",
	Columns:    []string{"project_id", "title", "status", "assignee_id", "created_by", "created_at", "updated_at"},
	CreateOnly: []string{"project_id", "created_by", "created_at"},
	New:        func() *Task { return &Task{} },
	Values: func(t *Task) []any {
		return []any{t.ProjectID, t.Title, t.Status, nullInt64(t.AssigneeID), t.CreatedBy, t.CreatedAt, t.UpdatedAt}
	},
	Targets: func(t *Task) []any {
		return []any{&t.ProjectID, &t.Title, &t.Status, optionalInt64{&t.AssigneeID}, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt}
	},
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// optionalInt64 scans a nullable integer column into a *int64 field
type optionalInt64 struct {
	dst **int64
}

func (o optionalInt64) Scan(src any) error {
	var n sql.NullInt64
	if err := n.Scan(src); err != nil {
		return err
	}
	if !n.Valid {
		*o.dst = nil
		return nil
	}
	v := n.Int64
	*o.dst = &v
	return nil
}
