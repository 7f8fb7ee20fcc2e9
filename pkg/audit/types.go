package audit

import (
	"errors"
	"strings"
	"time"
)

// Actions recorded by the core. Handlers may record others.
const (
	ActionCreated        = "created"
	ActionUpdated        = "updated"
	ActionDeleted        = "deleted"
	ActionLogin          = "login"
	ActionLoginFailed    = "login_failed"
	ActionLogout         = "logout"
	ActionTokenRefreshed = "token_refreshed"
	ActionTenantBypass   = "tenant.bypass"
	ActionTenantMismatch = "tenant.mismatch"
	ActionTenantAssumed  = "tenant.assumed"
	ActionRoleAssigned   = "role.assigned"
	ActionRoleRevoked    = "role.revoked"
	ActionSessionsEnded  = "sessions.revoked"
	ActionDeactivated    = "user.deactivated"
)

var (
	// ErrAuditWriteFailure is returned when a record could not be persisted
	// and the failure policy treats that as fatal
	ErrAuditWriteFailure = errors.New("audit write failed")
	// ErrInvalidRetention is returned for a retention period under one year
	ErrInvalidRetention = errors.New("retention must be at least one year")
	// ErrInvalidEntry is returned for entries missing action or entity
	ErrInvalidEntry = errors.New("invalid audit entry")
	// ErrUnsupportedFormat is returned by Export for unknown formats
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

// AuditLog is a persisted audit record. Records are append-only.
type AuditLog struct {
	ID         int64          `json:"id"`
	TenantID   *int64         `json:"tenant_id,omitempty"`
	UserID     *int64         `json:"user_id,omitempty"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	OldData    map[string]any `json:"old_data,omitempty"`
	NewData    map[string]any `json:"new_data,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Entry is what callers hand to LogAction. Empty attribution fields are
// filled from the request context.
type Entry struct {
	ActorID    *int64
	TenantID   *int64
	Action     string
	EntityType string
	EntityID   string
	OldData    map[string]any
	NewData    map[string]any
	IPAddress  string
	UserAgent  string
	RequestID  string
	// Critical makes a write failure fatal for this call
	Critical bool
}

func (e Entry) validate() error {
	switch {
	case strings.TrimSpace(e.Action) == "":
		return errors.Join(ErrInvalidEntry, errors.New("action is required"))
	case strings.TrimSpace(e.EntityType) == "":
		return errors.Join(ErrInvalidEntry, errors.New("entity_type is required"))
	case strings.TrimSpace(e.EntityID) == "":
		return errors.Join(ErrInvalidEntry, errors.New("entity_id is required"))
	}
	return nil
}

// SearchFilter narrows Search results. Results are always limited to the
// caller's tenant unless the scope is a system scope.
type SearchFilter struct {
	UserID     *int64
	Actions    []string
	EntityType string
	EntityID   string
	StartTime  *time.Time
	EndTime    *time.Time

	Limit  int
	Offset int
}

// ExportFormat is the encoding used by Export
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson"
)
