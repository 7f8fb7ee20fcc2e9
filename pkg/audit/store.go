package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Store persists audit records in the audit_logs table
type Store struct {
	db *sql.DB
}

// NewStore creates a new audit store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const auditColumns = `id, tenant_id, user_id, action, entity_type, entity_id, old_data, new_data,
	ip_address, user_agent, request_id, created_at`

// Insert appends log and sets its ID
func (s *Store) Insert(ctx context.Context, log *AuditLog) error {
	oldData, err := marshalData(log.OldData)
	if err != nil {
		return fmt.Errorf("failed to marshal old data: %w", err)
	}
	newData, err := marshalData(log.NewData)
	if err != nil {
		return fmt.Errorf("failed to marshal new data: %w", err)
	}

	query := `
		INSERT INTO audit_logs (
			tenant_id, user_id, action, entity_type, entity_id, old_data, new_data,
			ip_address, user_agent, request_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query,
		log.TenantID, log.UserID, log.Action, log.EntityType, log.EntityID, oldData, newData,
		log.IPAddress, log.UserAgent, log.RequestID, log.CreatedAt,
	).Scan(&log.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// Trail returns the records of one entity, oldest first. A nil tenantID
// returns records of every tenant.
func (s *Store) Trail(ctx context.Context, entityType, entityID string, tenantID *int64) ([]*AuditLog, error) {
	return s.Search(ctx, SearchFilter{EntityType: entityType, EntityID: entityID}, tenantID)
}

// Search returns records matching filter, oldest first. A nil tenantID
// searches every tenant.
func (s *Store) Search(ctx context.Context, filter SearchFilter, tenantID *int64) ([]*AuditLog, error) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if tenantID != nil {
		add("tenant_id = $%d", *tenantID)
	}
	if filter.UserID != nil {
		add("user_id = $%d", *filter.UserID)
	}
	if filter.EntityType != "" {
		add("entity_type = $%d", filter.EntityType)
	}
	if filter.EntityID != "" {
		add("entity_id = $%d", filter.EntityID)
	}
	if filter.StartTime != nil {
		add("created_at >= $%d", filter.StartTime.UTC())
	}
	if filter.EndTime != nil {
		add("created_at <= $%d", filter.EndTime.UTC())
	}
	if len(filter.Actions) > 0 {
		marks := make([]string, len(filter.Actions))
		for i, action := range filter.Actions {
			args = append(args, action)
			marks[i] = fmt.Sprintf("$%d", len(args))
		}
		conds = append(conds, "action IN ("+strings.Join(marks, ", ")+")")
	}

	query := "SELECT " + auditColumns + " FROM audit_logs"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		if filter.Offset > 0 {
			args = append(args, filter.Offset)
			query += fmt.Sprintf(" OFFSET $%d", len(args))
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*AuditLog, 0)
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit logs: %w", err)
	}
	return logs, nil
}

// DeleteBefore removes every record created before cutoff
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM audit_logs WHERE created_at < $1", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted audit logs: %w", err)
	}
	return n, nil
}

func marshalData(data map[string]any) (any, error) {
	if data == nil {
		return nil, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalData(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw.String), &data); err != nil {
		return nil, err
	}
	return data, nil
}

func scanAuditLog(rows *sql.Rows) (*AuditLog, error) {
	var log AuditLog
	var tenantID, userID sql.NullInt64
	var oldData, newData sql.NullString

	err := rows.Scan(&log.ID, &tenantID, &userID, &log.Action, &log.EntityType, &log.EntityID,
		&oldData, &newData, &log.IPAddress, &log.UserAgent, &log.RequestID, &log.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}

	if tenantID.Valid {
		id := tenantID.Int64
		log.TenantID = &id
	}
	if userID.Valid {
		id := userID.Int64
		log.UserID = &id
	}
	if log.OldData, err = unmarshalData(oldData); err != nil {
		return nil, fmt.Errorf("failed to decode old data: %w", err)
	}
	if log.NewData, err = unmarshalData(newData); err != nil {
		return nil, fmt.Errorf("failed to decode new data: %w", err)
	}
	return &log, nil
}
