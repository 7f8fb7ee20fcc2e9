package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// schemaStatements bootstrap every table the core reads or writes.
// {{ID}}, {{TS}} and {{JSON}} are replaced per dialect.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id {{ID}},
		name VARCHAR(255) NOT NULL,
		domain VARCHAR(255) NOT NULL UNIQUE,
		settings {{JSON}},
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		created_at {{TS}} NOT NULL,
		updated_at {{TS}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id {{ID}},
		tenant_id BIGINT REFERENCES tenants(id),
		email VARCHAR(255) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL DEFAULT '',
		password_hash VARCHAR(255) NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		failed_attempts INTEGER NOT NULL DEFAULT 0,
		locked_until {{TS}},
		last_login_at {{TS}},
		created_at {{TS}} NOT NULL,
		updated_at {{TS}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_tenant ON users(tenant_id)`,
	`CREATE TABLE IF NOT EXISTS permissions (
		id {{ID}},
		code VARCHAR(128) NOT NULL UNIQUE,
		module VARCHAR(64) NOT NULL,
		action VARCHAR(64) NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS roles (
		id {{ID}},
		name VARCHAR(128) NOT NULL,
		scope VARCHAR(16) NOT NULL,
		tenant_id BIGINT REFERENCES tenants(id),
		description TEXT NOT NULL DEFAULT '',
		created_at {{TS}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_roles_tenant ON roles(tenant_id)`,
	`CREATE TABLE IF NOT EXISTS role_permissions (
		role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
		PRIMARY KEY (role_id, permission_id)
	)`,
	`CREATE TABLE IF NOT EXISTS user_roles (
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		granted_by BIGINT,
		granted_at {{TS}} NOT NULL,
		PRIMARY KEY (user_id, role_id)
	)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id {{ID}},
		tenant_id BIGINT NOT NULL REFERENCES tenants(id),
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status VARCHAR(32) NOT NULL DEFAULT 'active',
		created_by BIGINT NOT NULL,
		created_at {{TS}} NOT NULL,
		updated_at {{TS}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_projects_tenant ON projects(tenant_id)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id {{ID}},
		tenant_id BIGINT NOT NULL REFERENCES tenants(id),
		project_id BIGINT NOT NULL,
		title VARCHAR(255) NOT NULL,
		status VARCHAR(32) NOT NULL DEFAULT 'open',
		assignee_id BIGINT,
		created_by BIGINT NOT NULL,
		created_at {{TS}} NOT NULL,
		updated_at {{TS}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_tenant ON tasks(tenant_id)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id {{ID}},
		tenant_id BIGINT NOT NULL REFERENCES tenants(id),
		project_id BIGINT,
		title VARCHAR(255) NOT NULL,
		content_type VARCHAR(128) NOT NULL DEFAULT '',
		storage_key VARCHAR(512) NOT NULL DEFAULT '',
		created_by BIGINT NOT NULL,
		created_at {{TS}} NOT NULL,
		updated_at {{TS}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_tenant ON documents(tenant_id)`,
	`CREATE TABLE IF NOT EXISTS contracts (
		id {{ID}},
		tenant_id BIGINT NOT NULL REFERENCES tenants(id),
		project_id BIGINT,
		title VARCHAR(255) NOT NULL,
		counterparty VARCHAR(255) NOT NULL DEFAULT '',
		value_cents BIGINT NOT NULL DEFAULT 0,
		status VARCHAR(32) NOT NULL DEFAULT 'draft',
		approved_by BIGINT,
		created_by BIGINT NOT NULL,
		created_at {{TS}} NOT NULL,
		updated_at {{TS}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contracts_tenant ON contracts(tenant_id)`,
	`CREATE TABLE IF NOT EXISTS templates (
		id {{ID}},
		tenant_id BIGINT NOT NULL REFERENCES tenants(id),
		name VARCHAR(255) NOT NULL,
		kind VARCHAR(64) NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		created_by BIGINT NOT NULL,
		created_at {{TS}} NOT NULL,
		updated_at {{TS}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_templates_tenant ON templates(tenant_id)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id {{ID}},
		tenant_id BIGINT,
		user_id BIGINT,
		action VARCHAR(100) NOT NULL,
		entity_type VARCHAR(64) NOT NULL,
		entity_id VARCHAR(255) NOT NULL,
		old_data {{JSON}},
		new_data {{JSON}},
		ip_address VARCHAR(64) NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		request_id VARCHAR(100) NOT NULL DEFAULT '',
		created_at {{TS}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_entity ON audit_logs(entity_type, entity_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_tenant ON audit_logs(tenant_id)`,
}

func dialectReplacer(dialect Dialect) (*strings.Replacer, error) {
	switch dialect {
	case DialectPostgres:
		return strings.NewReplacer(
			"{{ID}}", "BIGSERIAL PRIMARY KEY",
			"{{TS}}", "TIMESTAMPTZ",
			"{{JSON}}", "JSONB",
		), nil
	case DialectSQLite:
		// go-sqlite3 only decodes time.Time for the exact declared type TIMESTAMP
		return strings.NewReplacer(
			"{{ID}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
			"{{TS}}", "TIMESTAMP",
			"{{JSON}}", "TEXT",
		), nil
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}
}

// EnsureSchema creates all tables and indexes if they don't exist.
// It is safe to call on every start.
func EnsureSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	replacer, err := dialectReplacer(dialect)
	if err != nil {
		return err
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, replacer.Replace(stmt)); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
