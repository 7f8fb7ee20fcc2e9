package storage

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// OpenTestDB returns an in-memory sqlite database with the full schema applied.
// The database is closed when the test finishes.
func OpenTestDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// Every pooled connection to :memory: would otherwise see its own empty database
	db.SetMaxOpenConns(1)

	if err := EnsureSchema(context.Background(), db, DialectSQLite); err != nil {
		db.Close()
		t.Fatalf("Failed to create test schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}
