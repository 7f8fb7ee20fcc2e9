// Package storage opens the relational database and Redis connections used by the
// identity, tenant, RBAC and audit stores, and bootstraps their schema.
//
// Postgres (lib/pq) is the production dialect; sqlite (go-sqlite3) backs local runs
// and tests. All queries use $N placeholders, which both drivers accept, so only
// DDL differs between dialects.
//
//	db, dialect, err := storage.Open(ctx, cfg)
//	if err != nil { ... }
//	if err := storage.EnsureSchema(ctx, db, dialect); err != nil { ... }
package storage
