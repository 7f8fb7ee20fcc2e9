// Package audit records who did what to which entity.
//
// Handlers call Recorder.LogAction after a successful mutation. Attribution
// (actor, tenant, IP, user agent, request id) is taken from the request
// context when the Entry leaves it empty, and old/new snapshots pass through
// a Redactor before they are stored.
//
//	recorder := audit.NewRecorder(audit.NewStore(db),
//		audit.WithLogger(logger),
//		audit.WithFailurePolicy(audit.FailurePolicy{FatalActions: []string{audit.ActionRoleAssigned}}),
//	)
//	recorder.LogAction(ctx, audit.Entry{
//		Action:     audit.ActionUpdated,
//		EntityType: "project",
//		EntityID:   "42",
//		OldData:    before,
//		NewData:    after,
//	})
//
// # Write failures
//
// A failed write is logged on the operational logger and counted. By default
// the caller's operation continues; actions listed in the FailurePolicy, or
// entries marked Critical, return ErrAuditWriteFailure instead.
//
// # Reading
//
// GetAuditTrail and Search only return records of the scope's tenant. System
// scopes see every tenant. Records are never updated; CleanupOldLogs and the
// RetentionJob delete whole records past the retention period.
//
// # Redaction
//
// Keys containing any sensitive pattern (case-insensitive) have their values
// replaced by [FILTERED], at any nesting depth. PatternWatcher reloads the
// pattern list from a YAML file when it changes.
package audit
