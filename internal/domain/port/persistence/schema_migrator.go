package persistence

import "context"

// SchemaMigrator performs the physical per-schema operations: namespace DDL,
// tracking-table bookkeeping and migration execution. Implementations are
// responsible for making Apply's execute-plus-record an atomic unit where the
// database allows it.
type SchemaMigrator interface {
	// EnsureSchema creates the physical schema if absent. Idempotent.
	EnsureSchema(ctx context.Context, schemaName string) error

	// EnsureTrackingTable creates the per-schema tracking table if absent.
	// Safe to call unconditionally.
	EnsureTrackingTable(ctx context.Context, schemaName string) error

	// AppliedSet returns the filenames already recorded for a schema.
	AppliedSet(ctx context.Context, schemaName string) (map[string]struct{}, error)

	// Apply executes one migration file's substituted SQL against the schema
	// and records it as applied, both inside a single transaction. A failure
	// to persist the record after the SQL ran surfaces as
	// ErrTrackingInconsistency.
	Apply(ctx context.Context, schemaName, filename, sql string) error

	// MarkApplied records a filename as applied without executing anything.
	// Used to baseline legacy schemas that predate the tracking table.
	MarkApplied(ctx context.Context, schemaName, filename string) error

	// HasTable reports whether a table already exists inside the schema.
	HasTable(ctx context.Context, schemaName, tableName string) (bool, error)

	// DropSchema removes the physical schema and everything in it. Irreversible.
	DropSchema(ctx context.Context, schemaName string) error
}
