package entity

import "time"

// SchemaPlaceholder is the sentinel token embedded in migration file
// contents. It is deliberately not a valid SQL identifier so it can never be
// confused with a real schema name. The store substitutes it with the target
// tenant's schema name before execution.
const SchemaPlaceholder = "$TENANT_SCHEMA$"

// AppliedMigration is one record in a tenant schema's tracking table.
// Presence means the file was fully applied; there is no in-progress state.
type AppliedMigration struct {
	Filename  string
	AppliedAt time.Time
}

// Pending returns the ordered filenames not yet present in applied. The
// input ordering is preserved, so callers that pass a lexicographically
// sorted list get the pending set in application order.
func Pending(ordered []string, applied map[string]struct{}) []string {
	var pending []string
	for _, name := range ordered {
		if _, ok := applied[name]; !ok {
			pending = append(pending, name)
		}
	}
	return pending
}
