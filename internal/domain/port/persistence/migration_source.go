package persistence

// MigrationSource exposes the shared, ordered, immutable set of migration
// files. Ordering is lexicographic by filename and nothing else; filenames
// must never change once published.
type MigrationSource interface {
	// ListOrdered returns every filename sorted ascending lexicographically.
	ListOrdered() []string

	// ContentsFor returns the file's SQL with the schema placeholder token
	// replaced by the given schema name.
	ContentsFor(filename, schemaName string) (string, error)
}
