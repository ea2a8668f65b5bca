package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/amirali-farhadi/tenant-provisioner/internal/domain/entity"
	coreport "github.com/amirali-farhadi/tenant-provisioner/internal/domain/port/core"
)

// Store is a directory-backed migration source. The directory is read once
// at startup; filenames are sorted lexicographically and that order is the
// only order migrations ever run in. File contents are cached in memory, so
// the same bytes are applied to every tenant regardless of later edits on
// disk.
type Store struct {
	dir      string
	ordered  []string
	contents map[string]string
	logger   coreport.Logger
}

// NewStore loads every .sql file from dir. A missing or unreadable directory
// is a startup failure.
func NewStore(dir string, logger coreport.Logger) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory %s: %w", dir, err)
	}

	store := &Store{
		dir:      dir,
		contents: make(map[string]string),
		logger:   logger,
	}

	for _, dirEntry := range entries {
		if dirEntry.IsDir() || !strings.HasSuffix(dirEntry.Name(), ".sql") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, dirEntry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading migration file %s: %w", dirEntry.Name(), err)
		}
		store.ordered = append(store.ordered, dirEntry.Name())
		store.contents[dirEntry.Name()] = string(data)
	}

	sort.Strings(store.ordered)

	logger.Info("Migration files loaded", map[string]any{
		"dir":   dir,
		"count": len(store.ordered),
	})
	if len(store.ordered) == 0 {
		logger.Warn("Migrations directory is empty", map[string]any{
			"dir": dir,
		})
	}

	return store, nil
}

// ListOrdered returns the filenames in apply order. Callers get a copy so
// the canonical order cannot be mutated.
func (s *Store) ListOrdered() []string {
	ordered := make([]string, len(s.ordered))
	copy(ordered, s.ordered)
	return ordered
}

// ContentsFor returns the file's SQL with every occurrence of the schema
// placeholder replaced by the given schema name.
func (s *Store) ContentsFor(filename, schemaName string) (string, error) {
	sql, ok := s.contents[filename]
	if !ok {
		return "", fmt.Errorf("unknown migration file: %s", filename)
	}
	return strings.ReplaceAll(sql, entity.SchemaPlaceholder, schemaName), nil
}
