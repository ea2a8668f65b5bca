package migration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMigration(t *testing.T, dir, name, sql string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(sql), 0o644))
}

func TestNewStore(t *testing.T) {
	t.Run("Missing directory fails", func(t *testing.T) {
		store, err := NewStore(filepath.Join(t.TempDir(), "nope"), logger.NewNoopLogger())

		assert.Error(t, err)
		assert.Nil(t, store)
	})

	t.Run("Empty directory loads zero files", func(t *testing.T) {
		store, err := NewStore(t.TempDir(), logger.NewNoopLogger())

		require.NoError(t, err)
		assert.Empty(t, store.ListOrdered())
	})

	t.Run("Non-sql entries are ignored", func(t *testing.T) {
		dir := t.TempDir()
		writeMigration(t, dir, "0001_init.sql", "SELECT 1")
		writeMigration(t, dir, "README.md", "notes")
		require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0o755))

		store, err := NewStore(dir, logger.NewNoopLogger())

		require.NoError(t, err)
		assert.Equal(t, []string{"0001_init.sql"}, store.ListOrdered())
	})
}

func TestStoreListOrdered(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "0002_add_tasks.sql", "SELECT 2")
	writeMigration(t, dir, "0010_add_labels.sql", "SELECT 10")
	writeMigration(t, dir, "0001_init.sql", "SELECT 1")

	store, err := NewStore(dir, logger.NewNoopLogger())
	require.NoError(t, err)

	// Lexicographic, not numeric: zero-padded names keep both in agreement.
	assert.Equal(t, []string{"0001_init.sql", "0002_add_tasks.sql", "0010_add_labels.sql"}, store.ListOrdered())

	t.Run("Returned slice is a copy", func(t *testing.T) {
		ordered := store.ListOrdered()
		ordered[0] = "mutated"
		assert.Equal(t, "0001_init.sql", store.ListOrdered()[0])
	})
}

func TestStoreContentsFor(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "0001_init.sql",
		"CREATE TABLE $TENANT_SCHEMA$.projects (id SERIAL PRIMARY KEY);\n"+
			"CREATE INDEX idx_projects_id ON $TENANT_SCHEMA$.projects (id);")

	store, err := NewStore(dir, logger.NewNoopLogger())
	require.NoError(t, err)

	t.Run("Replaces every placeholder occurrence", func(t *testing.T) {
		sql, err := store.ContentsFor("0001_init.sql", "tenant_acme_corp")

		require.NoError(t, err)
		assert.NotContains(t, sql, "$TENANT_SCHEMA$")
		assert.Contains(t, sql, "CREATE TABLE tenant_acme_corp.projects")
		assert.Contains(t, sql, "ON tenant_acme_corp.projects (id)")
	})

	t.Run("Different schemas get different SQL from the same file", func(t *testing.T) {
		first, err := store.ContentsFor("0001_init.sql", "tenant_a")
		require.NoError(t, err)
		second, err := store.ContentsFor("0001_init.sql", "tenant_b")
		require.NoError(t, err)

		assert.Contains(t, first, "tenant_a.projects")
		assert.Contains(t, second, "tenant_b.projects")
	})

	t.Run("Unknown filename fails", func(t *testing.T) {
		_, err := store.ContentsFor("0099_ghost.sql", "tenant_acme")
		assert.Error(t, err)
	})

	t.Run("Edits after load are invisible", func(t *testing.T) {
		writeMigration(t, dir, "0001_init.sql", "ALTER TABLE $TENANT_SCHEMA$.projects ADD COLUMN name TEXT;")

		sql, err := store.ContentsFor("0001_init.sql", "tenant_acme")
		require.NoError(t, err)
		assert.Contains(t, sql, "CREATE TABLE tenant_acme.projects")
	})
}
