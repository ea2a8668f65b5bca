package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/database"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a running Postgres and are opted into explicitly via
// TEST_DB_HOST; everything below exercises the real upsert and search_path
// behavior that the in-memory fakes cannot.
func openTestEnv(t *testing.T) (*database.TestDBManager, *database.SchemaPools) {
	t.Helper()
	if os.Getenv("TEST_DB_HOST") == "" {
		t.Skip("TEST_DB_HOST not set, skipping database tests")
	}

	log := logger.NewNoopLogger()
	mgr := database.NewTestDBManager(t, log)
	_ = mgr.Connect(t)
	t.Cleanup(func() { mgr.Close(t) })

	mgr.DropTenantSchemas(t)
	mgr.SetupTestDB(t)

	pools := database.NewSchemaPools(mgr.Config, log, mgr.TimeProvider, 4)
	t.Cleanup(pools.CloseAll)
	return mgr, pools
}

func TestTenantRepositoryRegister(t *testing.T) {
	mgr, _ := openTestEnv(t)
	tenants := NewTenantRepository(mgr.Manager.DB(), mgr.TimeProvider, logger.NewNoopLogger(), mgr.Config.QueryTimeout)
	ctx := context.Background()

	t.Run("Same identity under a new slug resolves to the stored row", func(t *testing.T) {
		first, existing, err := tenants.Register(ctx, "org_reg_1", "Acme Corp", "acme-corp")
		require.NoError(t, err)
		require.False(t, existing)
		require.Equal(t, "tenant_acme_corp", first.SchemaName)

		// The organization was renamed upstream; the redelivered event must
		// still land on the original row.
		second, existing, err := tenants.Register(ctx, "org_reg_1", "Acme Holdings", "acme-holdings")
		require.NoError(t, err)
		assert.True(t, existing)
		assert.Equal(t, "acme-corp", second.Slug)
		assert.Equal(t, "tenant_acme_corp", second.SchemaName)

		all, err := tenants.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("New identity on a taken slug remaps the row", func(t *testing.T) {
		_, _, err := tenants.Register(ctx, "org_reg_2", "Globex", "globex")
		require.NoError(t, err)

		remapped, existing, err := tenants.Register(ctx, "org_reg_3", "Globex", "globex")
		require.NoError(t, err)
		assert.True(t, existing)
		assert.Equal(t, "org_reg_3", remapped.Identity)
		assert.Equal(t, "tenant_globex", remapped.SchemaName)
	})
}

func TestSchemaMigratorUsesSchemaPools(t *testing.T) {
	mgr, pools := openTestEnv(t)
	schemas := NewSchemaMigratorRepository(mgr.Manager.DB(), pools, mgr.TimeProvider, logger.NewNoopLogger(), mgr.Config.QueryTimeout)
	ctx := context.Background()
	const schemaName = "tenant_pooled"

	require.NoError(t, schemas.EnsureSchema(ctx, schemaName))
	require.NoError(t, schemas.EnsureTrackingTable(ctx, schemaName))

	// Tracker DDL ran on the schema-scoped pool, so the unqualified table
	// landed inside the tenant schema and the pool is cached.
	assert.Equal(t, 1, pools.Len())
	hasTracker, err := schemas.HasTable(ctx, schemaName, "schema_migrations")
	require.NoError(t, err)
	assert.True(t, hasTracker)

	require.NoError(t, schemas.Apply(ctx, schemaName, "0001_init.sql",
		"CREATE TABLE projects (id SERIAL PRIMARY KEY)"))

	hasProjects, err := schemas.HasTable(ctx, schemaName, "projects")
	require.NoError(t, err)
	assert.True(t, hasProjects)

	applied, err := schemas.AppliedSet(ctx, schemaName)
	require.NoError(t, err)
	assert.Contains(t, applied, "0001_init.sql")

	// Dropping the schema tears the cached pool down with it.
	require.NoError(t, schemas.DropSchema(ctx, schemaName))
	assert.Equal(t, 0, pools.Len())
}

func TestQueryTimeoutBoundsStatements(t *testing.T) {
	mgr, pools := openTestEnv(t)
	schemas := NewSchemaMigratorRepository(mgr.Manager.DB(), pools, mgr.TimeProvider, logger.NewNoopLogger(), 100*time.Millisecond)
	ctx := context.Background()
	const schemaName = "tenant_slow"

	require.NoError(t, schemas.EnsureSchema(ctx, schemaName))
	require.NoError(t, schemas.EnsureTrackingTable(ctx, schemaName))

	start := time.Now()
	err := schemas.Apply(ctx, schemaName, "0001_slow.sql", "SELECT pg_sleep(10)")

	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	applied, err := schemas.AppliedSet(ctx, schemaName)
	require.NoError(t, err)
	assert.NotContains(t, applied, "0001_slow.sql")
}
