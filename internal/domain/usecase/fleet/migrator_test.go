package fleet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/amirali-farhadi/tenant-provisioner/internal/domain/entity"
	errs "github.com/amirali-farhadi/tenant-provisioner/internal/domain/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(string, map[string]any) {}
func (nopLogger) Info(string, map[string]any)  {}
func (nopLogger) Warn(string, map[string]any)  {}
func (nopLogger) Error(string, map[string]any) {}
func (nopLogger) Flush() error                 { return nil }

// listRegistry serves a fixed tenant list; only ListAll matters here
type listRegistry struct {
	tenants []*entity.Tenant
}

func (r *listRegistry) Register(context.Context, string, string, string) (*entity.Tenant, bool, error) {
	return nil, false, errors.New("not implemented")
}
func (r *listRegistry) FindBySlug(context.Context, string) (*entity.Tenant, error) {
	return nil, errs.ErrTenantNotFound
}
func (r *listRegistry) FindByIdentity(context.Context, string) (*entity.Tenant, error) {
	return nil, errs.ErrTenantNotFound
}
func (r *listRegistry) ListAll(context.Context) ([]*entity.Tenant, error) {
	return r.tenants, nil
}
func (r *listRegistry) SetActive(context.Context, string, bool) error { return nil }
func (r *listRegistry) Remove(context.Context, string) error          { return nil }

// recordingSchemas tracks tracking-table state per schema for the baseline path
type recordingSchemas struct {
	mu        sync.Mutex
	applied   map[string][]string
	tables    map[string]map[string]bool
	markCalls []string
}

func newRecordingSchemas() *recordingSchemas {
	return &recordingSchemas{
		applied: make(map[string][]string),
		tables:  make(map[string]map[string]bool),
	}
}

func (s *recordingSchemas) EnsureSchema(context.Context, string) error        { return nil }
func (s *recordingSchemas) EnsureTrackingTable(context.Context, string) error { return nil }

func (s *recordingSchemas) AppliedSet(_ context.Context, schemaName string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[string]struct{})
	for _, f := range s.applied[schemaName] {
		set[f] = struct{}{}
	}
	return set, nil
}

func (s *recordingSchemas) Apply(_ context.Context, schemaName, filename, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied[schemaName] = append(s.applied[schemaName], filename)
	return nil
}

func (s *recordingSchemas) MarkApplied(_ context.Context, schemaName, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied[schemaName] = append(s.applied[schemaName], filename)
	s.markCalls = append(s.markCalls, schemaName+":"+filename)
	return nil
}

func (s *recordingSchemas) HasTable(_ context.Context, schemaName, tableName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables[schemaName][tableName], nil
}

func (s *recordingSchemas) DropSchema(context.Context, string) error { return nil }

// fixedSource serves a fixed ordered list; contents are never needed here
type fixedSource struct {
	ordered []string
}

func (s *fixedSource) ListOrdered() []string {
	return append([]string{}, s.ordered...)
}

func (s *fixedSource) ContentsFor(filename, schemaName string) (string, error) {
	return "SELECT 1", nil
}

// hookProvisioner routes CatchUp to a test hook
type hookProvisioner struct {
	catchUp func(ctx context.Context, tenant *entity.Tenant) (int, error)
}

func (p *hookProvisioner) Provision(context.Context, string, string, string) (*entity.Tenant, bool, error) {
	return nil, false, errors.New("not implemented")
}
func (p *hookProvisioner) CatchUp(ctx context.Context, tenant *entity.Tenant) (int, error) {
	return p.catchUp(ctx, tenant)
}
func (p *hookProvisioner) Drop(context.Context, string) error { return nil }
func (p *hookProvisioner) Reset(context.Context) error        { return nil }

func makeTenant(slug string, active bool) *entity.Tenant {
	return &entity.Tenant{
		Identity:   "org_" + slug,
		Slug:       slug,
		SchemaName: entity.SchemaNameForSlug(slug),
		Active:     active,
	}
}

func outcomeBySlug(t *testing.T, report *entity.FleetReport, slug string) entity.TenantOutcome {
	t.Helper()
	for _, outcome := range report.Outcomes {
		if outcome.Slug == slug {
			return outcome
		}
	}
	t.Fatalf("no outcome for slug %s", slug)
	return entity.TenantOutcome{}
}

func TestMigrateAll(t *testing.T) {
	ctx := context.Background()
	files := []string{"0001_init.sql", "0002_tasks.sql"}

	t.Run("One failing tenant never blocks the rest", func(t *testing.T) {
		registry := &listRegistry{tenants: []*entity.Tenant{
			makeTenant("alpha", true),
			makeTenant("broken", true),
			makeTenant("gamma", true),
		}}
		provisioner := &hookProvisioner{
			catchUp: func(_ context.Context, tenant *entity.Tenant) (int, error) {
				if tenant.Slug == "broken" {
					return 0, errs.NewMigrationError(tenant.Identity, tenant.SchemaName, "0002_tasks.sql", errs.ErrMigrationExecution)
				}
				return 2, nil
			},
		}

		migrator := NewMigrator(registry, newRecordingSchemas(), &fixedSource{ordered: files}, provisioner, nopLogger{}, 2, "")
		report, err := migrator.MigrateAll(ctx)

		require.NoError(t, err)
		require.Len(t, report.Outcomes, 3)
		assert.True(t, report.Failed())
		assert.Equal(t, 1, report.FailedCount())

		assert.Equal(t, 2, outcomeBySlug(t, report, "alpha").Applied)
		assert.Equal(t, 2, outcomeBySlug(t, report, "gamma").Applied)

		failed := outcomeBySlug(t, report, "broken")
		require.Error(t, failed.Err)
		assert.ErrorIs(t, failed.Err, errs.ErrMigrationExecution)
		assert.NotEmpty(t, failed.Error)
	})

	t.Run("Inactive tenants are skipped", func(t *testing.T) {
		registry := &listRegistry{tenants: []*entity.Tenant{
			makeTenant("active", true),
			makeTenant("paused", false),
		}}
		var touched []string
		var mu sync.Mutex
		provisioner := &hookProvisioner{
			catchUp: func(_ context.Context, tenant *entity.Tenant) (int, error) {
				mu.Lock()
				touched = append(touched, tenant.Slug)
				mu.Unlock()
				return 0, nil
			},
		}

		migrator := NewMigrator(registry, newRecordingSchemas(), &fixedSource{ordered: files}, provisioner, nopLogger{}, 2, "")
		report, err := migrator.MigrateAll(ctx)

		require.NoError(t, err)
		assert.True(t, outcomeBySlug(t, report, "paused").Skipped)
		assert.False(t, outcomeBySlug(t, report, "active").Skipped)
		assert.Equal(t, []string{"active"}, touched)
		assert.False(t, report.Failed())
	})

	t.Run("Cancelled context skips tenants not yet started", func(t *testing.T) {
		registry := &listRegistry{tenants: []*entity.Tenant{
			makeTenant("alpha", true),
			makeTenant("beta", true),
		}}
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		provisioner := &hookProvisioner{
			catchUp: func(context.Context, *entity.Tenant) (int, error) {
				t.Error("no tenant should start after cancellation")
				return 0, nil
			},
		}

		migrator := NewMigrator(registry, newRecordingSchemas(), &fixedSource{ordered: files}, provisioner, nopLogger{}, 2, "")
		report, err := migrator.MigrateAll(cancelled)

		require.NoError(t, err)
		for _, outcome := range report.Outcomes {
			assert.True(t, outcome.Skipped)
		}
	})

	t.Run("Cancellation lets the in-flight tenant finish", func(t *testing.T) {
		registry := &listRegistry{tenants: []*entity.Tenant{
			makeTenant("alpha", true),
			makeTenant("beta", true),
		}}
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		inFlight := make(chan struct{})
		proceed := make(chan struct{})
		provisioner := &hookProvisioner{
			catchUp: func(catchUpCtx context.Context, tenant *entity.Tenant) (int, error) {
				close(inFlight)
				<-proceed
				// The run was cancelled while this tenant was in flight;
				// its own context must not be.
				if err := catchUpCtx.Err(); err != nil {
					return 0, err
				}
				return 2, nil
			},
		}

		migrator := NewMigrator(registry, newRecordingSchemas(), &fixedSource{ordered: files}, provisioner, nopLogger{}, 1, "")

		type result struct {
			report *entity.FleetReport
			err    error
		}
		done := make(chan result, 1)
		go func() {
			report, err := migrator.MigrateAll(runCtx)
			done <- result{report, err}
		}()

		<-inFlight
		cancel()
		close(proceed)
		res := <-done

		require.NoError(t, res.err)
		finished := outcomeBySlug(t, res.report, "alpha")
		require.NoError(t, finished.Err)
		assert.Equal(t, 2, finished.Applied)
		assert.False(t, finished.Skipped)
		assert.True(t, outcomeBySlug(t, res.report, "beta").Skipped)
	})

	t.Run("Worker bound limits concurrency", func(t *testing.T) {
		tenants := make([]*entity.Tenant, 8)
		for i := range tenants {
			tenants[i] = makeTenant(string(rune('a'+i)), true)
		}
		registry := &listRegistry{tenants: tenants}

		var mu sync.Mutex
		inFlight, maxInFlight := 0, 0
		provisioner := &hookProvisioner{
			catchUp: func(context.Context, *entity.Tenant) (int, error) {
				mu.Lock()
				inFlight++
				if inFlight > maxInFlight {
					maxInFlight = inFlight
				}
				mu.Unlock()

				time.Sleep(10 * time.Millisecond)

				mu.Lock()
				inFlight--
				mu.Unlock()
				return 0, nil
			},
		}

		migrator := NewMigrator(registry, newRecordingSchemas(), &fixedSource{ordered: files}, provisioner, nopLogger{}, 2, "")
		_, err := migrator.MigrateAll(ctx)

		require.NoError(t, err)
		assert.LessOrEqual(t, maxInFlight, 2)
		assert.Greater(t, maxInFlight, 0)
	})
}

func TestBaselineLegacySchema(t *testing.T) {
	ctx := context.Background()
	files := []string{"0001_init.sql", "0002_tasks.sql"}

	t.Run("Legacy schema gets first file marked, not executed", func(t *testing.T) {
		tenant := makeTenant("legacy", true)
		registry := &listRegistry{tenants: []*entity.Tenant{tenant}}

		schemas := newRecordingSchemas()
		// Baseline table exists but nothing is tracked.
		schemas.tables[tenant.SchemaName] = map[string]bool{"projects": true}

		var caughtUp bool
		provisioner := &hookProvisioner{
			catchUp: func(_ context.Context, tenant *entity.Tenant) (int, error) {
				caughtUp = true
				// By now the first file must already be marked applied.
				applied, err := schemas.AppliedSet(context.Background(), tenant.SchemaName)
				require.NoError(t, err)
				assert.Contains(t, applied, "0001_init.sql")
				return 1, nil
			},
		}

		migrator := NewMigrator(registry, schemas, &fixedSource{ordered: files}, provisioner, nopLogger{}, 1, "projects")
		report, err := migrator.MigrateAll(ctx)

		require.NoError(t, err)
		assert.True(t, caughtUp)
		assert.Equal(t, []string{tenant.SchemaName + ":0001_init.sql"}, schemas.markCalls)
		assert.Equal(t, 1, outcomeBySlug(t, report, "legacy").Applied)
	})

	t.Run("Fresh schema is not baselined", func(t *testing.T) {
		tenant := makeTenant("fresh", true)
		registry := &listRegistry{tenants: []*entity.Tenant{tenant}}
		schemas := newRecordingSchemas()

		provisioner := &hookProvisioner{
			catchUp: func(context.Context, *entity.Tenant) (int, error) { return 2, nil },
		}

		migrator := NewMigrator(registry, schemas, &fixedSource{ordered: files}, provisioner, nopLogger{}, 1, "projects")
		_, err := migrator.MigrateAll(ctx)

		require.NoError(t, err)
		assert.Empty(t, schemas.markCalls)
	})

	t.Run("Tracked schema is never re-baselined", func(t *testing.T) {
		tenant := makeTenant("tracked", true)
		registry := &listRegistry{tenants: []*entity.Tenant{tenant}}

		schemas := newRecordingSchemas()
		schemas.tables[tenant.SchemaName] = map[string]bool{"projects": true}
		schemas.applied[tenant.SchemaName] = []string{"0001_init.sql"}

		provisioner := &hookProvisioner{
			catchUp: func(context.Context, *entity.Tenant) (int, error) { return 1, nil },
		}

		migrator := NewMigrator(registry, schemas, &fixedSource{ordered: files}, provisioner, nopLogger{}, 1, "projects")
		_, err := migrator.MigrateAll(ctx)

		require.NoError(t, err)
		assert.Empty(t, schemas.markCalls)
	})

	t.Run("No baseline table configured disables baselining", func(t *testing.T) {
		tenant := makeTenant("legacy", true)
		registry := &listRegistry{tenants: []*entity.Tenant{tenant}}

		schemas := newRecordingSchemas()
		schemas.tables[tenant.SchemaName] = map[string]bool{"projects": true}

		provisioner := &hookProvisioner{
			catchUp: func(context.Context, *entity.Tenant) (int, error) { return 2, nil },
		}

		migrator := NewMigrator(registry, schemas, &fixedSource{ordered: files}, provisioner, nopLogger{}, 1, "")
		_, err := migrator.MigrateAll(ctx)

		require.NoError(t, err)
		assert.Empty(t, schemas.markCalls)
	})
}
