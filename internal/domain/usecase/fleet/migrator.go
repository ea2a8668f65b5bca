package fleet

import (
	"context"
	"sync"

	"github.com/amirali-farhadi/tenant-provisioner/internal/domain/entity"
	coreport "github.com/amirali-farhadi/tenant-provisioner/internal/domain/port/core"
	"github.com/amirali-farhadi/tenant-provisioner/internal/domain/port/persistence"
	"github.com/amirali-farhadi/tenant-provisioner/internal/domain/port/usecase"
)

// DefaultWorkers bounds tenant-level parallelism when no limit is configured.
const DefaultWorkers = 4

// Migrator brings every registered tenant's schema up to date after the
// shared migration set has grown. Tenants are independent, so they are
// processed with bounded parallelism; migrations within one tenant stay
// strictly serial.
type Migrator struct {
	registry      persistence.TenantRegistry
	schemas       persistence.SchemaMigrator
	source        persistence.MigrationSource
	provisioner   usecase.TenantProvisioner
	logger        coreport.Logger
	workers       int
	baselineTable string
}

// NewMigrator creates a fleet migrator. baselineTable names a table created
// by the first migration file; its presence in a schema with zero tracking
// records identifies legacy data that predates the tracker.
func NewMigrator(
	registry persistence.TenantRegistry,
	schemas persistence.SchemaMigrator,
	source persistence.MigrationSource,
	provisioner usecase.TenantProvisioner,
	logger coreport.Logger,
	workers int,
	baselineTable string,
) usecase.FleetMigrator {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Migrator{
		registry:      registry,
		schemas:       schemas,
		source:        source,
		provisioner:   provisioner,
		logger:        logger,
		workers:       workers,
		baselineTable: baselineTable,
	}
}

// MigrateAll runs one fleet pass over the registry snapshot. A tenant's
// failure is logged and reported but never prevents the remaining tenants
// from being attempted. Cancellation is honored between tenants, never
// mid-tenant, so every schema is left with a consistent applied prefix.
func (m *Migrator) MigrateAll(ctx context.Context) (*entity.FleetReport, error) {
	tenants, err := m.registry.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	m.logger.Info("Starting fleet migration", map[string]any{
		"tenants": len(tenants),
		"workers": m.workers,
	})

	outcomes := make([]entity.TenantOutcome, len(tenants))
	sem := make(chan struct{}, m.workers)
	var wg sync.WaitGroup

	for i, tenant := range tenants {
		// Cooperative checkpoint, placed after the worker slot is acquired
		// so a cancellation during in-flight work still skips everything
		// queued behind it.
		sem <- struct{}{}
		if ctx.Err() != nil {
			<-sem
			outcomes[i] = skippedOutcome(tenant)
			continue
		}

		wg.Add(1)
		go func(i int, tenant *entity.Tenant) {
			defer wg.Done()
			defer func() { <-sem }()
			// A dispatched tenant always runs to completion. Detaching from
			// the run context keeps cancellation from aborting a tenant
			// mid-list; each statement still carries its own query timeout.
			outcomes[i] = m.migrateTenant(context.WithoutCancel(ctx), tenant)
		}(i, tenant)
	}
	wg.Wait()

	report := &entity.FleetReport{Outcomes: outcomes}
	m.logger.Info("Fleet migration finished", map[string]any{
		"tenants": len(tenants),
		"failed":  report.FailedCount(),
	})
	return report, nil
}

func (m *Migrator) migrateTenant(ctx context.Context, tenant *entity.Tenant) entity.TenantOutcome {
	outcome := entity.TenantOutcome{
		Identity:   tenant.Identity,
		Slug:       tenant.Slug,
		SchemaName: tenant.SchemaName,
	}

	if !tenant.Active {
		m.logger.Debug("Skipping inactive tenant", map[string]any{
			"slug": tenant.Slug,
		})
		outcome.Skipped = true
		return outcome
	}

	if err := m.baselineLegacySchema(ctx, tenant); err != nil {
		return failedOutcome(outcome, err, m.logger)
	}

	applied, err := m.provisioner.CatchUp(ctx, tenant)
	if err != nil {
		return failedOutcome(outcome, err, m.logger)
	}

	outcome.Applied = applied
	return outcome
}

// baselineLegacySchema handles schemas populated before the tracking table
// existed: zero tracking records but the baseline table already present. The
// first known migration filename is marked applied without re-executing it so
// later files are still picked up and the baseline DDL is never destructively
// re-applied.
func (m *Migrator) baselineLegacySchema(ctx context.Context, tenant *entity.Tenant) error {
	ordered := m.source.ListOrdered()
	if len(ordered) == 0 || m.baselineTable == "" {
		return nil
	}

	if err := m.schemas.EnsureSchema(ctx, tenant.SchemaName); err != nil {
		return err
	}
	if err := m.schemas.EnsureTrackingTable(ctx, tenant.SchemaName); err != nil {
		return err
	}

	applied, err := m.schemas.AppliedSet(ctx, tenant.SchemaName)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		return nil
	}

	hasBaseline, err := m.schemas.HasTable(ctx, tenant.SchemaName, m.baselineTable)
	if err != nil {
		return err
	}
	if !hasBaseline {
		return nil
	}

	m.logger.Warn("Baselining legacy schema without tracking records", map[string]any{
		"schema":   tenant.SchemaName,
		"filename": ordered[0],
	})
	return m.schemas.MarkApplied(ctx, tenant.SchemaName, ordered[0])
}

func skippedOutcome(tenant *entity.Tenant) entity.TenantOutcome {
	return entity.TenantOutcome{
		Identity:   tenant.Identity,
		Slug:       tenant.Slug,
		SchemaName: tenant.SchemaName,
		Skipped:    true,
	}
}

func failedOutcome(outcome entity.TenantOutcome, err error, logger coreport.Logger) entity.TenantOutcome {
	outcome.Err = err
	outcome.Error = err.Error()
	logger.Error("Tenant migration failed", map[string]any{
		"identity": outcome.Identity,
		"schema":   outcome.SchemaName,
		"error":    err.Error(),
	})
	return outcome
}
