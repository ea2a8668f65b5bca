package provision

import (
	"context"
	"fmt"

	"github.com/amirali-farhadi/tenant-provisioner/internal/domain/entity"
	errs "github.com/amirali-farhadi/tenant-provisioner/internal/domain/error"
	coreport "github.com/amirali-farhadi/tenant-provisioner/internal/domain/port/core"
	"github.com/amirali-farhadi/tenant-provisioner/internal/domain/port/persistence"
	"github.com/amirali-farhadi/tenant-provisioner/internal/domain/port/usecase"
)

// Service orchestrates tenant provisioning: registry row, physical schema,
// tracking table and migration catch-up, with rollback for registrations
// created in the same call.
type Service struct {
	registry     persistence.TenantRegistry
	migrator     persistence.SchemaMigrator
	source       persistence.MigrationSource
	timeProvider coreport.TimeProvider
	logger       coreport.Logger
}

// NewService creates a tenant provisioner
func NewService(
	registry persistence.TenantRegistry,
	migrator persistence.SchemaMigrator,
	source persistence.MigrationSource,
	timeProvider coreport.TimeProvider,
	logger coreport.Logger,
) usecase.TenantProvisioner {
	return &Service{
		registry:     registry,
		migrator:     migrator,
		source:       source,
		timeProvider: timeProvider,
		logger:       logger,
	}
}

// Provision makes sure the tenant fully exists and is fully migrated. It is a
// no-op-safe re-entry point: duplicate events for an already-provisioned
// tenant just re-run the (empty) pending set.
func (s *Service) Provision(ctx context.Context, identity, name, slug string) (*entity.Tenant, bool, error) {
	candidate, err := entity.NewTenant(identity, name, slug)
	if err != nil {
		return nil, false, err
	}

	tenant, existing, err := s.registry.Register(ctx, candidate.Identity, candidate.Name, candidate.Slug)
	if err != nil {
		return nil, false, err
	}

	s.logger.Info("Tenant registered", map[string]any{
		"identity": tenant.Identity,
		"slug":     tenant.Slug,
		"schema":   tenant.SchemaName,
		"existing": existing,
	})

	if _, err := s.migrate(ctx, tenant); err != nil {
		if !existing {
			s.rollbackRegistration(ctx, tenant)
		}
		return nil, existing, &errs.ProvisioningError{
			Identity:   tenant.Identity,
			SchemaName: tenant.SchemaName,
			RolledBack: !existing,
			Err:        err,
		}
	}

	return tenant, existing, nil
}

// CatchUp applies pending migrations to an already-registered tenant.
func (s *Service) CatchUp(ctx context.Context, tenant *entity.Tenant) (int, error) {
	return s.migrate(ctx, tenant)
}

// Drop removes a tenant's schema and registry row. Irreversible.
func (s *Service) Drop(ctx context.Context, slug string) error {
	tenant, err := s.registry.FindBySlug(ctx, slug)
	if err != nil {
		return err
	}

	if err := s.migrator.DropSchema(ctx, tenant.SchemaName); err != nil {
		return err
	}
	if err := s.registry.Remove(ctx, tenant.SchemaName); err != nil {
		return err
	}

	s.logger.Warn("Tenant dropped", map[string]any{
		"identity": tenant.Identity,
		"slug":     tenant.Slug,
		"schema":   tenant.SchemaName,
	})
	return nil
}

// Reset drops every tenant schema and empties the registry.
func (s *Service) Reset(ctx context.Context) error {
	tenants, err := s.registry.ListAll(ctx)
	if err != nil {
		return err
	}

	for _, tenant := range tenants {
		if err := s.migrator.DropSchema(ctx, tenant.SchemaName); err != nil {
			return fmt.Errorf("dropping schema %s: %w", tenant.SchemaName, err)
		}
		if err := s.registry.Remove(ctx, tenant.SchemaName); err != nil {
			return fmt.Errorf("removing registry row for %s: %w", tenant.SchemaName, err)
		}
	}

	s.logger.Warn("All tenant schemas dropped and registry emptied", map[string]any{
		"tenants": len(tenants),
	})
	return nil
}

// migrate performs the per-schema sequence: create schema, ensure the
// tracking table, compute the pending set and apply it strictly in order.
// Migrations for one schema are never parallelized because later files may
// depend on earlier DDL.
func (s *Service) migrate(ctx context.Context, tenant *entity.Tenant) (int, error) {
	if err := s.migrator.EnsureSchema(ctx, tenant.SchemaName); err != nil {
		return 0, err
	}
	if err := s.migrator.EnsureTrackingTable(ctx, tenant.SchemaName); err != nil {
		return 0, err
	}

	applied, err := s.migrator.AppliedSet(ctx, tenant.SchemaName)
	if err != nil {
		return 0, err
	}

	pending := entity.Pending(s.source.ListOrdered(), applied)
	if len(pending) == 0 {
		s.logger.Debug("Schema already up to date", map[string]any{
			"schema": tenant.SchemaName,
		})
		return 0, nil
	}

	count := 0
	for _, filename := range pending {
		start := s.timeProvider.Now()

		sql, err := s.source.ContentsFor(filename, tenant.SchemaName)
		if err != nil {
			return count, errs.NewMigrationError(tenant.Identity, tenant.SchemaName, filename, err)
		}

		if err := s.migrator.Apply(ctx, tenant.SchemaName, filename, sql); err != nil {
			// Stop immediately: later files may depend on this one.
			return count, errs.NewMigrationError(tenant.Identity, tenant.SchemaName, filename, err)
		}
		count++

		s.logger.Info("Migration applied", map[string]any{
			"schema":     tenant.SchemaName,
			"filename":   filename,
			"elapsed_ms": s.timeProvider.Since(start).Milliseconds(),
		})
	}

	return count, nil
}

// rollbackRegistration reverses a registration created earlier in the same
// call so a fully-failed attempt leaves no orphaned partial tenant. Never
// invoked for pre-existing tenants.
func (s *Service) rollbackRegistration(ctx context.Context, tenant *entity.Tenant) {
	if err := s.migrator.DropSchema(ctx, tenant.SchemaName); err != nil {
		s.logger.Error("Failed to drop schema during provisioning rollback", map[string]any{
			"schema": tenant.SchemaName,
			"error":  err.Error(),
		})
	}
	if err := s.registry.Remove(ctx, tenant.SchemaName); err != nil {
		s.logger.Error("Failed to remove registry row during provisioning rollback", map[string]any{
			"schema": tenant.SchemaName,
			"error":  err.Error(),
		})
		return
	}

	s.logger.Warn("Provisioning rolled back", map[string]any{
		"identity": tenant.Identity,
		"schema":   tenant.SchemaName,
	})
}
