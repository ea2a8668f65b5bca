package usecase

import (
	"context"

	"github.com/amirali-farhadi/tenant-provisioner/internal/domain/entity"
)

// TenantProvisioner brings a tenant from "does not exist" to "registered,
// schema created, fully migrated". Safe to call again for tenants that
// already exist; re-entry only applies whatever is still pending.
type TenantProvisioner interface {
	// Provision registers the tenant if needed and migrates its schema fully
	// up to date. existing reports whether the tenant was already registered
	// before this call.
	Provision(ctx context.Context, identity, name, slug string) (tenant *entity.Tenant, existing bool, err error)

	// CatchUp applies pending migrations to an already-registered tenant.
	// Returns how many files were applied.
	CatchUp(ctx context.Context, tenant *entity.Tenant) (applied int, err error)

	// Drop removes a tenant's schema and registry row. Irreversible.
	Drop(ctx context.Context, slug string) error

	// Reset drops every tenant schema and empties the registry. Destructive,
	// intended only for non-production environments.
	Reset(ctx context.Context) error
}

// FleetMigrator applies pending migrations across every registered tenant.
type FleetMigrator interface {
	// MigrateAll runs a fleet pass. One tenant's failure never prevents the
	// rest from being attempted; the report carries per-tenant outcomes.
	MigrateAll(ctx context.Context) (*entity.FleetReport, error)
}
