package persistence

import (
	"context"

	"github.com/amirali-farhadi/tenant-provisioner/internal/domain/entity"
)

// TenantRegistry is the durable mapping from tenant identity and slug to
// schema name, backed by the single shared registry table.
type TenantRegistry interface {
	// Register inserts a new registry row or returns the existing one.
	// Re-registering the same identity is idempotent and reports
	// existing=true, even when the requested slug has changed since the
	// first registration; the stored slug and schema win. A different
	// identity arriving on an already-taken slug remaps the row's identity
	// to the new one (last-writer-wins) instead of failing; the stored
	// schema name is returned either way.
	Register(ctx context.Context, identity, name, slug string) (tenant *entity.Tenant, existing bool, err error)

	// FindBySlug returns the tenant for a slug, or ErrTenantNotFound.
	FindBySlug(ctx context.Context, slug string) (*entity.Tenant, error)

	// FindByIdentity returns the tenant for an external identity, or ErrTenantNotFound.
	FindByIdentity(ctx context.Context, identity string) (*entity.Tenant, error)

	// ListAll returns a snapshot of every registered tenant.
	ListAll(ctx context.Context) ([]*entity.Tenant, error)

	// SetActive soft-enables or soft-disables a tenant without touching its data.
	SetActive(ctx context.Context, schemaName string, active bool) error

	// Remove deletes the registry row for a schema. Used when rolling back a
	// registration created in the same provisioning call, and by the
	// administrative drop; the physical schema is dropped separately.
	Remove(ctx context.Context, schemaName string) error
}
