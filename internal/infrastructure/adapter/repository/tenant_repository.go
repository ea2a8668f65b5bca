package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirali-farhadi/tenant-provisioner/internal/domain/entity"
	errs "github.com/amirali-farhadi/tenant-provisioner/internal/domain/error"
	coreport "github.com/amirali-farhadi/tenant-provisioner/internal/domain/port/core"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/database"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/model"
	"gorm.io/gorm"
)

// TenantRepository implements the TenantRegistry interface using GORM,
// backed by the single shared registry table. Every statement carries its
// own deadline derived from the configured query timeout.
type TenantRepository struct {
	db              *gorm.DB
	timeProvider    coreport.TimeProvider
	logger          coreport.Logger
	errorClassifier *ErrorClassifier
	errorMapper     *database.ErrorMapper
	queryTimeout    time.Duration
}

// NewTenantRepository creates a new TenantRepository instance
func NewTenantRepository(db *gorm.DB, timeProvider coreport.TimeProvider, logger coreport.Logger, queryTimeout time.Duration) *TenantRepository {
	return &TenantRepository{
		db:              db,
		timeProvider:    timeProvider,
		logger:          logger,
		errorClassifier: NewErrorClassifier(),
		errorMapper:     database.NewErrorMapper(),
		queryTimeout:    queryTimeout,
	}
}

func (r *TenantRepository) statementContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return r.timeProvider.WithTimeout(ctx, r.queryTimeout)
}

// modelToEntity converts a registry row to a tenant entity
func (r *TenantRepository) modelToEntity(tenantModel *model.Tenant) *entity.Tenant {
	return &entity.Tenant{
		Identity:   tenantModel.Identity,
		Name:       tenantModel.Name,
		Slug:       tenantModel.Slug,
		SchemaName: tenantModel.SchemaName,
		Active:     tenantModel.Active,
		CreatedAt:  tenantModel.CreatedAt,
		UpdatedAt:  tenantModel.UpdatedAt,
	}
}

// handleDatabaseError standardizes database error handling
func (r *TenantRepository) handleDatabaseError(operation string, err error, key string) error {
	r.logger.Error(fmt.Sprintf("Database error when %s", operation), map[string]any{
		"tenant": key,
		"error":  err.Error(),
	})

	if r.errorClassifier.IsConnectionError(err) {
		return fmt.Errorf("%w: %s", errs.ErrConnection, err.Error())
	}

	return r.errorMapper.MapError(err, operation)
}

// registerRow carries the upserted registry row plus whether the statement
// inserted it. On conflict Postgres updates the existing row, whose xmax is
// then nonzero, which is how a single round trip distinguishes the two.
type registerRow struct {
	model.Tenant
	Inserted bool
}

// Register inserts the registry row or, when the slug is already taken,
// remaps the stored identity to the caller's. The whole decision runs as one
// atomic upsert so two concurrent registrations for the same slug can never
// both believe they created the row. An identity that already owns a
// different slug resolves to its stored row with existing=true instead of
// erroring; the original slug and schema win.
func (r *TenantRepository) Register(ctx context.Context, identity, name, slug string) (*entity.Tenant, bool, error) {
	schemaName := entity.SchemaNameForSlug(slug)
	now := r.timeProvider.Now()

	r.logger.Debug("Registering tenant", map[string]any{
		"identity": identity,
		"slug":     slug,
		"schema":   schemaName,
	})

	stmtCtx, cancel := r.statementContext(ctx)
	defer cancel()

	var row registerRow
	result := r.db.WithContext(stmtCtx).Raw(`
		INSERT INTO tenants (identity, name, slug, schema_name, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, TRUE, ?, ?)
		ON CONFLICT (slug) DO UPDATE
			SET identity = EXCLUDED.identity,
			    name = EXCLUDED.name,
			    updated_at = EXCLUDED.updated_at
		RETURNING identity, name, slug, schema_name, active, created_at, updated_at, (xmax = 0) AS inserted`,
		identity, name, slug, schemaName, now, now,
	).Scan(&row)

	if result.Error != nil {
		if r.errorClassifier.IsDuplicateKeyError(result.Error) {
			// The slug upsert cannot conflict on slug, so a duplicate here is
			// the identity primary key: this identity already owns another
			// slug. The stored row wins so replays after a display-name
			// change stay idempotent.
			existingTenant, findErr := r.FindByIdentity(ctx, identity)
			if findErr != nil {
				return nil, false, findErr
			}
			r.logger.Info("Tenant registration matched existing identity", map[string]any{
				"identity":       identity,
				"requested_slug": slug,
				"slug":           existingTenant.Slug,
				"schema":         existingTenant.SchemaName,
			})
			return existingTenant, true, nil
		}
		return nil, false, r.handleDatabaseError("registering tenant", result.Error, slug)
	}

	tenant := r.modelToEntity(&row.Tenant)
	existing := !row.Inserted

	if existing {
		r.logger.Info("Tenant registration matched existing row", map[string]any{
			"identity": identity,
			"slug":     slug,
			"schema":   tenant.SchemaName,
		})
	} else {
		r.logger.Info("Tenant registered", map[string]any{
			"identity": identity,
			"slug":     slug,
			"schema":   tenant.SchemaName,
		})
	}

	return tenant, existing, nil
}

// FindBySlug retrieves a tenant by its slug
func (r *TenantRepository) FindBySlug(ctx context.Context, slug string) (*entity.Tenant, error) {
	stmtCtx, cancel := r.statementContext(ctx)
	defer cancel()

	var tenantModel model.Tenant
	result := r.db.WithContext(stmtCtx).Where("slug = ?", slug).First(&tenantModel)
	if result.Error != nil {
		return nil, r.handleDatabaseError("finding tenant by slug", result.Error, slug)
	}
	return r.modelToEntity(&tenantModel), nil
}

// FindByIdentity retrieves a tenant by its external identity
func (r *TenantRepository) FindByIdentity(ctx context.Context, identity string) (*entity.Tenant, error) {
	stmtCtx, cancel := r.statementContext(ctx)
	defer cancel()

	var tenantModel model.Tenant
	result := r.db.WithContext(stmtCtx).Where("identity = ?", identity).First(&tenantModel)
	if result.Error != nil {
		return nil, r.handleDatabaseError("finding tenant by identity", result.Error, identity)
	}
	return r.modelToEntity(&tenantModel), nil
}

// ListAll returns a snapshot of every registered tenant ordered by slug
func (r *TenantRepository) ListAll(ctx context.Context) ([]*entity.Tenant, error) {
	stmtCtx, cancel := r.statementContext(ctx)
	defer cancel()

	var tenantModels []model.Tenant
	result := r.db.WithContext(stmtCtx).Order("slug").Find(&tenantModels)
	if result.Error != nil {
		return nil, r.handleDatabaseError("listing tenants", result.Error, "all")
	}

	tenants := make([]*entity.Tenant, 0, len(tenantModels))
	for i := range tenantModels {
		tenants = append(tenants, r.modelToEntity(&tenantModels[i]))
	}
	return tenants, nil
}

// SetActive flips the soft-enable flag for one tenant
func (r *TenantRepository) SetActive(ctx context.Context, schemaName string, active bool) error {
	stmtCtx, cancel := r.statementContext(ctx)
	defer cancel()

	result := r.db.WithContext(stmtCtx).Model(&model.Tenant{}).
		Where("schema_name = ?", schemaName).
		Updates(map[string]interface{}{
			"active":     active,
			"updated_at": r.timeProvider.Now(),
		})

	if result.Error != nil {
		return r.handleDatabaseError("updating tenant active flag", result.Error, schemaName)
	}
	if result.RowsAffected == 0 {
		return errs.ErrTenantNotFound
	}

	r.logger.Info("Tenant active flag updated", map[string]any{
		"schema": schemaName,
		"active": active,
	})
	return nil
}

// Remove deletes the registry row for a schema
func (r *TenantRepository) Remove(ctx context.Context, schemaName string) error {
	stmtCtx, cancel := r.statementContext(ctx)
	defer cancel()

	result := r.db.WithContext(stmtCtx).Where("schema_name = ?", schemaName).Delete(&model.Tenant{})
	if result.Error != nil {
		return r.handleDatabaseError("removing tenant", result.Error, schemaName)
	}
	if result.RowsAffected == 0 {
		return errs.ErrTenantNotFound
	}

	r.logger.Info("Tenant registry row removed", map[string]any{
		"schema": schemaName,
	})
	return nil
}
