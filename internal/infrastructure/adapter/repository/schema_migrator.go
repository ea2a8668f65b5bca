package repository

import (
	"context"
	"fmt"
	"time"

	errs "github.com/amirali-farhadi/tenant-provisioner/internal/domain/error"
	coreport "github.com/amirali-farhadi/tenant-provisioner/internal/domain/port/core"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/database"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/model"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/metrics"
	"gorm.io/gorm"
)

// SchemaMigratorRepository implements the SchemaMigrator interface using
// GORM. Catalog operations (creating and dropping schemas, existence checks
// against information_schema) run on the shared registry pool. Tracking-table
// and migration statements run on the tenant's schema-scoped pool, whose DSN
// pins search_path to the schema, so the tracking table is referenced
// unqualified and always resolves inside the right tenant.
//
// Schema names are interpolated into DDL because Postgres does not accept
// bind parameters for identifiers. Names reaching this layer have already
// passed the entity derivation rules (lowercase, underscore, fixed prefix),
// which is what makes the interpolation safe.
//
// Every statement carries its own deadline derived from the configured query
// timeout, so one stuck statement cannot pin a fleet worker forever.
type SchemaMigratorRepository struct {
	db              *gorm.DB
	pools           *database.SchemaPools
	timeProvider    coreport.TimeProvider
	logger          coreport.Logger
	errorClassifier *ErrorClassifier
	queryTimeout    time.Duration
}

// NewSchemaMigratorRepository creates a new SchemaMigratorRepository instance
func NewSchemaMigratorRepository(db *gorm.DB, pools *database.SchemaPools, timeProvider coreport.TimeProvider, logger coreport.Logger, queryTimeout time.Duration) *SchemaMigratorRepository {
	return &SchemaMigratorRepository{
		db:              db,
		pools:           pools,
		timeProvider:    timeProvider,
		logger:          logger,
		errorClassifier: NewErrorClassifier(),
		queryTimeout:    queryTimeout,
	}
}

func (r *SchemaMigratorRepository) statementContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return r.timeProvider.WithTimeout(ctx, r.queryTimeout)
}

// schemaDB borrows the schema-scoped pool for one statement. Callers never
// hold the handle across operations, so idle-only eviction in the pool cache
// stays safe.
func (r *SchemaMigratorRepository) schemaDB(schemaName string) (*gorm.DB, error) {
	return r.pools.Get(schemaName)
}

// EnsureSchema creates the physical schema if absent
func (r *SchemaMigratorRepository) EnsureSchema(ctx context.Context, schemaName string) error {
	stmtCtx, cancel := r.statementContext(ctx)
	defer cancel()

	result := r.db.WithContext(stmtCtx).Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName))
	if result.Error != nil {
		r.logger.Error("Failed to create schema", map[string]any{
			"schema": schemaName,
			"error":  result.Error.Error(),
		})
		return fmt.Errorf("%w: %s", errs.ErrSchemaCreation, result.Error.Error())
	}
	return nil
}

// EnsureTrackingTable creates the per-schema tracking table if absent
func (r *SchemaMigratorRepository) EnsureTrackingTable(ctx context.Context, schemaName string) error {
	db, err := r.schemaDB(schemaName)
	if err != nil {
		return err
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id SERIAL PRIMARY KEY,
			filename TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, model.AppliedMigrationTableName)

	stmtCtx, cancel := r.statementContext(ctx)
	defer cancel()

	result := db.WithContext(stmtCtx).Exec(ddl)
	if result.Error != nil {
		r.logger.Error("Failed to create tracking table", map[string]any{
			"schema": schemaName,
			"error":  result.Error.Error(),
		})
		return fmt.Errorf("%w: %s", errs.ErrSchemaCreation, result.Error.Error())
	}
	return nil
}

// AppliedSet returns the filenames already recorded for a schema
func (r *SchemaMigratorRepository) AppliedSet(ctx context.Context, schemaName string) (map[string]struct{}, error) {
	db, err := r.schemaDB(schemaName)
	if err != nil {
		return nil, err
	}

	stmtCtx, cancel := r.statementContext(ctx)
	defer cancel()

	var filenames []string
	result := db.WithContext(stmtCtx).
		Table(model.AppliedMigrationTableName).
		Pluck("filename", &filenames)
	if result.Error != nil {
		return nil, fmt.Errorf("%w: reading applied migrations for %s: %s", errs.ErrInternalServer, schemaName, result.Error.Error())
	}

	applied := make(map[string]struct{}, len(filenames))
	for _, filename := range filenames {
		applied[filename] = struct{}{}
	}
	return applied, nil
}

// Apply executes one migration's SQL and records the filename, both inside a
// single database transaction so a crash between them cannot leave the file
// half-tracked.
func (r *SchemaMigratorRepository) Apply(ctx context.Context, schemaName, filename, sql string) error {
	db, err := r.schemaDB(schemaName)
	if err != nil {
		return err
	}

	r.logger.Debug("Applying migration", map[string]any{
		"schema":   schemaName,
		"filename": filename,
	})
	start := r.timeProvider.Now()

	stmtCtx, cancel := r.statementContext(ctx)
	defer cancel()

	err = db.WithContext(stmtCtx).Transaction(func(tx *gorm.DB) error {
		if execErr := tx.Exec(sql).Error; execErr != nil {
			return fmt.Errorf("%w: %s", errs.ErrMigrationExecution, execErr.Error())
		}

		record := tx.Exec(
			fmt.Sprintf("INSERT INTO %s (filename, applied_at) VALUES (?, ?)", model.AppliedMigrationTableName),
			filename, r.timeProvider.Now(),
		)
		if record.Error != nil {
			// The transaction rolls the statements back, but the failure mode
			// still gets its own class: the SQL ran and could not be recorded.
			return fmt.Errorf("%w: recording %s: %s", errs.ErrTrackingInconsistency, filename, record.Error.Error())
		}
		return nil
	})

	if err != nil {
		r.logger.Error("Migration failed", map[string]any{
			"schema":   schemaName,
			"filename": filename,
			"error":    err.Error(),
		})
		return err
	}

	metrics.RecordMigrationApplied(start)
	r.logger.Info("Migration applied", map[string]any{
		"schema":   schemaName,
		"filename": filename,
	})
	return nil
}

// MarkApplied records a filename as applied without executing anything
func (r *SchemaMigratorRepository) MarkApplied(ctx context.Context, schemaName, filename string) error {
	db, err := r.schemaDB(schemaName)
	if err != nil {
		return err
	}

	stmtCtx, cancel := r.statementContext(ctx)
	defer cancel()

	result := db.WithContext(stmtCtx).Exec(
		fmt.Sprintf("INSERT INTO %s (filename, applied_at) VALUES (?, ?) ON CONFLICT (filename) DO NOTHING", model.AppliedMigrationTableName),
		filename, r.timeProvider.Now(),
	)
	if result.Error != nil {
		return fmt.Errorf("%w: marking %s applied in %s: %s", errs.ErrInternalServer, filename, schemaName, result.Error.Error())
	}

	r.logger.Info("Migration marked applied without execution", map[string]any{
		"schema":   schemaName,
		"filename": filename,
	})
	return nil
}

// HasTable reports whether a table already exists inside the schema
func (r *SchemaMigratorRepository) HasTable(ctx context.Context, schemaName, tableName string) (bool, error) {
	stmtCtx, cancel := r.statementContext(ctx)
	defer cancel()

	var count int64
	result := r.db.WithContext(stmtCtx).
		Table("information_schema.tables").
		Where("table_schema = ? AND table_name = ?", schemaName, tableName).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("%w: checking for table %s.%s: %s", errs.ErrInternalServer, schemaName, tableName, result.Error.Error())
	}
	return count > 0, nil
}

// DropSchema removes the physical schema and everything in it. The schema's
// connection pool is closed first so no cached pool outlives its schema.
func (r *SchemaMigratorRepository) DropSchema(ctx context.Context, schemaName string) error {
	if err := r.pools.CloseSchema(schemaName); err != nil {
		r.logger.Warn("Failed to close schema pool before drop", map[string]any{
			"schema": schemaName,
			"error":  err.Error(),
		})
	}

	stmtCtx, cancel := r.statementContext(ctx)
	defer cancel()

	result := r.db.WithContext(stmtCtx).Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
	if result.Error != nil {
		r.logger.Error("Failed to drop schema", map[string]any{
			"schema": schemaName,
			"error":  result.Error.Error(),
		})
		return fmt.Errorf("%w: %s", errs.ErrInternalServer, result.Error.Error())
	}

	r.logger.Warn("Schema dropped", map[string]any{
		"schema": schemaName,
	})
	return nil
}
