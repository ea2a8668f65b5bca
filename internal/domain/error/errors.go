package error

import (
	"errors"
	"fmt"
)

// Error codes for standardized API responses
const (
	// 4xxx - Client errors
	CodeInvalidIdentity = 4001
	CodeInvalidSlug     = 4002
	CodeTenantNotFound  = 4040

	// 5xxx - Server errors
	CodeInternalServer        = 5000
	CodeSchemaCreation        = 5001
	CodeMigrationExecution    = 5002
	CodeTrackingInconsistency = 5003
	CodeConnection            = 5030
)

// Base error types
var (
	// ErrInvalidIdentity is returned when the external tenant identity is empty
	ErrInvalidIdentity = errors.New("tenant identity cannot be empty")

	// ErrInvalidSlug is returned when a slug cannot produce an identifier-safe schema name
	ErrInvalidSlug = errors.New("slug must contain only lowercase letters, digits and single hyphens")

	// ErrTenantNotFound is returned when the requested tenant doesn't exist in the registry
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrConnection is returned when the database is unreachable or the pool is exhausted
	ErrConnection = errors.New("database connection error")

	// ErrSchemaCreation is returned when the physical schema cannot be created
	ErrSchemaCreation = errors.New("failed to create tenant schema")

	// ErrMigrationExecution is returned when a specific migration file's SQL failed
	ErrMigrationExecution = errors.New("migration execution failed")

	// ErrTrackingInconsistency is returned when a migration executed but its
	// tracking record could not be persisted; operators must verify the
	// tracking table manually instead of re-running the file
	ErrTrackingInconsistency = errors.New("migration applied but not recorded")

	// ErrInternalServer is returned for unexpected server-side errors
	ErrInternalServer = errors.New("internal server error")
)

// ErrorCode returns standardized error codes for known errors
func ErrorCode(err error) int {
	switch {
	case errors.Is(err, ErrInvalidIdentity):
		return CodeInvalidIdentity
	case errors.Is(err, ErrInvalidSlug):
		return CodeInvalidSlug
	case errors.Is(err, ErrTenantNotFound):
		return CodeTenantNotFound
	case errors.Is(err, ErrTrackingInconsistency):
		return CodeTrackingInconsistency
	case errors.Is(err, ErrMigrationExecution):
		return CodeMigrationExecution
	case errors.Is(err, ErrSchemaCreation):
		return CodeSchemaCreation
	case errors.Is(err, ErrConnection):
		return CodeConnection
	default:
		return CodeInternalServer
	}
}

// MigrationError carries enough context for an operator to diagnose which
// file blocked which tenant.
type MigrationError struct {
	Identity   string
	SchemaName string
	Filename   string
	Err        error
}

// Error implements the error interface for MigrationError
func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %s failed for tenant %s (schema: %s): %v",
		e.Filename, e.Identity, e.SchemaName, e.Err)
}

// Unwrap returns the underlying error
func (e *MigrationError) Unwrap() error {
	return e.Err
}

// LogFields returns a map of fields for structured logging
func (e *MigrationError) LogFields() map[string]any {
	return map[string]any{
		"error_type": "migration_error",
		"identity":   e.Identity,
		"schema":     e.SchemaName,
		"filename":   e.Filename,
		"error":      e.Err.Error(),
		"error_code": ErrorCode(e.Err),
	}
}

// NewMigrationError wraps a migration execution failure with tenant context
func NewMigrationError(identity, schemaName, filename string, err error) error {
	return &MigrationError{
		Identity:   identity,
		SchemaName: schemaName,
		Filename:   filename,
		Err:        err,
	}
}

// ProvisioningError represents a failed provisioning attempt, including
// whether the registration created in the same call was rolled back.
type ProvisioningError struct {
	Identity   string
	SchemaName string
	RolledBack bool
	Err        error
}

// Error implements the error interface for ProvisioningError
func (e *ProvisioningError) Error() string {
	if e.RolledBack {
		return fmt.Sprintf("provisioning failed for tenant %s (schema: %s, registration rolled back): %v",
			e.Identity, e.SchemaName, e.Err)
	}
	return fmt.Sprintf("provisioning failed for tenant %s (schema: %s): %v",
		e.Identity, e.SchemaName, e.Err)
}

// Unwrap returns the underlying error
func (e *ProvisioningError) Unwrap() error {
	return e.Err
}

// LogFields returns a map of fields for structured logging
func (e *ProvisioningError) LogFields() map[string]any {
	return map[string]any{
		"error_type":  "provisioning_error",
		"identity":    e.Identity,
		"schema":      e.SchemaName,
		"rolled_back": e.RolledBack,
		"error":       e.Err.Error(),
		"error_code":  ErrorCode(e.Err),
	}
}

// IsConnectionError checks if the error is related to database connectivity
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsMigrationExecutionError checks if the error is a failed migration file
func IsMigrationExecutionError(err error) bool {
	return errors.Is(err, ErrMigrationExecution)
}

// IsTrackingInconsistencyError checks if a migration applied without being recorded
func IsTrackingInconsistencyError(err error) bool {
	return errors.Is(err, ErrTrackingInconsistency)
}

// IsNotFoundError checks if the error is a missing-tenant error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrTenantNotFound)
}
