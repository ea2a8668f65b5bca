package database

import (
	"errors"
	"fmt"
	"strings"

	domainErr "github.com/amirali-farhadi/tenant-provisioner/internal/domain/error"
	"gorm.io/gorm"
)

// ErrorMapper maps database errors to domain errors
type ErrorMapper struct{}

// NewErrorMapper creates a new ErrorMapper
func NewErrorMapper() *ErrorMapper {
	return &ErrorMapper{}
}

// MapError maps a database error to a domain error
func (m *ErrorMapper) MapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainErr.ErrTenantNotFound
	}

	// Check for PostgreSQL specific errors
	errMsg := strings.ToLower(err.Error())

	switch {
	// Namespace errors from DDL against tenant schemas
	case strings.Contains(errMsg, "invalid schema name") ||
		strings.Contains(errMsg, "schema") && strings.Contains(errMsg, "does not exist"):
		return fmt.Errorf("%w: %s", domainErr.ErrSchemaCreation, err.Error())

	// Connection issues
	case strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "no connection") ||
		strings.Contains(errMsg, "connection reset"):
		return fmt.Errorf("%w: %s", domainErr.ErrConnection, err.Error())

	// Timeout errors
	case strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "deadline exceeded"):
		return fmt.Errorf("%w: %s operation timed out", domainErr.ErrConnection, operation)

	// Default error
	default:
		return domainErr.ErrInternalServer
	}
}

// MapTenantNotFoundError maps lookup failures to tenant not found
func (m *ErrorMapper) MapTenantNotFoundError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainErr.ErrTenantNotFound
	}
	return m.MapError(err, "tenant lookup")
}
