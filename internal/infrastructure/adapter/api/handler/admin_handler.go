package handler

import (
	"errors"
	"net/http"
	"time"

	domainerr "github.com/amirali-farhadi/tenant-provisioner/internal/domain/error"
	coreport "github.com/amirali-farhadi/tenant-provisioner/internal/domain/port/core"
	"github.com/amirali-farhadi/tenant-provisioner/internal/domain/port/persistence"
	"github.com/amirali-farhadi/tenant-provisioner/internal/domain/port/usecase"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/api/dto"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/database"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/metrics"
	"github.com/gin-gonic/gin"
)

// AdminHandler handles the administrative endpoints: fleet migration runs,
// registry listing, tenant teardown and the non-production reset.
type AdminHandler struct {
	registry     persistence.TenantRegistry
	provisioner  usecase.TenantProvisioner
	fleet        usecase.FleetMigrator
	pools        *database.SchemaPools
	logger       coreport.Logger
	isProduction bool
}

// NewAdminHandler creates a new admin handler instance
func NewAdminHandler(
	registry persistence.TenantRegistry,
	provisioner usecase.TenantProvisioner,
	fleet usecase.FleetMigrator,
	pools *database.SchemaPools,
	logger coreport.Logger,
	isProduction bool,
) *AdminHandler {
	return &AdminHandler{
		registry:     registry,
		provisioner:  provisioner,
		fleet:        fleet,
		pools:        pools,
		logger:       logger,
		isProduction: isProduction,
	}
}

// RunFleetMigration handles the POST /admin/migrations/run endpoint. The
// run itself succeeds even when individual tenants fail; per-tenant failures
// are reported in the body with a 207 status.
func (h *AdminHandler) RunFleetMigration(c *gin.Context) {
	start := time.Now()

	report, err := h.fleet.MigrateAll(c.Request.Context())
	if err != nil {
		metrics.RecordFleetRun(metrics.ResultFailed, 0, 0, 0, start)
		h.logger.Error("Fleet migration run failed to start", map[string]any{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Code:    domainerr.ErrorCode(err),
			Message: "Fleet migration run failed",
		})
		return
	}

	migrated, skipped, failed := 0, 0, 0
	for _, outcome := range report.Outcomes {
		switch {
		case outcome.Err != nil:
			failed++
		case outcome.Skipped:
			skipped++
		default:
			migrated++
		}
	}

	result := metrics.ResultSuccess
	statusCode := http.StatusOK
	if report.Failed() {
		result = metrics.ResultFailed
		statusCode = http.StatusMultiStatus
	}
	metrics.RecordFleetRun(result, migrated, skipped, failed, start)

	c.JSON(statusCode, dto.FleetReportFromEntity(report))
}

// ListTenants handles the GET /admin/tenants endpoint
func (h *AdminHandler) ListTenants(c *gin.Context) {
	tenants, err := h.registry.ListAll(c.Request.Context())
	if err != nil {
		h.logger.Error("Error listing tenants", map[string]any{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Code:    domainerr.ErrorCode(err),
			Message: "Internal server error",
		})
		return
	}

	responses := make([]dto.TenantResponse, 0, len(tenants))
	for _, tenant := range tenants {
		responses = append(responses, dto.TenantFromEntity(tenant))
	}

	c.JSON(http.StatusOK, dto.TenantListResponse{
		Tenants: responses,
		Total:   len(responses),
	})
}

// DropTenant handles the DELETE /admin/tenants/:slug endpoint
func (h *AdminHandler) DropTenant(c *gin.Context) {
	slug := c.Param("slug")

	// Dropping the schema also closes its cached pool.
	if err := h.provisioner.Drop(c.Request.Context(), slug); err != nil {
		statusCode := http.StatusInternalServerError
		errorMessage := "Internal server error"

		if errors.Is(err, domainerr.ErrTenantNotFound) {
			statusCode = http.StatusNotFound
			errorMessage = "Tenant not found"
		}

		h.logger.Error("Error dropping tenant", map[string]any{
			"slug":  slug,
			"error": err.Error(),
		})

		c.JSON(statusCode, dto.ErrorResponse{
			Code:    domainerr.ErrorCode(err),
			Message: errorMessage,
		})
		return
	}

	metrics.SetSchemaPoolsOpen(h.pools.Len())
	c.Status(http.StatusNoContent)
}

// ResetAll handles the POST /admin/reset endpoint. Refused outright in
// production; every tenant schema and the whole registry are destroyed.
func (h *AdminHandler) ResetAll(c *gin.Context) {
	if h.isProduction {
		c.JSON(http.StatusForbidden, dto.ErrorResponse{
			Code:    http.StatusForbidden,
			Message: "Reset is not available in production",
		})
		return
	}

	h.pools.CloseAll()
	metrics.SetSchemaPoolsOpen(0)

	if err := h.provisioner.Reset(c.Request.Context()); err != nil {
		h.logger.Error("Error resetting tenants", map[string]any{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Code:    domainerr.ErrorCode(err),
			Message: "Internal server error",
		})
		return
	}

	c.Status(http.StatusNoContent)
}
