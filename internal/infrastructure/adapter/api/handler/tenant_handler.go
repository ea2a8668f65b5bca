package handler

import (
	"errors"
	"net/http"
	"time"

	domainerr "github.com/amirali-farhadi/tenant-provisioner/internal/domain/error"
	coreport "github.com/amirali-farhadi/tenant-provisioner/internal/domain/port/core"
	"github.com/amirali-farhadi/tenant-provisioner/internal/domain/port/usecase"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/api/dto"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/database"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/metrics"
	"github.com/gin-gonic/gin"
)

// TenantHandler handles the organization-created event endpoint
type TenantHandler struct {
	provisioner usecase.TenantProvisioner
	pools       *database.SchemaPools
	logger      coreport.Logger
}

// NewTenantHandler creates a new tenant handler instance
func NewTenantHandler(
	provisioner usecase.TenantProvisioner,
	pools *database.SchemaPools,
	logger coreport.Logger,
) *TenantHandler {
	return &TenantHandler{
		provisioner: provisioner,
		pools:       pools,
		logger:      logger,
	}
}

// ProvisionTenant handles the POST /events/organizations endpoint. Delivery
// is at-least-once, so replays of an already-provisioned organization return
// 200 instead of 201.
func (h *TenantHandler) ProvisionTenant(c *gin.Context) {
	var request dto.OrganizationEventRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Code:    domainerr.ErrorCode(domainerr.ErrInvalidIdentity),
			Message: "Invalid organization event payload",
		})
		return
	}

	start := time.Now()
	tenant, existing, err := h.provisioner.Provision(c.Request.Context(), request.Identity, request.Name, request.Slug)
	if err != nil {
		metrics.RecordProvisioning(metrics.ResultFailed, start)

		statusCode := http.StatusInternalServerError
		errorMessage := "Internal server error"

		switch {
		case errors.Is(err, domainerr.ErrInvalidIdentity):
			statusCode = http.StatusBadRequest
			errorMessage = "Invalid organization identity"
		case errors.Is(err, domainerr.ErrInvalidSlug):
			statusCode = http.StatusBadRequest
			errorMessage = "Invalid organization slug"
		case errors.Is(err, domainerr.ErrMigrationExecution):
			statusCode = http.StatusUnprocessableEntity
			errorMessage = "Tenant schema migration failed"
		case errors.Is(err, domainerr.ErrConnection):
			statusCode = http.StatusServiceUnavailable
			errorMessage = "Database unavailable"
		}

		h.logger.Error("Error provisioning tenant", map[string]any{
			"identity": request.Identity,
			"slug":     request.Slug,
			"error":    err.Error(),
		})

		c.JSON(statusCode, dto.ErrorResponse{
			Code:    domainerr.ErrorCode(err),
			Message: errorMessage,
		})
		return
	}

	statusCode := http.StatusCreated
	result := metrics.ResultCreated
	if existing {
		statusCode = http.StatusOK
		result = metrics.ResultExisting
	}
	metrics.RecordProvisioning(result, start)

	// The migration statements already created this schema's pool; touching
	// it here refreshes its recency so it survives until the tenant's first
	// data query. Failure here never fails the provisioning response.
	if _, poolErr := h.pools.Get(tenant.SchemaName); poolErr != nil {
		h.logger.Warn("Failed to warm schema pool", map[string]any{
			"schema": tenant.SchemaName,
			"error":  poolErr.Error(),
		})
	}
	metrics.SetSchemaPoolsOpen(h.pools.Len())

	c.JSON(statusCode, dto.ProvisionResponse{
		Identity:   tenant.Identity,
		Name:       tenant.Name,
		Slug:       tenant.Slug,
		SchemaName: tenant.SchemaName,
		Existing:   existing,
	})
}
