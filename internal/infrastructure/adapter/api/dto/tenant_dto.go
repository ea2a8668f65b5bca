package dto

import (
	"time"

	"github.com/amirali-farhadi/tenant-provisioner/internal/domain/entity"
)

// OrganizationEventRequest is the organization-created event delivered by
// the identity provider. Slug is optional; when omitted it is derived from
// the display name.
type OrganizationEventRequest struct {
	Identity string `json:"identity" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Slug     string `json:"slug,omitempty"`
}

// ProvisionResponse represents the API response for a provisioned tenant
type ProvisionResponse struct {
	Identity   string `json:"identity"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	SchemaName string `json:"schemaName"`
	Existing   bool   `json:"existing"`
}

// TenantResponse represents one registered tenant
type TenantResponse struct {
	Identity   string    `json:"identity"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	SchemaName string    `json:"schemaName"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TenantFromEntity converts a tenant entity into its API representation
func TenantFromEntity(tenant *entity.Tenant) TenantResponse {
	return TenantResponse{
		Identity:   tenant.Identity,
		Name:       tenant.Name,
		Slug:       tenant.Slug,
		SchemaName: tenant.SchemaName,
		Active:     tenant.Active,
		CreatedAt:  tenant.CreatedAt,
		UpdatedAt:  tenant.UpdatedAt,
	}
}

// TenantListResponse wraps the registry listing
type TenantListResponse struct {
	Tenants []TenantResponse `json:"tenants"`
	Total   int              `json:"total"`
}
