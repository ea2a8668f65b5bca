package dto

import (
	"github.com/amirali-farhadi/tenant-provisioner/internal/domain/entity"
)

// TenantOutcomeResponse is the per-tenant result of a fleet migration run
type TenantOutcomeResponse struct {
	Identity   string `json:"identity"`
	Slug       string `json:"slug"`
	SchemaName string `json:"schemaName"`
	Applied    int    `json:"applied"`
	Skipped    bool   `json:"skipped"`
	Error      string `json:"error,omitempty"`
}

// FleetReportResponse represents the API response for a fleet migration run
type FleetReportResponse struct {
	Tenants []TenantOutcomeResponse `json:"tenants"`
	Total   int                     `json:"total"`
	Failed  int                     `json:"failed"`
}

// FleetReportFromEntity converts a fleet report into its API representation
func FleetReportFromEntity(report *entity.FleetReport) FleetReportResponse {
	outcomes := make([]TenantOutcomeResponse, 0, len(report.Outcomes))
	for _, outcome := range report.Outcomes {
		response := TenantOutcomeResponse{
			Identity:   outcome.Identity,
			Slug:       outcome.Slug,
			SchemaName: outcome.SchemaName,
			Applied:    outcome.Applied,
			Skipped:    outcome.Skipped,
		}
		if outcome.Err != nil {
			response.Error = outcome.Err.Error()
		}
		outcomes = append(outcomes, response)
	}
	return FleetReportResponse{
		Tenants: outcomes,
		Total:   len(outcomes),
		Failed:  report.FailedCount(),
	}
}
