package routes

import (
	coreport "github.com/amirali-farhadi/tenant-provisioner/internal/domain/port/core"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/api/handler"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/api/middleware"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/metrics"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all the routes for the API
func SetupRoutes(
	router *gin.Engine,
	tenantHandler *handler.TenantHandler,
	adminHandler *handler.AdminHandler,
	healthHandler *handler.HealthHandler,
	jwtSecret string,
	logger coreport.Logger,
) {
	// Event ingestion from the identity provider
	eventRoutes := router.Group("/events")
	{
		// POST /events/organizations
		eventRoutes.POST("/organizations", tenantHandler.ProvisionTenant)
	}

	// Administrative surface, bearer token with admin role required
	adminRoutes := router.Group("/admin")
	adminRoutes.Use(middleware.AdminAuth(jwtSecret, logger))
	{
		// POST /admin/migrations/run
		adminRoutes.POST("/migrations/run", adminHandler.RunFleetMigration)

		// GET /admin/tenants
		adminRoutes.GET("/tenants", adminHandler.ListTenants)

		// DELETE /admin/tenants/:slug
		adminRoutes.DELETE("/tenants/:slug", adminHandler.DropTenant)

		// POST /admin/reset
		adminRoutes.POST("/reset", adminHandler.ResetAll)
	}

	// GET /health
	router.GET("/health", healthHandler.Health)

	// GET /metrics
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
}

// SetupMiddlewares configures global middlewares for the API
func SetupMiddlewares(router *gin.Engine, logger coreport.Logger) {
	// Apply middlewares in the correct order
	router.Use(middleware.ErrorHandler(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics())
}
