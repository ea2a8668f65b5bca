package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/amirali-farhadi/tenant-provisioner/internal/domain/usecase/fleet"
	"github.com/amirali-farhadi/tenant-provisioner/internal/domain/usecase/provision"

	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/api/handler"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/api/routes"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/database"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/logger"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/migration"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/model"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/repository"
	timeProvider "github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/time"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/config"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/metrics"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate essential configuration
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	isProduction := cfg.Environment == config.Production

	// Set Gin mode based on environment
	if isProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create logger
	appLogger := logger.NewZapLogger(isProduction, cfg.Logger.Level)
	defer func() { _ = appLogger.Flush() }()

	// Initialize Prometheus metrics
	metrics.InitMetrics("tenant_provisioner")

	// Initialize time provider
	tp := timeProvider.NewRealTimeProvider()

	// Connect to the registry database
	dbConfig := database.FromAppConfig(cfg)
	if err := dbConfig.Validate(); err != nil {
		appLogger.Error("Invalid database configuration", map[string]any{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	dbManager := database.NewManager(dbConfig, appLogger, tp)
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 30*time.Second)
	_, err = dbManager.Connect(connectCtx)
	cancelConnect()
	if err != nil {
		appLogger.Error("Failed to connect to database", map[string]any{
			"error": err.Error(),
		})
		os.Exit(1)
	}
	defer func() { _ = dbManager.Close() }()

	// The registry table lives in the shared namespace and is the only table
	// this service owns directly; tenant tables come from migration files.
	if err := dbManager.DB().AutoMigrate(&model.Tenant{}); err != nil {
		appLogger.Error("Failed to migrate registry table", map[string]any{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	// Load the shared migration file set
	store, err := migration.NewStore(cfg.Migrations.Dir, appLogger)
	if err != nil {
		appLogger.Error("Failed to load migration files", map[string]any{
			"dir":   cfg.Migrations.Dir,
			"error": err.Error(),
		})
		os.Exit(1)
	}

	// Per-schema connection pool cache
	schemaPools := database.NewSchemaPools(dbConfig, appLogger, tp, cfg.Fleet.MaxSchemaPools)
	defer schemaPools.CloseAll()

	// Initialize repositories
	tenantRepo := repository.NewTenantRepository(dbManager.DB(), tp, appLogger, dbConfig.QueryTimeout)
	schemaMigrator := repository.NewSchemaMigratorRepository(dbManager.DB(), schemaPools, tp, appLogger, dbConfig.QueryTimeout)

	// Initialize use cases
	provisioner := provision.NewService(tenantRepo, schemaMigrator, store, tp, appLogger)
	fleetMigrator := fleet.NewMigrator(
		tenantRepo,
		schemaMigrator,
		store,
		provisioner,
		appLogger,
		cfg.Fleet.Workers,
		cfg.Migrations.BaselineTable,
	)

	// Initialize API handlers
	tenantHandler := handler.NewTenantHandler(provisioner, schemaPools, appLogger)
	adminHandler := handler.NewAdminHandler(tenantRepo, provisioner, fleetMigrator, schemaPools, appLogger, isProduction)
	healthHandler := handler.NewHealthHandler(dbManager, appLogger)

	// Initialize Gin router
	router := gin.New()

	// Setup middlewares
	routes.SetupMiddlewares(router, appLogger)

	// Setup routes
	routes.SetupRoutes(router, tenantHandler, adminHandler, healthHandler, cfg.Auth.JWTSecret, appLogger)

	// Create HTTP server with configurable timeout values
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Start the server in a goroutine
	go func() {
		appLogger.Info("Starting server", map[string]any{
			"port": cfg.Server.Port,
			"env":  cfg.Environment,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Failed to start server", map[string]any{
				"error": err.Error(),
			})
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...", nil)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", map[string]any{
			"error": err.Error(),
		})
	}

	// Tenant pools close before the shared pool via the deferred calls.
	appLogger.Info("Server exited gracefully", nil)
}

// validateConfig ensures all required configuration values are present
func validateConfig(cfg *config.Config) error {
	var missingConfigs []string

	// Validate server configuration
	if cfg.Server.Port == 0 {
		missingConfigs = append(missingConfigs, "server.port")
	}

	if cfg.Server.ReadTimeout == 0 {
		missingConfigs = append(missingConfigs, "server.readTimeout")
	}

	if cfg.Server.WriteTimeout == 0 {
		missingConfigs = append(missingConfigs, "server.writeTimeout")
	}

	if cfg.Server.ShutdownTimeout == 0 {
		missingConfigs = append(missingConfigs, "server.shutdownTimeout")
	}

	// Validate database configuration
	if cfg.Database.Host == "" {
		if cfg.Environment == config.Production && os.Getenv("TP_DB_HOST") == "" {
			missingConfigs = append(missingConfigs, "database.host (or TP_DB_HOST environment variable)")
		} else if cfg.Environment != config.Production {
			missingConfigs = append(missingConfigs, "database.host")
		}
	}

	if cfg.Database.Port == "" {
		if cfg.Environment == config.Production && os.Getenv("TP_DB_PORT") == "" {
			missingConfigs = append(missingConfigs, "database.port (or TP_DB_PORT environment variable)")
		} else if cfg.Environment != config.Production {
			missingConfigs = append(missingConfigs, "database.port")
		}
	}

	if cfg.Database.Username == "" {
		if cfg.Environment == config.Production && os.Getenv("TP_DB_USERNAME") == "" {
			missingConfigs = append(missingConfigs, "database.username (or TP_DB_USERNAME environment variable)")
		} else if cfg.Environment != config.Production {
			missingConfigs = append(missingConfigs, "database.username")
		}
	}

	if cfg.Database.Password == "" {
		if cfg.Environment == config.Production && os.Getenv("TP_DB_PASSWORD") == "" {
			missingConfigs = append(missingConfigs, "database.password (or TP_DB_PASSWORD environment variable)")
		} else if cfg.Environment != config.Production {
			missingConfigs = append(missingConfigs, "database.password")
		}
	}

	if cfg.Database.Database == "" {
		if cfg.Environment == config.Production && os.Getenv("TP_DB_NAME") == "" {
			missingConfigs = append(missingConfigs, "database.database (or TP_DB_NAME environment variable)")
		} else if cfg.Environment != config.Production {
			missingConfigs = append(missingConfigs, "database.database")
		}
	}

	if cfg.Database.QueryTimeout == 0 {
		missingConfigs = append(missingConfigs, "database.queryTimeout")
	}

	// Validate migration configuration
	if cfg.Migrations.Dir == "" {
		missingConfigs = append(missingConfigs, "migrations.dir")
	}

	// The admin surface can destroy tenant data; it never runs unauthenticated.
	if cfg.Auth.JWTSecret == "" && os.Getenv("TP_AUTH_JWT_SECRET") == "" {
		missingConfigs = append(missingConfigs, "auth.jwtSecret (or TP_AUTH_JWT_SECRET environment variable)")
	}

	// Environment should be set with a valid value
	if cfg.Environment == "" {
		missingConfigs = append(missingConfigs, "environment")
	} else if cfg.Environment != config.Development &&
		cfg.Environment != config.Production &&
		cfg.Environment != config.Test {
		return fmt.Errorf("invalid environment value: %s, must be one of: %s, %s, or %s",
			cfg.Environment, config.Development, config.Production, config.Test)
	}

	// Logger configuration
	if cfg.Logger.Level == "" {
		missingConfigs = append(missingConfigs, "logger.level")
	}

	// Return error with list of missing configurations
	if len(missingConfigs) > 0 {
		return fmt.Errorf("missing required configurations: %v", missingConfigs)
	}

	// If we're in production, do additional validation for sensitive settings
	if cfg.Environment == config.Production {
		var warnings []string

		if strings.ToLower(cfg.Database.SSLMode) != "require" && strings.ToLower(cfg.Database.SSLMode) != "verify-ca" && strings.ToLower(cfg.Database.SSLMode) != "verify-full" {
			warnings = append(warnings, "database.sslMode should be set to 'require', 'verify-ca', or 'verify-full' in production")
		}

		if cfg.Server.ReadTimeout < 5*time.Second {
			warnings = append(warnings, "server.readTimeout is too low for production")
		}

		if cfg.Server.WriteTimeout < 5*time.Second {
			warnings = append(warnings, "server.writeTimeout is too low for production")
		}

		if len(warnings) > 0 {
			log.Printf("Warning: potential security issues in production configuration: %v", warnings)
		}
	}

	return nil
}
