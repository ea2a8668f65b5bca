package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirali-farhadi/tenant-provisioner/internal/domain/usecase/fleet"
	"github.com/amirali-farhadi/tenant-provisioner/internal/domain/usecase/provision"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/database"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/logger"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/migration"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/model"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/repository"
	timeProvider "github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/time"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/config"
	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/metrics"
)

// Rolls every registered tenant schema forward to the newest migration.
// Meant to be run from deploy pipelines right after new migration files
// ship; exits nonzero when any tenant fails so the pipeline can halt.
func main() {
	workers := flag.Int("workers", 0, "number of tenants migrated in parallel (0 uses configuration)")
	timeout := flag.Duration("timeout", 30*time.Minute, "overall run deadline")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	isProduction := cfg.Environment == config.Production
	appLogger := logger.NewZapLogger(isProduction, cfg.Logger.Level)
	defer func() { _ = appLogger.Flush() }()

	// Not scraped here, but the repositories record into the same registry.
	metrics.InitMetrics("tenant_provisioner")

	tp := timeProvider.NewRealTimeProvider()

	dbConfig := database.FromAppConfig(cfg)
	if err := dbConfig.Validate(); err != nil {
		appLogger.Error("Invalid database configuration", map[string]any{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// A second interrupt kills the process; the first one cancels the run so
	// it stops at the next tenant boundary.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-interrupts
		appLogger.Warn("Interrupt received, finishing in-flight tenants", nil)
		cancel()
	}()

	dbManager := database.NewManager(dbConfig, appLogger, tp)
	if _, err := dbManager.Connect(ctx); err != nil {
		appLogger.Error("Failed to connect to database", map[string]any{
			"error": err.Error(),
		})
		os.Exit(1)
	}
	defer func() { _ = dbManager.Close() }()

	if err := dbManager.DB().AutoMigrate(&model.Tenant{}); err != nil {
		appLogger.Error("Failed to migrate registry table", map[string]any{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	store, err := migration.NewStore(cfg.Migrations.Dir, appLogger)
	if err != nil {
		appLogger.Error("Failed to load migration files", map[string]any{
			"dir":   cfg.Migrations.Dir,
			"error": err.Error(),
		})
		os.Exit(1)
	}

	// Tracker and migration statements run on per-schema pools; the cache is
	// sized for the worker count so a fleet pass churns it gently.
	schemaPools := database.NewSchemaPools(dbConfig, appLogger, tp, cfg.Fleet.MaxSchemaPools)
	defer schemaPools.CloseAll()

	tenantRepo := repository.NewTenantRepository(dbManager.DB(), tp, appLogger, dbConfig.QueryTimeout)
	schemaMigrator := repository.NewSchemaMigratorRepository(dbManager.DB(), schemaPools, tp, appLogger, dbConfig.QueryTimeout)
	provisioner := provision.NewService(tenantRepo, schemaMigrator, store, tp, appLogger)

	workerCount := cfg.Fleet.Workers
	if *workers > 0 {
		workerCount = *workers
	}

	fleetMigrator := fleet.NewMigrator(
		tenantRepo,
		schemaMigrator,
		store,
		provisioner,
		appLogger,
		workerCount,
		cfg.Migrations.BaselineTable,
	)

	start := time.Now()
	report, err := fleetMigrator.MigrateAll(ctx)
	if err != nil {
		appLogger.Error("Fleet migration run failed to start", map[string]any{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	for _, outcome := range report.Outcomes {
		switch {
		case outcome.Err != nil:
			fmt.Printf("FAIL  %-30s %s\n", outcome.Slug, outcome.Err.Error())
		case outcome.Skipped:
			fmt.Printf("SKIP  %-30s\n", outcome.Slug)
		default:
			fmt.Printf("OK    %-30s applied=%d\n", outcome.Slug, outcome.Applied)
		}
	}
	fmt.Printf("\n%d tenants, %d failed, elapsed %s\n",
		len(report.Outcomes), report.FailedCount(), time.Since(start).Round(time.Millisecond))

	if report.Failed() {
		os.Exit(1)
	}
}
