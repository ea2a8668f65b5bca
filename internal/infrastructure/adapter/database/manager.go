package database

import (
	"context"
	"fmt"
	"time"

	errs "github.com/amirali-farhadi/tenant-provisioner/internal/domain/error"
	coreport "github.com/amirali-farhadi/tenant-provisioner/internal/domain/port/core"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Manager owns the single long-lived connection pool to the shared registry
// namespace. Constructed explicitly at startup and passed to whoever needs
// it; there is no module-level database handle.
type Manager struct {
	config       *Config
	db           *gorm.DB
	logger       coreport.Logger
	timeProvider coreport.TimeProvider
	monitor      *PoolMonitor
}

// NewManager creates a new database manager
func NewManager(config *Config, logger coreport.Logger, timeProvider coreport.TimeProvider) *Manager {
	return &Manager{
		config:       config,
		logger:       logger,
		timeProvider: timeProvider,
	}
}

// Connect establishes the shared registry pool, retrying transient dial
// failures up to the configured attempt count.
func (m *Manager) Connect(ctx context.Context) (*gorm.DB, error) {
	m.logger.Info("Connecting to registry database", map[string]any{
		"host": m.config.Host,
		"port": m.config.Port,
		"name": m.config.Database,
	})

	var gormDB *gorm.DB
	retryCfg := RetryConfig{
		MaxAttempts: m.config.RetryAttempts,
		Interval:    m.config.RetryDelay,
		MaxInterval: 30 * time.Second,
	}
	if retryCfg.MaxAttempts <= 0 {
		retryCfg.MaxAttempts = 1
	}

	err := RetryOnTransientError(ctx, retryCfg, func() error {
		var openErr error
		gormDB, openErr = gorm.Open(postgres.Open(m.config.DSN()), &gorm.Config{
			Logger: NewDatabaseLogger(m.logger, m.timeProvider, m.config.LogLevel),
			NowFunc: func() time.Time {
				return m.timeProvider.Now()
			},
		})
		return openErr
	}, m.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrConnection, err.Error())
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrConnection, err.Error())
	}

	sqlDB.SetMaxOpenConns(m.config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(m.config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(m.config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(m.config.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("%w: ping failed: %s", errs.ErrConnection, err.Error())
	}

	m.db = gormDB
	m.monitor = NewPoolMonitor(gormDB, m.logger)
	m.monitor.Start(30 * time.Second)

	m.logger.Info("Registry database connected", map[string]any{
		"max_open_conns": m.config.MaxOpenConns,
		"max_idle_conns": m.config.MaxIdleConns,
	})
	return m.db, nil
}

// DB returns the GORM handle for the shared registry namespace
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// Close closes the shared registry pool
func (m *Manager) Close() error {
	m.logger.Info("Closing registry database connection", nil)

	if m.monitor != nil {
		m.monitor.Stop()
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.Close()
}
