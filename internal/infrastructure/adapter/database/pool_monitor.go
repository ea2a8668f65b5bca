package database

import (
	"context"
	"sync"
	"time"

	coreport "github.com/amirali-farhadi/tenant-provisioner/internal/domain/port/core"
	"gorm.io/gorm"
)

// PoolStats is a snapshot of the shared pool's connection usage.
type PoolStats struct {
	OpenConnections    int
	IdleConnections    int
	MaxOpenConnections int
	InUse              int
	WaitCount          int64
	WaitDuration       time.Duration
}

// PoolMonitor periodically pings the shared registry pool and logs its
// stats, warning when the pool is close to exhaustion.
type PoolMonitor struct {
	db       *gorm.DB
	logger   coreport.Logger
	mutex    sync.RWMutex
	latest   *PoolStats
	stopChan chan struct{}
}

// NewPoolMonitor creates a new pool monitor
func NewPoolMonitor(db *gorm.DB, logger coreport.Logger) *PoolMonitor {
	return &PoolMonitor{
		db:       db,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins monitoring at the given interval
func (m *PoolMonitor) Start(interval time.Duration) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.collect()
			case <-m.stopChan:
				return
			}
		}
	}()
}

// Stop stops the monitoring goroutine
func (m *PoolMonitor) Stop() {
	close(m.stopChan)
}

// Stats returns the most recently collected snapshot
func (m *PoolMonitor) Stats() PoolStats {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.latest == nil {
		return PoolStats{}
	}
	return *m.latest
}

func (m *PoolMonitor) collect() {
	sqlDB, err := m.db.DB()
	if err != nil {
		m.logger.Error("Failed to get SQL DB instance for pool monitoring", map[string]any{
			"error": err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		m.logger.Error("Registry database ping failed", map[string]any{
			"error": err.Error(),
		})
	}

	stats := sqlDB.Stats()

	m.mutex.Lock()
	m.latest = &PoolStats{
		OpenConnections:    stats.OpenConnections,
		IdleConnections:    stats.Idle,
		MaxOpenConnections: stats.MaxOpenConnections,
		InUse:              stats.InUse,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
	}
	m.mutex.Unlock()

	threshold := float64(stats.MaxOpenConnections) * 0.8
	if float64(stats.InUse) > threshold {
		m.logger.Warn("Registry connection pool nearly exhausted", map[string]any{
			"in_use":     stats.InUse,
			"max_open":   stats.MaxOpenConnections,
			"idle":       stats.Idle,
			"wait_count": stats.WaitCount,
			"wait_time":  stats.WaitDuration.String(),
		})
	}
}
