package database

import (
	"fmt"
	"sync"
	"time"

	errs "github.com/amirali-farhadi/tenant-provisioner/internal/domain/error"
	coreport "github.com/amirali-farhadi/tenant-provisioner/internal/domain/port/core"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// DefaultMaxSchemaPools caps the cache when no limit is configured.
const DefaultMaxSchemaPools = 32

// schemaPoolConn is one dialed pool plus the hooks the cache needs to
// manage its lifecycle.
type schemaPoolConn struct {
	db    *gorm.DB
	close func() error
	inUse func() int
}

// dialFunc opens a pool for a DSN. Injectable so cache behavior is testable
// without a live database.
type dialFunc func(dsn string) (*schemaPoolConn, error)

type schemaPoolEntry struct {
	conn     *schemaPoolConn
	lastUsed time.Time
}

// SchemaPools is a bounded cache of schema-scoped connection pools, one per
// tenant schema, created lazily and reused. Creation is serialized per
// schema name so duplicate triggering events collapse onto one pool, while
// different schemas can dial concurrently. Least-recently-used idle pools
// are evicted (and closed) once the cache is full; pools with connections
// checked out are never evicted, so the cap is a soft bound while every
// pool is busy.
type SchemaPools struct {
	config       *Config
	logger       coreport.Logger
	timeProvider coreport.TimeProvider
	maxPools     int

	mu    sync.Mutex
	pools map[string]*schemaPoolEntry
	locks map[string]*sync.Mutex

	dial dialFunc
}

// NewSchemaPools creates the per-schema pool cache
func NewSchemaPools(config *Config, logger coreport.Logger, timeProvider coreport.TimeProvider, maxPools int) *SchemaPools {
	if maxPools <= 0 {
		maxPools = DefaultMaxSchemaPools
	}
	p := &SchemaPools{
		config:       config,
		logger:       logger,
		timeProvider: timeProvider,
		maxPools:     maxPools,
		pools:        make(map[string]*schemaPoolEntry),
		locks:        make(map[string]*sync.Mutex),
	}
	p.dial = p.openPool
	return p
}

// Get returns the cached pool for a schema, creating it on first use.
// Callers borrow the pool for one statement at a time and re-Get for the
// next, so a returned handle is never held across operations.
func (p *SchemaPools) Get(schemaName string) (*gorm.DB, error) {
	lock := p.lockFor(schemaName)
	lock.Lock()
	defer lock.Unlock()

	p.mu.Lock()
	if entry, ok := p.pools[schemaName]; ok {
		entry.lastUsed = p.timeProvider.Now()
		db := entry.conn.db
		p.mu.Unlock()
		return db, nil
	}
	p.mu.Unlock()

	// Dialing happens outside the cache mutex, under the per-schema lock
	// only, so other schemas are never blocked behind a slow dial.
	conn, err := p.dial(p.config.SchemaDSN(schemaName))
	if err != nil {
		return nil, fmt.Errorf("%w: opening pool for schema %s: %s", errs.ErrConnection, schemaName, err.Error())
	}

	p.mu.Lock()
	p.evictOldestLocked()
	p.pools[schemaName] = &schemaPoolEntry{
		conn:     conn,
		lastUsed: p.timeProvider.Now(),
	}
	p.mu.Unlock()

	p.logger.Debug("Schema connection pool created", map[string]any{
		"schema": schemaName,
	})
	return conn.db, nil
}

// CloseSchema tears down the cached pool for one schema, if any.
func (p *SchemaPools) CloseSchema(schemaName string) error {
	lock := p.lockFor(schemaName)
	lock.Lock()
	defer lock.Unlock()

	p.mu.Lock()
	entry, ok := p.pools[schemaName]
	if ok {
		delete(p.pools, schemaName)
	}
	delete(p.locks, schemaName)
	p.mu.Unlock()

	if !ok {
		return nil
	}
	return entry.conn.close()
}

// CloseAll releases every cached pool. Called on shutdown.
func (p *SchemaPools) CloseAll() {
	p.mu.Lock()
	entries := make(map[string]*schemaPoolEntry, len(p.pools))
	for name, entry := range p.pools {
		entries[name] = entry
	}
	p.pools = make(map[string]*schemaPoolEntry)
	p.locks = make(map[string]*sync.Mutex)
	p.mu.Unlock()

	for name, entry := range entries {
		if err := entry.conn.close(); err != nil {
			p.logger.Error("Failed to close schema pool", map[string]any{
				"schema": name,
				"error":  err.Error(),
			})
		}
	}
}

// Len reports the current number of cached pools.
func (p *SchemaPools) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pools)
}

// lockFor returns the creation mutex for one schema name, allocating it on
// first use. The guard mutex only protects the lock map, never the dial.
func (p *SchemaPools) lockFor(schemaName string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.locks[schemaName]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[schemaName] = lock
	}
	return lock
}

// evictOldestLocked drops least-recently-used idle entries until there is
// room for one more pool. Pools with connections checked out are skipped;
// when every pool is busy the cache grows past maxPools instead of closing
// a pool out from under its borrower. Caller must hold p.mu.
func (p *SchemaPools) evictOldestLocked() {
	for len(p.pools) >= p.maxPools {
		var oldestName string
		var oldest time.Time
		for name, entry := range p.pools {
			if entry.conn.inUse() > 0 {
				continue
			}
			if oldestName == "" || entry.lastUsed.Before(oldest) {
				oldestName = name
				oldest = entry.lastUsed
			}
		}
		if oldestName == "" {
			p.logger.Warn("Schema pool cache over capacity, every pool has connections checked out", map[string]any{
				"pools":     len(p.pools),
				"max_pools": p.maxPools,
			})
			return
		}

		entry := p.pools[oldestName]
		delete(p.pools, oldestName)

		p.logger.Info("Evicting idle schema connection pool", map[string]any{
			"schema":    oldestName,
			"last_used": oldest,
		})
		if err := entry.conn.close(); err != nil {
			p.logger.Error("Failed to close evicted schema pool", map[string]any{
				"schema": oldestName,
				"error":  err.Error(),
			})
		}
	}
}

// openPool dials a schema-scoped gorm pool. No retry here: schema pools are
// created mid-request and callers decide whether the operation is retried.
func (p *SchemaPools) openPool(dsn string) (*schemaPoolConn, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: NewDatabaseLogger(p.logger, p.timeProvider, p.config.LogLevel),
		NowFunc: func() time.Time {
			return p.timeProvider.Now()
		},
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(p.config.SchemaMaxOpenConns)
	sqlDB.SetMaxIdleConns(p.config.SchemaMaxIdleConns)
	sqlDB.SetConnMaxLifetime(p.config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(p.config.ConnMaxIdleTime)

	return &schemaPoolConn{
		db:    db,
		close: sqlDB.Close,
		inUse: func() int { return sqlDB.Stats().InUse },
	}, nil
}
