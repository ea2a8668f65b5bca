package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/adapter/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	domainErr "github.com/amirali-farhadi/tenant-provisioner/internal/domain/error"
)

// tickingTimeProvider hands out strictly increasing instants so LRU ordering
// in tests never ties.
type tickingTimeProvider struct {
	mu  sync.Mutex
	now time.Time
}

func newTickingTimeProvider() *tickingTimeProvider {
	return &tickingTimeProvider{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (p *tickingTimeProvider) Now() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = p.now.Add(time.Millisecond)
	return p.now
}

func (p *tickingTimeProvider) Since(t time.Time) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now.Sub(t)
}

func (p *tickingTimeProvider) WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

func newTestSchemaPools(maxPools int) (*SchemaPools, *dialRecorder) {
	config := &Config{
		Host:     "localhost",
		Port:     5432,
		Username: "postgres",
		Password: "postgres",
		Database: "tenants",
		SSLMode:  "disable",
	}
	pools := NewSchemaPools(config, logger.NewNoopLogger(), newTickingTimeProvider(), maxPools)
	recorder := &dialRecorder{closed: make(map[string]int), busy: make(map[string]bool)}
	pools.dial = recorder.dial
	return pools, recorder
}

// dialRecorder fakes pool creation and tracks dial and close counts per DSN.
// Marking a DSN busy makes its pool report a checked-out connection.
type dialRecorder struct {
	mu     sync.Mutex
	dials  []string
	closed map[string]int
	busy   map[string]bool
	fail   error
}

func (r *dialRecorder) dial(dsn string) (*schemaPoolConn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	r.dials = append(r.dials, dsn)
	return &schemaPoolConn{
		db: &gorm.DB{},
		close: func() error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.closed[dsn]++
			return nil
		},
		inUse: func() int {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.busy[dsn] {
				return 1
			}
			return 0
		},
	}, nil
}

func (r *dialRecorder) setBusy(dsn string, busy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy[dsn] = busy
}

func (r *dialRecorder) dialCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dials)
}

func (r *dialRecorder) closedCount(dsn string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed[dsn]
}

func TestSchemaPools_GetReusesPool(t *testing.T) {
	pools, recorder := newTestSchemaPools(4)

	first, err := pools.Get("tenant_acme")
	require.NoError(t, err)
	second, err := pools.Get("tenant_acme")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, recorder.dialCount())
	assert.Equal(t, 1, pools.Len())
}

func TestSchemaPools_GetScopesDSNToSchema(t *testing.T) {
	pools, recorder := newTestSchemaPools(4)

	_, err := pools.Get("tenant_acme")
	require.NoError(t, err)

	require.Len(t, recorder.dials, 1)
	assert.Contains(t, recorder.dials[0], "search_path=tenant_acme")
}

func TestSchemaPools_ConcurrentGetDialsOnce(t *testing.T) {
	pools, recorder := newTestSchemaPools(4)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pools.Get("tenant_acme")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, recorder.dialCount())
}

func TestSchemaPools_EvictsLeastRecentlyUsed(t *testing.T) {
	pools, recorder := newTestSchemaPools(2)

	_, err := pools.Get("tenant_a")
	require.NoError(t, err)
	_, err = pools.Get("tenant_b")
	require.NoError(t, err)

	// Touch tenant_a so tenant_b becomes the eviction candidate.
	_, err = pools.Get("tenant_a")
	require.NoError(t, err)

	_, err = pools.Get("tenant_c")
	require.NoError(t, err)

	assert.Equal(t, 2, pools.Len())
	assert.Equal(t, 1, recorder.closedCount(pools.config.SchemaDSN("tenant_b")))
	assert.Equal(t, 0, recorder.closedCount(pools.config.SchemaDSN("tenant_a")))

	// Evicted schema dials again on next use.
	_, err = pools.Get("tenant_b")
	require.NoError(t, err)
	assert.Equal(t, 4, recorder.dialCount())
}

func TestSchemaPools_NeverEvictsBorrowedPool(t *testing.T) {
	pools, recorder := newTestSchemaPools(2)

	_, err := pools.Get("tenant_a")
	require.NoError(t, err)
	_, err = pools.Get("tenant_b")
	require.NoError(t, err)

	t.Run("Skips busy pool in favor of an idle one", func(t *testing.T) {
		// tenant_a is the LRU candidate but has a connection checked out,
		// so tenant_b is closed instead.
		recorder.setBusy(pools.config.SchemaDSN("tenant_a"), true)

		_, err := pools.Get("tenant_c")
		require.NoError(t, err)

		assert.Equal(t, 2, pools.Len())
		assert.Equal(t, 0, recorder.closedCount(pools.config.SchemaDSN("tenant_a")))
		assert.Equal(t, 1, recorder.closedCount(pools.config.SchemaDSN("tenant_b")))
	})

	t.Run("Grows past the cap when every pool is busy", func(t *testing.T) {
		recorder.setBusy(pools.config.SchemaDSN("tenant_c"), true)

		_, err := pools.Get("tenant_d")
		require.NoError(t, err)

		assert.Equal(t, 3, pools.Len())
		assert.Equal(t, 0, recorder.closedCount(pools.config.SchemaDSN("tenant_a")))
		assert.Equal(t, 0, recorder.closedCount(pools.config.SchemaDSN("tenant_c")))
	})
}

func TestSchemaPools_DialFailureWrapsConnectionError(t *testing.T) {
	pools, recorder := newTestSchemaPools(4)
	recorder.fail = errors.New("dial tcp: connection refused")

	_, err := pools.Get("tenant_acme")

	require.Error(t, err)
	assert.ErrorIs(t, err, domainErr.ErrConnection)
	assert.Equal(t, 0, pools.Len())
}

func TestSchemaPools_CloseSchema(t *testing.T) {
	pools, recorder := newTestSchemaPools(4)

	_, err := pools.Get("tenant_acme")
	require.NoError(t, err)

	require.NoError(t, pools.CloseSchema("tenant_acme"))
	assert.Equal(t, 0, pools.Len())
	assert.Equal(t, 1, recorder.closedCount(pools.config.SchemaDSN("tenant_acme")))

	// Closing an absent schema is a no-op.
	require.NoError(t, pools.CloseSchema("tenant_ghost"))
}

func TestSchemaPools_CloseAll(t *testing.T) {
	pools, recorder := newTestSchemaPools(4)

	for _, schema := range []string{"tenant_a", "tenant_b", "tenant_c"} {
		_, err := pools.Get(schema)
		require.NoError(t, err)
	}

	pools.CloseAll()

	assert.Equal(t, 0, pools.Len())
	for _, schema := range []string{"tenant_a", "tenant_b", "tenant_c"} {
		assert.Equal(t, 1, recorder.closedCount(pools.config.SchemaDSN(schema)))
	}
}
