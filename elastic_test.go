package sqlpool_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	sqlpool "github.com/chpan1995/boost-mysql-pool"
	"github.com/chpan1995/boost-mysql-pool/internal/testutil"
)

func newElastic(t *testing.T, c sqlpool.Connector, cfg sqlpool.ElasticConfig) *sqlpool.ElasticPool {
	t.Helper()
	if cfg.AcquireTimeout == 0 {
		cfg.AcquireTimeout = time.Second
	}
	if cfg.HealthCheckPeriod == 0 {
		cfg.HealthCheckPeriod = time.Hour
	}
	pool, err := sqlpool.NewElasticPool(context.Background(), c, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestElasticPool_WarmsMinSize(t *testing.T) {
	t.Parallel()

	d := &testutil.Driver{}
	pool := newElastic(t, d, sqlpool.ElasticConfig{MinSize: 2, MaxSize: 4})

	require.Equal(t, 2, d.Connects())
	stat := pool.Stat()
	require.Equal(t, 4, stat.Capacity)
	require.Equal(t, 2, stat.Idle)
}

func TestElasticPool_GrowsToMaxSize(t *testing.T) {
	t.Parallel()

	d := &testutil.Driver{}
	pool := newElastic(t, d, sqlpool.ElasticConfig{MaxSize: 3, AcquireTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	var conns []*sqlpool.Conn
	for range 3 {
		c, err := pool.Acquire(ctx)
		require.NoError(t, err)
		conns = append(conns, c)
	}
	require.Equal(t, 3, d.Connects())
	require.Equal(t, 3, pool.Stat().Borrowed)

	_, err := pool.Acquire(ctx)
	require.ErrorIs(t, err, sqlpool.ErrAcquireTimeout)
	require.Equal(t, 3, d.Connects())

	for _, c := range conns {
		require.NoError(t, c.Release())
	}
	require.Equal(t, 3, pool.Stat().Idle)
}

func TestElasticPool_AcquireTimeout(t *testing.T) {
	t.Parallel()

	pool := newElastic(t, &testutil.Driver{}, sqlpool.ElasticConfig{
		MaxSize:        1,
		AcquireTimeout: 50 * time.Millisecond,
	})
	ctx := context.Background()

	held, err := pool.Acquire(ctx)
	require.NoError(t, err)

	start := time.Now()
	c, err := pool.Acquire(ctx)
	elapsed := time.Since(start)

	require.Nil(t, c)
	require.ErrorIs(t, err, sqlpool.ErrAcquireTimeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	require.Less(t, elapsed, time.Second)

	stat := pool.Stat()
	require.Equal(t, 1, stat.Borrowed)
	require.EqualValues(t, 1, stat.TimeoutCount)

	// A waiter is served as soon as the holder releases.
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = held.Release()
	}()
	c, err = pool.Acquire(ctx)
	require.NoError(t, err)
	require.Equal(t, held.ID(), c.ID())
	require.NoError(t, c.Release())
}

func TestElasticPool_TimeoutLeavesNoHalfBorrow(t *testing.T) {
	t.Parallel()

	d := &testutil.Driver{ConnectDelay: 200 * time.Millisecond}
	pool := newElastic(t, d, sqlpool.ElasticConfig{
		MaxSize:        1,
		AcquireTimeout: 20 * time.Millisecond,
	})

	_, err := pool.Acquire(context.Background())
	require.ErrorIs(t, err, sqlpool.ErrAcquireTimeout)

	// The connect that was in flight completes into the idle set.
	require.Eventually(t, func() bool {
		s := pool.Stat()
		return s.Borrowed == 0 && s.Constructing == 0 && s.Idle == 1
	}, 2*time.Second, 10*time.Millisecond)

	c, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Release())
	require.Equal(t, 1, d.Connects())
}

func TestElasticPool_CallerDeadline(t *testing.T) {
	t.Parallel()

	pool := newElastic(t, &testutil.Driver{}, sqlpool.ElasticConfig{
		MaxSize:        1,
		AcquireTimeout: time.Minute,
	})

	held, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer func() { _ = held.Release() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = pool.Acquire(ctx)
	require.ErrorIs(t, err, sqlpool.ErrAcquireTimeout)
	require.Less(t, time.Since(start), time.Second)
}

func TestElasticPool_ConnectError(t *testing.T) {
	t.Parallel()

	d := &testutil.Driver{FailAfter: 1}
	pool := newElastic(t, d, sqlpool.ElasticConfig{MaxSize: 2})

	c, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer func() { _ = c.Release() }()

	_, err = pool.Acquire(context.Background())
	require.ErrorIs(t, err, sqlpool.ErrConnect)
	require.ErrorIs(t, err, testutil.ErrConnectionRefused)
	require.Equal(t, 0, pool.Stat().Idle)
}

func TestElasticPool_ReapIdle(t *testing.T) {
	t.Parallel()

	d := &testutil.Driver{}
	pool := newElastic(t, d, sqlpool.ElasticConfig{
		MinSize:     1,
		MaxSize:     3,
		MaxIdleTime: 10 * time.Millisecond,
	})
	ctx := context.Background()

	var conns []*sqlpool.Conn
	for range 3 {
		c, err := pool.Acquire(ctx)
		require.NoError(t, err)
		conns = append(conns, c)
	}
	for _, c := range conns {
		require.NoError(t, c.Release())
	}

	time.Sleep(30 * time.Millisecond)

	require.Equal(t, 2, pool.ReapIdle())
	// Destroyed nodes count as borrowed until their sessions are closed.
	require.Eventually(t, func() bool {
		s := pool.Stat()
		return s.Total() == 1 && s.Borrowed == 0 && d.OpenSessions() == 1
	}, time.Second, 5*time.Millisecond)

	// MinSize is kept even when the survivor is idle too long.
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, 0, pool.ReapIdle())
	require.Equal(t, 1, pool.Stat().Idle)
}

func TestElasticPool_EnsureMinSize(t *testing.T) {
	t.Parallel()

	d := &testutil.Driver{}
	var down atomic.Bool
	down.Store(true)
	flaky := sqlpool.ConnectorFunc(func(ctx context.Context) (sqlpool.Session, error) {
		if down.Load() {
			return nil, testutil.ErrConnectionRefused
		}
		return d.Connect(ctx)
	})

	// Warm-up failures do not fail construction.
	pool := newElastic(t, flaky, sqlpool.ElasticConfig{MinSize: 2, MaxSize: 4})
	require.Equal(t, 0, pool.Stat().Total())

	down.Store(false)
	pool.EnsureMinSize()
	require.Equal(t, 2, pool.Stat().Idle)
	require.Equal(t, 2, d.Connects())
}

func TestElasticPool_MaintenanceWorker(t *testing.T) {
	t.Parallel()

	d := &testutil.Driver{}
	pool := newElastic(t, d, sqlpool.ElasticConfig{
		MinSize:           0,
		MaxSize:           2,
		MaxIdleTime:       5 * time.Millisecond,
		HealthCheckPeriod: 10 * time.Millisecond,
	})

	c, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Release())

	require.Eventually(t, func() bool {
		return pool.Stat().Total() == 0 && d.OpenSessions() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestElasticPool_Exclusive(t *testing.T) {
	t.Parallel()

	const maxSize = 4
	d := &testutil.Driver{QueryDelay: time.Millisecond}
	pool := newElastic(t, d, sqlpool.ElasticConfig{MaxSize: maxSize, AcquireTimeout: 5 * time.Second})
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				c, err := pool.Acquire(ctx)
				if err != nil {
					t.Errorf("acquire failed: %v", err)
					return
				}
				if s := pool.Stat(); s.Total() > maxSize {
					t.Errorf("pool exceeded max size: %+v", s)
				}
				var res sqlpool.Results
				if err := c.Query(ctx, "SELECT 1", &res); err != nil {
					t.Errorf("query failed: %v", err)
				}
				if err := c.Release(); err != nil {
					t.Errorf("release failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	require.Zero(t, d.Overlaps(), "a session was used by two borrowers at once")
	require.LessOrEqual(t, d.Connects(), maxSize)
	require.Equal(t, 0, pool.Stat().Borrowed)
}

func TestElasticPool_DoubleRelease(t *testing.T) {
	t.Parallel()

	pool := newElastic(t, &testutil.Driver{}, sqlpool.ElasticConfig{MaxSize: 1})

	c, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Release())
	require.ErrorIs(t, c.Release(), sqlpool.ErrMisuse)
	require.Equal(t, 1, pool.Stat().Idle)

	other := newBounded(t, &testutil.Driver{}, 1)
	bc, err := other.Acquire(context.Background())
	require.NoError(t, err)
	require.ErrorIs(t, pool.Release(bc), sqlpool.ErrMisuse)
}

func TestElasticPool_Close(t *testing.T) {
	t.Parallel()

	d := &testutil.Driver{}
	pool, err := sqlpool.NewElasticPool(context.Background(), d, sqlpool.ElasticConfig{
		MinSize:        2,
		MaxSize:        2,
		AcquireTimeout: time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	pool.Close()
	require.Equal(t, 0, d.OpenSessions())

	_, err = pool.Acquire(context.Background())
	require.ErrorIs(t, err, sqlpool.ErrPoolClosed)

	pool.Close()
}
