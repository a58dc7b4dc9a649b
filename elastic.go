package sqlpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ElasticConfig sizes an ElasticPool.
type ElasticConfig struct {
	// MinSize is the number of nodes kept connected while idle.
	MinSize int
	// MaxSize is the upper bound on connected nodes.
	MaxSize int
	// AcquireTimeout bounds how long Acquire waits for a node.
	AcquireTimeout time.Duration
	// MaxIdleTime is how long a node above MinSize may stay idle. Zero keeps
	// idle nodes forever.
	MaxIdleTime time.Duration
	// HealthCheckPeriod is the interval of the maintenance pass.
	HealthCheckPeriod time.Duration
}

// ElasticPool grows on demand up to MaxSize and waits up to AcquireTimeout
// for a node when all of them are borrowed.
type ElasticPool struct {
	p      *puddle.Pool[*Node]
	cfg    ElasticConfig
	logger *zap.Logger

	timeoutCount atomic.Int64

	ctx       context.Context // canceled by Close; stops maintenance
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewElasticPool creates the pool and connects MinSize nodes. Warm-up
// failures are logged; the maintenance pass retries them.
func NewElasticPool(ctx context.Context, connector Connector, cfg ElasticConfig, logger *zap.Logger) (*ElasticPool, error) {
	if connector == nil {
		return nil, &Error{Kind: KindMisuse, Op: "connect", Message: "connector is required"}
	}
	if cfg.MaxSize < 1 {
		return nil, &Error{Kind: KindMisuse, Op: "connect", Message: "max size must be at least 1"}
	}
	if cfg.MinSize < 0 || cfg.MinSize > cfg.MaxSize {
		return nil, &Error{Kind: KindMisuse, Op: "connect", Message: "min size must be between 0 and max size"}
	}
	if cfg.AcquireTimeout <= 0 {
		return nil, &Error{Kind: KindMisuse, Op: "connect", Message: "acquire timeout must be positive"}
	}
	if cfg.HealthCheckPeriod <= 0 {
		cfg.HealthCheckPeriod = time.Minute
	}
	if logger == nil {
		logger = zap.L().Named("sqlpool")
	}

	p := &ElasticPool{
		cfg:    cfg,
		logger: logger,
	}

	var err error
	p.p, err = puddle.NewPool(&puddle.Config[*Node]{
		Constructor: func(ctx context.Context) (*Node, error) {
			return newNode(ctx, connector, logger)
		},
		Destructor: func(n *Node) {
			_ = n.close()
		},
		MaxSize: int32(cfg.MaxSize),
	})
	if err != nil {
		return nil, newError(KindMisuse, "connect", "invalid pool configuration", err)
	}

	p.createResources(ctx, cfg.MinSize)

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.wg.Add(1)
	go p.maintain()

	logger.Info("elastic pool ready",
		zap.Int("min_size", cfg.MinSize),
		zap.Int("max_size", cfg.MaxSize),
		zap.Int("idle", int(p.p.Stat().IdleResources())),
	)
	return p, nil
}

// Acquire borrows an idle node, creates one if the pool is below MaxSize, or
// waits for a release. It gives up after AcquireTimeout. A node whose
// connect is still running when the wait ends goes to the idle set.
func (p *ElasticPool) Acquire(ctx context.Context) (*Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	res, err := p.p.Acquire(ctx)
	if err != nil {
		return nil, p.acquireError(err)
	}
	return newConn(p, res.Value(), res), nil
}

func (p *ElasticPool) acquireError(err error) error {
	switch {
	case errors.Is(err, puddle.ErrClosedPool):
		return &Error{Kind: KindClosed, Op: "acquire", Message: "pool is closed", Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		p.timeoutCount.Add(1)
		stat := p.p.Stat()
		p.logger.Warn("timed out waiting for a connection",
			zap.Duration("acquire_timeout", p.cfg.AcquireTimeout),
			zap.Int32("borrowed", stat.AcquiredResources()),
			zap.Int32("max_size", stat.MaxResources()),
		)
		return newError(KindTimeout, "acquire", "timed out waiting for a connection", err)
	}

	var perr *Error
	if errors.As(err, &perr) {
		return err
	}
	return newError(KindConnect, "acquire", "failed to establish connection", err)
}

// Release returns the node to the idle set.
func (p *ElasticPool) Release(c *Conn) error {
	if c == nil || c.pool != Pool(p) || c.res == nil {
		return errForeignConn("release")
	}
	if !c.markReleased() {
		return errConnReleased("release")
	}
	c.res.Release()
	return nil
}

// Stat returns a snapshot of the pool counters.
func (p *ElasticPool) Stat() Stat {
	s := p.p.Stat()
	return Stat{
		Capacity:          int(s.MaxResources()),
		Idle:              int(s.IdleResources()),
		Borrowed:          int(s.AcquiredResources()),
		Constructing:      int(s.ConstructingResources()),
		AcquireCount:      s.AcquireCount(),
		EmptyAcquireCount: s.EmptyAcquireCount(),
		TimeoutCount:      p.timeoutCount.Load(),
	}
}

// Close stops maintenance and closes the pool. It blocks until every borrowed
// connection has been released.
func (p *ElasticPool) Close() {
	p.closeOnce.Do(func() {
		p.cancel()
		p.wg.Wait()
		p.p.Close()
		p.logger.Info("elastic pool closed")
	})
}

func (p *ElasticPool) maintain() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.HealthCheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.reapIdle()
			p.ensureMinSize()
		}
	}
}

// reapIdle destroys nodes idle for longer than MaxIdleTime while the pool
// stays at or above MinSize. Sessions are closed in the background; until
// then Stat reports the destroyed nodes as borrowed.
func (p *ElasticPool) reapIdle() int {
	total := int(p.p.Stat().TotalResources())
	destroyed := 0
	for _, res := range p.p.AcquireAllIdle() {
		if p.cfg.MaxIdleTime > 0 && res.IdleDuration() > p.cfg.MaxIdleTime && total > p.cfg.MinSize {
			res.Destroy()
			total--
			destroyed++
			continue
		}
		res.ReleaseUnused()
	}
	if destroyed > 0 {
		p.logger.Debug("closed idle connections", zap.Int("closed", destroyed))
	}
	return destroyed
}

func (p *ElasticPool) ensureMinSize() {
	missing := p.cfg.MinSize - int(p.p.Stat().TotalResources())
	if missing > 0 {
		p.createResources(p.ctx, missing)
	}
}

// createResources connects n nodes concurrently and adds them to the idle
// set.
func (p *ElasticPool) createResources(ctx context.Context, n int) {
	if n <= 0 {
		return
	}

	var failed atomic.Int32
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := p.p.CreateResource(ctx); err != nil {
				failed.Add(1)
				p.logger.Warn("failed to create connection", zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if f := int(failed.Load()); f > 0 {
		p.logger.Warn("pool is below its minimum size",
			zap.Int("min_size", p.cfg.MinSize),
			zap.Int("failed", f),
		)
	}
}
