package sqlpool

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// BoundedPool is a fixed set of nodes created at startup and handed out in
// FIFO order. Acquire never blocks: an empty queue is reported immediately.
type BoundedPool struct {
	mu       sync.Mutex // protects idle, borrowed and closed
	idle     *list.List // of *Node; the front is issued next
	borrowed int
	closed   bool

	capacity int
	logger   *zap.Logger

	acquireCount      atomic.Int64
	emptyAcquireCount atomic.Int64
}

// NewBoundedPool connects capacity nodes. If any of them fails the ones
// already connected are closed and the connect error is returned.
func NewBoundedPool(ctx context.Context, connector Connector, capacity int, logger *zap.Logger) (*BoundedPool, error) {
	if connector == nil {
		return nil, &Error{Kind: KindMisuse, Op: "connect", Message: "connector is required"}
	}
	if capacity < 1 {
		return nil, &Error{Kind: KindMisuse, Op: "connect", Message: "capacity must be at least 1"}
	}
	if logger == nil {
		logger = zap.L().Named("sqlpool")
	}

	p := &BoundedPool{
		idle:     list.New(),
		capacity: capacity,
		logger:   logger,
	}

	for i := 0; i < capacity; i++ {
		node, err := newNode(ctx, connector, logger)
		if err != nil {
			logger.Error("failed to establish pool connection",
				zap.Int("established", i),
				zap.Int("capacity", capacity),
				zap.Error(err),
			)
			p.Close()
			return nil, err
		}
		p.idle.PushBack(node)
	}

	logger.Info("bounded pool ready", zap.Int("capacity", capacity))
	return p, nil
}

// Acquire takes the node at the head of the idle queue.
func (p *BoundedPool) Acquire(ctx context.Context) (*Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, newError(KindTimeout, "acquire", "context done before acquire", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, &Error{Kind: KindClosed, Op: "acquire", Message: "pool is closed"}
	}
	front := p.idle.Front()
	if front == nil {
		borrowed := p.borrowed
		p.mu.Unlock()

		p.emptyAcquireCount.Add(1)
		p.logger.Error("no idle connection available",
			zap.Int("capacity", p.capacity),
			zap.Int("borrowed", borrowed),
		)
		return nil, &Error{Kind: KindExhausted, Op: "acquire", Message: "no idle connection available"}
	}
	node := p.idle.Remove(front).(*Node)
	p.borrowed++
	p.mu.Unlock()

	p.acquireCount.Add(1)
	return newConn(p, node, nil), nil
}

// Release puts the node back at the tail of the idle queue. After Close the
// node is closed instead.
func (p *BoundedPool) Release(c *Conn) error {
	if c == nil || c.pool != Pool(p) {
		return errForeignConn("release")
	}
	if !c.markReleased() {
		return errConnReleased("release")
	}

	p.mu.Lock()
	p.borrowed--
	if p.closed {
		p.mu.Unlock()
		_ = c.node.close()
		return nil
	}
	p.idle.PushBack(c.node)
	p.mu.Unlock()
	return nil
}

// Stat returns a snapshot of the pool counters.
func (p *BoundedPool) Stat() Stat {
	p.mu.Lock()
	idle, borrowed := p.idle.Len(), p.borrowed
	p.mu.Unlock()

	empty := p.emptyAcquireCount.Load()
	return Stat{
		Capacity:          p.capacity,
		Idle:              idle,
		Borrowed:          borrowed,
		AcquireCount:      p.acquireCount.Load(),
		EmptyAcquireCount: empty,
		TimeoutCount:      empty,
	}
}

// Close drains and closes the idle nodes. Borrowed nodes are closed when
// they are released.
func (p *BoundedPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	nodes := make([]*Node, 0, p.idle.Len())
	for e := p.idle.Front(); e != nil; e = e.Next() {
		nodes = append(nodes, e.Value.(*Node))
	}
	p.idle.Init()
	p.mu.Unlock()

	// Sessions are closed outside the lock; Close can do network I/O.
	for _, n := range nodes {
		_ = n.close()
	}
	p.logger.Info("bounded pool closed", zap.Int("closed", len(nodes)))
}
