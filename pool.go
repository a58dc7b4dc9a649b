package sqlpool

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/puddle/v2"
)

// Pool hands out exclusive connections. BoundedPool and ElasticPool are the
// two implementations.
type Pool interface {
	// Acquire borrows a connection. The caller owns it until Release.
	Acquire(ctx context.Context) (*Conn, error)

	// Release returns a borrowed connection. A connection is released exactly
	// once; further calls return a misuse error and change nothing.
	Release(c *Conn) error

	// Stat returns a snapshot of the pool counters.
	Stat() Stat

	// Close closes every idle connection and rejects further acquisitions.
	Close()
}

// Stat is a snapshot of pool counters.
type Stat struct {
	// Capacity is the configured maximum number of nodes.
	Capacity int
	// Idle is the number of nodes waiting to be borrowed.
	Idle int
	// Borrowed is the number of nodes currently owned by callers.
	Borrowed int
	// Constructing is the number of nodes being connected (elastic only).
	Constructing int
	// AcquireCount is the number of successful acquisitions.
	AcquireCount int64
	// EmptyAcquireCount is the number of acquisitions that found no idle node.
	EmptyAcquireCount int64
	// TimeoutCount is the number of acquisitions that gave up (elastic) or
	// failed because the pool was empty (bounded).
	TimeoutCount int64
}

// Total returns Idle + Borrowed + Constructing.
func (s Stat) Total() int {
	return s.Idle + s.Borrowed + s.Constructing
}

// Conn is a borrowed connection. It must not be used after Release, Commit or
// Rollback, and must not be shared between goroutines.
type Conn struct {
	node       *Node
	pool       Pool
	res        *puddle.Resource[*Node]
	exec       *executor
	acquiredAt time.Time
	released   atomic.Bool
}

func newConn(pool Pool, node *Node, res *puddle.Resource[*Node]) *Conn {
	return &Conn{
		node:       node,
		pool:       pool,
		res:        res,
		acquiredAt: time.Now(),
	}
}

// ID returns the identifier of the underlying node.
func (c *Conn) ID() uuid.UUID {
	return c.node.id
}

// Released reports whether the connection has been given back.
func (c *Conn) Released() bool {
	return c.released.Load()
}

// Release returns the connection to its pool.
func (c *Conn) Release() error {
	return c.pool.Release(c)
}

// Query runs a statement on this connection and leaves it borrowed whatever
// the outcome.
func (c *Conn) Query(ctx context.Context, query string, sink ResultSink, args ...any) error {
	if c.released.Load() {
		return errConnReleased("query")
	}
	return c.executor().run(ctx, c.node, query, sink, args)
}

func (c *Conn) executor() *executor {
	if c.exec == nil {
		return defaultExecutor()
	}
	return c.exec
}

// markReleased flips the released flag. It returns false if the connection
// was already released.
func (c *Conn) markReleased() bool {
	return c.released.CompareAndSwap(false, true)
}

func errConnReleased(op string) *Error {
	return &Error{Kind: KindMisuse, Op: op, Message: "connection already released"}
}

func errForeignConn(op string) *Error {
	return &Error{Kind: KindMisuse, Op: op, Message: "connection does not belong to this pool"}
}
