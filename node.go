package sqlpool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Node owns one database session. It belongs to the pool while idle and to
// exactly one Conn while borrowed.
type Node struct {
	id        uuid.UUID
	session   Session
	createdAt time.Time
	logger    *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// newNode connects a new session. On failure there is no node, so nothing
// half-open can reach the idle queue.
func newNode(ctx context.Context, connector Connector, logger *zap.Logger) (*Node, error) {
	session, err := connector.Connect(ctx)
	if err != nil {
		return nil, newError(KindConnect, "connect", "failed to establish connection", err)
	}

	n := &Node{
		id:        uuid.New(),
		session:   session,
		createdAt: time.Now(),
	}
	n.logger = logger.With(zap.Stringer("node_id", n.id))
	n.logger.Debug("connection established")
	return n, nil
}

// ID returns the node's identifier.
func (n *Node) ID() uuid.UUID {
	return n.id
}

// CreatedAt returns when the session was established.
func (n *Node) CreatedAt() time.Time {
	return n.createdAt
}

// close terminates the session. Later calls return the first result.
func (n *Node) close() error {
	n.closeOnce.Do(func() {
		n.closeErr = n.session.Close()
		if n.closeErr != nil {
			n.logger.Warn("failed to close connection", zap.Error(n.closeErr))
			return
		}
		n.logger.Debug("connection closed")
	})
	return n.closeErr
}
