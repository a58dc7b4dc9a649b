package sqlpool

import (
	"context"

	"go.uber.org/zap"
)

// ErrTxDone is returned when a transaction is used after it was committed or
// rolled back.
var ErrTxDone = &Error{Kind: KindMisuse, Op: "tx", Message: "transaction already finished"}

// Tx is a transaction on one borrowed connection. The connection goes back to
// the pool on Commit, on Rollback, or when a Query fails.
type Tx struct {
	conn   *Conn
	logger *zap.Logger
}

func beginTx(ctx context.Context, pool Pool, exec *executor, begin string) (*Tx, error) {
	c, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	c.exec = exec

	if err := c.node.session.Exec(ctx, begin); err != nil {
		_ = c.Release()
		berr := newError(KindExec, "begin", "failed to start transaction", err)
		berr.State = StateConnectionAcquired
		exec.logger.Error("failed to start transaction",
			zap.Stringer("node_id", c.node.id),
			zap.Error(err),
		)
		return nil, berr
	}

	return &Tx{
		conn:   c,
		logger: c.node.logger,
	}, nil
}

// Conn returns the connection the transaction runs on.
func (tx *Tx) Conn() *Conn {
	return tx.conn
}

// Done reports whether the transaction has been committed or rolled back.
func (tx *Tx) Done() bool {
	return tx.conn.Released()
}

// Query runs a statement inside the transaction. If it fails the transaction
// is rolled back, the connection is released and the original error is
// returned; the Tx must not be used afterwards.
func (tx *Tx) Query(ctx context.Context, query string, sink ResultSink, args ...any) (err error) {
	if tx.conn.Released() {
		return ErrTxDone
	}

	defer func() {
		if err == nil {
			return
		}
		// The rollback must run even if ctx is what made the query fail.
		tx.rollback(context.WithoutCancel(ctx))
	}()

	return tx.conn.Query(ctx, query, sink, args...)
}

// QueryTuple is Query with a single Tuple argument.
func (tx *Tx) QueryTuple(ctx context.Context, query string, sink ResultSink, arg any) error {
	tup, ok := arg.(Tuple)
	if !ok {
		return errNotTuple(arg)
	}
	return tx.Query(ctx, query, sink, tup)
}

// Commit issues COMMIT and releases the connection. If COMMIT fails the
// transaction is rolled back before the connection is released, and the
// COMMIT error is returned.
func (tx *Tx) Commit(ctx context.Context) error {
	if tx.conn.Released() {
		return ErrTxDone
	}

	if err := tx.conn.node.session.Exec(ctx, "COMMIT"); err != nil {
		cerr := newError(KindExec, "commit", "failed to commit transaction", err)
		cerr.State = StateExecuted
		tx.logger.Error("failed to commit transaction", zap.Error(err))
		_ = tx.rollback(context.WithoutCancel(ctx))
		return cerr
	}
	return tx.conn.Release()
}

// Rollback issues ROLLBACK and releases the connection.
func (tx *Tx) Rollback(ctx context.Context) error {
	if tx.conn.Released() {
		return ErrTxDone
	}
	return tx.rollback(ctx)
}

func (tx *Tx) rollback(ctx context.Context) error {
	defer func() { _ = tx.conn.Release() }()

	if err := tx.conn.node.session.Exec(ctx, "ROLLBACK"); err != nil {
		tx.logger.Error("failed to roll back transaction", zap.Error(err))
		return newError(KindExec, "rollback", "failed to roll back transaction", err)
	}
	return nil
}
