package sqlpool

import (
	"context"
	"database/sql"
)

// Connector establishes sessions to the database. One call produces one
// session, which becomes one pool node.
type Connector interface {
	Connect(ctx context.Context) (Session, error)
}

// Session is a single live connection to the database. A session is used by
// one goroutine at a time; the pool guarantees that.
type Session interface {
	// Prepare creates a prepared statement on this session.
	Prepare(ctx context.Context, query string) (Statement, error)

	// Exec runs a statement without parameters and discards its result. It is
	// used for transaction control (START TRANSACTION, COMMIT, ROLLBACK).
	Exec(ctx context.Context, query string) error

	// Close terminates the session. It is called exactly once.
	Close() error
}

// Statement is a prepared statement bound to the session that created it.
type Statement interface {
	Query(ctx context.Context, args []any) (Rows, error)
	Exec(ctx context.Context, args []any) (sql.Result, error)
	Close() error
}

// Rows is a cursor over a query result. *sql.Rows satisfies it.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context) (Session, error)

// Connect calls f(ctx).
func (f ConnectorFunc) Connect(ctx context.Context) (Session, error) {
	return f(ctx)
}
