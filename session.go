package sqlpool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SQLConnector creates sessions on top of any database/sql driver. Every
// session owns its own *sql.DB restricted to a single physical connection, so
// pool nodes map one-to-one onto server connections and database/sql never
// pools behind our back.
type SQLConnector struct {
	driverName string
	open       func() (*sql.DB, error)
}

// NewConnector returns a connector for a registered database/sql driver.
func NewConnector(driverName, dsn string) *SQLConnector {
	return &SQLConnector{
		driverName: driverName,
		open: func() (*sql.DB, error) {
			return sql.Open(driverName, dsn)
		},
	}
}

// newDriverConnector wraps a driver.Connector produced by a driver's own
// config type (mysql.Config, pgx.ConnConfig).
func newDriverConnector(driverName string, c driver.Connector) *SQLConnector {
	return &SQLConnector{
		driverName: driverName,
		open: func() (*sql.DB, error) {
			return sql.OpenDB(c), nil
		},
	}
}

// DriverName returns the database/sql driver name of this connector.
func (c *SQLConnector) DriverName() string {
	return c.driverName
}

// Connect opens a new session and verifies it with a ping.
func (c *SQLConnector) Connect(ctx context.Context) (Session, error) {
	db, err := c.open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", c.driverName, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	dbx := sqlx.NewDb(db, c.driverName)
	conn, err := dbx.Connx(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	return &sqlSession{db: dbx, conn: conn}, nil
}

// sqlSession pins one *sqlx.Conn for its whole life.
type sqlSession struct {
	db   *sqlx.DB
	conn *sqlx.Conn
}

func (s *sqlSession) Prepare(ctx context.Context, query string) (Statement, error) {
	stmt, err := s.conn.PreparexContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &sqlStatement{stmt: stmt}, nil
}

func (s *sqlSession) Exec(ctx context.Context, query string) error {
	_, err := s.conn.ExecContext(ctx, query)
	return err
}

func (s *sqlSession) Close() error {
	return errors.Join(s.conn.Close(), s.db.Close())
}

type sqlStatement struct {
	stmt *sqlx.Stmt
}

func (st *sqlStatement) Query(ctx context.Context, args []any) (Rows, error) {
	rows, err := st.stmt.QueryxContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (st *sqlStatement) Exec(ctx context.Context, args []any) (sql.Result, error) {
	return st.stmt.ExecContext(ctx, args...)
}

func (st *sqlStatement) Close() error {
	return st.stmt.Close()
}
