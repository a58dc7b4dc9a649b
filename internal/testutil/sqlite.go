package testutil

import (
	"database/sql"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	sqlpool "github.com/chpan1995/boost-mysql-pool"
)

// SQLiteBegin opens a transaction on SQLite, which has no START TRANSACTION.
const SQLiteBegin = "BEGIN"

// UserSchema is the table used by the demo and the transaction tests.
const UserSchema = `CREATE TABLE user (
	id INTEGER PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	password TEXT NOT NULL,
	createtime TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	logintime TEXT
)`

// SQLite creates a database file in t.TempDir(), runs schema on it and
// returns a connector whose sessions open that file.
func SQLite(t *testing.T, schema ...string) *sqlpool.SQLConnector {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err, "failed to open sqlite database")
	defer MustClose(db)

	for _, stmt := range schema {
		_, err := db.Exec(stmt)
		require.NoError(t, err, "failed to apply schema")
	}

	return sqlpool.NewConnector("sqlite", dsn)
}

// CountRows returns the number of rows of table as seen through a fresh
// connection.
func CountRows(t *testing.T, c *sqlpool.SQLConnector, table string) int {
	t.Helper()

	var res sqlpool.Records[int]
	db := sqlpool.New(mustBounded(t, c, 1))
	defer db.Close()

	require.NoError(t, db.Query(t.Context(), "SELECT COUNT(*) FROM "+table, &res))
	require.Equal(t, 1, res.Len())
	return res.Items()[0]
}

func mustBounded(t *testing.T, c sqlpool.Connector, capacity int) *sqlpool.BoundedPool {
	t.Helper()
	pool, err := sqlpool.NewBoundedPool(t.Context(), c, capacity, nil)
	require.NoError(t, err)
	return pool
}

// MustClose closes the given closer and panics if there's an error.
// This is useful in tests where we don't want to handle close errors.
func MustClose(c io.Closer) {
	if err := c.Close(); err != nil {
		panic(err)
	}
}
