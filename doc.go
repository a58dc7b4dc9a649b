// Package sqlpool provides client-side connection pooling for MySQL and PostgreSQL.
//
// sqlpool keeps a set of live database sessions and lends them out one caller at a time,
// runs parameterized statements on them with a packer that flattens scalars, arrays,
// tuples and structs into positional parameters, and maps result rows back into typed
// records. Transactions borrow a single session for their whole life and give it back
// on commit, on rollback, or automatically when a statement inside them fails.
//
// # Key Features
//
//   - Bounded pool: a fixed number of sessions connected at startup, handed out in FIFO order
//   - Elastic pool: grows on demand up to a maximum and waits with a timeout when exhausted
//   - Exactly-once release of borrowed connections; misuse is reported, never corrupts the pool
//   - Argument packing for scalars, fixed arrays, tuples and reflected structs
//   - Typed results by column position or by db tag
//   - Rollback-on-error transactions
//   - Structured logging with zap, tracing with OpenTelemetry, metrics with Prometheus
//
// # Basic Usage
//
// Open a pool from a Config and run queries on it:
//
//	cfg := &sqlpool.Config{
//		Host:     "127.0.0.1",
//		Username: "root",
//		Password: "secret",
//		Database: "chat",
//		Capacity: 10,
//	}
//
//	db, err := sqlpool.Open(ctx, cfg, sqlpool.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	type user struct {
//		ID       int64
//		Username string
//		Password string
//	}
//
//	var users sqlpool.Records[user]
//	err = db.Query(ctx, "SELECT id, username, password FROM user WHERE username = ?", &users, "admin")
//
// Programs that need a single pool for the whole process use Configure and Instance.
// Instance opens the pool on first use and terminates the process if that fails:
//
//	func main() {
//		cfg, err := sqlpool.LoadConfig("pool.yaml")
//		if err != nil {
//			log.Fatal(err)
//		}
//		if err := sqlpool.Configure(cfg); err != nil {
//			log.Fatal(err)
//		}
//		defer sqlpool.Shutdown()
//
//		var res sqlpool.Results
//		_ = sqlpool.Instance().Query(context.Background(), "SELECT * FROM user", &res)
//	}
//
// # Parameter Packing
//
// Every argument of Query expands into one or more positional parameters, left to right:
//
//	db.Query(ctx, "INSERT INTO t VALUES (?, ?, ?, ?, ?, ?)", &res,
//		42,                         // one slot
//		[2]string{"a", "b"},        // two slots
//		sqlpool.T("x", "y", "z"),   // three slots
//	)
//
// A struct expands to its exported fields in declaration order. time.Time, []byte and
// driver.Valuer implementations such as sql.NullString stay a single parameter.
//
// # Transactions
//
//	tx, err := db.StartTransaction(ctx)
//	if err != nil {
//		return err
//	}
//	if err := tx.Query(ctx, insertOrder, &res, order); err != nil {
//		// Already rolled back and released.
//		return err
//	}
//	return db.Commit(ctx, tx)
//
// # Pool Modes
//
// The bounded pool never blocks: when every session is borrowed, Acquire returns
// ErrPoolExhausted immediately. The elastic pool creates sessions up to MaxSize, then
// waits up to AcquireTimeout for a release and returns ErrAcquireTimeout if none comes.
// Idle elastic sessions beyond MinSize are closed after MaxIdleTime.
//
// # Errors
//
// Every operation returns *Error values. Use errors.Is with the sentinels (ErrConnect,
// ErrPoolExhausted, ErrAcquireTimeout, ErrPrepare, ErrBind, ErrExec, ErrMisuse, ...) to
// branch on the kind of failure, and errors.As to reach the driver error. Server error
// codes are copied into Error.Code for logging.
//
// # Thread Safety
//
// DB, BoundedPool and ElasticPool are safe for concurrent use. A Conn or Tx belongs to
// the goroutine that borrowed it and must not be shared.
package sqlpool
