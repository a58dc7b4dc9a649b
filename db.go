package sqlpool

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DB is the entry point for running queries. It owns one Pool and borrows
// from it for every call.
type DB struct {
	*executor

	pool  Pool
	begin string
}

type options struct {
	logger         *zap.Logger
	tracerProvider trace.TracerProvider
	connector      Connector
	beginStatement string
	system         string
}

// Option configures a DB.
type Option func(*options)

// WithLogger sets the logger. The default is zap.L().Named("sqlpool").
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTracerProvider sets the tracer provider used for query spans. The
// default is the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithConnector replaces the connector Open would build from the Config
// driver settings.
func WithConnector(c Connector) Option {
	return func(o *options) {
		o.connector = c
	}
}

// WithBeginStatement sets the statement that opens a transaction for a DB
// created with New. Open takes it from Config.BeginStatement.
func WithBeginStatement(stmt string) Option {
	return func(o *options) {
		o.beginStatement = stmt
	}
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.L().Named("sqlpool")
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	if o.beginStatement == "" {
		o.beginStatement = DefaultConfig().BeginStatement
	}
	return o
}

// Open validates cfg, connects the pool described by it and returns a DB.
// cfg is not modified; defaults are applied to a copy.
func Open(ctx context.Context, cfg *Config, opts ...Option) (*DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	c := *cfg
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := buildOptions(opts)
	o.beginStatement = c.BeginStatement
	o.system = c.Driver
	logger := o.logger.With(zap.String("host", c.Host), zap.String("database", c.Database))

	connector := o.connector
	if connector == nil {
		var err error
		connector, err = newConnectorFor(&c)
		if err != nil {
			return nil, err
		}
	}

	var (
		pool Pool
		err  error
	)
	switch c.Mode {
	case ModeElastic:
		pool, err = NewElasticPool(ctx, connector, ElasticConfig{
			MinSize:           c.MinSize,
			MaxSize:           c.MaxSize,
			AcquireTimeout:    c.AcquireTimeout,
			MaxIdleTime:       c.MaxIdleTime,
			HealthCheckPeriod: c.HealthCheckPeriod,
		}, logger)
	default:
		pool, err = NewBoundedPool(ctx, connector, c.Capacity, logger)
	}
	if err != nil {
		return nil, err
	}

	return newDB(pool, o), nil
}

// MustOpen is Open for program startup: a failure is logged at fatal level,
// which terminates the process.
func MustOpen(ctx context.Context, cfg *Config, opts ...Option) *DB {
	db, err := Open(ctx, cfg, opts...)
	if err != nil {
		buildOptions(opts).logger.Fatal("failed to initialize connection pool",
			zap.Stringer("kind", KindOfError(err)),
			zap.Error(err),
		)
	}
	return db
}

// New wraps an existing pool.
func New(pool Pool, opts ...Option) *DB {
	return newDB(pool, buildOptions(opts))
}

func newDB(pool Pool, o *options) *DB {
	return &DB{
		executor: newExecutor(o.tracerProvider, o.logger, o.system),
		pool:     pool,
		begin:    o.beginStatement,
	}
}

func newConnectorFor(cfg *Config) (Connector, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return NewPostgresConnector(cfg)
	default:
		return NewMySQLConnector(cfg)
	}
}

// Pool returns the underlying pool.
func (db *DB) Pool() Pool {
	return db.pool
}

// Query borrows a connection, runs query with args packed into positional
// parameters, fills sink and releases the connection on every path.
func (db *DB) Query(ctx context.Context, query string, sink ResultSink, args ...any) error {
	return db.query(ctx, db.pool, query, sink, args)
}

// QueryTuple is Query with a single Tuple argument. Any other argument type
// is rejected before a connection is borrowed.
func (db *DB) QueryTuple(ctx context.Context, query string, sink ResultSink, arg any) error {
	tup, ok := arg.(Tuple)
	if !ok {
		err := errNotTuple(arg)
		db.stats.record(err)
		return err
	}
	return db.Query(ctx, query, sink, tup)
}

// Execute is reserved for administrative statements. It returns
// ErrNotImplemented and does not touch the pool.
func (db *DB) Execute(ctx context.Context, query string) error {
	return ErrNotImplemented
}

// Acquire borrows a connection. The caller must Release it.
func (db *DB) Acquire(ctx context.Context) (*Conn, error) {
	c, err := db.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	c.exec = db.executor
	return c, nil
}

// StartTransaction borrows a connection and starts a transaction on it.
func (db *DB) StartTransaction(ctx context.Context) (*Tx, error) {
	return beginTx(ctx, db.pool, db.executor, db.begin)
}

// Commit commits tx and releases its connection.
func (db *DB) Commit(ctx context.Context, tx *Tx) error {
	if tx == nil {
		return &Error{Kind: KindMisuse, Op: "commit", Message: "transaction is nil"}
	}
	return tx.Commit(ctx)
}

// Stat returns the pool counters.
func (db *DB) Stat() Stat {
	return db.pool.Stat()
}

// Close closes the pool. A bounded pool leaves borrowed connections to their
// borrowers; an elastic pool waits for them to be released.
func (db *DB) Close() {
	db.pool.Close()
}

func errNotTuple(arg any) *Error {
	return &Error{Kind: KindMisuse, Op: "query", Message: fmt.Sprintf("argument must be a Tuple, got %T", arg)}
}
