package sqlpool

import (
	"context"
	"errors"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/chpan1995/boost-mysql-pool"

// State is a step of a query's life. A query moves forward through the
// states in order and stops at the first failure.
type State uint8

const (
	StateIdle State = iota
	StateConnectionAcquired
	StateStatementPrepared
	StateParametersBound
	StateExecuted
	StateReleasedAfterSuccess
	StateReleasedAfterError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnectionAcquired:
		return "connection_acquired"
	case StateStatementPrepared:
		return "statement_prepared"
	case StateParametersBound:
		return "parameters_bound"
	case StateExecuted:
		return "executed"
	case StateReleasedAfterSuccess:
		return "released_after_success"
	case StateReleasedAfterError:
		return "released_after_error"
	default:
		return "unknown"
	}
}

// queryStats counts queries and failures per error kind.
type queryStats struct {
	queries atomic.Int64
	errors  [KindMisuse + 1]atomic.Int64
}

func (s *queryStats) record(err error) {
	s.queries.Add(1)
	if err != nil {
		s.errors[KindOfError(err)].Add(1)
	}
}

// executor runs statements on nodes. It is shared by DB, Conn and Tx.
type executor struct {
	tracer trace.Tracer
	logger *zap.Logger
	system string
	stats  *queryStats
}

func newExecutor(tp trace.TracerProvider, logger *zap.Logger, system string) *executor {
	return &executor{
		tracer: tp.Tracer(instrumentationName),
		logger: logger,
		system: system,
		stats:  &queryStats{},
	}
}

// defaultExecutor serves connections borrowed directly from a pool that was
// not created through a DB.
func defaultExecutor() *executor {
	return newExecutor(otel.GetTracerProvider(), zap.L().Named("sqlpool"), "")
}

// query borrows a connection from pool, runs the statement and gives the
// connection back whatever the outcome.
func (e *executor) query(ctx context.Context, pool Pool, query string, sink ResultSink, args []any) (err error) {
	ctx, span := e.start(ctx, query)
	defer func() { e.finish(span, query, err) }()

	c, err := pool.Acquire(ctx)
	if err != nil {
		return withState(err, StateIdle)
	}
	c.exec = e
	span.AddEvent(StateConnectionAcquired.String(), trace.WithAttributes(
		attribute.String("sqlpool.node_id", c.node.id.String()),
	))

	err = e.execute(ctx, span, c.node, query, sink, args)

	if rerr := pool.Release(c); rerr != nil && err == nil {
		err = rerr
	}
	if err != nil {
		span.AddEvent(StateReleasedAfterError.String())
		return err
	}
	span.AddEvent(StateReleasedAfterSuccess.String())
	return nil
}

// run executes the statement on a node that the caller already holds.
func (e *executor) run(ctx context.Context, node *Node, query string, sink ResultSink, args []any) (err error) {
	ctx, span := e.start(ctx, query)
	defer func() { e.finish(span, query, err) }()

	span.AddEvent(StateConnectionAcquired.String(), trace.WithAttributes(
		attribute.String("sqlpool.node_id", node.id.String()),
	))
	return e.execute(ctx, span, node, query, sink, args)
}

func (e *executor) execute(ctx context.Context, span trace.Span, node *Node, query string, sink ResultSink, args []any) error {
	if sink == nil {
		return &Error{Kind: KindMisuse, Op: "query", State: StateConnectionAcquired, Message: "result sink is required"}
	}

	stmt, err := node.session.Prepare(ctx, query)
	if err != nil {
		perr := newError(KindPrepare, "query", "failed to prepare statement", err)
		perr.State = StateConnectionAcquired
		return perr
	}
	defer func() {
		if cerr := stmt.Close(); cerr != nil {
			node.logger.Warn("failed to close statement", zap.Error(cerr))
		}
	}()
	span.AddEvent(StateStatementPrepared.String())

	params := Pack(args...)
	span.AddEvent(StateParametersBound.String(), trace.WithAttributes(
		attribute.Int("sqlpool.params", len(params)),
	))

	if err := sink.Fill(ctx, stmt, params); err != nil {
		ferr := newError(classifyExec(err), "query", "failed to execute statement", err)
		ferr.State = StateParametersBound
		return ferr
	}
	span.AddEvent(StateExecuted.String())
	return nil
}

func (e *executor) start(ctx context.Context, query string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("db.statement", query)}
	if e.system != "" {
		attrs = append(attrs, attribute.String("db.system", e.system))
	}
	return e.tracer.Start(ctx, "sqlpool.query",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func (e *executor) finish(span trace.Span, query string, err error) {
	e.stats.record(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("query failed",
			zap.String("query", query),
			zap.Stringer("kind", KindOfError(err)),
			zap.Error(err),
		)
	}
	span.End()
}

// withState returns a copy of err with State set, or err itself if it is
// not an *Error.
func withState(err error, s State) error {
	var perr *Error
	if !errors.As(err, &perr) {
		return err
	}
	cp := *perr
	cp.State = s
	return &cp
}
