package sqlpool

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// Kind categorizes an Error. Callers branch on the kind, never on the message.
type Kind uint8

const (
	// KindConnect means a node could not be established.
	KindConnect Kind = iota + 1
	// KindTimeout means no node became available before the acquire deadline.
	KindTimeout
	// KindExhausted means the bounded pool had no idle node.
	KindExhausted
	// KindClosed means the pool has been shut down.
	KindClosed
	// KindPrepare means the statement text was rejected.
	KindPrepare
	// KindBind means the parameters or result destinations did not fit the statement.
	KindBind
	// KindExec means the statement ran and failed, usually server side.
	KindExec
	// KindMisuse means the API was called incorrectly; nothing was sent to the server.
	KindMisuse
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindTimeout:
		return "timeout"
	case KindExhausted:
		return "exhausted"
	case KindClosed:
		return "closed"
	case KindPrepare:
		return "prepare"
	case KindBind:
		return "bind"
	case KindExec:
		return "exec"
	case KindMisuse:
		return "misuse"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every pool and query operation.
//
// Code and Message carry the server diagnostics when the driver provided them.
// They are meant for logs; programmatic handling should use Kind via errors.Is.
type Error struct {
	Kind  Kind
	Op    string
	State State
	// Code is the server error number (MySQL) or SQLSTATE (PostgreSQL).
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("sqlpool: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " (code %s)", e.Code)
	}
	// Server errors are already carried by Message and Code.
	if e.Err != nil && e.Code == "" {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind. This lets the
// sentinel values below match any error of their kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is. Each matches every *Error of its kind.
var (
	ErrConnect        = &Error{Kind: KindConnect}
	ErrAcquireTimeout = &Error{Kind: KindTimeout}
	ErrPoolExhausted  = &Error{Kind: KindExhausted}
	ErrPoolClosed     = &Error{Kind: KindClosed}
	ErrPrepare        = &Error{Kind: KindPrepare}
	ErrBind           = &Error{Kind: KindBind}
	ErrExec           = &Error{Kind: KindExec}
	ErrMisuse         = &Error{Kind: KindMisuse}
)

// ErrNotImplemented is returned by Execute, which is reserved for
// administrative statements and does not run anything yet.
var ErrNotImplemented = &Error{Kind: KindMisuse, Op: "execute", Message: "not implemented"}

func newError(kind Kind, op, msg string, err error) *Error {
	e := &Error{Kind: kind, Op: op, Message: msg, Err: err}
	e.Code, e.Message = diagnostics(err, msg)
	return e
}

// KindOfError returns the Kind of err, or 0 if err is not an *Error.
func KindOfError(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// diagnostics extracts the server code and message from a driver error.
// The fallback message is kept when the driver did not provide one.
func diagnostics(err error, fallback string) (code, msg string) {
	msg = fallback
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return fmt.Sprintf("%d", myErr.Number), joinMessage(fallback, myErr.Message)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, joinMessage(fallback, pgErr.Message)
	}
	return "", msg
}

func joinMessage(fallback, server string) string {
	if fallback == "" {
		return server
	}
	return fallback + ": " + server
}

// classifyExec decides whether a failure raised while running a prepared
// statement came from binding (client side, before anything was sent) or from
// execution.
func classifyExec(err error) Kind {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return KindExec
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return KindExec
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "converting argument"),
		strings.HasPrefix(msg, "sql: expected"),
		strings.Contains(msg, "destination arguments in Scan"),
		strings.Contains(msg, "sql: Scan error"),
		strings.Contains(msg, "missing destination name"):
		return KindBind
	}
	return KindExec
}
