package testutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	sqlpool "github.com/chpan1995/boost-mysql-pool"
)

// ErrConnectionRefused is returned by Driver.Connect once FailAfter is
// reached and ConnectErr is nil.
var ErrConnectionRefused = errors.New("connection refused")

// Response is what a fake statement returns.
type Response struct {
	Columns      []string
	Rows         [][]any
	RowsAffected int64
	LastInsertID int64
}

// Driver is an in-memory sqlpool.Connector. Its sessions record every
// statement they run and detect when two goroutines use one of them at the
// same time.
type Driver struct {
	// FailAfter makes every Connect after the first FailAfter calls fail.
	// Zero disables it.
	FailAfter int
	// ConnectErr is the error returned once FailAfter is reached.
	ConnectErr error
	// ConnectDelay is how long Connect takes.
	ConnectDelay time.Duration
	// QueryDelay is how long a statement holds its session.
	QueryDelay time.Duration

	// Respond answers statements. The default is an empty response.
	Respond func(query string, args []any) (*Response, error)
	// PrepareErr, if set, can reject statements at prepare time.
	PrepareErr func(query string) error
	// ExecErr, if set, can fail Session.Exec calls such as COMMIT.
	ExecErr func(query string) error

	mu       sync.Mutex
	connects int
	sessions []*Session
	overlaps atomic.Int64
}

// Connect implements sqlpool.Connector.
func (d *Driver) Connect(ctx context.Context) (sqlpool.Session, error) {
	if d.ConnectDelay > 0 {
		select {
		case <-time.After(d.ConnectDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.connects++
	if d.FailAfter > 0 && d.connects > d.FailAfter {
		if d.ConnectErr != nil {
			return nil, d.ConnectErr
		}
		return nil, ErrConnectionRefused
	}

	s := &Session{driver: d, ID: len(d.sessions) + 1}
	d.sessions = append(d.sessions, s)
	return s, nil
}

// Connects returns the number of Connect calls.
func (d *Driver) Connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

// Sessions returns every session created so far.
func (d *Driver) Sessions() []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Session(nil), d.sessions...)
}

// Overlaps returns how many times a session was entered while another
// goroutine was using it.
func (d *Driver) Overlaps() int64 {
	return d.overlaps.Load()
}

// OpenSessions returns the number of sessions not yet closed.
func (d *Driver) OpenSessions() int {
	n := 0
	for _, s := range d.Sessions() {
		if !s.Closed() {
			n++
		}
	}
	return n
}

func (d *Driver) respond(query string, args []any) (*Response, error) {
	if d.Respond == nil {
		return &Response{}, nil
	}
	return d.Respond(query, args)
}

// Session is a fake sqlpool.Session.
type Session struct {
	ID int

	driver *Driver
	inUse  atomic.Int32
	closes atomic.Int32

	mu  sync.Mutex
	log []string
}

// Statements returns the statements run on this session, in order.
func (s *Session) Statements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.log...)
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	return s.closes.Load() > 0
}

// CloseCount returns how many times Close has been called.
func (s *Session) CloseCount() int {
	return int(s.closes.Load())
}

func (s *Session) record(query string) {
	s.mu.Lock()
	s.log = append(s.log, query)
	s.mu.Unlock()
}

func (s *Session) enter() {
	if s.inUse.Add(1) > 1 {
		s.driver.overlaps.Add(1)
	}
}

func (s *Session) leave() {
	s.inUse.Add(-1)
}

// Prepare implements sqlpool.Session.
func (s *Session) Prepare(ctx context.Context, query string) (sqlpool.Statement, error) {
	if s.Closed() {
		return nil, errors.New("session closed")
	}
	if s.driver.PrepareErr != nil {
		if err := s.driver.PrepareErr(query); err != nil {
			return nil, err
		}
	}
	return &statement{session: s, query: query}, nil
}

// Exec implements sqlpool.Session.
func (s *Session) Exec(ctx context.Context, query string) error {
	s.enter()
	defer s.leave()

	s.record(query)
	if s.driver.ExecErr != nil {
		return s.driver.ExecErr(query)
	}
	return nil
}

// Close implements sqlpool.Session.
func (s *Session) Close() error {
	s.closes.Add(1)
	return nil
}

type statement struct {
	session *Session
	query   string
	closed  bool
}

func (st *statement) run(ctx context.Context, args []any) (*Response, error) {
	st.session.enter()
	defer st.session.leave()

	st.session.record(st.query)
	if d := st.session.driver.QueryDelay; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return st.session.driver.respond(st.query, args)
}

func (st *statement) Query(ctx context.Context, args []any) (sqlpool.Rows, error) {
	resp, err := st.run(ctx, args)
	if err != nil {
		return nil, err
	}
	return &Rows{columns: resp.Columns, rows: resp.Rows, pos: -1}, nil
}

func (st *statement) Exec(ctx context.Context, args []any) (sql.Result, error) {
	resp, err := st.run(ctx, args)
	if err != nil {
		return nil, err
	}
	return result{affected: resp.RowsAffected, lastID: resp.LastInsertID}, nil
}

func (st *statement) Close() error {
	st.closed = true
	return nil
}

type result struct {
	affected int64
	lastID   int64
}

func (r result) LastInsertId() (int64, error) { return r.lastID, nil }
func (r result) RowsAffected() (int64, error) { return r.affected, nil }

// Rows is an in-memory sqlpool.Rows.
type Rows struct {
	columns []string
	rows    [][]any
	pos     int
	closed  bool
}

// NewRows returns rows over the given values.
func NewRows(columns []string, rows ...[]any) *Rows {
	return &Rows{columns: columns, rows: rows, pos: -1}
}

func (r *Rows) Columns() ([]string, error) {
	return r.columns, nil
}

func (r *Rows) Next() bool {
	if r.closed || r.pos+1 >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

// Scan assigns the current row to dest. Values are converted with reflect
// when their types differ.
func (r *Rows) Scan(dest ...any) error {
	if r.pos < 0 || r.pos >= len(r.rows) {
		return errors.New("sql: Scan called without calling Next")
	}
	row := r.rows[r.pos]
	if len(dest) != len(row) {
		return fmt.Errorf("sql: expected %d destination arguments in Scan, not %d", len(row), len(dest))
	}
	for i, d := range dest {
		if err := assign(d, row[i]); err != nil {
			return fmt.Errorf("sql: Scan error on column index %d, name %q: %w", i, r.columns[i], err)
		}
	}
	return nil
}

func (r *Rows) Err() error {
	return nil
}

func (r *Rows) Close() error {
	r.closed = true
	return nil
}

func assign(dest, src any) error {
	if p, ok := dest.(*any); ok {
		*p = src
		return nil
	}
	if s, ok := dest.(sql.Scanner); ok {
		return s.Scan(src)
	}

	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("destination not a pointer")
	}
	dv = dv.Elem()
	if src == nil {
		dv.SetZero()
		return nil
	}
	sv := reflect.ValueOf(src)
	if b, ok := src.([]byte); ok && dv.Kind() == reflect.String {
		dv.SetString(string(b))
		return nil
	}
	if !sv.Type().ConvertibleTo(dv.Type()) {
		return fmt.Errorf("converting %T to %s is unsupported", src, dv.Type())
	}
	dv.Set(sv.Convert(dv.Type()))
	return nil
}
