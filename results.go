package sqlpool

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jmoiron/sqlx"
)

// ResultSink receives the outcome of a prepared statement. Fill runs the
// statement with the packed arguments and consumes whatever it produces.
type ResultSink interface {
	Fill(ctx context.Context, stmt Statement, args []any) error
}

// Results holds rows without a static type. Values are what the driver
// produced for each column.
type Results struct {
	columns []string
	rows    [][]any
}

// Fill implements ResultSink.
func (r *Results) Fill(ctx context.Context, stmt Statement, args []any) error {
	rows, err := stmt.Query(ctx, args)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	r.columns = cols
	r.rows = r.rows[:0]
	for rows.Next() {
		vals, err := sqlx.SliceScan(rows)
		if err != nil {
			return err
		}
		r.rows = append(r.rows, vals)
	}
	return rows.Err()
}

// Columns returns the column names of the last result.
func (r *Results) Columns() []string {
	return r.columns
}

// Rows returns every row of the last result.
func (r *Results) Rows() [][]any {
	return r.rows
}

// Len returns the number of rows.
func (r *Results) Len() int {
	return len(r.rows)
}

// At returns the value at row, col. It panics if either is out of range.
func (r *Results) At(row, col int) any {
	return r.rows[row][col]
}

// Records scans each row into a T by position: column i goes to the i-th
// exported field of T in declaration order, walked the same way Pack walks
// structs. A T that is not a struct receives the first and only column.
type Records[T any] struct {
	items []T
}

// Fill implements ResultSink.
func (r *Records[T]) Fill(ctx context.Context, stmt Statement, args []any) error {
	rows, err := stmt.Query(ctx, args)
	if err != nil {
		return err
	}
	defer rows.Close()

	r.items = r.items[:0]
	for rows.Next() {
		var item T
		if err := rows.Scan(scanTargets(&item)...); err != nil {
			return err
		}
		r.items = append(r.items, item)
	}
	return rows.Err()
}

// Items returns the scanned records.
func (r *Records[T]) Items() []T {
	return r.items
}

// Len returns the number of records.
func (r *Records[T]) Len() int {
	return len(r.items)
}

func scanTargets(dest any) []any {
	rv := reflect.ValueOf(dest).Elem()
	if rv.Kind() != reflect.Struct || isLeaf(rv.Type()) {
		return []any{dest}
	}
	fields := structFields(rv.Type())
	targets := make([]any, len(fields))
	for i, idx := range fields {
		targets[i] = rv.FieldByIndex(idx).Addr().Interface()
	}
	return targets
}

// NamedRecords scans each row into a T by column name, using the db struct
// tag (or the lower-cased field name) like sqlx does.
type NamedRecords[T any] struct {
	items []T
}

// Fill implements ResultSink.
func (r *NamedRecords[T]) Fill(ctx context.Context, stmt Statement, args []any) error {
	rows, err := stmt.Query(ctx, args)
	if err != nil {
		return err
	}
	defer rows.Close()

	var items []T
	if err := sqlx.StructScan(rows, &items); err != nil {
		return err
	}
	r.items = items
	return nil
}

// Items returns the scanned records.
func (r *NamedRecords[T]) Items() []T {
	return r.items
}

// Len returns the number of records.
func (r *NamedRecords[T]) Len() int {
	return len(r.items)
}

// ExecResult is the sink for statements that return no rows, such as INSERT,
// UPDATE and DELETE.
type ExecResult struct {
	RowsAffected int64
	// LastInsertID is zero when the driver does not report it.
	LastInsertID int64
}

// Fill implements ResultSink.
func (r *ExecResult) Fill(ctx context.Context, stmt Statement, args []any) error {
	res, err := stmt.Exec(ctx, args)
	if err != nil {
		return err
	}
	r.RowsAffected, err = res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		r.LastInsertID = id
	}
	return nil
}
