// Package dbtest provides a database/sql driver that records every statement
// and answers with scripted results, so repositories can be tested without a
// running Postgres.
package dbtest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
)

const driverName = "dbtest"

var (
	registerOnce sync.Once
	recorders    sync.Map
	seq          atomic.Int64
)

// Call is one statement as the driver received it, after argument conversion.
type Call struct {
	Query string
	Args  []driver.Value
}

// Result is the scripted reply to one statement. Exec statements report
// RowsAffected; queries return Rows under Columns.
type Result struct {
	Columns      []string
	Rows         [][]driver.Value
	RowsAffected int64
	Err          error
}

// Recorder holds the statements seen by one database and the replies still
// to be handed out.
type Recorder struct {
	mu      sync.Mutex
	calls   []Call
	replies []Result
}

// Open returns a database backed by a fresh Recorder. It is closed when the
// test ends.
func Open(t testing.TB) (*sql.DB, *Recorder) {
	t.Helper()
	registerOnce.Do(func() {
		sql.Register(driverName, recordingDriver{})
	})

	rec := &Recorder{}
	dsn := fmt.Sprintf("%s#%d", t.Name(), seq.Add(1))
	recorders.Store(dsn, rec)

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		t.Fatalf("open recording database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		db.Close()
		recorders.Delete(dsn)
	})
	return db, rec
}

// Reply queues results handed out in order, one per statement. A statement
// with nothing queued gets no rows and one affected row.
func (r *Recorder) Reply(results ...Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, results...)
}

func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Last returns the most recent statement. It fails the test when there is none.
func (r *Recorder) Last(t testing.TB) Call {
	t.Helper()
	calls := r.Calls()
	if len(calls) == 0 {
		t.Fatal("no statement was executed")
	}
	return calls[len(calls)-1]
}

func (r *Recorder) record(query string, args []driver.NamedValue) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	values := make([]driver.Value, len(args))
	for i, arg := range args {
		values[i] = arg.Value
	}
	r.calls = append(r.calls, Call{Query: query, Args: values})

	if len(r.replies) == 0 {
		return Result{RowsAffected: 1}
	}
	next := r.replies[0]
	r.replies = r.replies[1:]
	return next
}

type recordingDriver struct{}

func (recordingDriver) Open(dsn string) (driver.Conn, error) {
	rec, ok := recorders.Load(dsn)
	if !ok {
		return nil, fmt.Errorf("dbtest: unknown database %q", dsn)
	}
	return &conn{rec: rec.(*Recorder)}, nil
}

type conn struct {
	rec *Recorder
}

func (c *conn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("dbtest: prepared statements are not supported")
}

func (c *conn) Close() error { return nil }

func (c *conn) Begin() (driver.Tx, error) { return tx{}, nil }

func (c *conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	res := c.rec.record(query, args)
	if res.Err != nil {
		return nil, res.Err
	}
	return driver.RowsAffected(res.RowsAffected), nil
}

func (c *conn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	res := c.rec.record(query, args)
	if res.Err != nil {
		return nil, res.Err
	}
	return &rows{columns: res.Columns, values: res.Rows}, nil
}

type tx struct{}

func (tx) Commit() error   { return nil }
func (tx) Rollback() error { return nil }

type rows struct {
	columns []string
	values  [][]driver.Value
	pos     int
}

func (r *rows) Columns() []string { return r.columns }

func (r *rows) Close() error { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.pos >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.pos])
	r.pos++
	return nil
}
