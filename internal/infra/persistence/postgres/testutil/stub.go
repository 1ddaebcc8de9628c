// Package testutil provides an in-memory stand-in for Postgres that accepts
// the statements the relational research stores issue. Tables exist only
// after their CREATE TABLE statement ran, inserts must use sequential $n
// placeholders, and selects honour a single-column ORDER BY.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
)

// StubConn records statements and keeps inserted rows per table.
type StubConn struct {
	Execs  []string
	Tables map[string][]map[string]any
	// Created lists the tables whose DDL has been applied.
	Created map[string]bool

	FailPing   bool
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	RowsErr    error
	// FailTables makes inserts into and selects from the named tables fail.
	FailTables map[string]bool
}

var (
	stubSeq atomic.Int64

	createRe = regexp.MustCompile(`(?is)^CREATE TABLE(?: IF NOT EXISTS)?\s+(\w+)`)
	insertRe = regexp.MustCompile(`(?is)^INSERT INTO\s+(\w+)\s*\(([^)]*)\)\s*VALUES\s*\(([^)]*)\)$`)
	selectRe = regexp.MustCompile(`(?is)^SELECT\s+(.+?)\s+FROM\s+(\w+)(?:\s+ORDER BY\s+(\w+))?$`)
	deleteRe = regexp.MustCompile(`(?is)^DELETE FROM\s+(\w+)$`)
)

// NewStubDB registers a sql.DB backed by a fresh stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any), Created: make(map[string]bool)}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct{ conn *StubConn }

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn; the stub only supports direct execution.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return errors.New("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, errors.New("begin fail")
	}
	return stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, errors.New("exec fail")
	}
	stmt := strings.TrimSuffix(strings.TrimSpace(query), ";")
	if m := createRe.FindStringSubmatch(stmt); m != nil {
		c.Created[strings.ToLower(m[1])] = true
		return driver.RowsAffected(0), nil
	}
	if m := insertRe.FindStringSubmatch(stmt); m != nil {
		return c.insert(strings.ToLower(m[1]), splitList(m[2]), splitList(m[3]), args)
	}
	if m := deleteRe.FindStringSubmatch(stmt); m != nil {
		table := strings.ToLower(m[1])
		if err := c.requireTable(table); err != nil {
			return nil, err
		}
		n := len(c.Tables[table])
		delete(c.Tables, table)
		return driver.RowsAffected(int64(n)), nil
	}
	// Indexes, pragmas and other DDL are accepted without effect.
	return driver.RowsAffected(0), nil
}

func (c *StubConn) insert(table string, cols, marks []string, args []driver.NamedValue) (driver.Result, error) {
	if err := c.requireTable(table); err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("exec fail for %s", table)
	}
	if len(cols) != len(marks) || len(cols) != len(args) {
		return nil, fmt.Errorf("column/arg mismatch for %s", table)
	}
	for i, mark := range marks {
		if mark != fmt.Sprintf("$%d", i+1) {
			return nil, fmt.Errorf("placeholder %d of %s is %q", i+1, table, mark)
		}
	}
	row := make(map[string]any, len(cols))
	for i, col := range cols {
		row[col] = args[i].Value
	}
	c.Tables[table] = append(c.Tables[table], row)
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	m := selectRe.FindStringSubmatch(strings.TrimSuffix(strings.TrimSpace(query), ";"))
	if m == nil {
		return nil, fmt.Errorf("cannot parse select: %s", query)
	}
	cols, table, orderBy := splitList(m[1]), strings.ToLower(m[2]), strings.ToLower(m[3])
	if err := c.requireTable(table); err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("query fail for %s", table)
	}
	rows := append([]map[string]any(nil), c.Tables[table]...)
	if orderBy != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			return fmt.Sprint(rows[i][orderBy]) < fmt.Sprint(rows[j][orderBy])
		})
	}
	values := make([][]driver.Value, 0, len(rows))
	for _, row := range rows {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: cols, rows: values, err: c.RowsErr}, nil
}

func (c *StubConn) requireTable(table string) error {
	if !c.Created[table] {
		return fmt.Errorf("relation %q does not exist", table)
	}
	return nil
}

type stubTx struct{ conn *StubConn }

func (t stubTx) Commit() error {
	if t.conn.FailCommit {
		return errors.New("commit fail")
	}
	return nil
}

func (t stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
