// Package testutil provides a stub database/sql driver that understands the
// small SQL dialect used by the postgres document store.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// StubConn records statements and keeps rows per table. Inserted rows get an
// auto-incremented "seq" column.
type StubConn struct {
	mu         sync.Mutex
	Execs      []string
	Tables     map[string][]map[string]any
	FailExec   bool
	FailPing   bool
	FailQuery  bool
	FailBegin  bool
	FailCommit bool
	seq        int64
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	up := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(up, "INSERT INTO"):
		return c.insert(query, args)
	case strings.HasPrefix(up, "DELETE FROM"):
		table, preds, _, err := parseTail(strings.TrimSpace(query)[len("DELETE FROM"):])
		if err != nil {
			return nil, err
		}
		var kept []map[string]any
		var n int64
		for _, row := range c.Tables[table] {
			if matches(row, preds, args) {
				n++
				continue
			}
			kept = append(kept, row)
		}
		c.Tables[table] = kept
		return driver.RowsAffected(n), nil
	}
	return driver.RowsAffected(0), nil
}

func (c *StubConn) insert(query string, args []driver.NamedValue) (driver.Result, error) {
	table, cols, conflict, err := parseInsert(query)
	if err != nil {
		return nil, err
	}
	if len(cols) > len(args) {
		return nil, fmt.Errorf("column/arg mismatch for %s", table)
	}
	row := make(map[string]any, len(cols)+1)
	for i, col := range cols {
		row[col] = normalize(args[i].Value)
	}
	if len(conflict) > 0 {
		for _, existing := range c.Tables[table] {
			same := true
			for _, col := range conflict {
				if existing[col] != row[col] {
					same = false
					break
				}
			}
			if same {
				for k, v := range row {
					existing[k] = v
				}
				return driver.RowsAffected(1), nil
			}
		}
	}
	c.seq++
	row["seq"] = c.seq
	c.Tables[table] = append(c.Tables[table], row)
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailQuery {
		return nil, fmt.Errorf("query fail")
	}
	lower := strings.ToLower(query)
	if !strings.HasPrefix(strings.TrimSpace(lower), "select ") {
		return nil, fmt.Errorf("cannot parse select: %s", query)
	}
	fromIdx := strings.Index(lower, " from ")
	if fromIdx == -1 {
		return nil, fmt.Errorf("cannot parse select: %s", query)
	}
	cols := splitColumns(query[strings.Index(lower, "select ")+len("select ") : fromIdx])
	table, preds, limit, err := parseTail(query[fromIdx+len(" from "):])
	if err != nil {
		return nil, err
	}
	limitN := -1
	if limit >= 0 && limit < len(args) {
		if n, ok := toInt(args[limit].Value); ok {
			limitN = int(n)
		}
	}
	var values [][]driver.Value
	for _, row := range c.Tables[table] {
		if !matches(row, preds, args) {
			continue
		}
		if limitN >= 0 && len(values) == limitN {
			break
		}
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: cols, rows: values}, nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	return nil
}
func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

// predicate is "col = $n" or "col > $n"; anything else is ignored.
type predicate struct {
	col string
	op  byte
	arg int
}

func matches(row map[string]any, preds []predicate, args []driver.NamedValue) bool {
	for _, p := range preds {
		if p.arg >= len(args) {
			return false
		}
		want := normalize(args[p.arg].Value)
		switch p.op {
		case '=':
			if fmt.Sprint(row[p.col]) != fmt.Sprint(want) {
				return false
			}
		case '>':
			got, ok1 := toInt(row[p.col])
			bound, ok2 := toInt(want)
			if !ok1 || !ok2 || got <= bound {
				return false
			}
		}
	}
	return true
}

// parseTail parses "table [WHERE ...] [ORDER BY ...] [LIMIT $n]".
func parseTail(rest string) (string, []predicate, int, error) {
	rest = strings.TrimSpace(rest)
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", nil, -1, fmt.Errorf("missing table")
	}
	table := strings.ToLower(fields[0])
	lower := strings.ToLower(rest)
	limit := -1
	if i := strings.Index(lower, " limit "); i >= 0 {
		limit = placeholder(strings.TrimSpace(rest[i+len(" limit "):]))
		rest, lower = rest[:i], lower[:i]
	}
	if i := strings.Index(lower, " order by "); i >= 0 {
		rest, lower = rest[:i], lower[:i]
	}
	var preds []predicate
	if i := strings.Index(lower, " where "); i >= 0 {
		for _, clause := range strings.Split(rest[i+len(" where "):], " AND ") {
			clause = strings.TrimSpace(clause)
			for _, op := range []byte{'=', '>'} {
				parts := strings.SplitN(clause, string(op), 2)
				if len(parts) != 2 || strings.ContainsAny(parts[0], "@<") {
					continue
				}
				if n := placeholder(strings.TrimSpace(parts[1])); n >= 0 {
					preds = append(preds, predicate{col: strings.ToLower(strings.TrimSpace(parts[0])), op: op, arg: n})
				}
				break
			}
		}
	}
	return table, preds, limit, nil
}

func parseInsert(query string) (string, []string, []string, error) {
	up := strings.ToUpper(query)
	intoIdx := strings.Index(up, "INTO ")
	if intoIdx == -1 {
		return "", nil, nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	rest := strings.TrimSpace(query[intoIdx+len("INTO "):])
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx == -1 || closeIdx <= open {
		return "", nil, nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(rest[:open]))
	cols := splitColumns(rest[open+1 : closeIdx])
	var conflict []string
	if i := strings.Index(up, "ON CONFLICT("); i >= 0 {
		tail := query[i+len("ON CONFLICT("):]
		if j := strings.Index(tail, ")"); j >= 0 {
			conflict = splitColumns(tail[:j])
		}
	}
	return table, cols, conflict, nil
}

func placeholder(tok string) int {
	fields := strings.Fields(tok)
	if len(fields) == 0 {
		return -1
	}
	tok = strings.TrimSuffix(fields[0], "::jsonb")
	if !strings.HasPrefix(tok, "$") {
		return -1
	}
	n, err := strconv.Atoi(tok[1:])
	if err != nil || n < 1 {
		return -1
	}
	return n - 1
}

func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
