// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedb holds types to fake an in-memory DB.
package fakedb // import "github.com/go-lpc/oscope/internal/fakedb"

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"sync"
)

var query struct {
	mu    sync.Mutex
	rows  Rows
	res   Result
	execs []Exec
}

// Run runs f with the provided rows as the result of any query.
func Run(ctx context.Context, rows Rows, f func(ctx context.Context) error) error {
	query.mu.Lock()
	defer query.mu.Unlock()
	query.rows = rows

	return f(ctx)
}

// RunExec runs f with the provided result as the result of any statement
// execution. RunExec returns the statements executed by f.
func RunExec(ctx context.Context, res Result, f func(ctx context.Context) error) ([]Exec, error) {
	query.mu.Lock()
	defer query.mu.Unlock()
	query.res = res
	query.execs = nil

	err := f(ctx)
	execs := query.execs
	query.execs = nil
	return execs, err
}

// Exec describes an executed statement.
type Exec struct {
	Query string
	Args  []driver.Value
}

// Result is the result of an executed statement.
type Result struct {
	ID int64 // last inserted ID
	N  int64 // number of rows affected
}

func (res Result) LastInsertId() (int64, error) { return res.ID, nil }
func (res Result) RowsAffected() (int64, error) { return res.N, nil }

func init() {
	sql.Register("fakedb", &Driver{})
}

// Driver is a fake SQL driver.
type Driver struct{}

func (drv *Driver) Open(name string) (driver.Conn, error) {
	return &Conn{}, nil
}

type Conn struct{}

func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return &Stmt{query: query}, nil
}

func (c *Conn) Close() error {
	return nil
}

func (c *Conn) Begin() (driver.Tx, error) {
	panic("not implemented")
}

type Stmt struct {
	query string
}

func (stmt *Stmt) Close() error {
	return nil
}

// NumInput returns -1: arguments are not checked.
func (stmt *Stmt) NumInput() int {
	return -1
}

// Exec records the executed statement and returns the current result.
func (stmt *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	query.execs = append(query.execs, Exec{
		Query: stmt.query,
		Args:  append([]driver.Value(nil), args...),
	})
	return query.res, nil
}

func (stmt *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	return &query.rows, nil
}

// Rows holds the column names and the values of a query result.
type Rows struct {
	Names  []string
	Values [][]driver.Value
}

func (rows *Rows) Columns() []string {
	return rows.Names
}

func (rows *Rows) Close() error {
	return nil
}

func (rows *Rows) Next(dest []driver.Value) error {
	if len(rows.Values) == 0 {
		return io.EOF
	}
	copy(dest, rows.Values[0])
	rows.Values = rows.Values[1:]
	return nil
}

var (
	_ driver.Driver = (*Driver)(nil)
	_ driver.Conn   = (*Conn)(nil)
	_ driver.Stmt   = (*Stmt)(nil)
	_ driver.Rows   = (*Rows)(nil)
	_ driver.Result = Result{}
)
