// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedb holds types to fake an in-memory DB.
//
// Each query issued against a "fakedb" connection consumes the next result
// set queued with Run.
package fakedb // import "github.com/go-lpc/crt/internal/fakedb"

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sync"
)

var (
	run   sync.Mutex // serializes calls to Run
	state struct {
		mu    sync.Mutex
		rows  []Rows
		calls []Query
	}
)

// Query is a query received by the fake DB.
type Query struct {
	SQL  string
	Args []driver.Value
}

// Run runs f with the provided result sets queued, and returns the queries
// f issued.
func Run(ctx context.Context, f func(ctx context.Context) error, rows ...Rows) ([]Query, error) {
	run.Lock()
	defer run.Unlock()

	state.mu.Lock()
	state.rows = append([]Rows(nil), rows...)
	state.calls = nil
	state.mu.Unlock()

	err := f(ctx)

	state.mu.Lock()
	defer state.mu.Unlock()
	calls := state.calls
	state.rows = nil
	state.calls = nil

	return calls, err
}

func next(query string, args []driver.NamedValue) (*Rows, error) {
	state.mu.Lock()
	defer state.mu.Unlock()

	q := Query{SQL: query, Args: make([]driver.Value, len(args))}
	for i, arg := range args {
		q.Args[i] = arg.Value
	}
	state.calls = append(state.calls, q)

	if len(state.rows) == 0 {
		return nil, fmt.Errorf("fakedb: no result set for query %q", query)
	}
	rows := state.rows[0]
	state.rows = state.rows[1:]
	if rows.Err != nil {
		return nil, rows.Err
	}
	return &rows, nil
}

func init() {
	sql.Register("fakedb", &Driver{})
}

type Driver struct{}

// Open returns a new connection to the database.
func (drv *Driver) Open(name string) (driver.Conn, error) {
	return &Conn{}, nil
}

type Conn struct{}

// Prepare returns a prepared statement, bound to this connection.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("fakedb: prepared statements not supported")
}

// Close invalidates and potentially stops any current
// prepared statements and transactions, marking this
// connection as no longer in use.
func (c *Conn) Close() error {
	return nil
}

// Begin starts and returns a new transaction.
func (c *Conn) Begin() (driver.Tx, error) {
	return nil, errors.New("fakedb: transactions not supported")
}

// Ping verifies the connection to the database is still alive.
func (c *Conn) Ping(ctx context.Context) error {
	return ctx.Err()
}

// QueryContext executes a query that may return rows.
func (c *Conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return next(query, args)
}

// Rows is a result set.
type Rows struct {
	Names  []string
	Values [][]driver.Value
	Err    error // error returned by the query, if any
}

// Columns returns the names of the columns.
func (rows *Rows) Columns() []string {
	return rows.Names
}

// Close closes the rows iterator.
func (rows *Rows) Close() error {
	return nil
}

// Next is called to populate the next row of data into
// the provided slice. The provided slice will be the same
// size as the Columns() are wide.
//
// Next returns io.EOF when there are no more rows.
func (rows *Rows) Next(dest []driver.Value) error {
	if len(rows.Values) == 0 {
		return io.EOF
	}
	copy(dest, rows.Values[0])
	rows.Values = rows.Values[1:]
	return nil
}

var (
	_ driver.Driver         = (*Driver)(nil)
	_ driver.Conn           = (*Conn)(nil)
	_ driver.Pinger         = (*Conn)(nil)
	_ driver.QueryerContext = (*Conn)(nil)
	_ driver.Rows           = (*Rows)(nil)
)
