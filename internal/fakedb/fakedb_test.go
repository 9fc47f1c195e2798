// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fakedb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"reflect"
	"testing"
)

func TestRun(t *testing.T) {
	db, err := sql.Open("fakedb", "")
	if err != nil {
		t.Fatalf("could not open db: %+v", err)
	}
	defer db.Close()

	errQuery := errors.New("boom")
	calls, err := Run(context.Background(), func(ctx context.Context) error {
		for i, want := range []int64{1, 2} {
			var got int64
			err := db.QueryRowContext(ctx, "SELECT v FROM t WHERE k=?", i).Scan(&got)
			if err != nil {
				t.Fatalf("query %d: could not scan: %+v", i, err)
			}
			if got != want {
				t.Fatalf("query %d: got=%d, want=%d", i, got, want)
			}
		}

		_, err := db.QueryContext(ctx, "SELECT 3")
		if !errors.Is(err, errQuery) {
			t.Fatalf("invalid error: got=%+v, want=%+v", err, errQuery)
		}

		_, err = db.QueryContext(ctx, "SELECT 4")
		if err == nil {
			t.Fatalf("expected an error when no result set is left")
		}
		return nil
	},
		Rows{Names: []string{"v"}, Values: [][]driver.Value{{int64(1)}}},
		Rows{Names: []string{"v"}, Values: [][]driver.Value{{int64(2)}}},
		Rows{Err: errQuery},
	)
	if err != nil {
		t.Fatalf("could not run: %+v", err)
	}

	want := []Query{
		{SQL: "SELECT v FROM t WHERE k=?", Args: []driver.Value{int64(0)}},
		{SQL: "SELECT v FROM t WHERE k=?", Args: []driver.Value{int64(1)}},
		{SQL: "SELECT 3", Args: []driver.Value{}},
		{SQL: "SELECT 4", Args: []driver.Value{}},
	}
	if !reflect.DeepEqual(calls, want) {
		t.Fatalf("invalid queries:\ngot= %+v\nwant=%+v", calls, want)
	}
}
