// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package runlog stores the bookkeeping of CRT simulation runs in a SQLite
// database.
package runlog // import "github.com/go-lpc/crt/internal/runlog"

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-lpc/crt/crtsim"
	"github.com/go-lpc/crt/geom"
	"github.com/jmoiron/sqlx"
	"github.com/rs/xid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run is not in the store.
var ErrNotFound = errors.New("runlog: run not found")

// Run describes a simulation run.
type Run struct {
	ID      xid.ID
	Start   time.Time
	Stop    time.Time
	Seed    uint64
	Input   string
	Output  string
	Deposits int64 // energy deposits processed
	Events   int64 // input events processed

	Counters crtsim.Counters
}

// NewRun creates a new run, started now.
func NewRun(input, output string, seed uint64) *Run {
	return &Run{
		ID:       xid.New(),
		Start:    time.Now().UTC(),
		Seed:     seed,
		Input:    input,
		Output:   output,
		Counters: crtsim.Counters{Regions: make(map[uint32]uint32)},
	}
}

// Store is a SQLite backed store of simulation runs.
type Store struct {
	db *sqlx.DB
}

// Open opens or creates the run store at path.
func Open(path string) (*Store, error) {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return nil, fmt.Errorf("runlog: could not create store directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("runlog: could not open store %q: %w", path, err)
	}

	s := &Store{db: db}
	err = s.migrate()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("runlog: could not migrate store %q: %w", path, err)
	}

	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			stopped_at TEXT NOT NULL,
			seed INTEGER NOT NULL,
			input TEXT NOT NULL,
			output TEXT NOT NULL,
			deposits INTEGER NOT NULL,
			events INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS run_counters (
			run_id TEXT NOT NULL,
			family TEXT NOT NULL,
			simulated INTEGER NOT NULL,
			observed INTEGER NOT NULL,
			events INTEGER NOT NULL,
			hits INTEGER NOT NULL,
			miss_threshold INTEGER NOT NULL,
			miss_strip INTEGER NOT NULL,
			miss_open INTEGER NOT NULL,
			miss_coincidence INTEGER NOT NULL,
			miss_lock INTEGER NOT NULL,
			miss_dead INTEGER NOT NULL,
			PRIMARY KEY (run_id, family)
		);`,
		`CREATE TABLE IF NOT EXISTS run_regions (
			run_id TEXT NOT NULL,
			region INTEGER NOT NULL,
			events INTEGER NOT NULL,
			PRIMARY KEY (run_id, region)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);`,
	} {
		_, err := s.db.Exec(stmt)
		if err != nil {
			return err
		}
	}
	return nil
}

type runRow struct {
	ID       string `db:"id"`
	Start    string `db:"started_at"`
	Stop     string `db:"stopped_at"`
	Seed     int64  `db:"seed"`
	Input    string `db:"input"`
	Output   string `db:"output"`
	Deposits int64  `db:"deposits"`
	Events   int64  `db:"events"`
}

type counterRow struct {
	RunID     string `db:"run_id"`
	Family    string `db:"family"`
	Simulated uint32 `db:"simulated"`
	Observed  uint32 `db:"observed"`
	Events    uint32 `db:"events"`
	Hits      uint32 `db:"hits"`
	Thr       uint32 `db:"miss_threshold"`
	Strip     uint32 `db:"miss_strip"`
	Open      uint32 `db:"miss_open"`
	Coinc     uint32 `db:"miss_coincidence"`
	Lock      uint32 `db:"miss_lock"`
	Dead      uint32 `db:"miss_dead"`
}

type regionRow struct {
	RunID  string `db:"run_id"`
	Region uint32 `db:"region"`
	Events uint32 `db:"events"`
}

var families = []geom.Family{geom.CERN, geom.DoubleChooz, geom.MINOS}

// Insert stores a run and its counters.
func (s *Store) Insert(ctx context.Context, run *Run) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("runlog: could not start transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	id := run.ID.String()
	_, err = tx.NamedExecContext(ctx,
		`INSERT INTO runs (id, started_at, stopped_at, seed, input, output, deposits, events)
		 VALUES (:id, :started_at, :stopped_at, :seed, :input, :output, :deposits, :events)`,
		runRow{
			ID:       id,
			Start:    run.Start.Format(time.RFC3339Nano),
			Stop:     run.Stop.Format(time.RFC3339Nano),
			Seed:     int64(run.Seed),
			Input:    run.Input,
			Output:   run.Output,
			Deposits: run.Deposits,
			Events:   run.Events,
		},
	)
	if err != nil {
		return fmt.Errorf("runlog: could not insert run %s: %w", id, err)
	}

	for _, fam := range families {
		fc := run.Counters.Family(fam)
		_, err = tx.NamedExecContext(ctx,
			`INSERT INTO run_counters (
				run_id, family, simulated, observed, events, hits,
				miss_threshold, miss_strip, miss_open, miss_coincidence, miss_lock, miss_dead
			) VALUES (
				:run_id, :family, :simulated, :observed, :events, :hits,
				:miss_threshold, :miss_strip, :miss_open, :miss_coincidence, :miss_lock, :miss_dead
			)`,
			counterRow{
				RunID:     id,
				Family:    fam.String(),
				Simulated: fc.Simulated,
				Observed:  fc.Observed,
				Events:    fc.Events,
				Hits:      fc.Hits,
				Thr:       fc.MissThreshold,
				Strip:     fc.MissStripCoincidence,
				Open:      fc.MissOpenCoincidence,
				Coinc:     fc.MissCoincidence,
				Lock:      fc.MissLock,
				Dead:      fc.MissDeadTime,
			},
		)
		if err != nil {
			return fmt.Errorf("runlog: could not insert %v counters of run %s: %w", fam, id, err)
		}
	}

	for region, n := range run.Counters.Regions {
		_, err = tx.NamedExecContext(ctx,
			`INSERT INTO run_regions (run_id, region, events) VALUES (:run_id, :region, :events)`,
			regionRow{RunID: id, Region: region, Events: n},
		)
		if err != nil {
			return fmt.Errorf("runlog: could not insert region %d of run %s: %w", region, id, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("runlog: could not commit run %s: %w", id, err)
	}
	return nil
}

// Run retrieves the run with the provided id.
func (s *Store) Run(ctx context.Context, id xid.ID) (Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM runs WHERE id=?`, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("%w (id=%s)", ErrNotFound, id)
		}
		return Run{}, fmt.Errorf("runlog: could not query run %s: %w", id, err)
	}
	return s.load(ctx, row)
}

// Runs returns all the stored runs, ordered by start time.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	var rows []runRow
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM runs ORDER BY started_at, id`)
	if err != nil {
		return nil, fmt.Errorf("runlog: could not query runs: %w", err)
	}

	runs := make([]Run, len(rows))
	for i, row := range rows {
		runs[i], err = s.load(ctx, row)
		if err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *Store) load(ctx context.Context, row runRow) (Run, error) {
	id, err := xid.FromString(row.ID)
	if err != nil {
		return Run{}, fmt.Errorf("runlog: invalid run id %q: %w", row.ID, err)
	}

	run := Run{
		ID:       id,
		Seed:     uint64(row.Seed),
		Input:    row.Input,
		Output:   row.Output,
		Deposits: row.Deposits,
		Events:   row.Events,
		Counters: crtsim.Counters{Regions: make(map[uint32]uint32)},
	}

	run.Start, err = time.Parse(time.RFC3339Nano, row.Start)
	if err != nil {
		return run, fmt.Errorf("runlog: invalid start time for run %s: %w", id, err)
	}
	run.Stop, err = time.Parse(time.RFC3339Nano, row.Stop)
	if err != nil {
		return run, fmt.Errorf("runlog: invalid stop time for run %s: %w", id, err)
	}

	var cnts []counterRow
	err = s.db.SelectContext(ctx, &cnts, `SELECT * FROM run_counters WHERE run_id=?`, row.ID)
	if err != nil {
		return run, fmt.Errorf("runlog: could not query counters of run %s: %w", id, err)
	}
	for _, c := range cnts {
		var fc *crtsim.FamilyCounters
		for _, fam := range families {
			if fam.String() == c.Family {
				fc = run.Counters.Family(fam)
				break
			}
		}
		if fc == nil {
			return run, fmt.Errorf("runlog: invalid family %q for run %s", c.Family, id)
		}
		*fc = crtsim.FamilyCounters{
			Simulated:            c.Simulated,
			Observed:             c.Observed,
			Events:               c.Events,
			Hits:                 c.Hits,
			MissThreshold:        c.Thr,
			MissStripCoincidence: c.Strip,
			MissOpenCoincidence:  c.Open,
			MissCoincidence:      c.Coinc,
			MissLock:             c.Lock,
			MissDeadTime:         c.Dead,
		}
	}

	var regs []regionRow
	err = s.db.SelectContext(ctx, &regs, `SELECT * FROM run_regions WHERE run_id=?`, row.ID)
	if err != nil {
		return run, fmt.Errorf("runlog: could not query regions of run %s: %w", id, err)
	}
	for _, r := range regs {
		run.Counters.Regions[r.Region] = r.Events
	}

	return run, nil
}
