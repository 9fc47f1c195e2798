// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conddb holds types to access the condition and configuration
// database of the CRT: module geometry and simulation parameter sets.
package conddb // import "github.com/go-lpc/crt/conddb"

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-lpc/crt/geom"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	host    = "localhost"
	timeout = 5 * time.Second
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

// DB exposes convenience methods to easily retrieve conditions data
// and configuration data from the CRT database.
type DB struct {
	db   *sqlx.DB
	name string // name of the CRT database
}

// Open opens a connection to the CRT database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sqlx.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("conddb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sqlx.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Name returns the name of the database.
func (db *DB) Name() string { return db.name }

// Detectors returns the names of the detectors described in the database.
func (db *DB) Detectors(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dets []string
	err := db.db.SelectContext(
		ctx, &dets,
		"SELECT DISTINCT detector FROM crt_modules ORDER BY detector",
	)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not query detectors: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("conddb: context error while retrieving detectors: %w", err)
	}

	return dets, nil
}

// stripRow is a row of the modules/strips join.
// Angles are stored in degrees.
type stripRow struct {
	ModuleID   uint32  `db:"module_id"`
	Volume     string  `db:"volume"`
	PosX       float64 `db:"pos_x"`
	PosY       float64 `db:"pos_y"`
	PosZ       float64 `db:"pos_z"`
	Angle      float64 `db:"angle"`
	AxisX      float64 `db:"axis_x"`
	AxisY      float64 `db:"axis_y"`
	AxisZ      float64 `db:"axis_z"`
	RegionX    float64 `db:"region_x"`
	RegionY    float64 `db:"region_y"`
	RegionZ    float64 `db:"region_z"`
	HalfWidth  float64 `db:"half_width"`
	HalfHeight float64 `db:"half_height"`
	HalfLength float64 `db:"half_length"`
	StripID    uint32  `db:"strip_id"`
	StripX     float64 `db:"strip_x"`
	StripY     float64 `db:"strip_y"`
	StripZ     float64 `db:"strip_z"`
	StripAngle float64 `db:"strip_angle"`
	StripAxisX float64 `db:"strip_axis_x"`
	StripAxisY float64 `db:"strip_axis_y"`
	StripAxisZ float64 `db:"strip_axis_z"`
}

const geometryQuery = `
SELECT
	m.identifier AS module_id, m.volume,
	m.pos_x, m.pos_y, m.pos_z, m.angle, m.axis_x, m.axis_y, m.axis_z,
	m.region_x, m.region_y, m.region_z,
	m.half_width, m.half_height, m.half_length,
	s.strip AS strip_id,
	s.pos_x AS strip_x, s.pos_y AS strip_y, s.pos_z AS strip_z,
	s.angle AS strip_angle,
	s.axis_x AS strip_axis_x, s.axis_y AS strip_axis_y, s.axis_z AS strip_axis_z
FROM crt_modules m
JOIN crt_strips s ON s.module=m.identifier
WHERE m.detector=?
ORDER BY m.identifier, s.strip
`

// Geometry returns the CRT geometry of the named detector.
func (db *DB) Geometry(ctx context.Context, detector string) (*geom.Detector, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var rows []stripRow
	err := db.db.SelectContext(ctx, &rows, geometryQuery, detector)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not query geometry of %q: %w", detector, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("conddb: context error while retrieving geometry: %w", err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("conddb: no module for detector %q", detector)
	}

	var mods []geom.Module
	for _, row := range rows {
		if len(mods) == 0 || mods[len(mods)-1].ID != row.ModuleID {
			mods = append(mods, geom.Module{
				ID:     row.ModuleID,
				Volume: row.Volume,
				Placement: placement(
					row.PosX, row.PosY, row.PosZ,
					row.Angle, row.AxisX, row.AxisY, row.AxisZ,
				),
				RegionPos:  r3.Vec{X: row.RegionX, Y: row.RegionY, Z: row.RegionZ},
				HalfWidth:  row.HalfWidth,
				HalfHeight: row.HalfHeight,
				HalfLength: row.HalfLength,
			})
		}
		mod := &mods[len(mods)-1]
		if int(row.StripID) != len(mod.Strips) {
			return nil, fmt.Errorf(
				"conddb: module %d: invalid strip id (got=%d, want=%d)",
				mod.ID, row.StripID, len(mod.Strips),
			)
		}
		mod.Strips = append(mod.Strips, placement(
			row.StripX, row.StripY, row.StripZ,
			row.StripAngle, row.StripAxisX, row.StripAxisY, row.StripAxisZ,
		))
	}

	det, err := geom.New(mods)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not build geometry of %q: %w", detector, err)
	}
	return det, nil
}

func placement(x, y, z, angle, ax, ay, az float64) geom.Placement {
	return geom.Placement{
		Pos:   r3.Vec{X: x, Y: y, Z: z},
		Angle: angle * math.Pi / 180,
		Axis:  r3.Vec{X: ax, Y: ay, Z: az},
	}
}

// DetSimParams returns the named simulation parameters of a parameter set.
func (db *DB) DetSimParams(ctx context.Context, tag string) (map[string]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var rows []struct {
		Name  string  `db:"name"`
		Value float64 `db:"value"`
	}
	err := db.db.SelectContext(
		ctx, &rows,
		"SELECT name, value FROM crt_detsim_params WHERE tag=? ORDER BY name",
		tag,
	)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not query detsim parameters %q: %w", tag, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("conddb: context error while retrieving detsim parameters: %w", err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("conddb: no detsim parameters with tag %q", tag)
	}

	params := make(map[string]float64, len(rows))
	for _, row := range rows {
		if _, dup := params[row.Name]; dup {
			return nil, fmt.Errorf("conddb: duplicate detsim parameter %q (tag=%q)", row.Name, tag)
		}
		params[row.Name] = row.Value
	}
	return params, nil
}

// DetSimTags returns the tags of the simulation parameter sets.
func (db *DB) DetSimTags(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var tags []string
	err := db.db.SelectContext(
		ctx, &tags,
		"SELECT DISTINCT tag FROM crt_detsim_params ORDER BY tag",
	)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not query detsim tags: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("conddb: context error while retrieving detsim tags: %w", err)
	}

	return tags, nil
}
