// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/go-lpc/crt/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

type fakeDB struct {
	dets   map[string][]geom.Module
	params map[string]map[string]float64
}

func (db *fakeDB) Detectors(ctx context.Context) ([]string, error) {
	return []string{"CRT"}, nil
}

func (db *fakeDB) Geometry(ctx context.Context, detector string) (*geom.Detector, error) {
	mods, ok := db.dets[detector]
	if !ok {
		return nil, fmt.Errorf("no module for detector %q", detector)
	}
	return geom.New(mods)
}

func (db *fakeDB) DetSimTags(ctx context.Context) ([]string, error) {
	return []string{"nominal", "noisy"}, nil
}

func (db *fakeDB) DetSimParams(ctx context.Context, tag string) (map[string]float64, error) {
	ps, ok := db.params[tag]
	if !ok {
		return nil, fmt.Errorf("no detsim parameters with tag %q", tag)
	}
	return ps, nil
}

func TestQuery(t *testing.T) {
	strips := func(n int) []geom.Placement {
		o := make([]geom.Placement, n)
		for i := range o {
			o[i] = geom.Placement{Pos: r3.Vec{X: float64(i)}}
		}
		return o
	}
	db := &fakeDB{
		dets: map[string][]geom.Module{
			"CRT": {
				{ID: 1, Volume: "volAuxDet_CERN_module_001_Top", Strips: strips(3)},
				{ID: 30, Volume: "volAuxDet_MINOS_module_030_Left", Strips: strips(20)},
				{ID: 31, Volume: "volAuxDet_MINOS_module_031_Left", Strips: strips(20)},
			},
		},
		params: map[string]map[string]float64{
			"nominal": {"QThresholdC": 530, "BiasTime": 0.05},
			"noisy":   {"QRMS": 30},
		},
	}

	for _, tc := range []struct {
		name string
		det  string
		tag  string
		want string
		err  string
	}{
		{
			name: "all",
			want: `detector "CRT": 3 modules
  cern   Top        modules=  1 strips=   3
  minos  Left       modules=  2 strips=  40
detsim "nominal": 2 parameters
  BiasTime                 = 0.05
  QThresholdC              = 530
detsim "noisy": 1 parameters
  QRMS                     = 30
`,
		},
		{
			name: "one-tag",
			det:  "CRT",
			tag:  "noisy",
			want: `detector "CRT": 3 modules
  cern   Top        modules=  1 strips=   3
  minos  Left       modules=  2 strips=  40
detsim "noisy": 1 parameters
  QRMS                     = 30
`,
		},
		{
			name: "no-detector",
			det:  "XYZ",
			err:  `could not get geometry of "XYZ"`,
		},
		{
			name: "no-tag",
			det:  "CRT",
			tag:  "cosmics",
			err:  `could not get detsim parameters "cosmics"`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out := new(strings.Builder)
			err := doQuery(out, db, tc.det, tc.tag)
			switch {
			case tc.err != "":
				if err == nil || !strings.Contains(err.Error(), tc.err) {
					t.Fatalf("invalid error:\ngot= %v\nwant=%v", err, tc.err)
				}
			case err != nil:
				t.Fatalf("could not run query: %+v", err)
			default:
				if got, want := out.String(), tc.want; got != want {
					t.Fatalf("invalid output:\ngot:\n%s\nwant:\n%s", got, want)
				}
			}
		})
	}
}
