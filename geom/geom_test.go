// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package geom

import (
	"errors"
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestFamilyFrom(t *testing.T) {
	for _, tc := range []struct {
		volume string
		want   Family
		err    error
	}{
		{"volAuxDet_CERN_module_012_Top", CERN, nil},
		{"volAuxDet_DC_module_003_Bottom", DoubleChooz, nil},
		{"volAuxDet_MINOS_module_120_Left", MINOS, nil},
		{"volAuxDet_PMT_module_001_Top", Unknown, ErrClassification},
	} {
		t.Run(tc.volume, func(t *testing.T) {
			got, err := FamilyFrom(tc.volume)
			if !errors.Is(err, tc.err) {
				t.Fatalf("invalid error: got=%v, want=%v", err, tc.err)
			}
			if got != tc.want {
				t.Fatalf("invalid family: got=%v, want=%v", got, tc.want)
			}
		})
	}
}

func TestRegion(t *testing.T) {
	for _, tc := range []struct {
		volume string
		want   Region
		num    uint32
	}{
		{"volAuxDet_CERN_module_012_Top", Top, 38},
		{"volAuxDet_MINOS_module_120_Left", Left, 50},
		{"volAuxDet_MINOS_module_121_Right", Right, 54},
		{"volAuxDet_MINOS_module_131_Front", Front, 44},
		{"volAuxDet_MINOS_module_141_Back", Back, 42},
		{"volAuxDet_DC_module_003_Bottom", Bottom, 58},
		{"volAuxDet_CERN_module_013_SlopeLeft", SlopeLeft, 52},
		{"volAuxDet_CERN_module_013_SlopeRight", SlopeRight, 56},
		{"volAuxDet_CERN_module_013_SlopeFront", SlopeFront, 48},
		{"volAuxDet_CERN_module_013_SlopeBack", SlopeBack, 46},
	} {
		t.Run(tc.want.String(), func(t *testing.T) {
			got, err := RegionFrom(tc.volume)
			if err != nil {
				t.Fatalf("could not parse region: %+v", err)
			}
			if got != tc.want {
				t.Fatalf("invalid region: got=%v, want=%v", got, tc.want)
			}
			if got, want := got.Num(), tc.num; got != want {
				t.Fatalf("invalid region number: got=%d, want=%d", got, want)
			}
		})
	}

	_, err := RegionFrom("volAuxDet_CERN_module_013_Roof")
	if err == nil {
		t.Fatalf("expected an error")
	}
	if got, want := RegionUnknown.Num(), uint32(math.MaxUint32); got != want {
		t.Fatalf("invalid unknown region number: got=%d, want=%d", got, want)
	}
}

func TestPlacement(t *testing.T) {
	p := Placement{
		Pos:   r3.Vec{X: 1, Y: 2, Z: 3},
		Angle: math.Pi / 2,
		Axis:  r3.Vec{Y: 1},
	}
	v := r3.Vec{X: 1}
	m := p.ToMother(v)
	want := r3.Vec{X: 1, Y: 2, Z: 2}
	if !near(m, want) {
		t.Fatalf("invalid mother position: got=%v, want=%v", m, want)
	}
	if got := p.ToLocal(m); !near(got, v) {
		t.Fatalf("invalid round trip: got=%v, want=%v", got, v)
	}
}

func near(a, b r3.Vec) bool {
	return r3.Norm(r3.Sub(a, b)) < 1e-9
}

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	strips := func(ys ...float64) []Placement {
		o := make([]Placement, len(ys))
		for i, y := range ys {
			o[i] = Placement{Pos: r3.Vec{Y: y}}
		}
		return o
	}
	det, err := New([]Module{
		{
			ID: 1, Volume: "volAuxDet_CERN_module_001_Top",
			Placement: Placement{Pos: r3.Vec{X: 10, Y: 600, Z: -20}},
			HalfWidth: 5.75, HalfHeight: 0.75, HalfLength: 92,
			Strips: strips(-0.75, -0.75, 0.75),
		},
		{
			ID: 2, Volume: "volAuxDet_DC_module_002_Bottom",
			HalfWidth: 5, HalfHeight: 0.5, HalfLength: 160,
			Strips: strips(-1, 1),
		},
		{
			ID: 3, Volume: "volAuxDet_MINOS_module_003_Left",
			RegionPos: r3.Vec{X: 0, Z: -300},
			Strips:    strips(0, 0),
		},
		{
			ID: 4, Volume: "volAuxDet_MINOS_module_004_Left",
			RegionPos: r3.Vec{X: 40, Z: 0},
			Strips:    strips(0, 0),
		},
		{
			ID: 5, Volume: "volAuxDet_MINOS_module_005_Right",
			RegionPos: r3.Vec{X: -40, Z: 300},
			Strips:    strips(0, 0),
		},
		{
			ID: 6, Volume: "volAuxDet_MINOS_module_006_Front",
			RegionPos: r3.Vec{Z: 5},
			Strips:    strips(0, 0),
		},
		{
			ID: 7, Volume: "volAuxDet_MINOS_module_007_Top",
			Strips: strips(0, 0),
		},
		{
			ID: 8, Volume: "volAuxDet_XYZ_module_008_Top",
			Strips: strips(0),
		},
	})
	if err != nil {
		t.Fatalf("could not create detector: %+v", err)
	}
	return det
}

func TestDetector(t *testing.T) {
	det := newTestDetector(t)

	if got, want := len(det.Modules()), 8; got != want {
		t.Fatalf("invalid number of modules: got=%d, want=%d", got, want)
	}

	cls, err := det.Classify(1)
	if err != nil {
		t.Fatalf("could not classify module: %+v", err)
	}
	if cls.Family != CERN || cls.Region != Top || cls.NumStrips != 3 || cls.HalfLength != 92 {
		t.Fatalf("invalid classification: %+v", cls)
	}

	_, err = det.Classify(8)
	if !errors.Is(err, ErrClassification) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrClassification)
	}

	_, err = det.Classify(42)
	if !errors.Is(err, ErrUnknownModule) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrUnknownModule)
	}

	_, err = det.StripLocal(1, 3)
	if !errors.Is(err, ErrStripOutOfRange) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrStripOutOfRange)
	}

	p, err := det.WorldToStrip(1, 2, r3.Vec{X: 11, Y: 600.75, Z: -10})
	if err != nil {
		t.Fatalf("could not transform to strip frame: %+v", err)
	}
	if want := (r3.Vec{X: 1, Z: 10}); !near(p, want) {
		t.Fatalf("invalid strip position: got=%v, want=%v", p, want)
	}

	_, err = New([]Module{{ID: 1}, {ID: 1}})
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected a duplicate module error, got=%v", err)
	}
}

func TestLocate(t *testing.T) {
	det := newTestDetector(t)
	for _, tc := range []struct {
		name  string
		mod   uint32
		strip uint32
		want  Location
		err   error
	}{
		{"cern-bottom-layer", 1, 1, Location{StackUnset, 0}, nil},
		{"cern-top-layer", 1, 2, Location{StackUnset, 1}, nil},
		{"dc-top-layer", 2, 1, Location{StackUnset, 1}, nil},
		{"minos-stack0-inner", 3, 1, Location{0, 1}, nil},
		{"minos-stack1-outer", 4, 1, Location{1, 1}, nil},
		{"minos-stack2-outer", 5, 1, Location{2, 0}, nil},
		{"minos-front", 6, 1, Location{StackUnset, 1}, nil},
		{"minos-top", 7, 1, Location{StackUnset, LayerUnset}, ErrInvalidLayer},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := det.Locate(tc.mod, tc.strip)
			if !errors.Is(err, tc.err) {
				t.Fatalf("invalid error: got=%v, want=%v", err, tc.err)
			}
			if got != tc.want {
				t.Fatalf("invalid location: got=%+v, want=%+v", got, tc.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	const desc = `
[[module]]
id     = 12
volume = "volAuxDet_CERN_module_012_Top"
region-pos = [0.0, 0.0, 100.0]
strip-half-width  = 5.75
strip-half-height = 0.75
strip-half-length = 92.0
placement = { pos = [0.0, 600.0, 100.0] }
  [[module.strip]]
  pos = [0.0, -0.75, 0.0]
  [[module.strip]]
  pos   = [0.0, 0.75, 0.0]
  angle = 90.0
  axis  = [0.0, 1.0, 0.0]

[[module]]
id     = 40
volume = "volAuxDet_MINOS_module_040_Right"
region-pos = [30.0, 0.0, 0.0]
  [[module.strip]]
  [[module.strip]]
`
	det, err := Decode(strings.NewReader(desc))
	if err != nil {
		t.Fatalf("could not decode geometry: %+v", err)
	}

	mod, err := det.Module(12)
	if err != nil {
		t.Fatalf("could not get module: %+v", err)
	}
	if got, want := len(mod.Strips), 2; got != want {
		t.Fatalf("invalid number of strips: got=%d, want=%d", got, want)
	}
	if got, want := mod.Strips[1].Angle, math.Pi/2; math.Abs(got-want) > 1e-12 {
		t.Fatalf("invalid strip angle: got=%v, want=%v", got, want)
	}

	// strip 1 is rotated by 90deg around y: its local z runs along world x.
	p, err := det.WorldToStrip(12, 1, r3.Vec{X: 10, Y: 600.75, Z: 100})
	if err != nil {
		t.Fatalf("could not transform to strip frame: %+v", err)
	}
	if want := (r3.Vec{Z: 10}); !near(p, want) {
		t.Fatalf("invalid strip position: got=%v, want=%v", p, want)
	}

	loc, err := det.Locate(40, 1)
	if err != nil {
		t.Fatalf("could not locate strip: %+v", err)
	}
	if got, want := loc, (Location{Stack: 1, Layer: 1}); got != want {
		t.Fatalf("invalid location: got=%+v, want=%+v", got, want)
	}

	_, err = Decode(strings.NewReader("[[module]]\nid = \"x\""))
	if err == nil {
		t.Fatalf("expected a decoding error")
	}
}
