// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package geom

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/BurntSushi/toml"
	"gonum.org/v1/gonum/spatial/r3"
)

// Decode reads a TOML geometry description from r.
//
// Example:
//
//	[[module]]
//	id     = 12
//	volume = "volAuxDet_CERN_module_012_Top"
//	region-pos = [0.0, 0.0, 100.0]
//	strip-half-width  = 5.75
//	strip-half-height = 0.75
//	strip-half-length = 92.0
//	placement = { pos = [0.0, 600.0, 100.0] }
//	  [[module.strip]]
//	  pos = [0.0, -0.75, 0.0]
//	  [[module.strip]]
//	  pos   = [0.0, 0.75, 0.0]
//	  angle = 90.0          # degrees
//	  axis  = [0.0, 1.0, 0.0]
func Decode(r io.Reader) (*Detector, error) {
	var desc struct {
		Modules []moduleDesc `toml:"module"`
	}
	_, err := toml.NewDecoder(r).Decode(&desc)
	if err != nil {
		return nil, fmt.Errorf("geom: could not decode geometry: %w", err)
	}

	mods := make([]Module, len(desc.Modules))
	for i, m := range desc.Modules {
		mods[i] = m.module()
	}
	return New(mods)
}

// ReadFile reads a TOML geometry description from the named file.
func ReadFile(fname string) (*Detector, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("geom: could not open geometry file: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

type placementDesc struct {
	Pos   [3]float64 `toml:"pos"`
	Angle float64    `toml:"angle"` // in degrees
	Axis  [3]float64 `toml:"axis"`
}

func (p placementDesc) placement() Placement {
	return Placement{
		Pos:   vec(p.Pos),
		Angle: p.Angle * math.Pi / 180,
		Axis:  vec(p.Axis),
	}
}

type moduleDesc struct {
	ID         uint32          `toml:"id"`
	Volume     string          `toml:"volume"`
	Placement  placementDesc   `toml:"placement"`
	RegionPos  [3]float64      `toml:"region-pos"`
	HalfWidth  float64         `toml:"strip-half-width"`
	HalfHeight float64         `toml:"strip-half-height"`
	HalfLength float64         `toml:"strip-half-length"`
	Strips     []placementDesc `toml:"strip"`
}

func (m moduleDesc) module() Module {
	mod := Module{
		ID:         m.ID,
		Volume:     m.Volume,
		Placement:  m.Placement.placement(),
		RegionPos:  vec(m.RegionPos),
		HalfWidth:  m.HalfWidth,
		HalfHeight: m.HalfHeight,
		HalfLength: m.HalfLength,
		Strips:     make([]Placement, len(m.Strips)),
	}
	for i, s := range m.Strips {
		mod.Strips[i] = s.placement()
	}
	return mod
}

func vec(v [3]float64) r3.Vec {
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
}
