// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package geom

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Placement positions a volume inside its mother volume: the local frame
// is rotated by Angle (radians) around Axis, then translated by Pos.
type Placement struct {
	Pos   r3.Vec
	Angle float64
	Axis  r3.Vec
}

// ToMother transforms a point from the local frame to the mother frame.
func (p Placement) ToMother(v r3.Vec) r3.Vec {
	if p.Angle != 0 {
		v = r3.Rotate(v, p.Angle, p.Axis)
	}
	return r3.Add(v, p.Pos)
}

// ToLocal transforms a point from the mother frame to the local frame.
func (p Placement) ToLocal(v r3.Vec) r3.Vec {
	v = r3.Sub(v, p.Pos)
	if p.Angle != 0 {
		v = r3.Rotate(v, -p.Angle, p.Axis)
	}
	return v
}
