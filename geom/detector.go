// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package geom

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// Module describes a CRT module and its strips.
type Module struct {
	ID        uint32
	Volume    string    // volume name, e.g. "volAuxDet_CERN_module_012_Top"
	Placement Placement // module in the world frame
	RegionPos r3.Vec    // module center in its region frame

	// strip half extents, in the strip frame.
	HalfWidth  float64
	HalfHeight float64
	HalfLength float64

	// Strips are the strip placements in the module frame, indexed by
	// strip id.
	Strips []Placement
}

type module struct {
	Module
	family Family
	region Region
	err    error // classification error, if any
}

// Detector is a read-only collection of CRT modules.
type Detector struct {
	mods map[uint32]*module
	ids  []uint32
}

// New builds a detector from a list of modules.
// Modules whose family can not be classified are kept, queries on them
// fail with ErrClassification.
func New(mods []Module) (*Detector, error) {
	det := &Detector{
		mods: make(map[uint32]*module, len(mods)),
		ids:  make([]uint32, 0, len(mods)),
	}
	for _, m := range mods {
		if _, dup := det.mods[m.ID]; dup {
			return nil, fmt.Errorf("geom: duplicate module id=%d", m.ID)
		}
		mod := &module{Module: m}
		mod.family, mod.err = FamilyFrom(m.Volume)
		if mod.err == nil {
			mod.region, mod.err = RegionFrom(m.Volume)
			if mod.err != nil {
				mod.err = fmt.Errorf("%w: %v", ErrClassification, mod.err)
			}
		}
		det.mods[m.ID] = mod
		det.ids = append(det.ids, m.ID)
	}
	sort.Slice(det.ids, func(i, j int) bool { return det.ids[i] < det.ids[j] })
	return det, nil
}

// Modules returns the ids of all modules, in ascending order.
func (det *Detector) Modules() []uint32 {
	return append([]uint32(nil), det.ids...)
}

// Module returns the description of module id.
func (det *Detector) Module(id uint32) (Module, error) {
	mod, ok := det.mods[id]
	if !ok {
		return Module{}, fmt.Errorf("%w (id=%d)", ErrUnknownModule, id)
	}
	return mod.Module, nil
}

func (det *Detector) module(id uint32) (*module, error) {
	mod, ok := det.mods[id]
	if !ok {
		return nil, fmt.Errorf("%w (id=%d)", ErrUnknownModule, id)
	}
	if mod.err != nil {
		return nil, fmt.Errorf("module id=%d: %w", id, mod.err)
	}
	return mod, nil
}

func (det *Detector) strip(id, strip uint32) (*module, Placement, error) {
	mod, err := det.module(id)
	if err != nil {
		return nil, Placement{}, err
	}
	if int64(strip) >= int64(len(mod.Strips)) {
		return nil, Placement{}, fmt.Errorf(
			"%w (module=%d, strip=%d, nstrips=%d)",
			ErrStripOutOfRange, id, strip, len(mod.Strips),
		)
	}
	return mod, mod.Strips[strip], nil
}

// Classify returns the family, region and strip dimensions of a module.
func (det *Detector) Classify(id uint32) (Class, error) {
	mod, err := det.module(id)
	if err != nil {
		return Class{}, err
	}
	return Class{
		Family:     mod.family,
		Region:     mod.region,
		NumStrips:  len(mod.Strips),
		HalfWidth:  mod.HalfWidth,
		HalfHeight: mod.HalfHeight,
		HalfLength: mod.HalfLength,
	}, nil
}

// StripLocal returns the position of the strip center in the module frame.
func (det *Detector) StripLocal(id, strip uint32) (r3.Vec, error) {
	_, p, err := det.strip(id, strip)
	if err != nil {
		return r3.Vec{}, err
	}
	return p.Pos, nil
}

// ModuleInRegion returns the position of the module center in its region frame.
func (det *Detector) ModuleInRegion(id uint32) (r3.Vec, error) {
	mod, err := det.module(id)
	if err != nil {
		return r3.Vec{}, err
	}
	return mod.RegionPos, nil
}

// WorldToStrip transforms a world point into the frame of a strip.
func (det *Detector) WorldToStrip(id, strip uint32, p r3.Vec) (r3.Vec, error) {
	mod, sp, err := det.strip(id, strip)
	if err != nil {
		return r3.Vec{}, err
	}
	return sp.ToLocal(mod.Placement.ToLocal(p)), nil
}

// Locate returns the stack and layer of a strip.
//
// CERN and Double-Chooz strips sit in layer 1 when above the module
// mid-plane. MINOS side modules are grouped in three stacks along z, the
// layer being given by the transverse position of the module in the stack.
// MINOS front/back modules are layered along z.
func (det *Detector) Locate(id, strip uint32) (Location, error) {
	mod, sp, err := det.strip(id, strip)
	if err != nil {
		return Location{Stack: StackUnset, Layer: LayerUnset}, err
	}

	loc := Location{Stack: StackUnset, Layer: LayerUnset}
	switch mod.family {
	case CERN, DoubleChooz:
		loc.Layer = b2u(sp.Pos.Y > 0)
	case MINOS:
		pos := mod.RegionPos
		switch mod.region {
		case Left, Right:
			switch {
			case pos.Z < 0:
				loc.Stack = 0
			case pos.Z == 0:
				loc.Stack = 1
			default:
				loc.Stack = 2
			}
			x := math.Abs(pos.X)
			if loc.Stack == 1 {
				loc.Layer = b2u(x > minosHalfPitch)
			} else {
				loc.Layer = b2u(x < minosHalfPitch)
			}
		case Front, Back:
			loc.Layer = b2u(pos.Z > 0)
		}
	}

	if loc.Layer == LayerUnset {
		return loc, fmt.Errorf(
			"%w (module=%d, strip=%d, family=%v, region=%v)",
			ErrInvalidLayer, id, strip, mod.family, mod.region,
		)
	}
	return loc, nil
}

func b2u(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
