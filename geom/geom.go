// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package geom describes the geometry of the CRT modules and strips, as
// needed by the front-end simulation.
//
// Geometry is read-only once built and may be shared between goroutines.
package geom // import "github.com/go-lpc/crt/geom"

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrClassification  = errors.New("geom: unknown CRT module family")
	ErrUnknownModule   = errors.New("geom: unknown CRT module")
	ErrStripOutOfRange = errors.New("geom: strip id out of range")
	ErrInvalidLayer    = errors.New("geom: could not determine layer")
)

// Family is a family of CRT modules.
type Family uint8

const (
	Unknown     Family = iota
	CERN               // CERN-top modules, two fibers per strip
	DoubleChooz        // Double-Chooz side modules
	MINOS              // MINOS side modules, possibly read out at both ends
)

func (f Family) String() string {
	switch f {
	case CERN:
		return "cern"
	case DoubleChooz:
		return "dchooz"
	case MINOS:
		return "minos"
	}
	return fmt.Sprintf("Family(%d)", uint8(f))
}

// FamilyFrom classifies a module from its volume name.
func FamilyFrom(volume string) (Family, error) {
	switch {
	case strings.Contains(volume, "MINOS"):
		return MINOS, nil
	case strings.Contains(volume, "CERN"):
		return CERN, nil
	case strings.Contains(volume, "DC"):
		return DoubleChooz, nil
	}
	return Unknown, fmt.Errorf("%w (volume=%q)", ErrClassification, volume)
}

// Region is a CRT region (a wall of the tagger).
type Region uint8

const (
	RegionUnknown Region = iota
	Top
	SlopeLeft
	SlopeRight
	SlopeFront
	SlopeBack
	Left
	Right
	Front
	Back
	Bottom
)

var regions = [...]struct {
	name string
	num  uint32
}{
	RegionUnknown: {"Unknown", math.MaxUint32},
	Top:           {"Top", 38},
	SlopeLeft:     {"SlopeLeft", 52},
	SlopeRight:    {"SlopeRight", 56},
	SlopeFront:    {"SlopeFront", 48},
	SlopeBack:     {"SlopeBack", 46},
	Left:          {"Left", 50},
	Right:         {"Right", 54},
	Front:         {"Front", 44},
	Back:          {"Back", 42},
	Bottom:        {"Bottom", 58},
}

func (r Region) String() string {
	if int(r) >= len(regions) {
		return fmt.Sprintf("Region(%d)", uint8(r))
	}
	return regions[r].name
}

// Num returns the region number used to tally FEB events.
// Unknown regions are numbered math.MaxUint32.
func (r Region) Num() uint32 {
	if int(r) >= len(regions) {
		return math.MaxUint32
	}
	return regions[r].num
}

// ParseRegion returns the region named s.
func ParseRegion(s string) (Region, error) {
	for i, v := range regions {
		if i == int(RegionUnknown) {
			continue
		}
		if v.name == s {
			return Region(i), nil
		}
	}
	return RegionUnknown, fmt.Errorf("geom: unknown region %q", s)
}

// RegionFrom extracts the region from a module volume name of the form
// "volAuxDet_<FAMILY>_module_###_<Region>".
func RegionFrom(volume string) (Region, error) {
	i := strings.LastIndex(volume, "_")
	if i < 0 {
		return RegionUnknown, fmt.Errorf("geom: no region in volume %q", volume)
	}
	return ParseRegion(volume[i+1:])
}

const (
	// StackUnset marks modules outside of a MINOS side stack.
	StackUnset = math.MaxUint32
	// LayerUnset marks a strip whose layer could not be determined.
	LayerUnset = math.MaxUint32
)

// minosHalfPitch is half the transverse size of a MINOS module, minus
// 1cm of tolerance. It must follow the MINOS modules placement.
const minosHalfPitch = 49.482/2 - 1

// Location locates a strip inside the tagger hierarchy.
type Location struct {
	Stack uint32 // MINOS side stack (0,1,2) or StackUnset
	Layer uint32 // 0, 1 or LayerUnset
}

// Class holds the classification of a module.
type Class struct {
	Family     Family
	Region     Region
	NumStrips  int
	HalfWidth  float64 // strip half width (local x)
	HalfHeight float64 // strip half height (local y)
	HalfLength float64 // strip half length (local z)
}
