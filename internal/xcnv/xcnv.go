// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xcnv provides tools to convert CRT data to/from LCIO to/from raw
// FEB streams.
package xcnv // import "github.com/go-lpc/crt/internal/xcnv"

import (
	"fmt"

	"github.com/go-lpc/crt/crtsim"
	"github.com/go-lpc/crt/feb"
	"go-hep.org/x/hep/lcio"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// Deposits is the default name of the LCIO collection of CRT energy
	// deposits.
	Deposits = "CRTSimHits"
	// FEBData is the default name of the LCIO collection of FEB events.
	FEBData = "CRTData"

	// Detector is the detector name stored in LCIO run headers and events.
	Detector = "CRT"
)

// CellID packs a module id and a strip id into a LCIO cell id.
func CellID(module, strip uint32) int32 {
	return int32(module<<16 | strip&0xffff)
}

func cellIDs(id int32) (module, strip uint32) {
	v := uint32(id)
	return v >> 16, v & 0xffff
}

// SimHits converts energy deposits into LCIO simulated tracker hits.
// Deposits are stored at their centroid.
func SimHits(deps []crtsim.Deposit) *lcio.SimTrackerHitContainer {
	hits := &lcio.SimTrackerHitContainer{
		Hits: make([]lcio.SimTrackerHit, len(deps)),
	}
	for i, dep := range deps {
		pos := r3.Scale(0.5, r3.Add(dep.Entry, dep.Exit))
		hits.Hits[i] = lcio.SimTrackerHit{
			CellID0: CellID(dep.Module, dep.Strip),
			Pos:     [3]float64{pos.X, pos.Y, pos.Z},
			EDep:    float32(dep.Edep),
			Time:    float32(0.5 * (dep.EntryT + dep.ExitT)),
		}
	}
	return hits
}

// DepositsFrom extracts the energy deposits held in the named collection
// of a LCIO event.
func DepositsFrom(evt *lcio.Event, name string) ([]crtsim.Deposit, error) {
	hits, ok := evt.Get(name).(*lcio.SimTrackerHitContainer)
	if !ok {
		return nil, fmt.Errorf(
			"xcnv: no sim-tracker hits collection %q in event %d",
			name, evt.EventNumber,
		)
	}

	deps := make([]crtsim.Deposit, len(hits.Hits))
	for i, hit := range hits.Hits {
		var (
			mod, strip = cellIDs(hit.CellID0)
			pos        = r3.Vec{X: hit.Pos[0], Y: hit.Pos[1], Z: hit.Pos[2]}
			t          = float64(hit.Time)
		)
		deps[i] = crtsim.Deposit{
			Module: mod,
			Strip:  strip,
			Entry:  pos,
			Exit:   pos,
			EntryT: t,
			ExitT:  t,
			Edep:   float64(hit.EDep),
		}
	}
	return deps, nil
}

// number of int32 words of an event before its hits, and per hit.
const (
	evtWords = 7
	hitWords = 4
)

// GenericObject converts FEB events into a LCIO generic object, one
// element per FEB event.
func GenericObject(evts []feb.Event) *lcio.GenericObject {
	obj := &lcio.GenericObject{
		Data: make([]lcio.GenericObjectData, len(evts)),
	}
	for i, evt := range evts {
		i32s := make([]int32, 0, evtWords+hitWords*len(evt.Hits))
		i32s = append(i32s,
			int32(evt.Mac5), int32(evt.Index), int32(evt.Channel),
			int32(evt.LayerPair[0]), int32(evt.LayerPair[1]),
			int32(evt.MacPair[0]), int32(evt.MacPair[1]),
		)
		for _, hit := range evt.Hits {
			i32s = append(i32s,
				int32(hit.Channel), int32(hit.T0), int32(hit.PPS), int32(hit.ADC),
			)
		}
		obj.Data[i] = lcio.GenericObjectData{
			I32s: i32s,
			F64s: []float64{evt.TTrig},
		}
	}
	return obj
}

// FEBEvents converts a LCIO generic object back into FEB events.
func FEBEvents(obj *lcio.GenericObject) ([]feb.Event, error) {
	evts := make([]feb.Event, len(obj.Data))
	for i, data := range obj.Data {
		var (
			i32s = data.I32s
			n    = len(i32s) - evtWords
		)
		if n < 0 || n%hitWords != 0 || len(data.F64s) != 1 {
			return nil, fmt.Errorf(
				"xcnv: invalid FEB event %d (i32s=%d, f64s=%d)",
				i, len(i32s), len(data.F64s),
			)
		}

		evt := feb.Event{
			Mac5:      uint32(i32s[0]),
			Index:     uint32(i32s[1]),
			TTrig:     data.F64s[0],
			Channel:   uint32(i32s[2]),
			LayerPair: [2]uint32{uint32(i32s[3]), uint32(i32s[4])},
			MacPair:   [2]uint32{uint32(i32s[5]), uint32(i32s[6])},
			Hits:      make([]feb.Hit, n/hitWords),
		}
		for j := range evt.Hits {
			raw := i32s[evtWords+j*hitWords:]
			evt.Hits[j] = feb.Hit{
				Channel: uint32(raw[0]),
				T0:      uint32(raw[1]),
				PPS:     uint32(raw[2]),
				ADC:     int16(raw[3]),
			}
		}
		evts[i] = evt
	}
	return evts, nil
}
