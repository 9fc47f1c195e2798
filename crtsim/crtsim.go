// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package crtsim simulates the front-end electronics of the Cosmic Ray
// Tagger.
//
// Energy deposits in scintillator strips are turned into photo-electron
// counts, discriminator trigger times and ADC charges. Observations are
// grouped per front-end board (FEB) and replayed in time through the FEB
// trigger logic (layer and partner coincidence, track-and-hold, dead time)
// to produce FEB events.
package crtsim // import "github.com/go-lpc/crt/crtsim"

import (
	"bytes"
	"fmt"
	"log"
	"os"

	"github.com/go-lpc/crt/clock"
	"github.com/go-lpc/crt/feb"
	"github.com/go-lpc/crt/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// Geometry describes the CRT modules and strips.
type Geometry interface {
	Classify(mod uint32) (geom.Class, error)
	StripLocal(mod, strip uint32) (r3.Vec, error)
	ModuleInRegion(mod uint32) (r3.Vec, error)
	WorldToStrip(mod, strip uint32, p r3.Vec) (r3.Vec, error)
	Locate(mod, strip uint32) (geom.Location, error)
}

// Clock converts times into FEB clock ticks.
// Time must be safe for concurrent use.
type Clock interface {
	Frequency() float64 // MHz
	SetTime(us float64)
	Ticks() uint32
	Time(ticks uint32) float64 // µs
}

// Deposit is an energy deposit in a CRT strip.
// Positions are in cm, times in ns and energies in GeV.
type Deposit struct {
	Module uint32
	Strip  uint32

	Entry, Exit   r3.Vec
	EntryT, ExitT float64
	Edep          float64

	TrackID int32
}

// Simulator simulates the response of the CRT front-end electronics.
type Simulator struct {
	msg *log.Logger
	cfg Config
	geo Geometry
	clk Clock
	rnd *stream

	diag   *Diagnostics
	warned map[uint32]struct{} // unclassifiable modules already reported
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithLogger sets the logger used by the simulator.
func WithLogger(msg *log.Logger) Option {
	return func(sim *Simulator) {
		sim.msg = msg
	}
}

// WithClock sets the clock used to digitize times.
func WithClock(clk Clock) Option {
	return func(sim *Simulator) {
		sim.clk = clk
	}
}

// WithWorkers sets the number of FEBs replayed concurrently.
func WithWorkers(n int) Option {
	return func(sim *Simulator) {
		sim.cfg.Workers = n
	}
}

// New creates a new CRT front-end simulator.
func New(geo Geometry, cfg Config, opts ...Option) (*Simulator, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	sim := &Simulator{
		msg:    log.New(os.Stdout, "crtsim: ", 0),
		cfg:    cfg,
		geo:    geo,
		rnd:    newStream(cfg.Seed),
		diag:   newDiagnostics(),
		warned: make(map[uint32]struct{}),
	}
	for _, opt := range opts {
		opt(sim)
	}

	if sim.cfg.Workers < 0 {
		return nil, fmt.Errorf("crtsim: invalid number of workers (%d)", sim.cfg.Workers)
	}
	if sim.clk == nil {
		sim.clk = clock.New(sim.cfg.ClockFrequency)
	}
	if f := sim.clk.Frequency(); f <= 0 || f > MaxClockFrequency {
		return nil, fmt.Errorf("crtsim: invalid clock frequency %v MHz", sim.clk.Frequency())
	}

	return sim, nil
}

// Config returns the configuration of the simulator.
func (sim *Simulator) Config() Config { return sim.cfg }

// Diagnostics returns the diagnostics accumulated over all processing calls.
func (sim *Simulator) Diagnostics() *Diagnostics { return sim.diag }

// Process simulates the front-end response to a set of energy deposits
// and returns the emitted FEB events, ordered by FEB identifier then time,
// together with the counters of this call.
//
// Process consumes the random stream of the simulator: processing the
// same deposits twice yields different events.
func (sim *Simulator) Process(deps []Deposit) ([]feb.Event, Counters) {
	var (
		cnt  = newCounters()
		tags = newTaggers()
	)

	for i := range deps {
		sim.respond(&deps[i], tags, &cnt)
	}
	tags.finalize()

	evts := sim.trigger(tags, &cnt)
	sim.diag.Counters.Add(cnt)

	if sim.cfg.Verbose {
		o := new(bytes.Buffer)
		cnt.Summary(o)
		sim.msg.Printf("%s", o.String())
	}

	return evts, cnt
}
