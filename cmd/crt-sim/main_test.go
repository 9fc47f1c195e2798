// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/go-lpc/crt/crtsim"
	"github.com/go-lpc/crt/feb"
	"github.com/go-lpc/crt/internal/runlog"
	"github.com/go-lpc/crt/internal/xcnv"
	"go-hep.org/x/hep/lcio"
	"gonum.org/v1/gonum/spatial/r3"
)

const geoTOML = `
[[module]]
id     = 1
volume = "volAuxDet_CERN_module_001_Top"
strip-half-width  = 5.75
strip-half-height = 0.75
strip-half-length = 92.0
  [[module.strip]]
  pos = [-6.0, -0.75, 0.0]
  [[module.strip]]
  pos = [+6.0, -0.75, 0.0]
  [[module.strip]]
  pos = [-6.0, +0.75, 0.0]
  [[module.strip]]
  pos = [+6.0, +0.75, 0.0]
`

// no smearing, 1 GHz clock, 100 ADC counts per readout.
const cfgTOML = `
GlobalT0Offset = 0.0
TDelayNorm = 0.0
TDelayShift = 0.0
TDelaySigma = 1.0
TDelayOffset = 0.0
TDelayRMSGausNorm = 0.0
TDelayRMSGausShift = 0.0
TDelayRMSGausSigma = 1.0
TDelayRMSExpNorm = 0.0
TDelayRMSExpShift = 0.0
TDelayRMSExpScale = 1.0
PropDelay = 0.0
PropDelayError = 0.0
TResInterpolator = 0.0
UseEdep = false
QPed = 100.0
QSlope = 0.0
QRMS = 0.0
QThresholdC = 50.0
ClockFrequency = 1000.0
`

const nevts = 3

func setup(t *testing.T) (dir string) {
	t.Helper()

	dir, err := os.MkdirTemp("", "crt-sim-")
	if err != nil {
		t.Fatalf("could not create tmp dir: %+v", err)
	}

	for _, v := range []struct {
		name string
		data string
	}{
		{"geo.toml", geoTOML},
		{"cfg.toml", cfgTOML},
	} {
		err = os.WriteFile(filepath.Join(dir, v.name), []byte(v.data), 0644)
		if err != nil {
			t.Fatalf("could not create %q: %+v", v.name, err)
		}
	}

	w, err := lcio.Create(filepath.Join(dir, "deps.lcio"))
	if err != nil {
		t.Fatalf("could not create input LCIO file: %+v", err)
	}
	defer w.Close()

	err = w.WriteRunHeader(&lcio.RunHeader{RunNumber: 42, Detector: xcnv.Detector})
	if err != nil {
		t.Fatalf("could not write run header: %+v", err)
	}

	for i := 0; i < nevts; i++ {
		dep := func(strip uint32, y float64) crtsim.Deposit {
			pos := r3.Vec{X: 6, Y: y, Z: 10}
			return crtsim.Deposit{
				Module: 1, Strip: strip,
				Entry: pos, Exit: pos,
				EntryT: 1000, ExitT: 1000,
				Edep: 2e-3,
			}
		}
		evt := lcio.Event{RunNumber: 42, EventNumber: int32(i), Detector: xcnv.Detector}
		evt.Add(xcnv.Deposits, xcnv.SimHits([]crtsim.Deposit{
			dep(1, -0.75),
			dep(3, +0.75),
		}))
		err = w.WriteEvent(&evt)
		if err != nil {
			t.Fatalf("could not write event %d: %+v", i, err)
		}
	}

	err = w.Close()
	if err != nil {
		t.Fatalf("could not close input LCIO file: %+v", err)
	}

	return dir
}

func TestProcess(t *testing.T) {
	dir := setup(t)
	defer os.RemoveAll(dir)

	var (
		msg   = log.New(io.Discard, "", 0)
		fname = filepath.Join(dir, "deps.lcio")
		flush = true
		seed  = uint64(66)
		opts  = options{
			cfg:    filepath.Join(dir, "cfg.toml"),
			geo:    filepath.Join(dir, "geo.toml"),
			oname:  filepath.Join(dir, "out.lcio"),
			lvl:    1,
			runlog: filepath.Join(dir, "runs.sqlite"),
			seed:   &seed,
			flush:  &flush,
		}
	)

	err := process(msg, fname, opts)
	if err != nil {
		t.Fatalf("could not simulate LCIO file: %+v", err)
	}

	r, err := lcio.Open(opts.oname)
	if err != nil {
		t.Fatalf("could not open output LCIO file: %+v", err)
	}
	defer r.Close()

	var fromLCIO []feb.Event
	n := 0
	for r.Next() {
		evt := r.Event()
		obj, ok := evt.Get(xcnv.FEBData).(*lcio.GenericObject)
		if !ok {
			t.Fatalf("missing FEB collection in event %d", evt.EventNumber)
		}
		evts, err := xcnv.FEBEvents(obj)
		if err != nil {
			t.Fatalf("could not decode FEB events: %+v", err)
		}
		if got, want := len(evts), 1; got != want {
			t.Fatalf("invalid number of FEB events in event %d: got=%d, want=%d", evt.EventNumber, got, want)
		}
		if got, want := evts[0].Mac5, uint32(1); got != want {
			t.Fatalf("invalid mac5: got=%d, want=%d", got, want)
		}
		if _, ok := evt.Get(xcnv.Deposits).(*lcio.SimTrackerHitContainer); !ok {
			t.Fatalf("missing deposits in output event %d", evt.EventNumber)
		}
		fromLCIO = append(fromLCIO, evts...)
		n++
	}
	if err := r.Err(); err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("could not read output LCIO file: %+v", err)
	}
	if got, want := n, nevts; got != want {
		t.Fatalf("invalid number of output events: got=%d, want=%d", got, want)
	}
	if got, want := r.RunHeader().RunNumber, int32(42); got != want {
		t.Fatalf("invalid run number: got=%d, want=%d", got, want)
	}

	// same run, raw FEB stream output.
	opts.oname = filepath.Join(dir, "out.raw")
	err = process(msg, fname, opts)
	if err != nil {
		t.Fatalf("could not simulate LCIO file to raw: %+v", err)
	}

	f, err := os.Open(opts.oname)
	if err != nil {
		t.Fatalf("could not open raw output: %+v", err)
	}
	defer f.Close()

	var (
		dec     = feb.NewDecoder(f)
		fromRaw []feb.Event
	)
	for {
		var evt feb.Event
		err := dec.Decode(&evt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			t.Fatalf("could not decode raw output: %+v", err)
		}
		fromRaw = append(fromRaw, evt)
	}
	if !reflect.DeepEqual(fromRaw, fromLCIO) {
		t.Fatalf("raw and LCIO outputs differ:\nraw= %+v\nlcio=%+v", fromRaw, fromLCIO)
	}

	store, err := runlog.Open(opts.runlog)
	if err != nil {
		t.Fatalf("could not open run log: %+v", err)
	}
	defer store.Close()

	runs, err := store.Runs(context.Background())
	if err != nil {
		t.Fatalf("could not read run log: %+v", err)
	}
	if got, want := len(runs), 2; got != want {
		t.Fatalf("invalid number of logged runs: got=%d, want=%d", got, want)
	}
	for _, run := range runs {
		if run.Seed != seed || run.Events != nevts || run.Deposits != 2*nevts {
			t.Fatalf("invalid run: %+v", run)
		}
		if got, want := run.Counters.CERN.Events, uint32(nevts); got != want {
			t.Fatalf("invalid number of CERN FEB events: got=%d, want=%d", got, want)
		}
	}
}

func TestProcessErrors(t *testing.T) {
	dir := setup(t)
	defer os.RemoveAll(dir)

	var (
		msg   = log.New(io.Discard, "", 0)
		fname = filepath.Join(dir, "deps.lcio")
		nwrk  = -1
	)

	for _, tc := range []struct {
		name  string
		fname string
		opts  options
		err   string
	}{
		{
			name:  "no-geometry",
			fname: fname,
			opts:  options{oname: filepath.Join(dir, "out.raw")},
			err:   "missing geometry",
		},
		{
			name:  "params-without-db",
			fname: fname,
			opts: options{
				geo:    filepath.Join(dir, "geo.toml"),
				params: "nominal",
				oname:  filepath.Join(dir, "out.raw"),
			},
			err: "requires a conditions DB",
		},
		{
			name:  "invalid-workers",
			fname: fname,
			opts: options{
				geo:     filepath.Join(dir, "geo.toml"),
				oname:   filepath.Join(dir, "out.raw"),
				workers: &nwrk,
			},
			err: "invalid configuration",
		},
		{
			name:  "no-cfg-file",
			fname: fname,
			opts: options{
				cfg:   filepath.Join(dir, "not-there.toml"),
				geo:   filepath.Join(dir, "geo.toml"),
				oname: filepath.Join(dir, "out.raw"),
			},
			err: "could not load configuration",
		},
		{
			name:  "no-input",
			fname: filepath.Join(dir, "not-there.lcio"),
			opts: options{
				geo:   filepath.Join(dir, "geo.toml"),
				oname: filepath.Join(dir, "out.raw"),
			},
			err: "could not open input LCIO file",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := process(msg, tc.fname, tc.opts)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !strings.Contains(err.Error(), tc.err) {
				t.Fatalf("invalid error:\ngot= %+v\nwant=%q", err, tc.err)
			}
		})
	}
}
