// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crtsim

import (
	"fmt"
	"io"

	"github.com/go-lpc/crt/geom"
	"go-hep.org/x/hep/hbook"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// FamilyCounters tallies the fate of the energy deposits of a module family.
type FamilyCounters struct {
	Simulated uint32 // energy deposits simulated
	Observed  uint32 // observations surviving discrimination
	Events    uint32 // FEB events emitted
	Hits      uint32 // channels latched in emitted events

	MissThreshold        uint32 // below the charge threshold
	MissStripCoincidence uint32 // fiber pair outside the strip window
	MissOpenCoincidence  uint32 // FEB without hits in both layers
	MissCoincidence      uint32 // no layer/partner coincidence in window
	MissLock             uint32 // outside the track-and-hold window
	MissDeadTime         uint32 // during the readout dead time
}

func (fc *FamilyCounters) add(o FamilyCounters) {
	fc.Simulated += o.Simulated
	fc.Observed += o.Observed
	fc.Events += o.Events
	fc.Hits += o.Hits
	fc.MissThreshold += o.MissThreshold
	fc.MissStripCoincidence += o.MissStripCoincidence
	fc.MissOpenCoincidence += o.MissOpenCoincidence
	fc.MissCoincidence += o.MissCoincidence
	fc.MissLock += o.MissLock
	fc.MissDeadTime += o.MissDeadTime
}

// Warnings tallies the non-fatal anomalies met during a simulation.
type Warnings struct {
	Classification  uint32 // deposits in modules of unknown family
	StripOutOfRange uint32 // deposits in non-existent strips
	OutOfBounds     uint32 // deposit centroid outside of its strip
	NegativePE      uint32 // negative expected photo-electron count
	NegativeADC     uint32 // negative charge
	InvalidLayer    uint32 // strip layer could not be determined
	Sorting         uint32 // observation earlier than the trigger
}

func (w *Warnings) add(o Warnings) {
	w.Classification += o.Classification
	w.StripOutOfRange += o.StripOutOfRange
	w.OutOfBounds += o.OutOfBounds
	w.NegativePE += o.NegativePE
	w.NegativeADC += o.NegativeADC
	w.InvalidLayer += o.InvalidLayer
	w.Sorting += o.Sorting
}

// Counters holds the diagnostic counters of a simulation.
type Counters struct {
	CERN  FamilyCounters
	DC    FamilyCounters
	MINOS FamilyCounters

	Regions  map[uint32]uint32 // emitted events per region number
	Warnings Warnings
}

func newCounters() Counters {
	return Counters{Regions: make(map[uint32]uint32)}
}

// Family returns the counters of the given family.
func (c *Counters) Family(fam geom.Family) *FamilyCounters {
	switch fam {
	case geom.CERN:
		return &c.CERN
	case geom.DoubleChooz:
		return &c.DC
	case geom.MINOS:
		return &c.MINOS
	}
	panic(fmt.Errorf("crtsim: invalid family %v", fam))
}

// Events returns the total number of emitted FEB events.
func (c *Counters) Events() uint32 {
	return c.CERN.Events + c.DC.Events + c.MINOS.Events
}

// Add accumulates o into c.
func (c *Counters) Add(o Counters) {
	c.CERN.add(o.CERN)
	c.DC.add(o.DC)
	c.MINOS.add(o.MINOS)
	c.Warnings.add(o.Warnings)
	if c.Regions == nil && len(o.Regions) > 0 {
		c.Regions = make(map[uint32]uint32, len(o.Regions))
	}
	for k, v := range o.Regions {
		c.Regions[k] += v
	}
}

// Summary writes a human readable summary of the counters to w.
func (c *Counters) Summary(w io.Writer) {
	fmt.Fprintf(w, "CRT front-end summary: %d events\n", c.Events())
	for _, v := range []struct {
		fam geom.Family
		cnt *FamilyCounters
	}{
		{geom.CERN, &c.CERN},
		{geom.DoubleChooz, &c.DC},
		{geom.MINOS, &c.MINOS},
	} {
		fc := v.cnt
		fmt.Fprintf(w, "%s:\n", v.fam)
		fmt.Fprintf(w, "  simulated deposits:    %8d\n", fc.Simulated)
		fmt.Fprintf(w, "  observations:          %8d\n", fc.Observed)
		fmt.Fprintf(w, "  miss (threshold):      %8d\n", fc.MissThreshold)
		if v.fam == geom.CERN {
			fmt.Fprintf(w, "  miss (strip coinc.):   %8d\n", fc.MissStripCoincidence)
		}
		if v.fam != geom.MINOS {
			fmt.Fprintf(w, "  miss (open coinc.):    %8d\n", fc.MissOpenCoincidence)
		}
		fmt.Fprintf(w, "  miss (coincidence):    %8d (%6.2f%%)\n", fc.MissCoincidence, pct(fc.MissCoincidence, fc.Observed))
		fmt.Fprintf(w, "  miss (track-and-hold): %8d (%6.2f%%)\n", fc.MissLock, pct(fc.MissLock, fc.Observed))
		fmt.Fprintf(w, "  miss (dead time):      %8d (%6.2f%%)\n", fc.MissDeadTime, pct(fc.MissDeadTime, fc.Observed))
		fmt.Fprintf(w, "  events:                %8d\n", fc.Events)
		fmt.Fprintf(w, "  hits:                  %8d (%6.2f%%)\n", fc.Hits, pct(fc.Hits, fc.Observed))
	}

	keys := maps.Keys(c.Regions)
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "region %2d: %8d events\n", k, c.Regions[k])
	}

	ws := c.Warnings
	fmt.Fprintf(w,
		"warnings: classification=%d strip-range=%d out-of-bounds=%d "+
			"negative-pe=%d negative-adc=%d invalid-layer=%d sorting=%d\n",
		ws.Classification, ws.StripOutOfRange, ws.OutOfBounds,
		ws.NegativePE, ws.NegativeADC, ws.InvalidLayer, ws.Sorting,
	)
}

func pct(n, d uint32) float64 {
	if d == 0 {
		return 0
	}
	return 100 * float64(n) / float64(d)
}

// Diagnostics holds the counters and distributions accumulated over
// all the processing calls of a simulator.
type Diagnostics struct {
	Counters Counters

	PE  [3]*hbook.H1D // photo-electrons per readout end, per family
	ADC [3]*hbook.H1D // charge per readout end, per family
}

func newDiagnostics() *Diagnostics {
	diag := &Diagnostics{Counters: newCounters()}
	for i := range diag.PE {
		diag.PE[i] = hbook.NewH1D(100, 0, 200)
		diag.ADC[i] = hbook.NewH1D(128, 0, 8192)
	}
	return diag
}

func famIndex(fam geom.Family) int {
	switch fam {
	case geom.CERN:
		return 0
	case geom.DoubleChooz:
		return 1
	case geom.MINOS:
		return 2
	}
	panic(fmt.Errorf("crtsim: invalid family %v", fam))
}

func (diag *Diagnostics) fill(fam geom.Family, npe int64, adc int16) {
	i := famIndex(fam)
	diag.PE[i].Fill(float64(npe), 1)
	diag.ADC[i].Fill(float64(adc), 1)
}

// Summary writes the accumulated counters and distributions to w.
func (diag *Diagnostics) Summary(w io.Writer) {
	diag.Counters.Summary(w)
	for _, fam := range []geom.Family{geom.CERN, geom.DoubleChooz, geom.MINOS} {
		var (
			i   = famIndex(fam)
			hpe = diag.PE[i]
			hq  = diag.ADC[i]
		)
		if hpe.Entries() == 0 {
			continue
		}
		fmt.Fprintf(w, "%s: readouts=%d <npe>=%.2f rms=%.2f <adc>=%.1f rms=%.1f\n",
			fam, hpe.Entries(),
			hpe.XMean(), hpe.XRMS(),
			hq.XMean(), hq.XRMS(),
		)
	}
}
