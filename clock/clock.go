// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package clock models the detector electronics clock.
//
// Times are expressed in microseconds, frequencies in MHz.
package clock // import "github.com/go-lpc/crt/clock"

import (
	"math"
)

// Clock converts between real time and integer clock ticks.
type Clock struct {
	freq float64 // MHz
	time float64 // µs
}

// New returns a clock running at freq MHz.
func New(freq float64) *Clock {
	return &Clock{freq: freq}
}

// Frequency returns the clock frequency in MHz.
func (clk *Clock) Frequency() float64 { return clk.freq }

// SetTime sets the current time, in microseconds.
func (clk *Clock) SetTime(us float64) { clk.time = us }

// Ticks returns the number of ticks elapsed at the current time.
func (clk *Clock) Ticks() uint32 { return clk.TicksAt(clk.time) }

// TicksAt returns the number of ticks elapsed at time us.
// Negative times map to tick 0, times beyond the 32-bit range saturate.
func (clk *Clock) TicksAt(us float64) uint32 {
	v := math.Floor(us * clk.freq)
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(v)
}

// Time returns the time in microseconds corresponding to ticks.
// Time does not modify the clock and is safe for concurrent use.
func (clk *Clock) Time(ticks uint32) float64 {
	return float64(ticks) / clk.freq
}
