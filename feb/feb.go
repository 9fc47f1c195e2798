// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package feb holds the data model of the CRT front-end boards (FEBs)
// readout, and functions to read and write raw FEB streams.
package feb // import "github.com/go-lpc/crt/feb"

import (
	"math"
)

// Hit is the readout of one FEB channel.
type Hit struct {
	Channel uint32 // channel number, local to the FEB
	T0      uint32 // trigger clock ticks
	PPS     uint32 // ticks since the last PPS
	ADC     int16  // ADC counts
}

// AddADC adds v to the ADC counts of the hit, saturating to the int16 range.
func (hit *Hit) AddADC(v int16) {
	sum := int32(hit.ADC) + int32(v)
	switch {
	case sum > math.MaxInt16:
		sum = math.MaxInt16
	case sum < math.MinInt16:
		sum = math.MinInt16
	}
	hit.ADC = int16(sum)
}

// Event is a FEB event: the set of channels latched by one FEB trigger.
type Event struct {
	Mac5      uint32    // FEB identifier
	Index     uint32    // event number within the FEB
	TTrig     float64   // trigger time, in microseconds
	Channel   uint32    // trigger channel
	LayerPair [2]uint32 // trigger channel and first channel in the opposite layer
	MacPair   [2]uint32 // FEBs providing the coincidence
	Hits      []Hit     // latched channels, trigger channel first
}

const (
	evHeader  = 0xe0 // event header marker
	hitHeader = 0xe4 // hit header marker
	evTrailer = 0xa0 // event trailer marker
)

// MaxHits is the maximum number of hits an encoded event may hold.
const MaxHits = math.MaxUint16
