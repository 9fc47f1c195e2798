// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crtsim

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// stream is the single random stream of a simulator.
// Draws are consumed in a fixed order so that runs are reproducible.
type stream struct {
	src rand.Source
	rnd *rand.Rand
}

func newStream(seed uint64) *stream {
	src := rand.NewSource(seed)
	return &stream{src: src, rnd: rand.New(src)}
}

func (s *stream) gauss(mu, sigma float64) float64 {
	return distuv.Normal{Mu: mu, Sigma: sigma, Src: s.src}.Rand()
}

// poisson returns a Poisson draw of the given mean.
// Non-positive means yield 0 and do not consume the stream.
func (s *stream) poisson(mean float64) int64 {
	if !(mean > 0) {
		return 0
	}
	return int64(distuv.Poisson{Lambda: mean, Src: s.src}.Rand())
}

// flat returns a uniform integer in [0, n).
func (s *stream) flat(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	return uint32(s.rnd.Uint64n(uint64(n)))
}
