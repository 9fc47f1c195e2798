// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crtsim

import (
	"math"
	"reflect"
	"testing"

	"github.com/go-lpc/crt/clock"
	"github.com/go-lpc/crt/feb"
	"github.com/go-lpc/crt/geom"
)

func TestPoly(t *testing.T) {
	for _, tc := range []struct {
		x    float64
		cs   []float64
		want float64
	}{
		{2, nil, 0},
		{2, []float64{1}, 1},
		{2, []float64{1, 2, 3}, 17},
		{-2, []float64{1, 2, 3}, 9},
	} {
		if got, want := poly(tc.x, tc.cs), tc.want; got != want {
			t.Fatalf("poly(%v, %v): got=%v, want=%v", tc.x, tc.cs, got, want)
		}
	}
}

func TestLightYield(t *testing.T) {
	if got, want := lightYield(0), 36.5425; got != want {
		t.Fatalf("invalid light yield at 0m: got=%v, want=%v", got, want)
	}
	if got, want := lightYield(1), 36.5425-6.3895+0.3742; math.Abs(got-want) > 1e-12 {
		t.Fatalf("invalid light yield at 1m: got=%v, want=%v", got, want)
	}
	if lightYield(2) >= lightYield(1) {
		t.Fatalf("light yield should decrease with distance")
	}
}

func TestTransverse(t *testing.T) {
	for _, fam := range []geom.Family{geom.DoubleChooz, geom.MINOS} {
		w0, w1 := transverse(fam, 3)
		if w0 != 1 || w1 != 1 {
			t.Fatalf("%v: invalid weights: (%v, %v)", fam, w0, w1)
		}
	}

	w0, w1 := transverse(geom.CERN, 0)
	if w0 != 0.682976 || w1 != 0.682976 {
		t.Fatalf("invalid weights at center: (%v, %v)", w0, w1)
	}

	for _, x := range []float64{0.5, 2, 5.5, 5.6, 7, 10} {
		a0, a1 := transverse(geom.CERN, +x)
		b0, b1 := transverse(geom.CERN, -x)
		if a0 != b1 || a1 != b0 {
			t.Fatalf("x=%v: weights not mirrored: (%v, %v) vs (%v, %v)", x, a0, a1, b0, b1)
		}
	}

	w0, w1 = transverse(geom.CERN, 7)
	if got, want := w0, 0.139941+0.168238*7-0.0198199*49+0.000781752*343; math.Abs(got-want) > 1e-12 {
		t.Fatalf("invalid near weight: got=%v, want=%v", got, want)
	}
	if got, want := w1, 8.78875-3.54602*7+0.595592*49-0.0449169*343+0.00127892*2401; math.Abs(got-want) > 1e-12 {
		t.Fatalf("invalid far weight: got=%v, want=%v", got, want)
	}
}

func TestCharge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QRMS = 0
	for _, tc := range []struct {
		ped, slope float64
		npe        int64
		want       int16
	}{
		{63.6, 131.9, 0, 63},
		{63.6, 131.9, 10, 1382},
		{0, 1000, 100, math.MaxInt16},
		{-40000, 0, 1, math.MinInt16},
		{-10.7, 0, 1, -10},
	} {
		cfg.QPed = tc.ped
		cfg.QSlope = tc.slope
		sim := &Simulator{cfg: cfg, rnd: newStream(1)}
		if got, want := sim.charge(tc.npe), tc.want; got != want {
			t.Fatalf("charge(ped=%v, slope=%v, npe=%d): got=%d, want=%d", tc.ped, tc.slope, tc.npe, got, want)
		}
	}
}

func TestStream(t *testing.T) {
	var (
		s1 = newStream(42)
		s2 = newStream(42)
	)
	for i := 0; i < 100; i++ {
		if a, b := s1.gauss(1, 2), s2.gauss(1, 2); a != b {
			t.Fatalf("draw %d: gaussian streams differ", i)
		}
		if a, b := s1.poisson(10), s2.poisson(10); a != b {
			t.Fatalf("draw %d: poisson streams differ", i)
		}
		if v := s1.flat(16); v >= 16 {
			t.Fatalf("draw %d: invalid flat draw %d", i, v)
		}
		s2.flat(16)
	}

	if got := s1.poisson(-1); got != 0 {
		t.Fatalf("invalid poisson draw for negative mean: %d", got)
	}
	if got := s1.flat(0); got != 0 {
		t.Fatalf("invalid flat draw for empty range: %d", got)
	}
}

func TestMeanPhotoElectrons(t *testing.T) {
	for _, tc := range []struct {
		name    string
		useEdep bool
		mod     uint32
		fam     geom.Family
		hlen    float64
		scale   float64
	}{
		{"cern", false, 1, geom.CERN, 50, 1.5},
		{"cern-edep", true, 1, geom.CERN, 50, 1.5},
		{"dchooz", false, 2, geom.DoubleChooz, 160, 1},
		{"dchooz-edep", true, 2, geom.DoubleChooz, 160, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := quietConfig()
			cfg.UseEdep = tc.useEdep
			cfg.Q0 = 1.75e-3
			sim := newTestSim(t, cfg)
			det := sim.geo.(*geom.Detector)

			const n = 5000
			deps := make([]Deposit, n)
			for i := range deps {
				deps[i] = deposit(t, det, tc.mod, 3, float64(i)*1e5)
			}
			sim.Process(deps)

			var (
				w, _ = transverse(tc.fam, 0)
				want = lightYield(tc.hlen*0.01) * tc.scale * w
				h    = sim.Diagnostics().PE[famIndex(tc.fam)]
			)
			if got := h.XMean(); math.Abs(got-want) > 0.02*want {
				t.Fatalf("invalid mean number of photo-electrons: got=%.2f, want=%.2f", got, want)
			}
		})
	}
}

func TestDrawOrder(t *testing.T) {
	cfg := DefaultConfig()
	sim := newTestSim(t, cfg)
	det := sim.geo.(*geom.Detector)

	var (
		tags  = newTaggers()
		cnt   = newCounters()
		cern  = deposit(t, det, 1, 3, 1000)
		minos = deposit(t, det, 30, 4, 2000)
	)
	sim.respond(&cern, tags, &cnt)
	sim.respond(&minos, tags, &cnt)

	var (
		rs  = newStream(cfg.Seed)
		clk = clock.New(cfg.ClockFrequency)
	)
	ticks := func(ns float64, npe int64, d float64) uint32 {
		var (
			n    = float64(npe)
			mean = cfg.TDelayNorm*math.Exp(-0.5*sq((n-cfg.TDelayShift)/cfg.TDelaySigma)) + cfg.TDelayOffset
			rms  = cfg.TDelayRMSGausNorm*math.Exp(-sq(n-cfg.TDelayRMSGausShift)/cfg.TDelayRMSGausSigma) +
				cfg.TDelayRMSExpNorm*math.Exp(-(n-cfg.TDelayRMSExpShift)/cfg.TDelayRMSExpScale)
		)
		delay := rs.gauss(mean, rms)
		delay += rs.gauss(0, cfg.TResInterpolator)
		prop := rs.gauss(cfg.PropDelay, cfg.PropDelayError) * d
		return clk.TicksAt((ns + cfg.GlobalT0Offset + prop + delay) * 1e-3)
	}
	adc := func(npe int64) int16 {
		n := float64(npe)
		return int16(rs.gauss(cfg.QPed+cfg.QSlope*n, cfg.QRMS*math.Sqrt(n)))
	}
	npps := uint32(cfg.ClockFrequency * 1e6)

	// CERN strip, 50cm half length, read at both fibers.
	var (
		hlen   = 50.0
		d      = hlen * 0.01
		w0, w1 = transverse(geom.CERN, 0)
		npe0   = rs.poisson(lightYield(d) * 1.5 * w0)
		npe1   = rs.poisson(lightYield(d) * 1.5 * w1)
		t0     = ticks(1000, npe0, d)
		t1     = ticks(1000, npe1, d)
		pps    = rs.flat(npps)
		q0     = adc(npe0)
		q1     = adc(npe1)
	)
	if float64(q0) <= cfg.QThresholdC || float64(q1) <= cfg.QThresholdC {
		t.Fatalf("CERN charges below threshold: (%d, %d)", q0, q1)
	}
	want := []feb.Hit{
		{Channel: 6, T0: t0, PPS: pps, ADC: q0},
		{Channel: 7, T0: t1, PPS: pps, ADC: q1},
	}
	if got := tags.febs[1].hits; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid CERN observations:\ngot= %+v\nwant=%+v", got, want)
	}

	// MINOS strip, 400cm half length, read at both ends.
	var (
		hlenM = 400.0
		dn    = math.Abs(+hlenM) * 0.01
		df    = math.Abs(-hlenM) * 0.01
		mnpe0 = rs.poisson(lightYield(dn))
		mnpe1 = rs.poisson(lightYield(dn))
		mnped = rs.poisson(lightYield(df))
		mt0   = ticks(2000, mnpe0, dn)
		_     = ticks(2000, mnpe1, dn)
		mtd   = ticks(2000, mnped, df)
		mpps  = rs.flat(npps)
		mq0   = adc(mnpe0)
		_     = adc(mnpe1)
		mqd   = adc(mnped)
	)
	if float64(mq0) <= cfg.QThresholdM || float64(mqd) <= cfg.QThresholdM {
		t.Fatalf("MINOS charges below threshold: (%d, %d)", mq0, mqd)
	}
	for _, tc := range []struct {
		mac5 uint32
		want feb.Hit
	}{
		{10, feb.Hit{Channel: 2, T0: mt0, PPS: mpps, ADC: mq0}},
		{60, feb.Hit{Channel: 2, T0: mtd, PPS: mpps, ADC: mqd}},
	} {
		tag, ok := tags.febs[tc.mac5]
		if !ok {
			t.Fatalf("missing MINOS FEB %d", tc.mac5)
		}
		if got, want := tag.hits, []feb.Hit{tc.want}; !reflect.DeepEqual(got, want) {
			t.Fatalf("FEB %d: invalid MINOS observations:\ngot= %+v\nwant=%+v", tc.mac5, got, want)
		}
	}
}
