// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crtsim

import (
	"errors"
	"math"

	"github.com/go-lpc/crt/feb"
	"github.com/go-lpc/crt/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// light yield as a function of the distance to the readout end (m).
const (
	lyP0 = 36.5425
	lyP1 = -6.3895
	lyP2 = 0.3742
)

func lightYield(d float64) float64 {
	return lyP2*d*d + lyP1*d + lyP0
}

// transverse attenuation polynomials of CERN strips (x in cm, increasing degree).
var (
	atCenter = []float64{0.682976, -0.0204477, -0.000707564, 0.000636617, 0.000147957, -3.89078e-5}
	atRight  = []float64{0.139941, 0.168238, -0.0198199, 0.000781752}
	atLeft   = []float64{8.78875, 3.54602, 0.595592, 0.0449169, 0.00127892}
)

// poly evaluates the polynomial of coefficients cs at x.
func poly(x float64, cs []float64) float64 {
	v := 0.0
	for i := len(cs) - 1; i >= 0; i-- {
		v = v*x + cs[i]
	}
	return v
}

// transverse returns the attenuation weights of the two fibers of a strip,
// given the transverse position x (cm) of the deposit in the strip.
func transverse(fam geom.Family, x float64) (w0, w1 float64) {
	switch fam {
	case geom.CERN:
		switch {
		case math.Abs(x) <= 5.5:
			return poly(x, atCenter), poly(-x, atCenter)
		case x > 5.5:
			return poly(x, atRight), poly(-x, atLeft)
		default:
			return poly(x, atLeft), poly(-x, atRight)
		}
	}
	return 1, 1
}

// boundsTolerance is the distance (cm) a deposit centroid may lie outside
// of its strip before being reported.
const boundsTolerance = 0.001

// readout is the response of one readout end of a strip.
type readout struct {
	npe int64
	t   uint32 // trigger ticks
	q   int16  // ADC counts
}

// respond simulates the response of the front-end to one energy deposit and
// feeds the surviving observations to the FEB taggers.
func (sim *Simulator) respond(dep *Deposit, tags *taggers, cnt *Counters) {
	if dep.Strip == 0 {
		return
	}

	cls, err := sim.geo.Classify(dep.Module)
	if err != nil {
		cnt.Warnings.Classification++
		if _, dup := sim.warned[dep.Module]; !dup {
			sim.warned[dep.Module] = struct{}{}
			sim.msg.Printf("could not classify module %d: %+v", dep.Module, err)
		}
		return
	}

	if int64(dep.Strip) >= int64(cls.NumStrips) {
		cnt.Warnings.StripOutOfRange++
		sim.msg.Printf("strip %d out of range for module %d (nstrips=%d)",
			dep.Strip, dep.Module, cls.NumStrips,
		)
		return
	}

	loc, err := sim.geo.Locate(dep.Module, dep.Strip)
	if err != nil {
		if !errors.Is(err, geom.ErrInvalidLayer) {
			sim.msg.Printf("could not locate strip %d of module %d: %+v", dep.Strip, dep.Module, err)
			return
		}
		cnt.Warnings.InvalidLayer++
		sim.msg.Printf("%+v", err)
	}

	var (
		fam   = cls.Family
		fc    = cnt.Family(fam)
		minos = fam == geom.MINOS
	)
	fc.Simulated++

	mid := r3.Scale(0.5, r3.Add(dep.Entry, dep.Exit))
	pos, err := sim.geo.WorldToStrip(dep.Module, dep.Strip, mid)
	if err != nil {
		sim.msg.Printf("could not transform deposit into strip %d of module %d: %+v", dep.Strip, dep.Module, err)
		return
	}
	if math.Abs(pos.X) > cls.HalfWidth+boundsTolerance ||
		math.Abs(pos.Y) > cls.HalfHeight+boundsTolerance ||
		math.Abs(pos.Z) > cls.HalfLength+boundsTolerance {
		cnt.Warnings.OutOfBounds++
		sim.msg.Printf(
			"deposit outside strip %d of module %d (local=(%g, %g, %g) cm)",
			dep.Strip, dep.Module, pos.X, pos.Y, pos.Z,
		)
	}

	qr := 1.0
	if sim.cfg.UseEdep {
		qr = dep.Edep / sim.cfg.Q0
	}
	if fam == geom.CERN {
		qr *= 1.5 // thicker scintillator
	}

	var (
		d0 = math.Abs(+cls.HalfLength-pos.Z) * 0.01 // m
		d1 = math.Abs(-cls.HalfLength-pos.Z) * 0.01 // m

		w0, w1 = transverse(fam, pos.X)

		mu0  = lightYield(d0) * qr * w0
		mu1  = lightYield(d0) * qr * w1
		muDu = lightYield(d1) * qr * w0
	)
	if mu0 < 0 || mu1 < 0 || (minos && muDu < 0) {
		cnt.Warnings.NegativePE++
		sim.msg.Printf("negative expected photo-electrons (module=%d, strip=%d, mu=(%g, %g, %g))",
			dep.Module, dep.Strip, mu0, mu1, muDu,
		)
	}

	var r0, r1, rd readout
	r0.npe = sim.rnd.poisson(mu0)
	r1.npe = sim.rnd.poisson(mu1)
	if minos {
		rd.npe = sim.rnd.poisson(muDu)
	}

	ttrue := 0.5*(dep.EntryT+dep.ExitT) + sim.cfg.GlobalT0Offset
	r0.t = sim.triggerTicks(ttrue, r0.npe, d0)
	r1.t = sim.triggerTicks(ttrue, r1.npe, d0)
	if minos {
		rd.t = sim.triggerTicks(ttrue, rd.npe, d1)
	}

	pps := sim.rnd.flat(uint32(sim.clk.Frequency() * 1e6)) // one second of ticks

	r0.q = sim.charge(r0.npe)
	r1.q = sim.charge(r1.npe)
	if minos {
		rd.q = sim.charge(rd.npe)
	}
	if r0.q < 0 || r1.q < 0 || (minos && rd.q < 0) {
		cnt.Warnings.NegativeADC++
		sim.msg.Printf("negative charge (module=%d, strip=%d, q=(%d, %d, %d))",
			dep.Module, dep.Strip, r0.q, r1.q, rd.q,
		)
	}

	switch fam {
	case geom.CERN:
		sim.diag.fill(fam, r0.npe, r0.q)
		sim.diag.fill(fam, r1.npe, r1.q)
	case geom.DoubleChooz:
		sim.diag.fill(fam, r0.npe, r0.q)
	case geom.MINOS:
		sim.diag.fill(fam, r0.npe, r0.q)
		sim.diag.fill(fam, rd.npe, rd.q)
	}

	var (
		thr  = sim.cfg.threshold(fam)
		mac5 = dep.Module
		obs  = observation{
			family: fam,
			region: cls.Region,
			stack:  loc.Stack,
			layer:  loc.Layer,
		}
	)

	switch fam {
	case geom.CERN:
		var (
			q0, q1 = float64(r0.q), float64(r1.q)
			above  = q0 > thr && q1 > thr
			dt     = math.Abs(float64(r0.t) - float64(r1.t))
			coinc  = dt < sim.cfg.StripCoincidenceWindow
		)
		if q0 < thr || q1 < thr {
			fc.MissThreshold++
		}
		if !coinc {
			fc.MissStripCoincidence++
		}
		if above && coinc {
			fc.Observed++
			tags.add(mac5, obs, feb.Hit{Channel: 2 * dep.Strip, T0: r0.t, PPS: pps, ADC: r0.q})
			tags.add(mac5, obs, feb.Hit{Channel: 2*dep.Strip + 1, T0: r1.t, PPS: pps, ADC: r1.q})
		}

	case geom.DoubleChooz:
		q0 := float64(r0.q)
		if q0 < thr {
			fc.MissThreshold++
		}
		if q0 <= thr {
			return
		}
		fc.Observed++
		tags.add(mac5, obs, feb.Hit{Channel: dep.Strip, T0: r0.t, PPS: pps, ADC: r0.q})

	case geom.MINOS:
		var (
			ch     = dep.Strip/2 + 10*(dep.Module%3)
			q0, qd = float64(r0.q), float64(rd.q)
			near   = q0 > thr
			dual   = qd > thr
		)
		mac5 = dep.Module / 3
		if near {
			fc.Observed++
			tags.add(mac5, obs, feb.Hit{Channel: ch, T0: r0.t, PPS: pps, ADC: r0.q})
		}
		if dual {
			fc.Observed++
			tags.add(mac5+50, obs, feb.Hit{Channel: ch, T0: rd.t, PPS: pps, ADC: rd.q})
		}
		if q0 < thr || qd < thr {
			fc.MissThreshold++
		}
	}
}

// triggerTicks returns the discriminator trigger time in clock ticks for a
// signal of npe photo-electrons generated at ttrue (ns), d meters away from
// the readout end.
func (sim *Simulator) triggerTicks(ttrue float64, npe int64, d float64) uint32 {
	var (
		cfg = &sim.cfg
		n   = float64(npe)

		mean = cfg.TDelayNorm*math.Exp(-0.5*sq((n-cfg.TDelayShift)/cfg.TDelaySigma)) + cfg.TDelayOffset
		rms  = cfg.TDelayRMSGausNorm*math.Exp(-sq(n-cfg.TDelayRMSGausShift)/cfg.TDelayRMSGausSigma) +
			cfg.TDelayRMSExpNorm*math.Exp(-(n-cfg.TDelayRMSExpShift)/cfg.TDelayRMSExpScale)
	)

	delay := sim.rnd.gauss(mean, rms)
	delay += sim.rnd.gauss(0, cfg.TResInterpolator)
	prop := sim.rnd.gauss(cfg.PropDelay, cfg.PropDelayError) * d

	sim.clk.SetTime((ttrue + prop + delay) * 1e-3)
	return sim.clk.Ticks()
}

// charge returns the ADC counts for npe photo-electrons, saturated to the
// 16-bit range.
func (sim *Simulator) charge(npe int64) int16 {
	var (
		cfg = &sim.cfg
		n   = float64(npe)
		q   = sim.rnd.gauss(cfg.QPed+cfg.QSlope*n, cfg.QRMS*math.Sqrt(n))
	)
	switch {
	case q >= math.MaxInt16:
		return math.MaxInt16
	case q <= math.MinInt16:
		return math.MinInt16
	case math.IsNaN(q):
		return 0
	}
	return int16(q)
}

func sq(x float64) float64 { return x * x }
