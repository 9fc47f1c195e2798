// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crtsim

import (
	"math"

	"github.com/go-lpc/crt/feb"
	"github.com/go-lpc/crt/geom"
	"golang.org/x/sync/errgroup"
)

// trigger replays the observations of every FEB through the FEB trigger
// logic. FEBs are independent once the taggers are finalized and are
// replayed concurrently, up to the configured number of workers.
func (sim *Simulator) trigger(tags *taggers, cnt *Counters) []feb.Event {
	type result struct {
		evts []feb.Event
		cnt  Counters
	}

	var (
		res = make([]result, len(tags.ids))
		grp errgroup.Group
	)
	if sim.cfg.Workers > 0 {
		grp.SetLimit(sim.cfg.Workers)
	}

	for i, id := range tags.ids {
		i, tag := i, tags.febs[id]
		grp.Go(func() error {
			res[i].evts, res[i].cnt = sim.replay(tag, tags)
			return nil
		})
	}
	_ = grp.Wait() // replays do not fail.

	var evts []feb.Event
	for _, r := range res {
		evts = append(evts, r.evts...)
		cnt.Add(r.cnt)
	}
	return evts
}

// febState is the state of the trigger logic of one FEB.
type febState struct {
	trig    feb.Hit
	ttrig   float64 // µs
	latched []feb.Hit
	chans   map[uint32]struct{}
	layers  map[uint32]struct{}
	pair    [2]uint32 // layer pair
	mpair   [2]uint32 // mac pair
	partner bool      // MINOS partner found
}

func (st *febState) reset(tag *tagger, hit feb.Hit, t float64) {
	st.trig = hit
	st.ttrig = t
	st.latched = []feb.Hit{hit}
	st.chans = map[uint32]struct{}{hit.Channel: {}}
	st.layers = map[uint32]struct{}{tag.chans[hit.Channel]: {}}
	st.pair = [2]uint32{hit.Channel, hit.Channel}
	st.mpair = [2]uint32{tag.mac5, tag.mac5}
	st.partner = false
}

// replay runs the trigger logic of one FEB over its time-ordered
// observations.
// replay only reads the taggers and may be run concurrently.
func (sim *Simulator) replay(tag *tagger, tags *taggers) ([]feb.Event, Counters) {
	var (
		cnt   = newCounters()
		fc    = cnt.Family(tag.family)
		minos = tag.family == geom.MINOS
		coinc = sim.cfg.coincidence(tag.family)
		win   = sim.cfg.layerWindow(tag.family)
		bias  = sim.cfg.BiasTime
		dead  = sim.cfg.DeadTime
	)

	if !minos && coinc && len(tag.layers) < 2 {
		fc.MissOpenCoincidence++
		return nil, cnt
	}
	if len(tag.hits) == 0 {
		return nil, cnt
	}

	var (
		evts []feb.Event
		st   febState
	)

	emit := func() {
		evts = append(evts, feb.Event{
			Mac5:      tag.mac5,
			Index:     uint32(len(evts)),
			TTrig:     st.ttrig,
			Channel:   st.trig.Channel,
			LayerPair: st.pair,
			MacPair:   st.mpair,
			Hits:      st.latched,
		})
		fc.Events++
		fc.Hits += uint32(len(st.latched))
		cnt.Regions[tag.region.Num()]++
	}

	st.reset(tag, tag.hits[0], sim.clk.Time(tag.hits[0].T0))
	for _, hit := range tag.hits[1:] {
		t := sim.clk.Time(hit.T0)
		if t < st.ttrig {
			cnt.Warnings.Sorting++
			sim.msg.Printf("FEB 0x%x: observation at %v µs before trigger at %v µs", tag.mac5, t, st.ttrig)
		}

		if !minos && coinc && len(st.layers) == 1 && t-st.ttrig > win {
			fc.MissCoincidence++
			st.reset(tag, hit, t)
			continue
		}

		if minos && coinc && !st.partner {
			id, ok := sim.findPartner(tag, tags, st.ttrig, win)
			if !ok {
				fc.MissCoincidence++
				st.reset(tag, hit, t)
				continue
			}
			st.mpair = [2]uint32{tag.mac5, id}
			st.partner = true
		}

		switch {
		case t-st.ttrig < win:
			if _, held := st.chans[hit.Channel]; !held {
				st.chans[hit.Channel] = struct{}{}
				st.latched = append(st.latched, hit)
				layer := tag.chans[hit.Channel]
				if _, ok := st.layers[layer]; !ok {
					st.layers[layer] = struct{}{}
					st.pair = [2]uint32{st.trig.Channel, hit.Channel}
				}
				continue
			}
			if t-st.ttrig < bias {
				st.latched[len(st.latched)-1].AddADC(hit.ADC)
				continue
			}
			fc.MissLock++

		case t-st.ttrig <= dead:
			fc.MissDeadTime++

		default:
			emit()
			st.reset(tag, hit, t)
		}
	}

	if sim.cfg.FlushOnClose {
		ok := true
		switch {
		case !minos && coinc:
			ok = len(st.layers) >= 2
		case minos && coinc && !st.partner:
			var id uint32
			id, ok = sim.findPartner(tag, tags, st.ttrig, win)
			if ok {
				st.mpair = [2]uint32{tag.mac5, id}
			}
		}
		if ok {
			emit()
		} else {
			fc.MissCoincidence++
		}
	}

	return evts, cnt
}

// findPartner looks for a MINOS FEB of the same region and stack, covering
// the opposite layer, with an observation within win µs of ttrig.
func (sim *Simulator) findPartner(tag *tagger, tags *taggers, ttrig, win float64) (uint32, bool) {
	for _, id := range tag.partners {
		for _, hit := range tags.febs[id].hits {
			if math.Abs(sim.clk.Time(hit.T0)-ttrig) < win {
				return id, true
			}
		}
	}
	return 0, false
}
