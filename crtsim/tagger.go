// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crtsim

import (
	"fmt"
	"sort"

	"github.com/go-lpc/crt/feb"
	"github.com/go-lpc/crt/geom"
)

// observation holds the geometrical tags of a discriminated channel.
type observation struct {
	family geom.Family
	region geom.Region
	stack  uint32
	layer  uint32
}

// tagger accumulates the observations of one FEB.
type tagger struct {
	mac5   uint32
	family geom.Family
	region geom.Region
	stack  uint32

	layers map[uint32]struct{} // layer ids seen by this FEB
	chans  map[uint32]uint32   // channel -> layer
	hits   []feb.Hit

	partners []uint32 // candidate MINOS partner FEBs, ascending
}

func (tag *tagger) hasLayer(layer uint32) bool {
	_, ok := tag.layers[layer]
	return ok
}

// taggers is the append-only collection of FEB accumulators of one
// processing call.
type taggers struct {
	febs map[uint32]*tagger
	ids  []uint32 // ascending, after finalize
}

func newTaggers() *taggers {
	return &taggers{febs: make(map[uint32]*tagger)}
}

func (tags *taggers) add(mac5 uint32, obs observation, hit feb.Hit) {
	tag, ok := tags.febs[mac5]
	if !ok {
		tag = &tagger{
			mac5:   mac5,
			family: obs.family,
			region: obs.region,
			stack:  obs.stack,
			layers: make(map[uint32]struct{}, 2),
			chans:  make(map[uint32]uint32),
		}
		tags.febs[mac5] = tag
		tags.ids = append(tags.ids, mac5)
	}

	if tag.family != obs.family || tag.region != obs.region || tag.stack != obs.stack {
		panic(fmt.Errorf(
			"crtsim: inconsistent FEB 0x%x: (family=%v, region=%v, stack=%d) != (family=%v, region=%v, stack=%d)",
			mac5,
			tag.family, tag.region, tag.stack,
			obs.family, obs.region, obs.stack,
		))
	}

	tag.layers[obs.layer] = struct{}{}
	tag.chans[hit.Channel] = obs.layer
	tag.hits = append(tag.hits, hit)
}

type stackKey struct {
	region geom.Region
	stack  uint32
	layer  uint32
}

// finalize sorts the observations of each FEB by time and builds the
// index of MINOS partner candidates.
// The collection is read-only afterwards.
func (tags *taggers) finalize() {
	sort.Slice(tags.ids, func(i, j int) bool { return tags.ids[i] < tags.ids[j] })

	index := make(map[stackKey][]uint32)
	for _, id := range tags.ids {
		tag := tags.febs[id]
		sort.SliceStable(tag.hits, func(i, j int) bool {
			return tag.hits[i].T0 < tag.hits[j].T0
		})
		if tag.family != geom.MINOS {
			continue
		}
		for _, layer := range []uint32{0, 1} {
			if !tag.hasLayer(layer) {
				continue
			}
			key := stackKey{tag.region, tag.stack, layer}
			index[key] = append(index[key], id)
		}
	}

	for _, id := range tags.ids {
		tag := tags.febs[id]
		if tag.family != geom.MINOS {
			continue
		}
		seen := make(map[uint32]struct{})
		for _, layer := range []uint32{0, 1} {
			if !tag.hasLayer(layer) {
				continue
			}
			for _, other := range index[stackKey{tag.region, tag.stack, 1 - layer}] {
				if other == id {
					continue
				}
				if _, dup := seen[other]; dup {
					continue
				}
				seen[other] = struct{}{}
				tag.partners = append(tag.partners, other)
			}
		}
		sort.Slice(tag.partners, func(i, j int) bool { return tag.partners[i] < tag.partners[j] })
	}
}
