// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command crt-sql inspects the CRT tables of the conditions DB.
package main // import "github.com/go-lpc/crt/cmd/crt-sql"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"github.com/go-lpc/crt/conddb"
	"github.com/go-lpc/crt/geom"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	dbname = "crtsrv"
)

func main() {
	log.SetPrefix("crt-sql: ")
	log.SetFlags(0)

	var (
		name = flag.String("db", dbname, "name of the conditions DB")
		det  = flag.String("det", "", "detector geometry to inspect (default: all)")
		tag  = flag.String("params", "", "detsim parameter set to inspect (default: all)")
	)

	flag.Parse()

	db, err := conddb.Open(*name)
	if err != nil {
		log.Fatalf("could not open CRT db: %+v", err)
	}
	defer db.Close()

	err = doQuery(os.Stdout, db, *det, *tag)
	if err != nil {
		log.Fatalf("could not do query: %+v", err)
	}
}

type condDB interface {
	Detectors(ctx context.Context) ([]string, error)
	Geometry(ctx context.Context, detector string) (*geom.Detector, error)
	DetSimTags(ctx context.Context) ([]string, error)
	DetSimParams(ctx context.Context, tag string) (map[string]float64, error)
}

func doQuery(w io.Writer, db condDB, det, tag string) error {
	ctx := context.Background()

	dets := []string{det}
	if det == "" {
		v, err := db.Detectors(ctx)
		if err != nil {
			return fmt.Errorf("could not get detectors: %w", err)
		}
		dets = v
	}

	for _, name := range dets {
		geo, err := db.Geometry(ctx, name)
		if err != nil {
			return fmt.Errorf("could not get geometry of %q: %w", name, err)
		}
		fmt.Fprintf(w, "detector %q: %d modules\n", name, len(geo.Modules()))
		printGeometry(w, geo)
	}

	tags := []string{tag}
	if tag == "" {
		v, err := db.DetSimTags(ctx)
		if err != nil {
			return fmt.Errorf("could not get detsim tags: %w", err)
		}
		tags = v
	}

	for _, tag := range tags {
		params, err := db.DetSimParams(ctx, tag)
		if err != nil {
			return fmt.Errorf("could not get detsim parameters %q: %w", tag, err)
		}
		fmt.Fprintf(w, "detsim %q: %d parameters\n", tag, len(params))
		keys := maps.Keys(params)
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %-24s = %g\n", k, params[k])
		}
	}

	return nil
}

func printGeometry(w io.Writer, geo *geom.Detector) {
	type key struct {
		fam geom.Family
		reg geom.Region
	}
	var (
		mods   = make(map[key]int)
		strips = make(map[key]int)
	)
	for _, id := range geo.Modules() {
		cls, err := geo.Classify(id)
		if err != nil {
			fmt.Fprintf(w, "  module %3d: %v\n", id, err)
			continue
		}
		k := key{cls.Family, cls.Region}
		mods[k]++
		strips[k] += cls.NumStrips
	}

	keys := maps.Keys(mods)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].fam != keys[j].fam {
			return keys[i].fam < keys[j].fam
		}
		return keys[i].reg < keys[j].reg
	})
	for _, k := range keys {
		fmt.Fprintf(w, "  %-6s %-10s modules=%3d strips=%4d\n",
			k.fam, k.reg, mods[k], strips[k],
		)
	}
}
