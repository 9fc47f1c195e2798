// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command feb2lcio converts a raw FEB stream file to a LCIO one.
package main // import "github.com/go-lpc/crt/cmd/feb2lcio"

import (
	"bufio"
	"compress/flate"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-lpc/crt/feb"
	"github.com/go-lpc/crt/internal/xcnv"
	"go-hep.org/x/hep/lcio"
)

var (
	msg = log.New(os.Stdout, "feb2lcio: ", 0)
)

func main() {
	var (
		oname = flag.String("o", "out.lcio", "path to output LCIO file")
		compr = flag.Int("lvl", flate.DefaultCompression, "compression level for output LCIO file")
		run   = flag.Int("run", -1, "run number (default: inferred from crt_RUN.ITR.raw input file name)")
	)

	flag.Usage = func() {
		fmt.Printf(`Usage: feb2lcio [OPTIONS] file.raw

ex:
 $> feb2lcio -o out.lcio -lvl=9 ./crt_063.000.raw

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		msg.Fatalf("missing input FEB raw file")
	}

	if *oname == "" {
		flag.Usage()
		msg.Fatalf("invalid output LCIO file name")
	}

	err := process(*oname, *compr, flag.Arg(0), int32(*run))
	if err != nil {
		msg.Fatalf("could not convert FEB file: %+v", err)
	}
}

func process(oname string, lvl int, fname string, run int32) error {
	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open FEB file: %w", err)
	}
	defer f.Close()

	if run < 0 {
		run, err = runNbrFrom(fname)
		if err != nil {
			return fmt.Errorf("could not infer run from %q: %w", fname, err)
		}
	}

	w, err := lcio.Create(oname)
	if err != nil {
		return fmt.Errorf("could not create output LCIO file: %w", err)
	}
	defer w.Close()

	w.SetCompressionLevel(lvl)

	dec := feb.NewDecoder(bufio.NewReader(f))
	err = xcnv.FEB2LCIO(w, dec, run, msg)
	if err != nil {
		return fmt.Errorf("could not convert FEB to LCIO: %w", err)
	}

	err = w.Close()
	if err != nil {
		return fmt.Errorf("could not close output LCIO file: %w", err)
	}

	return nil
}

func runNbrFrom(fname string) (int32, error) {
	var (
		name = filepath.Base(fname)
		run  int32
		itr  int32
	)
	_, err := fmt.Sscanf(name, "crt_%d.%d.raw", &run, &itr)
	return run, err
}
