// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command feb-split splits a raw FEB stream file into n FEB files,
// one per FEB (MAC5 address).
package main // import "github.com/go-lpc/crt/cmd/feb-split"

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-lpc/crt/feb"
)

var (
	msg = log.New(os.Stdout, "feb-split: ", 0)
)

func main() {
	xmain(os.Args[1:])
}

func xmain(args []string) {
	var (
		fset = flag.NewFlagSet("feb", flag.ExitOnError)

		oname = fset.String("o", "out.raw", "path to output FEB file")
	)

	fset.Usage = func() {
		fmt.Printf(`Usage: feb-split [OPTIONS] file.raw

ex:
 $> feb-split -o out.raw ./crt_063.000.raw

options:
`)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		log.Fatalf("could not parse input arguments: %+v", err)
	}

	if fset.NArg() != 1 {
		fset.Usage()
		msg.Fatalf("missing input FEB raw file")
	}

	if *oname == "" {
		fset.Usage()
		msg.Fatalf("invalid output FEB raw file")
	}

	for _, arg := range fset.Args() {
		err := process(*oname, arg)
		if err != nil {
			msg.Fatalf("could not split FEB file %q: %+v", arg, err)
		}
	}
}

type output struct {
	f   *os.File
	w   *bufio.Writer
	enc *feb.Encoder
}

func (o *output) close() error {
	err := o.w.Flush()
	if err != nil {
		_ = o.f.Close()
		return fmt.Errorf("could not flush %q: %w", o.f.Name(), err)
	}
	err = o.f.Close()
	if err != nil {
		return fmt.Errorf("could not close %q: %w", o.f.Name(), err)
	}
	return nil
}

func process(oname string, fname string) (err error) {
	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open FEB file: %w", err)
	}
	defer f.Close()

	out := make(map[uint32]*output)
	defer func() {
		for _, o := range out {
			e := o.close()
			if e != nil && err == nil {
				err = e
			}
		}
	}()

	dec := feb.NewDecoder(bufio.NewReader(f))

loop:
	for {
		var evt feb.Event
		err := dec.Decode(&evt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			return fmt.Errorf("could not decode FEB event: %w", err)
		}

		o, ok := out[evt.Mac5]
		if !ok {
			oid := outFileFrom(oname, evt.Mac5)
			msg.Printf("creating output file %q...", oid)
			f, err := os.Create(oid)
			if err != nil {
				return fmt.Errorf("could not create output file: %w", err)
			}
			w := bufio.NewWriter(f)
			o = &output{f: f, w: w, enc: feb.NewEncoder(w)}
			out[evt.Mac5] = o
		}

		err = o.enc.Encode(&evt)
		if err != nil {
			return fmt.Errorf("could not encode FEB event: %w", err)
		}
	}

	return nil
}

func outFileFrom(fname string, mac5 uint32) string {
	var (
		ext   = filepath.Ext(fname)
		oname = strings.TrimSuffix(fname, ext) + fmt.Sprintf("-%03d%s", mac5, ext)
	)
	return oname
}
