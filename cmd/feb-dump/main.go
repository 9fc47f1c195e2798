// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// feb-dump decodes and displays raw FEB stream files.
//
// Usage: feb-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> feb-dump ./testdata/crt.raw
//	=== FEB 0x0c ===
//	Index:               0
//	TTrig:       1600.0625 µs
//	Channel:             4
//	Layer pair: ( 4, 20)
//	MAC5 pair:  (12, 12)
//	Hits:                3
//	  ch=04 t0=     25601 pps=   1234567 adc=  2000
//	  ch=05 t0=     25601 pps=   1234567 adc=  1800
//	  ch=20 t0=     25602 pps=   1234567 adc=    -3
//	[...]
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/crt/feb"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const usage = `feb-dump decodes and displays raw FEB stream files.

Usage: feb-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> feb-dump ./testdata/crt.raw
 === FEB 0x0c ===
 Index:               0
 TTrig:       1600.0625 µs
 Channel:             4
 Layer pair: ( 4, 20)
 MAC5 pair:  (12, 12)
 Hits:                3
   ch=04 t0=     25601 pps=   1234567 adc=  2000
   ch=05 t0=     25601 pps=   1234567 adc=  1800
   ch=20 t0=     25602 pps=   1234567 adc=    -3
 [...]

options:
`

func main() {
	xmain(os.Stdout, os.Args[1:])
}

func xmain(w io.Writer, args []string) {
	log.SetPrefix("feb-dump: ")
	log.SetFlags(0)

	var (
		fset = flag.NewFlagSet("feb-dump", flag.ExitOnError)

		summary = fset.Bool("summary", false, "only display the number of events per FEB")
	)

	fset.Usage = func() {
		fmt.Print(usage)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		log.Fatalf("could not parse input arguments: %+v", err)
	}

	if fset.NArg() == 0 {
		fset.Usage()
		log.Fatalf("missing path to input FEB file")
	}

	for _, fname := range fset.Args() {
		err := process(w, fname, *summary)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

func process(w io.Writer, fname string, summary bool) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", fname, err)
	}
	defer f.Close()

	var (
		dec  = feb.NewDecoder(bufio.NewReader(f))
		nevt = make(map[uint32]int)
		evt  feb.Event
	)

loop:
	for {
		err := dec.Decode(&evt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			return fmt.Errorf("could not decode FEB event: %w", err)
		}
		nevt[evt.Mac5]++
		if summary {
			continue
		}

		fmt.Fprintf(wbuf, "=== FEB 0x%02x ===\n", evt.Mac5)
		fmt.Fprintf(wbuf, "Index:      %10d\n", evt.Index)
		fmt.Fprintf(wbuf, "TTrig:      %10.4f µs\n", evt.TTrig)
		fmt.Fprintf(wbuf, "Channel:    %10d\n", evt.Channel)
		fmt.Fprintf(wbuf, "Layer pair: (%2d, %2d)\n", evt.LayerPair[0], evt.LayerPair[1])
		fmt.Fprintf(wbuf, "MAC5 pair:  (%2d, %2d)\n", evt.MacPair[0], evt.MacPair[1])
		fmt.Fprintf(wbuf, "Hits:       %10d\n", len(evt.Hits))

		for _, hit := range evt.Hits {
			fmt.Fprintf(wbuf, "  ch=%02d t0=%10d pps=%10d adc=%6d\n",
				hit.Channel, hit.T0, hit.PPS, hit.ADC,
			)
		}
	}

	if summary {
		ids := maps.Keys(nevt)
		slices.Sort(ids)
		for _, id := range ids {
			fmt.Fprintf(wbuf, "FEB 0x%02x: %8d events\n", id, nevt[id])
		}
	}

	return nil
}
