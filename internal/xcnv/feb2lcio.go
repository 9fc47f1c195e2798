// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"

	"github.com/go-lpc/crt/feb"
	"go-hep.org/x/hep/lcio"
)

// FEB2LCIO converts a raw FEB stream into LCIO, one LCIO event per FEB
// event.
func FEB2LCIO(w *lcio.Writer, dec *feb.Decoder, run int32, msg *log.Logger) error {
	evts := make([]feb.Event, 1)

loop:
	for i := 0; ; i++ {
		if i%100 == 0 {
			msg.Printf("processing evt %d...", i)
		}
		err := dec.Decode(&evts[0])
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			return fmt.Errorf("could not decode FEB event: %w", err)
		}

		if i == 0 {
			err = w.WriteRunHeader(&lcio.RunHeader{
				RunNumber: run,
				Detector:  Detector,
				Descr:     "raw FEB stream",
			})
			if err != nil {
				return fmt.Errorf("could not write run header: %w", err)
			}
		}

		evt := lcio.Event{
			RunNumber:   run,
			EventNumber: int32(i),
			TimeStamp:   int64(math.Round(evts[0].TTrig * 1e3)),
			Detector:    Detector,
		}
		evt.Add(FEBData, GenericObject(evts))

		err = w.WriteEvent(&evt)
		if err != nil {
			return fmt.Errorf("could not write FEB event: %w", err)
		}
	}

	return nil
}

// LCIO2FEB converts the FEB events of the named collection held in a LCIO
// stream into a raw FEB stream.
// Events without the collection are skipped.
func LCIO2FEB(w io.Writer, r *lcio.Reader, name string, freq int, msg *log.Logger) error {
	var (
		enc = feb.NewEncoder(w)
		i   = 0
	)

	for r.Next() {
		if freq > 0 && i%freq == 0 {
			msg.Printf("processing evt %d...", i)
		}
		i++

		evt := r.Event()
		obj, ok := evt.Get(name).(*lcio.GenericObject)
		if !ok {
			continue
		}
		evts, err := FEBEvents(obj)
		if err != nil {
			return fmt.Errorf("could not decode LCIO event %d: %w", evt.EventNumber, err)
		}
		for j := range evts {
			err = enc.Encode(&evts[j])
			if err != nil {
				return fmt.Errorf("could not encode FEB event: %w", err)
			}
		}
	}

	if err := r.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("could not read LCIO stream: %w", err)
	}

	return nil
}
