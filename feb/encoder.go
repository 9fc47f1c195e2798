// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package feb

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/go-lpc/crt/internal/crc16"
)

// Encoder writes FEB events to an output stream.
// Encoder computes the CRC-16 checksum of each event on the fly and
// appends it after the event trailer.
type Encoder struct {
	w   io.Writer
	buf []byte
	err error
	crc crc16.Hash16
}

// NewEncoder returns a new Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w:   w,
		buf: make([]byte, 8),
		crc: crc16.New(nil),
	}
}

// Encode writes the FEB event to the stream.
func (enc *Encoder) Encode(evt *Event) error {
	if evt == nil {
		return nil
	}
	if len(evt.Hits) > MaxHits {
		return fmt.Errorf(
			"feb: FEB 0x%x event %d has too many hits (n=%d, max=%d)",
			evt.Mac5, evt.Index, len(evt.Hits), MaxHits,
		)
	}

	enc.crc.Reset()

	enc.writeU8(evHeader)
	if enc.err != nil {
		return fmt.Errorf("feb: could not write event header marker: %w", enc.err)
	}

	enc.writeU32(evt.Mac5)
	enc.writeU32(evt.Index)
	enc.writeU64(math.Float64bits(evt.TTrig))
	enc.writeU32(evt.Channel)
	enc.writeU32(evt.LayerPair[0])
	enc.writeU32(evt.LayerPair[1])
	enc.writeU32(evt.MacPair[0])
	enc.writeU32(evt.MacPair[1])
	enc.writeU16(uint16(len(evt.Hits)))

	for _, hit := range evt.Hits {
		enc.writeU8(hitHeader)
		enc.writeU32(hit.Channel)
		enc.writeU32(hit.T0)
		enc.writeU32(hit.PPS)
		enc.writeU16(uint16(hit.ADC))
	}
	enc.writeU8(evTrailer)
	enc.writeU16(enc.crc.Sum16())

	if enc.err != nil {
		return fmt.Errorf("feb: could not write FEB 0x%x event %d: %w", evt.Mac5, evt.Index, enc.err)
	}
	return nil
}

func (enc *Encoder) write(p []byte) {
	if enc.err != nil {
		return
	}
	_, enc.err = enc.w.Write(p)
	_, _ = enc.crc.Write(p) // can not fail.
}

func (enc *Encoder) writeU8(v uint8) {
	enc.buf[0] = v
	enc.write(enc.buf[:1])
}

func (enc *Encoder) writeU16(v uint16) {
	const n = 2
	binary.BigEndian.PutUint16(enc.buf[:n], v)
	enc.write(enc.buf[:n])
}

func (enc *Encoder) writeU32(v uint32) {
	const n = 4
	binary.BigEndian.PutUint32(enc.buf[:n], v)
	enc.write(enc.buf[:n])
}

func (enc *Encoder) writeU64(v uint64) {
	const n = 8
	binary.BigEndian.PutUint64(enc.buf[:n], v)
	enc.write(enc.buf[:n])
}
