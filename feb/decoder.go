// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package feb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-lpc/crt/internal/crc16"
)

// Decoder reads (and validates) FEB events from an underlying data source.
// Decoder computes CRC-16 checksums on the fly.
type Decoder struct {
	r io.Reader

	buf []byte
	err error
	crc crc16.Hash16
}

// NewDecoder creates a decoder that reads and validates data from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:   r,
		buf: make([]byte, 8),
		crc: crc16.New(nil),
	}
}

// Decode reads the next FEB event from the stream.
// Decode returns an error wrapping io.EOF when the stream ends on an
// event boundary.
func (dec *Decoder) Decode(evt *Event) error {
	dec.err = nil
	dec.crc.Reset()

	v := dec.readU8()
	if dec.err != nil {
		return fmt.Errorf("feb: could not read event header marker: %w", dec.err)
	}
	if v != evHeader {
		return fmt.Errorf("feb: invalid event header marker (got=0x%x, want=0x%x)", v, evHeader)
	}

	evt.Mac5 = dec.readU32()
	evt.Index = dec.readU32()
	evt.TTrig = math.Float64frombits(dec.readU64())
	evt.Channel = dec.readU32()
	evt.LayerPair[0] = dec.readU32()
	evt.LayerPair[1] = dec.readU32()
	evt.MacPair[0] = dec.readU32()
	evt.MacPair[1] = dec.readU32()
	n := int(dec.readU16())
	if dec.err != nil {
		return fmt.Errorf("feb: could not read event header: %w", dec.unexpected())
	}

	evt.Hits = evt.Hits[:0]
	for i := 0; i < n; i++ {
		v := dec.readU8()
		if dec.err != nil {
			return fmt.Errorf(
				"feb: FEB 0x%x could not read hit header marker: %w",
				evt.Mac5, dec.unexpected(),
			)
		}
		if v != hitHeader {
			return fmt.Errorf(
				"feb: FEB 0x%x invalid hit header marker (got=0x%x, want=0x%x)",
				evt.Mac5, v, hitHeader,
			)
		}
		hit := Hit{
			Channel: dec.readU32(),
			T0:      dec.readU32(),
			PPS:     dec.readU32(),
			ADC:     int16(dec.readU16()),
		}
		if dec.err != nil {
			return fmt.Errorf("feb: FEB 0x%x could not read hit: %w", evt.Mac5, dec.unexpected())
		}
		evt.Hits = append(evt.Hits, hit)
	}

	v = dec.readU8()
	if dec.err != nil {
		return fmt.Errorf(
			"feb: FEB 0x%x could not read event trailer marker: %w",
			evt.Mac5, dec.unexpected(),
		)
	}
	if v != evTrailer {
		return fmt.Errorf(
			"feb: FEB 0x%x invalid event trailer marker (got=0x%x, want=0x%x)",
			evt.Mac5, v, evTrailer,
		)
	}

	var (
		compCRC = dec.crc.Sum16()
		recvCRC = dec.readU16()
	)
	if dec.err != nil {
		return fmt.Errorf("feb: FEB 0x%x could not receive CRC-16: %w", evt.Mac5, dec.unexpected())
	}
	if compCRC != recvCRC {
		return fmt.Errorf(
			"feb: FEB 0x%x inconsistent CRC: recv=0x%04x comp=0x%04x",
			evt.Mac5, recvCRC, compCRC,
		)
	}

	return nil
}

func (dec *Decoder) unexpected() error {
	if errors.Is(dec.err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return dec.err
}

func (dec *Decoder) load(n int) {
	if dec.err != nil {
		return
	}
	_, dec.err = io.ReadFull(dec.r, dec.buf[:n])
	if dec.err != nil {
		return
	}
	_, _ = dec.crc.Write(dec.buf[:n]) // can not fail.
}

func (dec *Decoder) readU8() uint8 {
	dec.load(1)
	return dec.buf[0]
}

func (dec *Decoder) readU16() uint16 {
	const n = 2
	dec.load(n)
	return binary.BigEndian.Uint16(dec.buf[:n])
}

func (dec *Decoder) readU32() uint32 {
	const n = 4
	dec.load(n)
	return binary.BigEndian.Uint32(dec.buf[:n])
}

func (dec *Decoder) readU64() uint64 {
	const n = 8
	dec.load(n)
	return binary.BigEndian.Uint64(dec.buf[:n])
}
