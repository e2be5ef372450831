// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wfm describes waveforms acquired from a digital oscilloscope.
package wfm // import "github.com/go-lpc/oscope/wfm"

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// NumChannels is the number of hardware channels of the instrument.
const NumChannels = 4

// Attributes describes the acquisition settings of a run.
type Attributes struct {
	ChanMask   uint32 // bitmask of active hardware channels
	NumSamples int    // number of samples per channel per event (all frames included)
	NumFrames  int    // number of fast-frames per event (0: fast-frame disabled)

	Dt float64 // sample interval (s)
	T0 float64 // time origin (s)

	YMult [NumChannels]float64
	YOff  [NumChannels]float64
	YZero [NumChannels]float64
}

// NumActive returns the number of active channels.
func (attr Attributes) NumActive() int {
	return bits.OnesCount32(attr.ChanMask & (1<<NumChannels - 1))
}

// Channels returns the hardware indices of the active channels,
// in increasing order.
func (attr Attributes) Channels() []int {
	chans := make([]int, 0, NumChannels)
	for i := 0; i < NumChannels; i++ {
		if attr.ChanMask&(1<<i) != 0 {
			chans = append(chans, i)
		}
	}
	return chans
}

// FrameSize returns the number of samples per fast-frame.
func (attr Attributes) FrameSize() int {
	if attr.NumFrames <= 0 {
		return attr.NumSamples
	}
	return attr.NumSamples / attr.NumFrames
}

// RawEventSize returns the number of bytes the instrument sends for one
// event: a block header and the samples for each active channel, and
// the terminating newline.
func (attr Attributes) RawEventSize() int {
	hdr := len("#X") + len(strconv.Itoa(attr.NumSamples))
	return (hdr+attr.NumSamples)*attr.NumActive() + 1
}

// Scale converts a raw sample of hardware channel ch into its
// engineering value.
func (attr Attributes) Scale(ch int, raw byte) float64 {
	return (float64(int8(raw)) - attr.YOff[ch]) * attr.YMult[ch]
}

// Validate checks the attributes are usable for an acquisition.
func (attr Attributes) Validate() error {
	if err := validateMask(attr.ChanMask); err != nil {
		return err
	}
	if attr.NumSamples <= 0 {
		return fmt.Errorf("wfm: invalid number of samples (%d)", attr.NumSamples)
	}
	if attr.NumFrames < 0 {
		return fmt.Errorf("wfm: invalid number of frames (%d)", attr.NumFrames)
	}
	if attr.NumFrames > 0 && attr.NumSamples%attr.NumFrames != 0 {
		return fmt.Errorf(
			"wfm: %d samples do not split into %d frames",
			attr.NumSamples, attr.NumFrames,
		)
	}
	return nil
}

func (attr Attributes) String() string {
	o := new(strings.Builder)
	fmt.Fprintf(o, "chmask=0x%02x nsamples=%d nframes=%d dt=%g t0=%g\n",
		attr.ChanMask, attr.NumSamples, attr.NumFrames, attr.Dt, attr.T0,
	)
	fmt.Fprintf(o, "ymult=%g %g %g %g\n", attr.YMult[0], attr.YMult[1], attr.YMult[2], attr.YMult[3])
	fmt.Fprintf(o, "yoff= %g %g %g %g\n", attr.YOff[0], attr.YOff[1], attr.YOff[2], attr.YOff[3])
	fmt.Fprintf(o, "yzero=%g %g %g %g", attr.YZero[0], attr.YZero[1], attr.YZero[2], attr.YZero[3])
	return o.String()
}

// ParseMask parses a hexadecimal channel mask, with or without
// a leading "0x".
func ParseMask(s string) (uint32, error) {
	v := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	mask, err := strconv.ParseUint(v, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("wfm: invalid channel mask %q: %w", s, err)
	}
	if err := validateMask(uint32(mask)); err != nil {
		return 0, err
	}
	return uint32(mask), nil
}

func validateMask(mask uint32) error {
	if mask == 0 || mask >= 1<<NumChannels {
		return fmt.Errorf("wfm: invalid channel mask 0x%x", mask)
	}
	return nil
}

// Event is one trigger worth of samples for all active channels.
type Event struct {
	ID   int64  // zero-based event number
	Data []byte // raw samples, one segment of NumSamples bytes per active channel
}

// Channel returns the i-th active channel segment of the event, for
// segments of n samples.
func (evt *Event) Channel(i, n int) []byte {
	return evt.Data[i*n : (i+1)*n]
}

// EventWriter is the interface that wraps the WriteEvent method.
//
// WriteEvent must not retain evt.Data after it returns.
type EventWriter interface {
	WriteEvent(evt *Event) error
}

// EventWriterFunc adapts a function into an EventWriter.
type EventWriterFunc func(evt *Event) error

func (f EventWriterFunc) WriteEvent(evt *Event) error { return f(evt) }

// EventReader is the interface that wraps the ReadEvent method.
type EventReader interface {
	ReadEvent(id int64, evt *Event) error
}
