// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package store reads and writes waveform events from and to LCIO files.
//
// The acquisition attributes are stored in the run header of the file.
// Each waveform event is stored as an LCIO event holding a single
// generic object collection, with one data block per active channel
// and a trailing data block holding the checksum of the samples.
package store // import "github.com/go-lpc/oscope/store"

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/go-lpc/oscope/wfm"
	"go-hep.org/x/hep/lcio"
)

const (
	collName = "WAVEFORMS"
	detector = "OSCOPE"
)

var (
	// ErrChecksum is returned when the samples of an event do not match
	// their stored checksum.
	ErrChecksum = errors.New("store: checksum mismatch")

	// ErrNotFound is returned when reading an event missing from a file.
	ErrNotFound = errors.New("store: event not found")
)

func encodeHeader(attr wfm.Attributes, nchs int) lcio.Params {
	fmtFloats := func(vs []float64) []string {
		o := make([]string, len(vs))
		for i, v := range vs {
			o[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		return o
	}
	return lcio.Params{
		Ints: map[string][]int32{
			"ChanMask":   {int32(attr.ChanMask)},
			"NumChans":   {int32(nchs)},
			"NumSamples": {int32(attr.NumSamples)},
			"NumFrames":  {int32(attr.NumFrames)},
		},
		Strings: map[string][]string{
			"Dt":    fmtFloats([]float64{attr.Dt}),
			"T0":    fmtFloats([]float64{attr.T0}),
			"YMult": fmtFloats(attr.YMult[:]),
			"YOff":  fmtFloats(attr.YOff[:]),
			"YZero": fmtFloats(attr.YZero[:]),
		},
	}
}

func decodeHeader(params lcio.Params) (wfm.Attributes, int, error) {
	var attr wfm.Attributes

	getInt := func(name string) (int, error) {
		vs, ok := params.Ints[name]
		if !ok || len(vs) != 1 {
			return 0, fmt.Errorf("store: missing header field %q", name)
		}
		return int(vs[0]), nil
	}
	getFloats := func(name string, dst []float64) error {
		vs, ok := params.Strings[name]
		if !ok || len(vs) != len(dst) {
			return fmt.Errorf("store: missing header field %q", name)
		}
		for i, v := range vs {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("store: invalid header field %q: %w", name, err)
			}
			dst[i] = f
		}
		return nil
	}

	mask, err := getInt("ChanMask")
	if err != nil {
		return attr, 0, err
	}
	attr.ChanMask = uint32(mask)

	nchs, err := getInt("NumChans")
	if err != nil {
		return attr, 0, err
	}

	attr.NumSamples, err = getInt("NumSamples")
	if err != nil {
		return attr, 0, err
	}

	attr.NumFrames, err = getInt("NumFrames")
	if err != nil {
		return attr, 0, err
	}

	var xs [2]float64
	for _, f := range []struct {
		name string
		dst  []float64
	}{
		{"Dt", xs[:1]},
		{"T0", xs[1:]},
		{"YMult", attr.YMult[:]},
		{"YOff", attr.YOff[:]},
		{"YZero", attr.YZero[:]},
	} {
		err := getFloats(f.name, f.dst)
		if err != nil {
			return attr, 0, err
		}
	}
	attr.Dt, attr.T0 = xs[0], xs[1]

	err = attr.Validate()
	if err != nil {
		return attr, 0, fmt.Errorf("store: invalid header: %w", err)
	}
	if nchs != attr.NumActive() {
		return attr, 0, fmt.Errorf(
			"store: invalid header: %d channels for channel mask 0x%x",
			nchs, attr.ChanMask,
		)
	}

	return attr, nchs, nil
}

// pack packs samples into little-endian 32b words.
func pack(dst []int32, src []byte) []int32 {
	n := (len(src) + 3) / 4
	if cap(dst) < n {
		dst = make([]int32, n)
	}
	dst = dst[:n]

	var buf [4]byte
	for i := range dst {
		beg := 4 * i
		end := beg + 4
		if end > len(src) {
			buf = [4]byte{}
			copy(buf[:], src[beg:])
			dst[i] = int32(binary.LittleEndian.Uint32(buf[:]))
			continue
		}
		dst[i] = int32(binary.LittleEndian.Uint32(src[beg:end]))
	}
	return dst
}

// unpack unpacks len(dst) samples from little-endian 32b words.
func unpack(dst []byte, src []int32) error {
	if n := (len(dst) + 3) / 4; len(src) != n {
		return fmt.Errorf("store: invalid packed samples (words=%d, want=%d)", len(src), n)
	}

	var buf [4]byte
	for i, v := range src {
		binary.LittleEndian.PutUint32(buf[:], uint32(v))
		copy(dst[4*i:], buf[:])
	}
	return nil
}

func checksum(data []byte) []int32 {
	sum := xxhash.Sum64(data)
	return []int32{int32(uint32(sum)), int32(uint32(sum >> 32))}
}
