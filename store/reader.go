// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-lpc/oscope/wfm"
	"go-hep.org/x/hep/lcio"
)

// Reader reads waveform events from an LCIO file.
type Reader struct {
	fname string
	r     *lcio.Reader
	attr  wfm.Attributes
	nchs  int

	evt   lcio.Event // next event from the LCIO stream
	ok    bool       // whether evt is valid
	nevts int64      // number of events in file (-1: not counted yet)
}

// Open opens the named LCIO file for reading.
func Open(fname string) (*Reader, error) {
	r := &Reader{
		fname: fname,
		nevts: -1,
	}

	err := r.open()
	if err != nil {
		return nil, err
	}

	r.attr, r.nchs, err = decodeHeader(r.r.RunHeader().Params)
	if err != nil {
		_ = r.r.Close()
		return nil, fmt.Errorf("store: could not read header of %q: %w", fname, err)
	}

	return r, nil
}

func (r *Reader) open() error {
	if r.r != nil {
		_ = r.r.Close()
		r.r = nil
	}

	lr, err := lcio.Open(r.fname)
	if err != nil {
		return fmt.Errorf("store: could not open LCIO file %q: %w", r.fname, err)
	}
	r.r = lr

	return r.next()
}

// next loads the next event from the LCIO stream.
func (r *Reader) next() error {
	r.ok = r.r.Next()
	if r.ok {
		r.evt = r.r.Event()
		return nil
	}

	err := r.r.Err()
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("store: could not read LCIO file %q: %w", r.fname, err)
	}
	return nil
}

// Attributes returns the acquisition attributes of the file.
func (r *Reader) Attributes() wfm.Attributes { return r.attr }

// NumEvents returns the number of events stored in the file.
func (r *Reader) NumEvents() int64 {
	if r.nevts >= 0 {
		return r.nevts
	}

	lr, err := lcio.Open(r.fname)
	if err != nil {
		return 0
	}
	defer lr.Close()

	var n int64
	for lr.Next() {
		n++
	}
	r.nevts = n
	return n
}

// ReadEvent reads the event with the provided id into evt.
func (r *Reader) ReadEvent(id int64, evt *wfm.Event) error {
	if !r.ok || int64(r.evt.EventNumber) > id {
		err := r.open()
		if err != nil {
			return err
		}
	}

	for r.ok && int64(r.evt.EventNumber) < id {
		err := r.next()
		if err != nil {
			return err
		}
	}

	if !r.ok || int64(r.evt.EventNumber) != id {
		return fmt.Errorf("store: could not read event %d from %q: %w", id, r.fname, ErrNotFound)
	}

	err := r.decode(evt)
	if err != nil {
		return err
	}

	return r.next()
}

func (r *Reader) decode(evt *wfm.Event) error {
	id := int64(r.evt.EventNumber)
	obj, ok := r.evt.Get(collName).(*lcio.GenericObject)
	if !ok || len(obj.Data) != r.nchs+1 {
		return fmt.Errorf("store: invalid event %d in %q", id, r.fname)
	}

	nspl := r.attr.NumSamples
	n := r.nchs * nspl
	if cap(evt.Data) < n {
		evt.Data = make([]byte, n)
	}
	evt.Data = evt.Data[:n]
	evt.ID = id

	for i := 0; i < r.nchs; i++ {
		err := unpack(evt.Channel(i, nspl), obj.Data[i].I32s)
		if err != nil {
			return fmt.Errorf("store: could not decode channel %d of event %d: %w", i, id, err)
		}
	}

	sum := obj.Data[r.nchs].I32s
	ref := checksum(evt.Data)
	if len(sum) != len(ref) || sum[0] != ref[0] || sum[1] != ref[1] {
		return fmt.Errorf("store: event %d in %q: %w", id, r.fname, ErrChecksum)
	}

	return nil
}

// Close closes the file.
func (r *Reader) Close() error {
	if r.r == nil {
		return nil
	}
	err := r.r.Close()
	r.r = nil
	if err != nil {
		return fmt.Errorf("store: could not close LCIO file %q: %w", r.fname, err)
	}
	return nil
}

var _ wfm.EventReader = (*Reader)(nil)
