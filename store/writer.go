// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"fmt"
	"time"

	"github.com/go-lpc/oscope/wfm"
	"go-hep.org/x/hep/lcio"
)

// Option configures a Writer.
type Option func(*Writer)

// WithCompression sets the compression level of the LCIO records.
func WithCompression(lvl int) Option {
	return func(w *Writer) {
		w.w.SetCompressionLevel(lvl)
	}
}

// WithRunNumber sets the run number of the file.
func WithRunNumber(run int32) Option {
	return func(w *Writer) {
		w.run = run
	}
}

// WithDescription sets the description of the run.
func WithDescription(descr string) Option {
	return func(w *Writer) {
		w.descr = descr
	}
}

// Writer writes waveform events to an LCIO file.
//
// Events are buffered and committed to the file by chunks.
type Writer struct {
	w     *lcio.Writer
	run   int32
	descr string
	chunk int // number of events per chunk
	nchs  int // number of active channels

	nspl  int // number of samples per channel
	hdr   bool
	evts  []lcio.Event
	words [][]int32 // recycled packed samples
	n     int64     // number of events committed
	done  bool      // whether the file has been closed
}

// Create creates a new LCIO file for waveform events of nchans channels.
// Events are committed to the file by chunks of evtsPerChunk events.
func Create(fname string, evtsPerChunk, nchans int, opts ...Option) (*Writer, error) {
	if evtsPerChunk <= 0 {
		return nil, fmt.Errorf("store: invalid number of events per chunk (%d)", evtsPerChunk)
	}
	if nchans <= 0 || nchans > wfm.NumChannels {
		return nil, fmt.Errorf("store: invalid number of channels (%d)", nchans)
	}

	w, err := lcio.Create(fname)
	if err != nil {
		return nil, fmt.Errorf("store: could not create LCIO file %q: %w", fname, err)
	}

	wrt := &Writer{
		w:     w,
		chunk: evtsPerChunk,
		nchs:  nchans,
		evts:  make([]lcio.Event, 0, evtsPerChunk),
	}
	for _, opt := range opts {
		opt(wrt)
	}

	return wrt, nil
}

// WriteHeader writes the acquisition attributes to the file.
// WriteHeader must be called once, before any call to WriteEvent.
func (w *Writer) WriteHeader(attr wfm.Attributes) error {
	if w.hdr {
		return fmt.Errorf("store: header already written")
	}
	err := attr.Validate()
	if err != nil {
		return fmt.Errorf("store: invalid attributes: %w", err)
	}
	if n := attr.NumActive(); n != w.nchs {
		return fmt.Errorf("store: invalid attributes: %d active channels (want=%d)", n, w.nchs)
	}

	err = w.w.WriteRunHeader(&lcio.RunHeader{
		RunNumber: w.run,
		Detector:  detector,
		Descr:     w.descr,
		Params:    encodeHeader(attr, w.nchs),
	})
	if err != nil {
		return fmt.Errorf("store: could not write run header: %w", err)
	}

	w.nspl = attr.NumSamples
	w.hdr = true
	return nil
}

// WriteEvent copies the event into the current chunk, and commits the
// chunk to the file once full.
func (w *Writer) WriteEvent(evt *wfm.Event) error {
	if w.done {
		return fmt.Errorf("store: write to closed file")
	}
	if !w.hdr {
		return fmt.Errorf("store: missing header")
	}
	if got, want := len(evt.Data), w.nchs*w.nspl; got != want {
		return fmt.Errorf("store: invalid event %d size (got=%d, want=%d)", evt.ID, got, want)
	}

	data := make([]lcio.GenericObjectData, w.nchs+1)
	for i := 0; i < w.nchs; i++ {
		data[i].I32s = pack(w.buffer(), evt.Channel(i, w.nspl))
	}
	data[w.nchs].I32s = checksum(evt.Data)

	lvt := lcio.Event{
		RunNumber:   w.run,
		EventNumber: int32(evt.ID),
		TimeStamp:   time.Now().UTC().UnixNano(),
		Detector:    detector,
	}
	lvt.Add(collName, &lcio.GenericObject{Data: data})
	w.evts = append(w.evts, lvt)

	if len(w.evts) >= w.chunk {
		return w.Flush()
	}
	return nil
}

func (w *Writer) buffer() []int32 {
	n := len(w.words)
	if n == 0 {
		return nil
	}
	buf := w.words[n-1]
	w.words = w.words[:n-1]
	return buf
}

// Flush commits the pending events to the file.
func (w *Writer) Flush() error {
	for i := range w.evts {
		evt := &w.evts[i]
		err := w.w.WriteEvent(evt)
		if err != nil {
			return fmt.Errorf("store: could not write event %d: %w", evt.EventNumber, err)
		}
		w.n++

		obj := evt.Get(collName).(*lcio.GenericObject)
		for _, d := range obj.Data[:w.nchs] {
			w.words = append(w.words, d.I32s)
		}
	}
	w.evts = w.evts[:0]
	return nil
}

// Events returns the number of events committed to the file.
func (w *Writer) Events() int64 { return w.n }

// Close commits the pending events and closes the file.
// Close is a no-op once the file has been closed.
func (w *Writer) Close() error {
	if w.done {
		return nil
	}
	w.done = true

	err := w.Flush()
	if err != nil {
		_ = w.w.Close()
		return err
	}

	err = w.w.Close()
	if err != nil {
		return fmt.Errorf("store: could not close LCIO file: %w", err)
	}
	return nil
}

var _ wfm.EventWriter = (*Writer)(nil)
