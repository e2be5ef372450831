// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package curve

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-lpc/oscope/wfm"
)

// Encoder writes events as a curve data stream.
type Encoder struct {
	w    io.Writer
	nspl int
	hdr  []byte
	buf  []byte
	err  error
}

// NewEncoder returns a new Encoder that writes events of nsamples samples
// per channel to w.
func NewEncoder(w io.Writer, nsamples int) *Encoder {
	n := strconv.Itoa(nsamples)
	hdr := make([]byte, 0, 2+len(n))
	hdr = append(hdr, blockIntro, byte('0'+len(n)))
	hdr = append(hdr, n...)
	return &Encoder{
		w:    w,
		nspl: nsamples,
		hdr:  hdr,
	}
}

// Encode writes the event to the stream, one block per channel.
func (enc *Encoder) Encode(evt *wfm.Event) error {
	if enc.err != nil {
		return enc.err
	}
	if enc.nspl <= 0 || len(evt.Data)%enc.nspl != 0 {
		return fmt.Errorf("curve: invalid event size (len=%d, nsamples=%d)", len(evt.Data), enc.nspl)
	}

	nchs := len(evt.Data) / enc.nspl
	enc.buf = enc.buf[:0]
	for i := 0; i < nchs; i++ {
		enc.buf = append(enc.buf, enc.hdr...)
		enc.buf = append(enc.buf, evt.Channel(i, enc.nspl)...)
	}
	enc.buf = append(enc.buf, eventEnd)

	enc.write(enc.buf)
	if enc.err != nil {
		return fmt.Errorf("curve: could not write event %d: %w", evt.ID, enc.err)
	}
	return nil
}

func (enc *Encoder) write(p []byte) {
	if enc.err != nil {
		return
	}
	_, enc.err = enc.w.Write(p)
}
