// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package curve

import (
	"fmt"

	"github.com/go-lpc/oscope/wfm"
)

type state uint8

const (
	stEventStart state = iota
	stChanStart
	stDigitCount
	stLenDigits
	stPayload
	stEventEnd
	stDone
)

func (st state) String() string {
	switch st {
	case stEventStart:
		return "event-start"
	case stChanStart:
		return "channel-start"
	case stDigitCount:
		return "digit-count"
	case stLenDigits:
		return "length-digits"
	case stPayload:
		return "payload"
	case stEventEnd:
		return "event-end"
	case stDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", uint8(st))
}

// Parser reconstructs events from a curve data stream.
//
// Bytes may be written to a Parser in runs of any size: the state of the
// parser is kept across calls to Write. Completed events are handed to
// the underlying event writer.
type Parser struct {
	w     wfm.EventWriter
	nchs  int   // number of active channels
	nspl  int   // number of samples per channel
	nevts int64 // number of events to parse (<=0: no limit)

	st   state
	ich  int // current channel
	off  int // offset in the current channel
	ndig int // number of length digits
	idig int // number of length digits read so far
	blen int // block length being decoded
	last int // last decoded block length

	evt wfm.Event
}

// NewParser returns a parser for events of nchans channels of nsamples
// samples each. Parsing stops after nevts events (or never, if nevts <= 0).
func NewParser(nchans, nsamples int, nevts int64, w wfm.EventWriter) *Parser {
	return &Parser{
		w:     w,
		nchs:  nchans,
		nspl:  nsamples,
		nevts: nevts,
		st:    stEventStart,
		evt: wfm.Event{
			Data: make([]byte, nchans*nsamples),
		},
	}
}

// Done returns whether all the requested events have been parsed.
func (p *Parser) Done() bool { return p.st == stDone }

// Events returns the number of events handed to the event writer.
func (p *Parser) Events() int64 { return p.evt.ID }

// BlockLen returns the length declared by the last block header.
// The declared length is informative only: each block payload is made
// of exactly nsamples bytes.
func (p *Parser) BlockLen() int { return p.last }

// Write feeds the parser with a run of bytes from the stream.
// Write returns ErrDone if bytes are left once all events have been parsed.
func (p *Parser) Write(data []byte) (int, error) {
	i := 0
	for i < len(data) {
		switch p.st {
		case stEventStart:
			p.ich = 0
			p.off = 0
			p.st = stChanStart

		case stChanStart:
			if data[i] == blockIntro {
				p.st = stDigitCount
			}
			i++

		case stDigitCount:
			c := data[i]
			if !isDigit(c) {
				return i, fmt.Errorf("curve: event %d, channel %d: %w (digit-count=%q)", p.evt.ID, p.ich, ErrHeader, c)
			}
			i++
			p.ndig = int(c - '0')
			p.idig = 0
			p.blen = 0
			p.st = stLenDigits
			if p.ndig == 0 {
				p.last = 0
				p.st = stPayload
			}

		case stLenDigits:
			c := data[i]
			if !isDigit(c) {
				return i, fmt.Errorf("curve: event %d, channel %d: %w (length=%q)", p.evt.ID, p.ich, ErrHeader, c)
			}
			i++
			p.blen = 10*p.blen + int(c-'0')
			p.idig++
			if p.idig >= p.ndig {
				p.last = p.blen
				p.st = stPayload
			}

		case stPayload:
			beg := p.ich*p.nspl + p.off
			end := (p.ich + 1) * p.nspl
			n := copy(p.evt.Data[beg:end], data[i:])
			i += n
			p.off += n
			if p.off == p.nspl {
				p.ich++
				p.off = 0
				p.st = stChanStart
				if p.ich >= p.nchs {
					p.st = stEventEnd
				}
			}

		case stEventEnd:
			c := data[i]
			i++
			if c != eventEnd {
				continue
			}
			err := p.w.WriteEvent(&p.evt)
			if err != nil {
				return i, fmt.Errorf("curve: could not write event %d: %w", p.evt.ID, err)
			}
			p.evt.ID++
			p.st = stEventStart
			if p.nevts > 0 && p.evt.ID >= p.nevts {
				p.st = stDone
			}

		case stDone:
			return i, ErrDone

		default:
			panic(fmt.Errorf("curve: invalid parser state %v", p.st))
		}
	}

	return i, nil
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }
