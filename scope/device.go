// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scope

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/go-lpc/oscope/curve"
	"github.com/go-lpc/oscope/fifo"
	"github.com/go-lpc/oscope/wfm"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// Device is a connected oscilloscope.
type Device struct {
	addr string
	cfg  Config
	msg  *log.Logger
	reg  prometheus.Registerer
	met  *metrics
	conn *Conn

	idn  string
	attr wfm.Attributes
	ok   bool // whether the device has been configured
}

// Dial connects to the oscilloscope listening at addr (host:port).
func Dial(ctx context.Context, addr string, opts ...Option) (*Device, error) {
	dev := &Device{
		addr: addr,
		cfg:  DefaultConfig(),
		msg:  newLogger(),
	}
	for _, opt := range opts {
		opt(dev)
	}

	err := dev.cfg.Validate()
	if err != nil {
		return nil, err
	}
	dev.met = newMetrics(dev.reg)

	dev.msg.Printf("dialing %q...", addr)
	dev.conn, err = dial(ctx, addr, dev.cfg, dev.msg)
	if err != nil {
		return nil, err
	}
	dev.msg.Printf("dialing %q... [ok]", addr)

	return dev, nil
}

// ID returns the identification string of the instrument.
func (dev *Device) ID() string { return dev.idn }

// Attributes returns the acquisition attributes of the configured device.
func (dev *Device) Attributes() wfm.Attributes { return dev.attr }

// Configure enables the channels of mask and retrieves the
// acquisition attributes from the instrument.
func (dev *Device) Configure(mask uint32) (wfm.Attributes, error) {
	var (
		attr = wfm.Attributes{ChanMask: mask}
		tmo  = dev.cfg.QueryTimeout
	)
	dev.ok = false

	if attr.NumActive() == 0 || mask >= 1<<wfm.NumChannels {
		return attr, fmt.Errorf("scope: invalid channel mask 0x%x", mask)
	}

	idn, err := dev.conn.Query(cmdIDN, tmo)
	switch {
	case err == nil:
		dev.idn = strings.TrimSpace(string(idn))
		dev.msg.Printf("instrument: %s", dev.idn)
	case errors.Is(err, ErrNoResponse):
		dev.msg.Printf("instrument did not identify itself")
	default:
		return attr, fmt.Errorf("scope: could not identify instrument: %w", err)
	}

	err = dev.conn.Exec(cmdSelect(mask), tmo)
	if err != nil {
		return attr, fmt.Errorf("scope: could not select channels: %w", err)
	}

	vs, err := dev.query(cmdHorizontal, 3)
	if err != nil {
		return attr, fmt.Errorf("scope: could not query horizontal settings: %w", err)
	}
	attr.NumSamples, err = atoi(vs[0])
	if err != nil {
		return attr, fmt.Errorf("scope: could not parse record length: %w", err)
	}
	attr.Dt, err = atof(vs[1])
	if err != nil {
		return attr, fmt.Errorf("scope: could not parse sample interval: %w", err)
	}
	attr.T0, err = atof(vs[2])
	if err != nil {
		return attr, fmt.Errorf("scope: could not parse time origin: %w", err)
	}

	vs, err = dev.query(cmdFastFrame, 2)
	if err != nil {
		return attr, fmt.Errorf("scope: could not query fast-frame settings: %w", err)
	}
	fast, err := atob(vs[0])
	if err != nil {
		return attr, fmt.Errorf("scope: could not parse fast-frame state: %w", err)
	}
	switch fast {
	case true:
		attr.NumFrames, err = atoi(vs[1])
		if err != nil {
			return attr, fmt.Errorf("scope: could not parse fast-frame count: %w", err)
		}
		dev.msg.Printf("fast-frame mode, %d frames per event", attr.NumFrames)
		attr.NumSamples *= attr.NumFrames
	default:
		attr.NumFrames = 0
	}

	for ch := 0; ch < wfm.NumChannels; ch++ {
		vs, err := dev.query(cmdScale(ch), 3)
		if err != nil {
			return attr, fmt.Errorf("scope: could not query scale of channel %d: %w", ch+1, err)
		}
		for i, dst := range []*float64{&attr.YMult[ch], &attr.YOff[ch], &attr.YZero[ch]} {
			*dst, err = atof(vs[i])
			if err != nil {
				return attr, fmt.Errorf("scope: could not parse scale of channel %d: %w", ch+1, err)
			}
		}
	}

	dev.msg.Printf("attributes:\n%v", attr)

	err = attr.Validate()
	if err != nil {
		return attr, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	err = dev.conn.Exec(cmdSource(mask), tmo)
	if err != nil {
		return attr, fmt.Errorf("scope: could not select data source: %w", err)
	}

	err = dev.conn.Exec(cmdRange(attr.NumSamples), tmo)
	if err != nil {
		return attr, fmt.Errorf("scope: could not set data range: %w", err)
	}

	dev.attr = attr
	dev.ok = true
	return attr, nil
}

// query runs a configuration transaction expecting n ';'-separated fields.
func (dev *Device) query(q string, n int) ([]string, error) {
	reply, err := dev.conn.Query(q, dev.cfg.QueryTimeout)
	if err != nil {
		if errors.Is(err, ErrNoResponse) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
		return nil, err
	}

	toks := strings.Split(strings.TrimSpace(string(reply)), ";")
	if len(toks) < n {
		return nil, fmt.Errorf("%w: got %d fields, want %d (reply=%q)", ErrConfig, len(toks), n, reply)
	}
	for i, tok := range toks[:n] {
		// drop the command header of verbose replies.
		if fs := strings.Fields(tok); len(fs) > 0 {
			toks[i] = fs[len(fs)-1]
		}
	}
	return toks[:n], nil
}

func atoi(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return v, nil
}

func atof(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return v, nil
}

func atob(s string) (bool, error) {
	switch strings.ToUpper(s) {
	case "1", "ON":
		return true, nil
	case "0", "OFF":
		return false, nil
	}
	return false, fmt.Errorf("%w: invalid boolean %q", ErrConfig, s)
}

// Acquire streams nevts events (or events until ctx is done, if
// nevts <= 0) from the instrument into w.
//
// Once ctx is done, Acquire stops receiving, hands the complete events
// already received to w and returns the context error.
//
// When the acquisition stops early, the replies still in flight are
// discarded before Acquire returns, so the next acquisition starts on
// an event boundary.
func (dev *Device) Acquire(ctx context.Context, nevts int64, w wfm.EventWriter) error {
	if !dev.ok {
		return fmt.Errorf("scope: device not configured")
	}

	err := dev.acquire(ctx, nevts, w)
	if err != nil {
		n, derr := dev.conn.drain(dev.cfg.QueryTimeout)
		if n > 0 {
			dev.msg.Printf("discarded %d bytes of pending curve data", n)
		}
		if derr != nil {
			dev.msg.Printf("could not drain connection: %+v", derr)
		}
	}
	return err
}

func (dev *Device) acquire(ctx context.Context, nevts int64, w wfm.EventWriter) error {
	var (
		attr = dev.attr
		sink = &progress{
			w:     w,
			msg:   dev.msg,
			met:   dev.met,
			every: dev.cfg.LogEvery,
		}
		p   = curve.NewParser(attr.NumActive(), attr.NumSamples, nevts, sink)
		rcv = newReceiver(dev, nevts)
		beg = time.Now()
	)

	dev.msg.Printf("start time: %d", beg.Unix())
	defer func() {
		end := time.Now()
		dev.msg.Printf("stop time:  %d", end.Unix())
		dev.msg.Printf("acquired %d events in %v", p.Events(), end.Sub(beg))
	}()

	if !dev.cfg.Pipeline {
		err := rcv.run(ctx, p)
		if err != nil {
			return err
		}
		return dev.check(p, nevts)
	}

	f, err := fifo.New(dev.cfg.FIFOSize, fifo.WithSpins(dev.cfg.FIFOSpins))
	if err != nil {
		return fmt.Errorf("scope: could not create fifo: %w", err)
	}

	ctx, stop := context.WithCancelCause(ctx)
	defer stop(nil)

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		defer f.Close()
		err := rcv.run(ctx, f)
		if errors.Is(context.Cause(ctx), errParserDone) {
			return nil
		}
		return err
	})
	grp.Go(func() error {
		defer f.Close()
		buf := make([]byte, dev.cfg.PopSize)
		for !p.Done() {
			n, err := f.Pop(buf)
			if n > 0 {
				dev.met.fifo.Set(float64(f.Len()))
				_, werr := p.Write(buf[:n])
				if werr != nil && !errors.Is(werr, curve.ErrDone) {
					return werr
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return err
			}
		}
		if p.Done() {
			stop(errParserDone)
		}
		return nil
	})

	err = grp.Wait()
	if err != nil {
		return err
	}
	return dev.check(p, nevts)
}

var errParserDone = errors.New("scope: parser done")

func (dev *Device) check(p *curve.Parser, nevts int64) error {
	if nevts > 0 && p.Events() < nevts {
		return fmt.Errorf(
			"scope: stream ended after %d events (want=%d): %w",
			p.Events(), nevts, io.ErrUnexpectedEOF,
		)
	}
	return nil
}

// Close closes the connection to the instrument.
func (dev *Device) Close() error {
	err := dev.conn.Close()
	if err != nil {
		return fmt.Errorf("scope: could not close connection to %q: %w", dev.addr, err)
	}
	return nil
}

// progress forwards events to the user event writer and reports
// the acquisition progress.
type progress struct {
	w     wfm.EventWriter
	msg   *log.Logger
	met   *metrics
	every int64
}

func (p *progress) WriteEvent(evt *wfm.Event) error {
	err := p.w.WriteEvent(evt)
	if err != nil {
		return err
	}
	p.met.events.Inc()
	if n := evt.ID + 1; p.every > 0 && n%p.every == 0 {
		p.msg.Printf("event %d", n)
	}
	return nil
}
