// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command scope-tdaq starts a TDAQ server driving a networked digital
// oscilloscope.
//
// Usage: scope-tdaq [TDAQ-OPTIONS] HOST:PORT CHMASK [CONFIG.yaml]
//
// Waveforms are published on the /waveforms output as little-endian
// frames:
//
//	u64 event id | u32 nchans | u32 nsamples | nchans*nsamples raw samples
package main // import "github.com/go-lpc/oscope/cmd/scope-tdaq"

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/oscope/scope"
	"github.com/go-lpc/oscope/wfm"
)

func main() {
	cmd := flags.New()
	if len(cmd.Args) < 2 {
		log.Fatalf("missing instrument address and channel mask")
	}

	dev, err := newDevice(cmd.Args[0], cmd.Args[1], cmd.Args[2:]...)
	if err != nil {
		log.Fatalf("could not create device: %+v", err)
	}

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/waveforms", dev.waveforms)

	srv.RunHandle(dev.run)

	err = srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

type device struct {
	addr string
	mask uint32
	cfg  scope.Config
	msg  *log.Logger

	dev  *scope.Device
	attr wfm.Attributes

	n    atomic.Int64
	done <-chan struct{}
	data chan []byte
}

func newDevice(addr, mask string, cfg ...string) (*device, error) {
	m, err := wfm.ParseMask(mask)
	if err != nil {
		return nil, err
	}

	dev := &device{
		addr: addr,
		mask: m,
		cfg:  scope.DefaultConfig(),
		msg:  log.New(os.Stdout, "scope-tdaq: ", 0),
		data: make(chan []byte, 1024),
	}

	if len(cfg) > 0 {
		dev.cfg, err = scope.LoadConfig(cfg[0])
		if err != nil {
			return nil, err
		}
	}

	return dev, nil
}

func (dev *device) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	if dev.dev != nil {
		_ = dev.dev.Close()
		dev.dev = nil
	}

	sc, err := scope.Dial(ctx.Ctx, dev.addr,
		scope.WithConfig(dev.cfg),
		scope.WithLogger(dev.msg),
	)
	if err != nil {
		ctx.Msg.Errorf("could not dial instrument %q: %+v", dev.addr, err)
		return fmt.Errorf("could not dial instrument %q: %w", dev.addr, err)
	}

	attr, err := sc.Configure(dev.mask)
	if err != nil {
		_ = sc.Close()
		ctx.Msg.Errorf("could not configure instrument: %+v", err)
		return fmt.Errorf("could not configure instrument: %w", err)
	}
	ctx.Msg.Infof("instrument %q configured: %v", sc.ID(), attr)

	dev.dev = sc
	dev.attr = attr
	return nil
}

func (dev *device) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	dev.data = make(chan []byte, 1024)
	dev.n.Store(0)
	return nil
}

func (dev *device) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	dev.data = make(chan []byte, 1024)
	dev.n.Store(0)
	return nil
}

func (dev *device) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	if dev.dev == nil {
		return fmt.Errorf("instrument not configured")
	}
	return nil
}

func (dev *device) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	n := dev.n.Load()
	ctx.Msg.Debugf("received /stop command... -> n=%d", n)
	return nil
}

func (dev *device) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	if dev.dev == nil {
		return nil
	}
	err := dev.dev.Close()
	dev.dev = nil
	if err != nil {
		return fmt.Errorf("could not close instrument: %w", err)
	}
	return nil
}

func (dev *device) waveforms(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-dev.data:
		dst.Body = data
	}
	return nil
}

func (dev *device) run(ctx tdaq.Context) error {
	if dev.dev == nil {
		return fmt.Errorf("instrument not configured")
	}
	dev.done = ctx.Ctx.Done()

	err := dev.dev.Acquire(ctx.Ctx, 0, dev)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return nil
	default:
		ctx.Msg.Errorf("could not acquire waveforms: %+v", err)
		return fmt.Errorf("could not acquire waveforms: %w", err)
	}
}

// WriteEvent publishes an event on the /waveforms output.
func (dev *device) WriteEvent(evt *wfm.Event) error {
	raw := encode(evt, dev.attr.NumActive(), dev.attr.NumSamples)
	select {
	case <-dev.done:
		return context.Canceled
	case dev.data <- raw:
		dev.n.Add(1)
	}
	return nil
}

const hdrSize = 8 + 4 + 4

func encode(evt *wfm.Event, nchans, nsamples int) []byte {
	buf := make([]byte, hdrSize, hdrSize+len(evt.Data))
	binary.LittleEndian.PutUint64(buf[0:], uint64(evt.ID))
	binary.LittleEndian.PutUint32(buf[8:], uint32(nchans))
	binary.LittleEndian.PutUint32(buf[12:], uint32(nsamples))
	return append(buf, evt.Data...)
}
