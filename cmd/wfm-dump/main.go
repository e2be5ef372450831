// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// wfm-dump decodes and displays waveform data files.
//
// Usage: wfm-dump [OPTIONS] FILE
//
// Each line holds the time of a sample followed by the value of that
// sample for each active channel. Frames and events are separated by
// empty lines.
//
// Example:
//
//	$> wfm-dump -n 1 ./run-001.lcio
//	wfm-dump: attributes:
//	wfm-dump: chmask=0x05 nsamples=1000 nframes=0 dt=2e-10 t0=-1e-07
//	wfm-dump: [...]
//	wfm-dump: events: 100
//	  0.0000000000000000e+00  -2.0000000000000000e-03   4.0000000000000001e-03
//	  2.0000000000000001e-10  -1.0000000000000000e-03   4.0000000000000001e-03
//	[...]
package main // import "github.com/go-lpc/oscope/cmd/wfm-dump"

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/oscope/store"
	"github.com/go-lpc/oscope/wfm"
)

func main() {
	log.SetPrefix("wfm-dump: ")
	log.SetFlags(0)

	var (
		first = flag.Int64("i", 0, "first event to dump")
		nevts = flag.Int64("n", 0, "number of events to dump (0: all)")
	)

	flag.Usage = func() {
		fmt.Printf(`wfm-dump decodes and displays waveform data files.

Usage: wfm-dump [OPTIONS] FILE

Example:

 $> wfm-dump -i 10 -n 2 ./run-001.lcio

Options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		log.Fatalf("missing path to input waveform file")
	}

	msg := log.New(os.Stderr, "wfm-dump: ", 0)
	err := process(os.Stdout, msg, flag.Arg(0), *first, *nevts)
	if err != nil {
		log.Fatalf("could not dump file %q: %+v", flag.Arg(0), err)
	}
}

func process(w io.Writer, msg *log.Logger, fname string, first, nevts int64) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	r, err := store.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open waveform file: %w", err)
	}
	defer r.Close()

	attr := r.Attributes()
	msg.Printf("attributes:\n%v", attr)

	total := r.NumEvents()
	msg.Printf("events: %d", total)

	if first < 0 || (first >= total && total > 0) {
		return fmt.Errorf("invalid first event %d (events=%d)", first, total)
	}
	if nevts <= 0 || first+nevts > total {
		nevts = total - first
	}

	var (
		chans = attr.Channels()
		nspl  = attr.NumSamples
		frame = attr.FrameSize()
		evt   wfm.Event
	)
	if attr.NumFrames > 0 {
		msg.Printf("frame size: %d", frame)
	}

	for id := first; id < first+nevts; id++ {
		err := r.ReadEvent(id, &evt)
		if err != nil {
			return fmt.Errorf("could not read event %d: %w", id, err)
		}

		for i := 0; i < nspl; i++ {
			fmt.Fprintf(wbuf, "%24.16e ", attr.Dt*float64(i))
			for j, ch := range chans {
				v := attr.Scale(ch, evt.Data[j*nspl+i])
				fmt.Fprintf(wbuf, "%24.16e ", v)
			}
			wbuf.WriteString("\n")
			if (i+1)%frame == 0 {
				wbuf.WriteString("\n")
			}
		}
		wbuf.WriteString("\n")
	}

	err = r.Close()
	if err != nil {
		return fmt.Errorf("could not close waveform file: %w", err)
	}

	return nil
}
