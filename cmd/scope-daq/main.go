// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command scope-daq acquires waveforms from a networked digital
// oscilloscope and stores them into an LCIO file.
//
// Usage: scope-daq [OPTIONS] HOST PORT OUTPUT CHMASK NEVENTS [EVTS-PER-CHUNK]
//
// CHMASK is the hexadecimal mask of the channels to acquire (e.g. 0x5 for
// channels 1 and 3). NEVENTS is the number of events to acquire (0 to
// acquire until interrupted).
//
// Example:
//
//	$> scope-daq 192.168.1.10 4000 ./run-001.lcio 0x5 1000
//	$> scope-daq -cfg ./scope.yaml -http :9100 -pmon 192.168.1.10 4000 ./run-002.lcio f 0 500
package main // import "github.com/go-lpc/oscope/cmd/scope-daq"

import (
	"compress/flate"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-lpc/oscope"
	"github.com/go-lpc/oscope/rundb"
	"github.com/go-lpc/oscope/scope"
	"github.com/go-lpc/oscope/store"
	"github.com/go-lpc/oscope/wfm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sbinet/pmon"
)

func main() {
	log.SetPrefix("scope-daq: ")
	log.SetFlags(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := xmain(ctx, os.Args[1:], os.Stdout)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

type options struct {
	addr   string
	output string
	mask   uint32
	nevts  int64
	chunk  int

	cfg    scope.Config
	lvl    int
	run    int32
	http   string
	dsn    string
	pmon   bool
	freq   time.Duration
	stdout io.Writer
}

func xmain(ctx context.Context, args []string, stdout io.Writer) error {
	fset := flag.NewFlagSet("scope-daq", flag.ContinueOnError)
	var (
		cfgName = fset.String("cfg", "", "path to a YAML acquisition configuration file")
		direct  = fset.Bool("direct", false, "parse the curve stream in the receiving goroutine")
		lvl     = fset.Int("lvl", flate.DefaultCompression, "compression level of the output file")
		run     = fset.Int("run", 0, "run number")
		addr    = fset.String("http", "", "address of the metrics HTTP server (e.g. :9100)")
		dsn     = fset.String("db", "", "data source name of the run registry (e.g. user:pass@tcp(host:3306)/oscope)")
		doMon   = fset.Bool("pmon", false, "enable pmon monitoring")
		freq    = fset.Duration("pmon-freq", 1*time.Second, "pmon frequency")
		vers    = fset.Bool("version", false, "print version and exit")
	)
	fset.SetOutput(stdout)
	fset.Usage = func() {
		fmt.Fprintf(stdout, `scope-daq acquires waveforms from a digital oscilloscope.

Usage: scope-daq [OPTIONS] HOST PORT OUTPUT CHMASK NEVENTS [EVTS-PER-CHUNK]

Example:

 $> scope-daq 192.168.1.10 4000 ./run-001.lcio 0x5 1000

Options:
`)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		return err
	}

	if *vers {
		v, sum := oscope.Version()
		fmt.Fprintf(stdout, "scope-daq %s %s\n", v, sum)
		return nil
	}

	if n := fset.NArg(); n < 5 || n > 6 {
		fset.Usage()
		return fmt.Errorf("invalid number of arguments (got=%d, want=5 or 6)", n)
	}

	opts := options{
		addr:   net.JoinHostPort(fset.Arg(0), fset.Arg(1)),
		output: fset.Arg(2),
		chunk:  100,
		cfg:    scope.DefaultConfig(),
		lvl:    *lvl,
		run:    int32(*run),
		http:   *addr,
		dsn:    *dsn,
		pmon:   *doMon,
		freq:   *freq,
		stdout: stdout,
	}

	opts.mask, err = wfm.ParseMask(fset.Arg(3))
	if err != nil {
		return fmt.Errorf("invalid channel mask: %w", err)
	}

	opts.nevts, err = strconv.ParseInt(fset.Arg(4), 10, 64)
	if err != nil || opts.nevts < 0 {
		return fmt.Errorf("invalid number of events %q", fset.Arg(4))
	}

	if fset.NArg() == 6 {
		opts.chunk, err = strconv.Atoi(fset.Arg(5))
		if err != nil || opts.chunk <= 0 {
			return fmt.Errorf("invalid number of events per chunk %q", fset.Arg(5))
		}
	}

	if *cfgName != "" {
		opts.cfg, err = scope.LoadConfig(*cfgName)
		if err != nil {
			return fmt.Errorf("could not load configuration: %w", err)
		}
	}
	if *direct {
		opts.cfg.Pipeline = false
	}

	return acquire(ctx, opts)
}

func acquire(ctx context.Context, opts options) error {
	msg := log.New(opts.stdout, "scope-daq: ", 0)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if opts.http != "" {
		srv := &http.Server{
			Addr:    opts.http,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}
		go func() {
			err := srv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				msg.Printf("could not serve metrics: %+v", err)
			}
		}()
		defer srv.Close()
	}

	if opts.pmon {
		stop, err := monitor(opts.output+".pmon", opts.freq, msg)
		if err != nil {
			return err
		}
		defer stop()
	}

	dev, err := scope.Dial(
		ctx, opts.addr,
		scope.WithConfig(opts.cfg),
		scope.WithLogger(log.New(opts.stdout, "scope: ", 0)),
		scope.WithMetrics(reg),
	)
	if err != nil {
		return fmt.Errorf("could not connect to instrument: %w", err)
	}
	defer dev.Close()

	attr, err := dev.Configure(opts.mask)
	if err != nil {
		return fmt.Errorf("could not configure instrument: %w", err)
	}

	w, err := store.Create(
		opts.output, opts.chunk, attr.NumActive(),
		store.WithCompression(opts.lvl),
		store.WithRunNumber(opts.run),
		store.WithDescription(dev.ID()),
	)
	if err != nil {
		return fmt.Errorf("could not create output file: %w", err)
	}
	defer w.Close()

	err = w.WriteHeader(attr)
	if err != nil {
		return fmt.Errorf("could not write output file header: %w", err)
	}

	runs := newRegistry(ctx, opts, attr, msg)
	defer runs.stop(w)

	err = dev.Acquire(ctx, opts.nevts, w)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		msg.Printf("interrupted: flushing %q...", opts.output)
	default:
		if cerr := w.Close(); cerr != nil {
			msg.Printf("could not close output file: %+v", cerr)
		}
		return fmt.Errorf("could not acquire events: %w", err)
	}

	err = w.Close()
	if err != nil {
		return fmt.Errorf("could not close output file: %w", err)
	}
	msg.Printf("stored %d events into %q", w.Events(), opts.output)

	return nil
}

// monitor starts monitoring the CPU and memory usage of the process.
func monitor(fname string, freq time.Duration, msg *log.Logger) (func(), error) {
	p, err := pmon.Monitor(os.Getpid())
	if err != nil {
		return nil, fmt.Errorf("could not start monitoring: %w", err)
	}
	f, err := os.Create(fname)
	if err != nil {
		return nil, fmt.Errorf("could not create pmon log file: %w", err)
	}
	p.W = f
	p.Freq = freq

	go func() {
		err := p.Run()
		if err != nil {
			msg.Printf("could not run pmon: %+v", err)
		}
	}()

	return func() {
		err := p.Kill()
		if err != nil {
			msg.Printf("could not stop monitoring: %+v", err)
		}
		_ = f.Close()
	}, nil
}

// registry records the run in the run registry, if any.
type registry struct {
	db  *rundb.DB
	id  int64
	msg *log.Logger
}

func newRegistry(ctx context.Context, opts options, attr wfm.Attributes, msg *log.Logger) *registry {
	reg := &registry{msg: msg}
	if opts.dsn == "" {
		return reg
	}

	db, err := rundb.Open(opts.dsn)
	if err != nil {
		msg.Printf("could not open run registry: %+v", err)
		return reg
	}

	err = db.Init(ctx)
	if err != nil {
		msg.Printf("could not initialize run registry: %+v", err)
		_ = db.Close()
		return reg
	}

	id, err := db.StartRun(ctx, rundb.Run{
		Instrument: opts.addr,
		Output:     opts.output,
		ChanMask:   attr.ChanMask,
		Events:     opts.nevts,
		NumSamples: attr.NumSamples,
		NumFrames:  attr.NumFrames,
		Start:      time.Now(),
	})
	if err != nil {
		msg.Printf("could not record run: %+v", err)
		_ = db.Close()
		return reg
	}
	msg.Printf("run registry: run id=%d", id)

	reg.db = db
	reg.id = id
	return reg
}

func (reg *registry) stop(w *store.Writer) {
	if reg.db == nil {
		return
	}
	defer reg.db.Close()

	err := reg.db.StopRun(context.Background(), reg.id, w.Events(), time.Now())
	if err != nil {
		reg.msg.Printf("could not record end of run: %+v", err)
	}
}
