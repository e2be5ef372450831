// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command scope-runs lists the acquisition runs recorded in a run registry.
//
// Usage: scope-runs [OPTIONS]
//
// Example:
//
//	$> scope-runs -db "user:pass@tcp(localhost:3306)/oscope" -n 5
package main // import "github.com/go-lpc/oscope/cmd/scope-runs"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-lpc/oscope/rundb"
)

func main() {
	log.SetPrefix("scope-runs: ")
	log.SetFlags(0)

	var (
		dsn  = flag.String("db", "", "data source name of the run registry")
		n    = flag.Int("n", 10, "number of runs to display")
		mkdb = flag.Bool("init", false, "create the run registry tables")
	)

	flag.Parse()

	if *dsn == "" {
		flag.Usage()
		log.Fatalf("missing run registry data source name")
	}

	db, err := rundb.Open(*dsn)
	if err != nil {
		log.Fatalf("could not open run registry: %+v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if *mkdb {
		err = db.Init(ctx)
		if err != nil {
			log.Fatalf("could not initialize run registry: %+v", err)
		}
	}

	runs, err := db.Runs(ctx, *n)
	if err != nil {
		log.Fatalf("could not retrieve runs: %+v", err)
	}

	err = display(os.Stdout, runs)
	if err != nil {
		log.Fatalf("could not display runs: %+v", err)
	}
}

const timeFmt = "2006-01-02 15:04:05"

func display(w io.Writer, runs []rundb.Run) error {
	_, err := fmt.Fprintf(w, "%6s %-20s %-6s %8s %8s %-19s %-10s %s\n",
		"run", "instrument", "chmask", "events", "samples", "start", "duration", "output",
	)
	if err != nil {
		return err
	}

	for _, run := range runs {
		var (
			nevts = fmt.Sprintf("%d", run.Recorded)
			dur   = "running"
		)
		if run.Events > 0 {
			nevts = fmt.Sprintf("%d/%d", run.Recorded, run.Events)
		}
		if !run.Stop.IsZero() {
			dur = run.Stop.Sub(run.Start).Round(time.Second).String()
		}
		_, err = fmt.Fprintf(w, "%6d %-20s 0x%-4x %8s %8d %-19s %-10s %s\n",
			run.ID, run.Instrument, run.ChanMask, nevts, run.NumSamples,
			run.Start.UTC().Format(timeFmt), dur, run.Output,
		)
		if err != nil {
			return err
		}
	}

	return nil
}
