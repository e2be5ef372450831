// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-lpc/oscope/store"
	"github.com/go-lpc/oscope/wfm"
)

func TestDump(t *testing.T) {
	tmpdir, err := os.MkdirTemp("", "wfm-dump-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpdir)

	var (
		fname = filepath.Join(tmpdir, "run.lcio")
		attr  = wfm.Attributes{
			ChanMask:   0x5,
			NumSamples: 4,
			NumFrames:  2,
			Dt:         0.5,
			YMult:      [wfm.NumChannels]float64{1, 1, 2, 1},
			YOff:       [wfm.NumChannels]float64{0, 0, 1, 0},
		}
	)

	w, err := store.Create(fname, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	err = w.WriteHeader(attr)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		evt := wfm.Event{
			ID:   int64(i),
			Data: []byte{byte(i), 1, 2, 0xff, 1, 2, 3, 4},
		}
		err = w.WriteEvent(&evt)
		if err != nil {
			t.Fatal(err)
		}
	}
	err = w.Close()
	if err != nil {
		t.Fatal(err)
	}

	msg := log.New(io.Discard, "", 0)
	for _, tc := range []struct {
		name  string
		first int64
		nevts int64
		want  string
	}{
		{
			name:  "last",
			first: 2,
			nevts: 0,
			want: `  0.0000000000000000e+00   2.0000000000000000e+00   0.0000000000000000e+00 
  5.0000000000000000e-01   1.0000000000000000e+00   2.0000000000000000e+00 

  1.0000000000000000e+00   2.0000000000000000e+00   4.0000000000000000e+00 
  1.5000000000000000e+00  -1.0000000000000000e+00   6.0000000000000000e+00 


`,
		},
		{
			name:  "first",
			first: 0,
			nevts: 1,
			want: `  0.0000000000000000e+00   0.0000000000000000e+00   0.0000000000000000e+00 
  5.0000000000000000e-01   1.0000000000000000e+00   2.0000000000000000e+00 

  1.0000000000000000e+00   2.0000000000000000e+00   4.0000000000000000e+00 
  1.5000000000000000e+00  -1.0000000000000000e+00   6.0000000000000000e+00 


`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			o := new(strings.Builder)
			err := process(o, msg, fname, tc.first, tc.nevts)
			if err != nil {
				t.Fatalf("could not dump file: %+v", err)
			}
			if got, want := o.String(), tc.want; got != want {
				t.Fatalf("invalid dump:\ngot:\n%s\nwant:\n%s\n", got, want)
			}
		})
	}

	o := new(strings.Builder)
	err = process(o, msg, fname, 0, 0)
	if err != nil {
		t.Fatalf("could not dump file: %+v", err)
	}
	if got, want := strings.Count(o.String(), "\n"), 3*(4+2+1); got != want {
		t.Fatalf("invalid number of lines: got=%d, want=%d", got, want)
	}

	err = process(o, msg, fname, 3, 1)
	if err == nil {
		t.Fatalf("expected an error for an out of range event")
	}

	err = process(o, msg, filepath.Join(tmpdir, "not-there.lcio"), 0, 0)
	if err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}
