// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/oscope/rundb"
)

func TestDisplay(t *testing.T) {
	beg := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	runs := []rundb.Run{
		{
			ID:         2,
			Instrument: "192.168.1.10:4000",
			Output:     "run-002.lcio",
			ChanMask:   0xf,
			NumSamples: 1000,
			Start:      beg.Add(time.Hour),
			Recorded:   12,
		},
		{
			ID:         1,
			Instrument: "192.168.1.10:4000",
			Output:     "run-001.lcio",
			ChanMask:   0x5,
			Events:     100,
			NumSamples: 250,
			Start:      beg,
			Stop:       beg.Add(90 * time.Second),
			Recorded:   100,
		},
	}

	var out strings.Builder
	err := display(&out, runs)
	if err != nil {
		t.Fatalf("could not display runs: %+v", err)
	}

	want := `   run instrument           chmask   events  samples start               duration   output
     2 192.168.1.10:4000    0xf          12     1000 2024-03-01 11:00:00 running    run-002.lcio
     1 192.168.1.10:4000    0x5     100/100      250 2024-03-01 10:00:00 1m30s      run-001.lcio
`
	if got := out.String(); got != want {
		t.Fatalf("invalid display:\ngot:\n%s\nwant:\n%s", got, want)
	}
}
