// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/oscope/internal/fakescope"
	"github.com/go-lpc/oscope/store"
	"github.com/go-lpc/oscope/wfm"
)

const testConfig = `
fifo_size: 65536
read_size: 1024
pop_size: 2048
query_timeout: 20ms
stall_timeout: 2s
dial_attempts: 2
dial_backoff: 10ms
`

func setup(t *testing.T, set fakescope.Settings) (fake *fakescope.Scope, host, port, tmpdir, cfg string) {
	t.Helper()

	fake, err := fakescope.New(set)
	if err != nil {
		t.Fatalf("could not create fake scope: %+v", err)
	}
	t.Cleanup(func() { _ = fake.Close() })

	host, port, err = net.SplitHostPort(fake.Addr())
	if err != nil {
		t.Fatalf("could not split address %q: %+v", fake.Addr(), err)
	}

	tmpdir, err = os.MkdirTemp("", "scope-daq-")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpdir) })

	cfg = filepath.Join(tmpdir, "cfg.yaml")
	err = os.WriteFile(cfg, []byte(testConfig), 0644)
	if err != nil {
		t.Fatal(err)
	}

	return fake, host, port, tmpdir, cfg
}

func checkFile(t *testing.T, fname string, nevts int64) {
	t.Helper()

	r, err := store.Open(fname)
	if err != nil {
		t.Fatalf("could not open output file: %+v", err)
	}
	defer r.Close()

	attr := r.Attributes()
	n := r.NumEvents()
	switch {
	case nevts > 0 && n != nevts:
		t.Fatalf("invalid number of events: got=%d, want=%d", n, nevts)
	case nevts <= 0 && n <= 0:
		t.Fatalf("no event stored")
	}

	var evt wfm.Event
	for id := int64(0); id < n; id++ {
		err := r.ReadEvent(id, &evt)
		if err != nil {
			t.Fatalf("could not read event %d: %+v", id, err)
		}
		want := fakescope.Event(id, attr.NumActive(), attr.NumSamples)
		if !bytes.Equal(evt.Data, want) {
			t.Fatalf("invalid event %d", id)
		}
	}
}

func TestAcquire(t *testing.T) {
	for _, tc := range []struct {
		name  string
		flags []string
		mask  string
		chunk string
	}{
		{name: "pipeline", mask: "0x3", chunk: "2"},
		{name: "direct", flags: []string{"-direct"}, mask: "5"},
		{name: "fast", flags: []string{"-lvl", "9", "-run", "42"}, mask: "0xf", chunk: "1"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			set := fakescope.Settings{
				RecLen:    250,
				Dt:        1e-9,
				YMult:     [wfm.NumChannels]float64{1, 1, 1, 1},
				ChunkSize: 100,
			}
			_, host, port, tmpdir, cfg := setup(t, set)

			out := filepath.Join(tmpdir, "out.lcio")
			args := append([]string{"-cfg", cfg}, tc.flags...)
			args = append(args, host, port, out, tc.mask, "5")
			if tc.chunk != "" {
				args = append(args, tc.chunk)
			}

			stdout := new(bytes.Buffer)
			err := xmain(context.Background(), args, stdout)
			if err != nil {
				t.Fatalf("could not run scope-daq: %+v\n%s", err, stdout.String())
			}

			checkFile(t, out, 5)
			if !strings.Contains(stdout.String(), "stored 5 events") {
				t.Fatalf("missing final report:\n%s", stdout.String())
			}
		})
	}
}

func TestInterrupt(t *testing.T) {
	set := fakescope.Settings{
		RecLen: 100,
		Delay:  5 * time.Millisecond,
	}
	fake, host, port, tmpdir, cfg := setup(t, set)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for {
			n := 0
			for _, cmd := range fake.Commands() {
				if cmd == "CURVENext?" {
					n++
				}
			}
			if n >= 5 {
				cancel()
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	out := filepath.Join(tmpdir, "out.lcio")
	err := xmain(ctx, []string{"-cfg", cfg, host, port, out, "0x1", "0", "3"}, new(bytes.Buffer))
	if err != nil {
		t.Fatalf("interrupted acquisition should succeed: %+v", err)
	}

	checkFile(t, out, -1)
}

func TestArgs(t *testing.T) {
	for _, tc := range []struct {
		name string
		args []string
		want string
	}{
		{
			name: "missing-args",
			args: []string{"localhost", "4000", "out.lcio", "0x1"},
			want: "invalid number of arguments",
		},
		{
			name: "too-many-args",
			args: []string{"localhost", "4000", "out.lcio", "0x1", "10", "100", "extra"},
			want: "invalid number of arguments",
		},
		{
			name: "null-mask",
			args: []string{"localhost", "4000", "out.lcio", "0x0", "10"},
			want: "invalid channel mask",
		},
		{
			name: "invalid-mask",
			args: []string{"localhost", "4000", "out.lcio", "0x1f", "10"},
			want: "invalid channel mask",
		},
		{
			name: "invalid-nevts",
			args: []string{"localhost", "4000", "out.lcio", "0x1", "-1"},
			want: "invalid number of events",
		},
		{
			name: "invalid-chunk",
			args: []string{"localhost", "4000", "out.lcio", "0x1", "10", "0"},
			want: "invalid number of events per chunk",
		},
		{
			name: "missing-cfg",
			args: []string{"-cfg", "not-there.yaml", "localhost", "4000", "out.lcio", "0x1", "10"},
			want: "could not load configuration",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := xmain(context.Background(), tc.args, new(bytes.Buffer))
			if err == nil {
				t.Fatalf("expected an error")
			}
			if got, want := err.Error(), tc.want; !strings.Contains(got, want) {
				t.Fatalf("invalid error: got=%q, want=%q", got, want)
			}
		})
	}
}

func TestConnectionFailure(t *testing.T) {
	srv, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	host, port, _ := net.SplitHostPort(srv.Addr().String())
	_ = srv.Close()

	tmpdir, err := os.MkdirTemp("", "scope-daq-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpdir)

	cfg := filepath.Join(tmpdir, "cfg.yaml")
	err = os.WriteFile(cfg, []byte(testConfig), 0644)
	if err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(tmpdir, "out.lcio")
	err = xmain(context.Background(), []string{"-cfg", cfg, host, port, out, "0x1", "10"}, new(bytes.Buffer))
	if err == nil {
		t.Fatalf("expected an error")
	}
	if _, err := os.Stat(out); err == nil {
		t.Fatalf("output file should not have been created")
	}
}

func TestInterruptBeforeAcquire(t *testing.T) {
	_, host, port, tmpdir, cfg := setup(t, fakescope.Settings{RecLen: 100})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := filepath.Join(tmpdir, "out.lcio")
	err := xmain(ctx, []string{"-cfg", cfg, host, port, out, "0x1", "10"}, new(bytes.Buffer))
	if err == nil {
		t.Fatalf("expected an error when interrupted before acquisition")
	}
	if _, err := os.Stat(out); err == nil {
		t.Fatalf("output file should not have been created")
	}
}

func TestVersion(t *testing.T) {
	stdout := new(bytes.Buffer)
	err := xmain(context.Background(), []string{"-version"}, stdout)
	if err != nil {
		t.Fatalf("could not run scope-daq: %+v", err)
	}
	if !strings.HasPrefix(stdout.String(), "scope-daq ") {
		t.Fatalf("invalid version output: %q", stdout.String())
	}
}
