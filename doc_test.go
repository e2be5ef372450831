// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package oscope

import (
	"runtime/debug"
	"testing"
)

func TestVersionOf(t *testing.T) {
	for _, tc := range []struct {
		name string
		b    *debug.BuildInfo
		vers string
		sum  string
	}{
		{name: "nil"},
		{
			name: "main",
			b: &debug.BuildInfo{
				Main: debug.Module{Path: root, Version: "v0.1.0", Sum: "h1:main"},
			},
			vers: "v0.1.0",
			sum:  "h1:main",
		},
		{
			name: "dep",
			b: &debug.BuildInfo{
				Main: debug.Module{Path: "example.org/daq"},
				Deps: []*debug.Module{
					{Path: "golang.org/x/sync", Version: "v0.19.0"},
					{Path: root, Version: "v0.2.0", Sum: "h1:dep"},
				},
			},
			vers: "v0.2.0",
			sum:  "h1:dep",
		},
		{
			name: "replace-path-version",
			b: &debug.BuildInfo{
				Deps: []*debug.Module{{
					Path:    root,
					Version: "v0.2.0",
					Replace: &debug.Module{Path: "example.org/fork", Version: "v0.3.0", Sum: "h1:fork"},
				}},
			},
			vers: "example.org/fork v0.3.0",
			sum:  "h1:fork",
		},
		{
			name: "replace-local",
			b: &debug.BuildInfo{
				Deps: []*debug.Module{{
					Path:    root,
					Version: "v0.2.0",
					Replace: &debug.Module{Path: "../oscope"},
				}},
			},
			vers: "../oscope",
		},
		{
			name: "missing",
			b: &debug.BuildInfo{
				Deps: []*debug.Module{{Path: "golang.org/x/sys", Version: "v0.40.0"}},
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			vers, sum := versionOf(tc.b)
			if vers != tc.vers || sum != tc.sum {
				t.Fatalf("invalid version: got=(%q, %q), want=(%q, %q)", vers, sum, tc.vers, tc.sum)
			}
		})
	}
}
