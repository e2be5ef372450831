// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package curve reads and writes the curve data stream of a digital
// oscilloscope.
//
// Each event is made of one definite-length block per active channel,
// terminated by a newline:
//
//	#<d><length><payload>#<d><length><payload>...\n
//
// where <d> is a single ASCII digit giving the number of ASCII digits
// of <length>.
package curve // import "github.com/go-lpc/oscope/curve"

import "errors"

var (
	// ErrDone is returned when writing to a parser that has already
	// delivered all its events.
	ErrDone = errors.New("curve: parser done")

	// ErrHeader is returned when a block header holds a non-digit byte.
	ErrHeader = errors.New("curve: invalid block header")
)

const (
	blockIntro = '#'
	eventEnd   = '\n'
)
