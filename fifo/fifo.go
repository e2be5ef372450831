// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fifo implements a bounded, blocking, single-producer
// single-consumer byte channel.
package fifo // import "github.com/go-lpc/oscope/fifo"

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

var (
	// ErrTooLarge is returned when a push request can never fit
	// into the FIFO.
	ErrTooLarge = errors.New("fifo: push larger than capacity")

	// ErrClosed is returned when pushing to a closed FIFO.
	ErrClosed = errors.New("fifo: closed")
)

// FIFO is a fixed-capacity circular byte buffer.
// A FIFO of capacity C holds at most C-1 bytes.
//
// Push blocks until enough space is available for the whole request.
// Pop blocks until at least one byte is available.
type FIFO struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	buf    []byte
	rd, wr int
	closed bool
	spins  int
}

// Option configures a FIFO.
type Option func(*FIFO)

// WithSpins sets the number of non-blocking lock attempts made before
// blocking on the FIFO mutex.
func WithSpins(n int) Option {
	return func(f *FIFO) {
		if n < 0 {
			n = 0
		}
		f.spins = n
	}
}

// New creates a new FIFO with the provided capacity.
func New(capacity int, opts ...Option) (*FIFO, error) {
	if capacity < 2 {
		return nil, fmt.Errorf("fifo: invalid capacity %d", capacity)
	}
	f := &FIFO{buf: make([]byte, capacity)}
	f.notEmpty = sync.NewCond(&f.mu)
	f.notFull = sync.NewCond(&f.mu)
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Cap returns the number of bytes the FIFO can hold.
func (f *FIFO) Cap() int { return len(f.buf) - 1 }

// Len returns the number of bytes currently held by the FIFO.
func (f *FIFO) Len() int {
	f.lock()
	defer f.mu.Unlock()
	return f.size()
}

func (f *FIFO) lock() {
	for i := 0; i < f.spins; i++ {
		if f.mu.TryLock() {
			return
		}
	}
	f.mu.Lock()
}

func (f *FIFO) size() int {
	n := f.wr - f.rd
	if n < 0 {
		n += len(f.buf)
	}
	return n
}

func (f *FIFO) free() int {
	return len(f.buf) - 1 - f.size()
}

// Push copies all of p into the FIFO, blocking until enough space
// is available.
func (f *FIFO) Push(p []byte) (int, error) {
	if len(p) > f.Cap() {
		return 0, ErrTooLarge
	}

	f.lock()
	defer f.mu.Unlock()

	for !f.closed && f.free() < len(p) {
		f.notFull.Wait()
	}
	if f.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	n := copy(f.buf[f.wr:], p)
	if n < len(p) {
		copy(f.buf, p[n:])
	}
	f.wr = (f.wr + len(p)) % len(f.buf)
	f.notEmpty.Signal()

	return len(p), nil
}

// Pop copies up to len(p) bytes from the FIFO into p, blocking until at
// least one byte is available.
// Pop returns io.EOF once the FIFO is closed and drained.
func (f *FIFO) Pop(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	f.lock()
	defer f.mu.Unlock()

	for !f.closed && f.size() == 0 {
		f.notEmpty.Wait()
	}

	sz := f.size()
	if sz == 0 {
		return 0, io.EOF
	}
	if sz > len(p) {
		sz = len(p)
	}

	end := f.rd + sz
	if end <= len(f.buf) {
		copy(p, f.buf[f.rd:end])
	} else {
		n := copy(p, f.buf[f.rd:])
		copy(p[n:sz], f.buf)
	}
	f.rd = (f.rd + sz) % len(f.buf)
	f.notFull.Signal()

	return sz, nil
}

// Write implements io.Writer.
func (f *FIFO) Write(p []byte) (int, error) { return f.Push(p) }

// Read implements io.Reader.
func (f *FIFO) Read(p []byte) (int, error) { return f.Pop(p) }

// Close closes the FIFO and wakes up all blocked callers.
// Bytes already pushed can still be popped.
func (f *FIFO) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.notEmpty.Broadcast()
	f.notFull.Broadcast()
	return nil
}

var (
	_ io.Reader = (*FIFO)(nil)
	_ io.Writer = (*FIFO)(nil)
	_ io.Closer = (*FIFO)(nil)
)
