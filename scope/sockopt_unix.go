// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build unix

package scope

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// setNoDelay disables the Nagle algorithm on the socket before it connects.
func setNoDelay(network, address string, raw syscall.RawConn) error {
	var serr error
	err := raw.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	})
	if err != nil {
		return fmt.Errorf("scope: could not access socket: %w", err)
	}
	if serr != nil {
		return fmt.Errorf("scope: could not set TCP_NODELAY: %w", serr)
	}
	return nil
}
