// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !unix

package scope

import "syscall"

// setNoDelay is a no-op: Go TCP connections have TCP_NODELAY set by default.
func setNoDelay(network, address string, raw syscall.RawConn) error {
	return nil
}
