// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scope

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"time"
)

// Conn is a command/response session with an instrument.
type Conn struct {
	conn net.Conn
	buf  []byte
}

func newConn(conn net.Conn) *Conn {
	return &Conn{
		conn: conn,
		buf:  make([]byte, 8192),
	}
}

// dial connects to the instrument at addr, over IPv4 only.
// Each resolved address is tried cfg.DialAttempts times, with an
// exponential backoff between attempts.
func dial(ctx context.Context, addr string, cfg Config, msg *log.Logger) (*Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("scope: invalid instrument address %q: %w", addr, err)
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return nil, fmt.Errorf("scope: could not resolve %q: %w", host, err)
	}

	dialer := newDialer(cfg)
	for _, ip := range ips {
		raddr := net.JoinHostPort(ip.String(), port)
		conn, err := dialRetry(ctx, dialer, raddr, cfg)
		if err != nil {
			msg.Printf("could not connect to %q: %+v", raddr, err)
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w to %q: %w", ErrDial, addr, ctx.Err())
			}
			continue
		}
		return newConn(conn), nil
	}

	return nil, fmt.Errorf("%w to %q", ErrDial, addr)
}

func newDialer(cfg Config) *net.Dialer {
	return &net.Dialer{
		Timeout: cfg.DialTimeout,
		Control: setNoDelay,
	}
}

func dialRetry(ctx context.Context, dialer *net.Dialer, addr string, cfg Config) (net.Conn, error) {
	var (
		err   error
		delay = cfg.DialBackoff
	)
	for i := 0; i < cfg.DialAttempts; i++ {
		var conn net.Conn
		conn, err = dialer.DialContext(ctx, "tcp4", addr)
		if err == nil {
			return conn, nil
		}
		if i == cfg.DialAttempts-1 {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if cfg.DialMaxBackoff > 0 && delay > cfg.DialMaxBackoff {
			delay = cfg.DialMaxBackoff
		}
	}
	return nil, err
}

// Send sends a command without waiting for any reply.
func (c *Conn) Send(cmd string) error {
	_, err := io.WriteString(c.conn, cmd)
	if err != nil {
		return fmt.Errorf("scope: could not send %q: %w", cmd, err)
	}
	return nil
}

// Query sends q and collects all the bytes the instrument sends back
// within the timeout window.
//
// Query returns ErrNoResponse if nothing came back before the timeout,
// and io.EOF if the instrument closed the connection without replying.
func (c *Conn) Query(q string, timeout time.Duration) ([]byte, error) {
	err := c.Send(q)
	if err != nil {
		return nil, err
	}

	err = c.conn.SetReadDeadline(time.Now().Add(timeout))
	if err != nil {
		return nil, fmt.Errorf("scope: could not set read deadline: %w", err)
	}
	defer c.conn.SetReadDeadline(time.Time{})

	var (
		n   int
		eof bool
	)
loop:
	for {
		if n == len(c.buf) {
			c.buf = append(c.buf, make([]byte, len(c.buf))...)
		}
		nr, err := c.conn.Read(c.buf[n:])
		n += nr
		switch {
		case err == nil:
			continue
		case errors.Is(err, os.ErrDeadlineExceeded):
			break loop
		case errors.Is(err, io.EOF):
			eof = true
			break loop
		default:
			return nil, fmt.Errorf("scope: could not read reply to %q: %w", q, err)
		}
	}

	if n == 0 {
		if eof {
			return nil, io.EOF
		}
		return nil, ErrNoResponse
	}

	out := make([]byte, n)
	copy(out, c.buf[:n])
	return out, nil
}

// Exec sends a command and waits for the timeout window, discarding any
// reply.
func (c *Conn) Exec(cmd string, timeout time.Duration) error {
	_, err := c.Query(cmd, timeout)
	if err != nil && !errors.Is(err, ErrNoResponse) {
		return err
	}
	return nil
}

// drain discards the bytes sent by the instrument until it stays silent
// for quiet. drain returns the number of discarded bytes.
func (c *Conn) drain(quiet time.Duration) (int, error) {
	defer c.conn.SetReadDeadline(time.Time{})

	n := 0
	for {
		err := c.conn.SetReadDeadline(time.Now().Add(quiet))
		if err != nil {
			return n, fmt.Errorf("scope: could not set read deadline: %w", err)
		}
		nr, err := c.conn.Read(c.buf)
		n += nr
		switch {
		case err == nil:
		case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, io.EOF):
			return n, nil
		default:
			return n, fmt.Errorf("scope: could not drain connection: %w", err)
		}
	}
}

// Close closes the session.
func (c *Conn) Close() error {
	return c.conn.Close()
}
