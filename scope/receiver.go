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
	"os"
	"time"

	"github.com/go-lpc/oscope/curve"
	"github.com/go-lpc/oscope/fifo"
)

// receiver reads the curve stream from the instrument and requests the
// next event as soon as a whole raw event has been received.
type receiver struct {
	conn  *Conn
	msg   *log.Logger
	met   *metrics
	stall time.Duration
	raw   int   // size of a raw event, in bytes
	nevts int64 // number of events to receive (<=0: no limit)
	buf   []byte
}

func newReceiver(dev *Device, nevts int64) *receiver {
	return &receiver{
		conn:  dev.conn,
		msg:   dev.msg,
		met:   dev.met,
		stall: dev.cfg.StallTimeout,
		raw:   dev.attr.RawEventSize(),
		nevts: nevts,
		buf:   make([]byte, dev.cfg.ReadSize),
	}
}

func (rcv *receiver) request() error {
	rcv.met.requests.Inc()
	return rcv.conn.Send(cmdCurveNext)
}

// run receives the stream into dst until all events have been received,
// dst stops accepting bytes or ctx is done.
func (rcv *receiver) run(ctx context.Context, dst io.Writer) error {
	conn := rcv.conn.conn
	stop := context.AfterFunc(ctx, func() {
		// unblock any pending read.
		_ = conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()
	defer conn.SetReadDeadline(time.Time{})

	err := rcv.request()
	if err != nil {
		return err
	}

	var (
		total int   // bytes received for the current event
		nrecv int64 // number of whole events received
	)
	for rcv.nevts <= 0 || nrecv < rcv.nevts {
		err := conn.SetReadDeadline(time.Now().Add(rcv.stall))
		if err != nil {
			return fmt.Errorf("scope: could not set read deadline: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := conn.Read(rcv.buf)
		if n > 0 {
			rcv.met.bytes.Add(float64(n))
			_, werr := dst.Write(rcv.buf[:n])
			switch {
			case werr == nil:
			case errors.Is(werr, fifo.ErrClosed), errors.Is(werr, curve.ErrDone):
				return nil
			default:
				return fmt.Errorf("scope: could not forward curve data: %w", werr)
			}

			total += n
			for total >= rcv.raw {
				total -= rcv.raw
				nrecv++
				if rcv.nevts > 0 && nrecv >= rcv.nevts {
					break
				}
				err := rcv.request()
				if err != nil {
					return err
				}
			}
		}

		switch {
		case err == nil:
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, os.ErrDeadlineExceeded):
			rcv.met.stalls.Inc()
			rcv.msg.Printf("stream stalled for %v (events=%d, pending=%d bytes)", rcv.stall, nrecv, total)
		case errors.Is(err, io.EOF):
			return fmt.Errorf(
				"scope: instrument closed the connection after %d events: %w",
				nrecv, io.ErrUnexpectedEOF,
			)
		default:
			return fmt.Errorf("scope: could not read curve data: %w", err)
		}
	}

	return nil
}
