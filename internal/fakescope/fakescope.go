// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakescope provides a fake networked oscilloscope, for tests.
package fakescope // import "github.com/go-lpc/oscope/internal/fakescope"

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-lpc/oscope/curve"
	"github.com/go-lpc/oscope/wfm"
)

// Settings describes the state of the fake instrument.
type Settings struct {
	IDN       string
	RecLen    int // record length of a frame
	FastFrame bool
	NumFrames int
	Dt, T0    float64
	YMult     [wfm.NumChannels]float64
	YOff      [wfm.NumChannels]float64
	YZero     [wfm.NumChannels]float64
	ChunkSize int           // size of the writes of curve data (0: one write per event)
	Delay     time.Duration // delay before each event
	MaxEvents int64         // close the connection after that many events (0: no limit)
	Mute      []string      // queries left unanswered
}

// Scope is a fake oscilloscope listening on a local TCP port.
type Scope struct {
	set Settings
	srv net.Listener

	mu    sync.Mutex
	cmds  []string
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// New starts a new fake oscilloscope.
func New(set Settings) (*Scope, error) {
	srv, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("fakescope: could not listen: %w", err)
	}
	if set.IDN == "" {
		set.IDN = "TEKTRONIX,DPO5054,C000000,CF:91.1CT FV:6.3.0"
	}

	scope := &Scope{
		set:   set,
		srv:   srv,
		conns: make(map[net.Conn]struct{}),
	}
	scope.wg.Add(1)
	go scope.serve()
	return scope, nil
}

// Addr returns the address of the fake oscilloscope.
func (scope *Scope) Addr() string { return scope.srv.Addr().String() }

// Commands returns the command lines received so far.
func (scope *Scope) Commands() []string {
	scope.mu.Lock()
	defer scope.mu.Unlock()
	return append([]string(nil), scope.cmds...)
}

// Close stops the fake oscilloscope.
func (scope *Scope) Close() error {
	err := scope.srv.Close()
	scope.mu.Lock()
	for conn := range scope.conns {
		_ = conn.Close()
	}
	scope.mu.Unlock()
	scope.wg.Wait()
	return err
}

// Event returns the samples of event id, for nchans channels of
// nsamples samples.
func Event(id int64, nchans, nsamples int) []byte {
	data := make([]byte, nchans*nsamples)
	for i := range data {
		data[i] = byte(int64(i)*7 + id*13)
	}
	return data
}

func (scope *Scope) serve() {
	defer scope.wg.Done()
	for {
		conn, err := scope.srv.Accept()
		if err != nil {
			return
		}
		scope.mu.Lock()
		scope.conns[conn] = struct{}{}
		scope.mu.Unlock()

		scope.wg.Add(1)
		go func() {
			defer scope.wg.Done()
			defer func() {
				scope.mu.Lock()
				delete(scope.conns, conn)
				scope.mu.Unlock()
				_ = conn.Close()
			}()
			newSession(scope, conn).run()
		}()
	}
}

type session struct {
	scope *Scope
	set   *Settings
	conn  net.Conn

	src   int   // current data source
	srcs  []int // channels of the curve transfer
	stop  int   // last sample of the curve transfer
	nevts int64
	enc   *curve.Encoder
	out   *bytes.Buffer
}

func newSession(scope *Scope, conn net.Conn) *session {
	return &session{
		scope: scope,
		set:   &scope.set,
		conn:  conn,
		srcs:  []int{0},
		out:   new(bytes.Buffer),
	}
}

func (sess *session) run() {
	r := bufio.NewReader(sess.conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSuffix(line, "\n")

		sess.scope.mu.Lock()
		sess.scope.cmds = append(sess.scope.cmds, line)
		sess.scope.mu.Unlock()

		err = sess.handle(line)
		if err != nil {
			return
		}
	}
}

func (sess *session) handle(line string) error {
	var (
		replies []string
		mute    bool
	)
	for _, cmd := range strings.Split(line, ";") {
		cmd = strings.TrimPrefix(strings.TrimSpace(cmd), ":")
		if cmd == "" {
			continue
		}
		for _, m := range sess.set.Mute {
			if strings.EqualFold(m, cmd) {
				mute = true
			}
		}

		key, arg, _ := strings.Cut(cmd, " ")
		key = strings.ToUpper(key)
		switch key {
		case "CURVENEXT?":
			return sess.curve()
		case "*IDN?":
			replies = append(replies, sess.set.IDN)
		case "HORIZONTAL:ACQLENGTH?":
			replies = append(replies, strconv.Itoa(sess.set.RecLen))
		case "WFMOUTPRE:XINCR?":
			replies = append(replies, fmtFloat(sess.set.Dt))
		case "WFMOUTPRE:XZERO?":
			replies = append(replies, fmtFloat(sess.set.T0))
		case "HORIZONTAL:FASTFRAME:STATE?":
			state := "0"
			if sess.set.FastFrame {
				state = "1"
			}
			replies = append(replies, state)
		case "HORIZONTAL:FASTFRAME:COUNT?":
			replies = append(replies, strconv.Itoa(sess.set.NumFrames))
		case "WFMOUTPRE:YMULT?":
			replies = append(replies, fmtFloat(sess.set.YMult[sess.src]))
		case "WFMOUTPRE:YOFF?":
			replies = append(replies, fmtFloat(sess.set.YOff[sess.src]))
		case "WFMOUTPRE:YZERO?":
			replies = append(replies, fmtFloat(sess.set.YZero[sess.src]))
		case "DATA:SOURCE":
			srcs, err := parseSources(arg)
			if err != nil {
				return err
			}
			sess.src = srcs[0]
			sess.srcs = srcs
		case "DATA:STOP":
			v, err := strconv.Atoi(strings.TrimSpace(arg))
			if err != nil {
				return err
			}
			sess.stop = v
			sess.enc = nil
		}
	}

	if mute || len(replies) == 0 {
		return nil
	}
	_, err := io.WriteString(sess.conn, strings.Join(replies, ";")+"\n")
	return err
}

func (sess *session) curve() error {
	if sess.set.MaxEvents > 0 && sess.nevts >= sess.set.MaxEvents {
		return io.EOF
	}
	if sess.set.Delay > 0 {
		time.Sleep(sess.set.Delay)
	}

	nspl := sess.stop
	if nspl <= 0 {
		nspl = sess.set.RecLen
	}
	nchs := len(sess.srcs)

	sess.out.Reset()
	if sess.enc == nil {
		sess.enc = curve.NewEncoder(sess.out, nspl)
	}
	err := sess.enc.Encode(&wfm.Event{
		ID:   sess.nevts,
		Data: Event(sess.nevts, nchs, nspl),
	})
	if err != nil {
		return err
	}
	sess.nevts++

	raw := sess.out.Bytes()
	chunk := sess.set.ChunkSize
	if chunk <= 0 {
		chunk = len(raw)
	}
	for beg := 0; beg < len(raw); beg += chunk {
		end := beg + chunk
		if end > len(raw) {
			end = len(raw)
		}
		_, err = sess.conn.Write(raw[beg:end])
		if err != nil {
			return err
		}
	}
	return nil
}

func parseSources(arg string) ([]int, error) {
	var srcs []int
	for _, v := range strings.Split(arg, ",") {
		v = strings.ToUpper(strings.TrimSpace(v))
		if !strings.HasPrefix(v, "CH") {
			return nil, fmt.Errorf("fakescope: invalid source %q", v)
		}
		ch, err := strconv.Atoi(v[2:])
		if err != nil || ch < 1 || ch > wfm.NumChannels {
			return nil, fmt.Errorf("fakescope: invalid source %q", v)
		}
		srcs = append(srcs, ch-1)
	}
	return srcs, nil
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'E', -1, 64)
}
