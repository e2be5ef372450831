// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package curve

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"
	"testing"

	"github.com/go-lpc/oscope/fifo"
	"github.com/go-lpc/oscope/wfm"
)

type sink struct {
	evts []wfm.Event
}

func (s *sink) WriteEvent(evt *wfm.Event) error {
	s.evts = append(s.evts, wfm.Event{
		ID:   evt.ID,
		Data: append([]byte(nil), evt.Data...),
	})
	return nil
}

func TestParserSegmentation(t *testing.T) {
	for _, tc := range []struct {
		name string
		raw  string
	}{
		{"plain", "#14ABCD#14EFGH\n"},
		{"separators", "#14ABCD;#14EFGH;\n"},
		{"leading-garbage", "xx#14ABCD;:#14EFGH;;\n"},
		{"wide-length", "#3004ABCD#3004EFGH\n"},
		{"indefinite", "#0ABCD#0EFGH\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var (
				out sink
				p   = NewParser(2, 4, 0, &out)
			)
			n, err := p.Write([]byte(tc.raw))
			if err != nil {
				t.Fatalf("could not parse: %+v", err)
			}
			if got, want := n, len(tc.raw); got != want {
				t.Fatalf("invalid consumed bytes: got=%d, want=%d", got, want)
			}

			want := []wfm.Event{{ID: 0, Data: []byte("ABCDEFGH")}}
			if !reflect.DeepEqual(out.evts, want) {
				t.Fatalf("invalid events:\ngot= %q\nwant=%q", out.evts, want)
			}
			if got, want := p.Events(), int64(1); got != want {
				t.Fatalf("invalid number of events: got=%d, want=%d", got, want)
			}
		})
	}
}

func TestParserBlockLen(t *testing.T) {
	var (
		out sink
		p   = NewParser(1, 4, 0, &out)
	)
	if _, err := p.Write([]byte("#212AB")); err != nil {
		t.Fatalf("could not parse: %+v", err)
	}
	if got, want := p.BlockLen(), 12; got != want {
		t.Fatalf("invalid block length: got=%d, want=%d", got, want)
	}
	if len(out.evts) != 0 {
		t.Fatalf("unexpected event")
	}
}

func TestParserZeroWrite(t *testing.T) {
	var (
		out sink
		p   = NewParser(1, 4, 1, &out)
	)
	n, err := p.Write(nil)
	if err != nil || n != 0 {
		t.Fatalf("invalid empty write: n=%d, err=%v", n, err)
	}
	if p.Done() || len(out.evts) != 0 {
		t.Fatalf("empty write made progress")
	}
}

func TestParserDone(t *testing.T) {
	var (
		out sink
		p   = NewParser(1, 2, 2, &out)
		raw = []byte("#12ab\n#12cd\n#12ef\n")
	)

	n, err := p.Write(raw)
	if !errors.Is(err, ErrDone) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrDone)
	}
	if got, want := n, 12; got != want {
		t.Fatalf("invalid consumed bytes: got=%d, want=%d", got, want)
	}
	if !p.Done() {
		t.Fatalf("parser should be done")
	}
	if got, want := len(out.evts), 2; got != want {
		t.Fatalf("invalid number of events: got=%d, want=%d", got, want)
	}

	_, err = p.Write([]byte("x"))
	if !errors.Is(err, ErrDone) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrDone)
	}
}

func TestParserInvalidHeader(t *testing.T) {
	for _, raw := range []string{
		"#x4ABCD\n",
		"#1xABCD\n",
		"#2 4ABCD\n",
	} {
		t.Run(raw, func(t *testing.T) {
			var (
				out sink
				p   = NewParser(1, 4, 0, &out)
			)
			_, err := p.Write([]byte(raw))
			if !errors.Is(err, ErrHeader) {
				t.Fatalf("invalid error: got=%v, want=%v", err, ErrHeader)
			}
		})
	}
}

func TestParserSinkError(t *testing.T) {
	want := fmt.Errorf("disk full")
	p := NewParser(1, 2, 0, wfm.EventWriterFunc(func(evt *wfm.Event) error {
		return want
	}))
	_, err := p.Write([]byte("#12ab\n"))
	if !errors.Is(err, want) {
		t.Fatalf("invalid error: got=%v, want=%v", err, want)
	}
}

func genEvents(nevts, nchs, nspl int) []wfm.Event {
	evts := make([]wfm.Event, nevts)
	for i := range evts {
		evts[i].ID = int64(i)
		evts[i].Data = make([]byte, nchs*nspl)
		for j := range evts[i].Data {
			// make sure markers show up in the payload.
			switch j % 7 {
			case 0:
				evts[i].Data[j] = '#'
			case 1:
				evts[i].Data[j] = '\n'
			case 2:
				evts[i].Data[j] = ';'
			default:
				evts[i].Data[j] = byte(i*31 + j)
			}
		}
	}
	return evts
}

func encode(t *testing.T, evts []wfm.Event, nspl int) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	enc := NewEncoder(buf, nspl)
	for i := range evts {
		if err := enc.Encode(&evts[i]); err != nil {
			t.Fatalf("could not encode event %d: %+v", i, err)
		}
	}
	return buf.Bytes()
}

func TestEncoder(t *testing.T) {
	evt := wfm.Event{Data: []byte("ABCDEFGH")}
	buf := new(bytes.Buffer)
	enc := NewEncoder(buf, 4)
	if err := enc.Encode(&evt); err != nil {
		t.Fatalf("could not encode: %+v", err)
	}
	if got, want := buf.String(), "#14ABCD#14EFGH\n"; got != want {
		t.Fatalf("invalid encoding:\ngot= %q\nwant=%q", got, want)
	}

	attr := wfm.Attributes{ChanMask: 0x3, NumSamples: 4}
	if got, want := buf.Len(), attr.RawEventSize(); got != want {
		t.Fatalf("invalid raw event size: got=%d, want=%d", got, want)
	}

	err := enc.Encode(&wfm.Event{Data: []byte("ABC")})
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestParserPipelined(t *testing.T) {
	const (
		nevts = 3
		nchs  = 2
		nspl  = 1000
	)

	evts := genEvents(nevts, nchs, nspl)
	raw := encode(t, evts, nspl)

	// single-shot reference.
	var ref sink
	p := NewParser(nchs, nspl, nevts, &ref)
	if _, err := p.Write(raw); err != nil {
		t.Fatalf("could not parse: %+v", err)
	}
	if !reflect.DeepEqual(ref.evts, evts) {
		t.Fatalf("invalid single-shot events")
	}

	f, err := fifo.New(64)
	if err != nil {
		t.Fatalf("could not create fifo: %+v", err)
	}

	go func() {
		defer f.Close()
		for i := range raw {
			if _, err := f.Push(raw[i : i+1]); err != nil {
				return
			}
		}
	}()

	var out sink
	p = NewParser(nchs, nspl, nevts, &out)
	buf := make([]byte, 37)
	for !p.Done() {
		n, err := f.Pop(buf)
		if err != nil {
			if err == io.EOF {
				break
			}
			t.Fatalf("could not pop: %+v", err)
		}
		if _, err := p.Write(buf[:n]); err != nil {
			t.Fatalf("could not parse: %+v", err)
		}
	}

	if !reflect.DeepEqual(out.evts, ref.evts) {
		t.Fatalf("pipelined parsing differs from single-shot parsing")
	}
}

func TestParserSplits(t *testing.T) {
	const (
		nevts = 4
		nchs  = 3
		nspl  = 17
	)
	evts := genEvents(nevts, nchs, nspl)
	raw := encode(t, evts, nspl)

	for _, chunk := range []int{1, 2, 3, 5, 16, 17, 18, 100, len(raw)} {
		t.Run(fmt.Sprintf("chunk=%d", chunk), func(t *testing.T) {
			var out sink
			p := NewParser(nchs, nspl, 0, &out)
			for beg := 0; beg < len(raw); beg += chunk {
				end := beg + chunk
				if end > len(raw) {
					end = len(raw)
				}
				if _, err := p.Write(raw[beg:end]); err != nil {
					t.Fatalf("could not parse: %+v", err)
				}
			}
			if !reflect.DeepEqual(out.evts, evts) {
				t.Fatalf("invalid events")
			}
		})
	}
}
