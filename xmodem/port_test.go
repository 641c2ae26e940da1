/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package xmodem

import (
	"bytes"
	"sync"
	"time"
)

// scriptPort answers every write with whatever respond returns
type scriptPort struct {
	sync.Mutex
	in      bytes.Buffer
	written [][]byte
	clears  int
	respond func(p []byte) []byte
}

func (s *scriptPort) Read(b []byte) (int, error) {
	s.Lock()
	defer s.Unlock()
	if s.in.Len() == 0 {
		return 0, nil
	}
	return s.in.Read(b)
}

func (s *scriptPort) Write(b []byte) (int, error) {
	s.Lock()
	defer s.Unlock()
	s.written = append(s.written, append([]byte(nil), b...))
	if s.respond != nil {
		s.in.Write(s.respond(b))
	}
	return len(b), nil
}

func (s *scriptPort) ClearBuffers(rx, _ bool) error {
	s.Lock()
	defer s.Unlock()
	if rx {
		s.in.Reset()
	}
	s.clears++
	return nil
}

func (s *scriptPort) feed(b []byte) {
	s.Lock()
	defer s.Unlock()
	s.in.Write(b)
}

func (s *scriptPort) writes() [][]byte {
	s.Lock()
	defer s.Unlock()
	return append([][]byte(nil), s.written...)
}

// syncBuffer is one direction of a pipe
type syncBuffer struct {
	sync.Mutex
	b bytes.Buffer
}

// pipePort is one end of an in-memory serial link
type pipePort struct {
	in  *syncBuffer
	out *syncBuffer

	tapMu sync.Mutex
	tap   [][]byte
}

func newPipe() (*pipePort, *pipePort) {
	a, b := &syncBuffer{}, &syncBuffer{}
	return &pipePort{in: a, out: b}, &pipePort{in: b, out: a}
}

func (p *pipePort) Read(b []byte) (int, error) {
	p.in.Lock()
	defer p.in.Unlock()
	if p.in.b.Len() == 0 {
		return 0, nil
	}
	return p.in.b.Read(b)
}

func (p *pipePort) Write(b []byte) (int, error) {
	p.tapMu.Lock()
	p.tap = append(p.tap, append([]byte(nil), b...))
	p.tapMu.Unlock()

	p.out.Lock()
	defer p.out.Unlock()
	return p.out.b.Write(b)
}

func (p *pipePort) ClearBuffers(rx, _ bool) error {
	if rx {
		p.in.Lock()
		p.in.b.Reset()
		p.in.Unlock()
	}
	return nil
}

func (p *pipePort) written() [][]byte {
	p.tapMu.Lock()
	defer p.tapMu.Unlock()
	return append([][]byte(nil), p.tap...)
}

// testConfig shrinks timing so tests run fast
func testConfig(v Variant) *Config {
	c := DefaultConfig()
	c.Variant = v
	c.Newline = "\n"
	c.SenderConnectTimeout = 2 * time.Second
	c.AckTimeout = 2 * time.Second
	c.PollInterval = time.Millisecond
	c.EOTPollInterval = time.Millisecond
	c.ConnectTimeout = time.Second
	c.ConnectTimeout1K = 30 * time.Millisecond
	c.DataTimeout = time.Second
	c.ReadInterval = time.Millisecond
	return c
}

// makeFrame builds a valid frame for tests
func makeFrame(v Variant, seq uint8, payload []byte) []byte {
	f := FramingFor(v)
	p := make([]byte, f.PayloadSize)
	n := copy(p, payload)
	for i := n; i < len(p); i++ {
		p[i] = cCPMEOF
	}
	frame, err := EncodeBlock(nil, f, seq, p)
	if err != nil {
		panic(err)
	}
	return frame
}
