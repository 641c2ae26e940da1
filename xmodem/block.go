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
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Block is a parsed XMODEM block
type Block struct {
	Marker        byte
	Seq           uint8
	SeqComplement uint8
	Payload       []byte
	Trailer       []byte
}

// Valid reports whether the sequence complement and the trailer match
func (b *Block) Valid(f Framing) bool {
	return b.Seq == 0xFF-b.SeqComplement && len(b.Payload) == f.PayloadSize && f.verify(b.Payload, b.Trailer)
}

// EncodeBlock appends the framed block to dst. Payload must be exactly f.PayloadSize long
func EncodeBlock(dst []byte, f Framing, seq uint8, payload []byte) ([]byte, error) {
	if len(payload) != f.PayloadSize {
		return dst, fmt.Errorf("data block should be = %d bytes, got %d", f.PayloadSize, len(payload))
	}
	dst = append(dst, f.Marker, seq, 0xFF-seq)
	dst = append(dst, payload...)
	return f.appendTrailer(dst, payload), nil
}

// DecodeBlock splits a fully assembled frame. The returned block references frame memory
func DecodeBlock(f Framing, frame []byte) (*Block, error) {
	if len(frame) != f.BlockSize() {
		return nil, fmt.Errorf("block should be = %d bytes, got %d", f.BlockSize(), len(frame))
	}
	end := 3 + f.PayloadSize
	return &Block{
		Marker:        frame[0],
		Seq:           frame[1],
		SeqComplement: frame[2],
		Payload:       frame[3:end],
		Trailer:       frame[end:],
	}, nil
}

// source fills outgoing payloads from the file stream
type source interface {
	// fill writes exactly len(payload) bytes, padding with SUB at the end of
	// the stream. It returns io.EOF once nothing is left to send
	fill(payload []byte) error
	// consumed is the number of file bytes taken so far
	consumed() int64
}

type binarySource struct {
	r io.Reader
	n int64
}

func (s *binarySource) consumed() int64 {
	return s.n
}

func (s *binarySource) fill(payload []byte) error {
	n, err := io.ReadFull(s.r, payload)
	s.n += int64(n)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		for i := n; i < len(payload); i++ {
			payload[i] = cCPMEOF
		}
		return nil
	}
	return err
}

// textSource rewrites every line terminator (CR, LF or CR+LF) to CR+LF
type textSource struct {
	r         *bufio.Reader
	n         int64
	pendingLF bool
	padded    bool
	eof       bool
}

func newTextSource(r io.Reader) *textSource {
	return &textSource{r: bufio.NewReader(r)}
}

func (s *textSource) consumed() int64 {
	return s.n
}

func (s *textSource) fill(payload []byte) error {
	if s.padded {
		return io.EOF
	}
	n := 0
	if s.pendingLF {
		payload[n] = cLF
		n++
		s.pendingLF = false
	}
	for n < len(payload) && !s.eof {
		b, err := s.r.ReadByte()
		if errors.Is(err, io.EOF) {
			s.eof = true
			break
		}
		if err != nil {
			return err
		}
		s.n++
		switch b {
		case cCR:
			next, err := s.r.ReadByte()
			switch {
			case errors.Is(err, io.EOF):
				s.eof = true
			case err != nil:
				return err
			case next != cLF:
				if err := s.r.UnreadByte(); err != nil {
					return err
				}
			default:
				s.n++
			}
			n = s.putNewline(payload, n)
		case cLF:
			n = s.putNewline(payload, n)
		default:
			payload[n] = b
			n++
		}
	}
	if n == 0 {
		s.padded = true
		return io.EOF
	}
	if n < len(payload) {
		for i := n; i < len(payload); i++ {
			payload[i] = cCPMEOF
		}
		s.padded = true
	}
	return nil
}

// putNewline writes CR+LF, deferring LF to the next block when only CR fits
func (s *textSource) putNewline(payload []byte, n int) int {
	payload[n] = cCR
	n++
	if n == len(payload) {
		s.pendingLF = true
		return n
	}
	payload[n] = cLF
	return n + 1
}
