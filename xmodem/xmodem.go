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

/*
Package xmodem implements the XMODEM file transfer protocol family
(checksum, CRC-16 and 1K variants) on top of a polled serial Port.

Sender and Receiver are explicit state machines. Block framing is
selected by Variant at session construction, text mode rewrites line
terminators to CR+LF on the wire and back to the host convention on
receive.
*/
package xmodem

import (
	"io"
	"time"
)

const (
	cSOH    byte = 0x01
	cSTX    byte = 0x02
	cEOT    byte = 0x04
	cACK    byte = 0x06
	cLF     byte = 0x0A
	cCR     byte = 0x0D
	cNAK    byte = 0x15
	cCAN    byte = 0x18
	cCPMEOF byte = 0x1A
	cPOLL   byte = 0x43
)

// Port is the serial link a session runs on.
// Read must not block for long: it returns whatever is buffered, possibly nothing.
// A short or empty read is never an end of stream.
type Port interface {
	io.ReadWriter
	// ClearBuffers discards buffered input and/or output
	ClearBuffers(rx, tx bool) error
}

// ProgressFunc is called once per accepted block with the number of
// payload blocks and file bytes moved so far
type ProgressFunc func(blocks int, bytes int64)

// Result describes a finished transfer
type Result struct {
	Variant  Variant
	Blocks   int
	Bytes    int64
	Duration time.Duration
}

// CRC16 calculates CRC16 (XMODEM/CCITT, poly 0x1021, init 0) for data frame
func CRC16(data []byte) uint16 {
	var u16CRC uint16

	for _, character := range data {
		part := uint16(character)

		u16CRC = u16CRC ^ (part << 8)
		for range 8 {
			if u16CRC&0x8000 > 0 {
				u16CRC = u16CRC<<1 ^ 0x1021
			} else {
				u16CRC = u16CRC << 1
			}
		}
	}

	return u16CRC
}

// Checksum8 is the arithmetic sum of data modulo 256
func Checksum8(data []byte) uint8 {
	var sum uint8
	for _, b := range data {
		sum += b
	}
	return sum
}

func writeFull(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		b = b[n:]
	}
	return nil
}
