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
	"io"
	"runtime"
)

// NativeNewline is the line terminator of the host
func NativeNewline() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}

// textDecoder strips SUB padding and converts CR/LF sequences of received
// payloads to the host line terminator. A CR, LF or SUB at the end of a
// payload is held until the first byte of the next one.
type textDecoder struct {
	w       io.Writer
	newline []byte
	carry   []byte
	data    []byte
	out     []byte
}

func newTextDecoder(w io.Writer, newline string) *textDecoder {
	return &textDecoder{w: w, newline: []byte(newline)}
}

func isLineByte(b byte) bool {
	return b == cCR || b == cLF
}

// Write converts one payload and writes it out
func (d *textDecoder) Write(payload []byte) (int, error) {
	d.data = append(d.data[:0], d.carry...)
	d.data = append(d.data, payload...)
	data := d.data
	d.carry = d.carry[:0]
	d.out = d.out[:0]

	i := 0
	for i < len(data) {
		b0 := data[i]
		if i == len(data)-1 {
			if isLineByte(b0) || b0 == cCPMEOF {
				d.carry = append(d.carry, b0)
			} else {
				d.out = append(d.out, b0)
			}
			break
		}
		b1 := data[i+1]
		switch {
		case isLineByte(b0):
			d.out = append(d.out, d.newline...)
			switch {
			case b0 == b1:
				// CR,CR and LF,LF are two line ends
				d.out = append(d.out, d.newline...)
			case isLineByte(b1), b1 == cCPMEOF:
				// CR,LF LF,CR CR,SUB LF,SUB
			default:
				d.out = append(d.out, b1)
			}
			i += 2
		case b0 == cCPMEOF:
			switch {
			case isLineByte(b1):
				i++
				continue
			case b1 != cCPMEOF:
				d.out = append(d.out, b1)
			}
			i += 2
		default:
			d.out = append(d.out, b0)
			switch {
			case isLineByte(b1):
				i++
				continue
			case b1 != cCPMEOF:
				d.out = append(d.out, b1)
			}
			i += 2
		}
	}

	if err := writeFull(d.w, d.out); err != nil {
		return 0, err
	}
	return len(payload), nil
}

// Flush resolves a held byte at the end of the transfer
func (d *textDecoder) Flush() error {
	d.out = d.out[:0]
	for _, b := range d.carry {
		if isLineByte(b) {
			d.out = append(d.out, d.newline...)
		}
	}
	d.carry = d.carry[:0]
	return writeFull(d.w, d.out)
}
