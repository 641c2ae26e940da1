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
	"encoding/binary"
	"fmt"
	"strings"
)

// Variant is a member of the XMODEM family
type Variant int

// Supported variants
const (
	VariantChecksum Variant = iota
	VariantCRC
	VariantCRC1K
)

var variantToString = map[Variant]string{
	VariantChecksum: "checksum",
	VariantCRC:      "crc16",
	VariantCRC1K:    "1k",
}

func (v Variant) String() string {
	if s, ok := variantToString[v]; ok {
		return s
	}
	return fmt.Sprintf("variant(%d)", int(v))
}

// ParseVariant converts a variant name into Variant
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(s) {
	case "checksum", "sum":
		return VariantChecksum, nil
	case "crc", "crc16":
		return VariantCRC, nil
	case "1k", "crc16-1k", "crc16_1k":
		return VariantCRC1K, nil
	}
	return VariantChecksum, fmt.Errorf("unknown xmodem variant %q", s)
}

// UnmarshalYAML allows variant names in config files
func (v *Variant) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	p, err := ParseVariant(s)
	if err != nil {
		return err
	}
	*v = p
	return nil
}

// MarshalYAML writes the variant name
func (v Variant) MarshalYAML() (interface{}, error) {
	return v.String(), nil
}

// handshake is the byte a receiver sends to start the transfer
func (v Variant) handshake() byte {
	if v == VariantCRC1K {
		return cPOLL
	}
	return cNAK
}

// Framing describes the wire layout of one block
type Framing struct {
	Marker      byte
	PayloadSize int
	// CRC selects a big-endian CRC-16 trailer instead of the 8-bit checksum
	CRC bool
}

var (
	framingChecksum = Framing{Marker: cSOH, PayloadSize: 128}
	framingCRC      = Framing{Marker: cSOH, PayloadSize: 128, CRC: true}
	framingCRC1K    = Framing{Marker: cSTX, PayloadSize: 1024, CRC: true}
)

// FramingFor returns the framing the sender uses for the variant
func FramingFor(v Variant) Framing {
	switch v {
	case VariantCRC:
		return framingCRC
	case VariantCRC1K:
		return framingCRC1K
	default:
		return framingChecksum
	}
}

// receiveFraming returns the framing for an incoming block marker, false if
// the marker is not acceptable for the variant
func receiveFraming(v Variant, marker byte) (Framing, bool) {
	switch {
	case marker == cSOH:
		if v == VariantChecksum {
			return framingChecksum, true
		}
		return framingCRC, true
	case marker == cSTX && v == VariantCRC1K:
		return framingCRC1K, true
	}
	return Framing{}, false
}

// TrailerSize is the size of the checksum or CRC
func (f Framing) TrailerSize() int {
	if f.CRC {
		return 2
	}
	return 1
}

// BlockSize is the total size of the framed block
func (f Framing) BlockSize() int {
	return 3 + f.PayloadSize + f.TrailerSize()
}

func (f Framing) appendTrailer(dst, payload []byte) []byte {
	if f.CRC {
		return binary.BigEndian.AppendUint16(dst, CRC16(payload))
	}
	return append(dst, Checksum8(payload))
}

func (f Framing) verify(payload, trailer []byte) bool {
	if len(trailer) != f.TrailerSize() {
		return false
	}
	if f.CRC {
		return binary.BigEndian.Uint16(trailer) == CRC16(payload)
	}
	return trailer[0] == Checksum8(payload)
}
