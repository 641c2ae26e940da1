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

package dispatch

import (
	"fmt"
	"strings"
)

// DataListener receives inbound bytes and read errors of a handle.
// Calls come from one goroutine per lane, in push order
type DataListener interface {
	OnData(data []byte)
	OnDataError(err error)
}

// EventListener receives modem line changes of a handle
type EventListener interface {
	OnLineEvent(ev LineEvent)
}

// Lines is a set of modem status lines
type Lines uint8

// Modem status lines
const (
	LineCTS Lines = 0x01
	LineDSR Lines = 0x02
	LineDCD Lines = 0x04
	LineRI  Lines = 0x08

	// LinesAll is the default event mask
	LinesAll = LineCTS | LineDSR | LineDCD | LineRI
)

var lineNames = []struct {
	line Lines
	name string
}{
	{LineCTS, "CTS"},
	{LineDSR, "DSR"},
	{LineDCD, "DCD"},
	{LineRI, "RI"},
}

func (l Lines) String() string {
	if l == 0 {
		return "none"
	}
	var parts []string
	for _, n := range lineNames {
		if l&n.line != 0 {
			parts = append(parts, n.name)
		}
	}
	if rest := l &^ LinesAll; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%02x", uint8(rest)))
	}
	return strings.Join(parts, "|")
}

// LineEvent is a change of modem line state
type LineEvent struct {
	Old Lines
	New Lines
}

// Changed returns the lines that toggled
func (e LineEvent) Changed() Lines {
	return e.Old ^ e.New
}

func (e LineEvent) String() string {
	return fmt.Sprintf("%s -> %s", e.Old, e.New)
}
