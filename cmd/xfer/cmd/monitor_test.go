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

package cmd

import (
	"bytes"
	"errors"
	"testing"

	"github.com/serialxfer/xfer/dispatch"
	"github.com/stretchr/testify/require"
)

func TestParseLines(t *testing.T) {
	m, err := parseLines([]string{"cts", "dcd"})
	require.NoError(t, err)
	require.Equal(t, dispatch.LineCTS|dispatch.LineDCD, m)

	m, err = parseLines(nil)
	require.NoError(t, err)
	require.Equal(t, dispatch.Lines(0), m)

	_, err = parseLines([]string{"rts"})
	require.Error(t, err)
}

func TestPrinter(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out)

	p.OnData([]byte("AT\r\n"))
	p.OnDataError(errors.New("overrun"))
	p.OnLineEvent(dispatch.LineEvent{Old: 0, New: dispatch.LineCTS})
	p.OnLineEvent(dispatch.LineEvent{Old: dispatch.LineCTS, New: dispatch.LineCTS | dispatch.LineDCD})

	s := out.String()
	require.Contains(t, s, `"AT\r\n"`)
	require.Contains(t, s, "overrun")
	require.Contains(t, s, "CTS -> CTS|DCD")

	var sum bytes.Buffer
	require.NoError(t, p.summary(&sum))
	require.Contains(t, sum.String(), "received 4 bytes, 1 read errors")
	require.Equal(t, 1, p.seen[dispatch.LineCTS])
	require.Equal(t, 1, p.seen[dispatch.LineDCD])
	require.Equal(t, 0, p.seen[dispatch.LineRI])
}
