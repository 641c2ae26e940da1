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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type transferResult struct {
	out    []byte
	sent   *Result
	got    *Result
	frames [][]byte
}

// transfer runs a sender and a receiver against each other over a pipe
func transfer(t *testing.T, sc, rc *Config, data []byte) *transferResult {
	t.Helper()
	tx, rx := newPipe()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var out bytes.Buffer
	var got *Result
	var rerr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		got, rerr = NewReceiver(rx, rc, nil).Receive(ctx, &out)
	}()

	sent, serr := NewSender(tx, sc, nil).Send(ctx, bytes.NewReader(data))
	<-done
	require.NoError(t, serr)
	require.NoError(t, rerr)
	return &transferResult{out: out.Bytes(), sent: sent, got: got, frames: tx.written()}
}

// receiverConfig keeps the receiver from repeating the handshake during the tests
func receiverConfig(v Variant) *Config {
	c := testConfig(v)
	c.ConnectTimeout1K = time.Second
	return c
}

func TestTransferBinary(t *testing.T) {
	for _, v := range []Variant{VariantChecksum, VariantCRC, VariantCRC1K} {
		for _, size := range []int{0, 1, 127, 128, 129, 1024, 1025, 3000} {
			t.Run(fmt.Sprintf("%s/%d", v, size), func(t *testing.T) {
				data := pattern(size)
				res := transfer(t, testConfig(v), receiverConfig(v), data)
				require.Equal(t, data, res.out)
				require.Equal(t, int64(size), res.sent.Bytes)
				require.Equal(t, int64(size), res.got.Bytes)
				require.Equal(t, res.sent.Blocks, res.got.Blocks)

				blockSize := FramingFor(v).PayloadSize
				require.Equal(t, (size+blockSize-1)/blockSize, res.got.Blocks)
			})
		}
	}
}

func TestTransfer1KTail(t *testing.T) {
	data := pattern(2600)
	res := transfer(t, testConfig(VariantCRC1K), receiverConfig(VariantCRC1K), data)
	require.Len(t, res.out, 2600)
	require.Equal(t, data, res.out)

	// two full blocks, one SUB padded block and EOT
	require.Len(t, res.frames, 4)
	for _, f := range res.frames[:3] {
		require.Len(t, f, 1029)
		require.Equal(t, byte(cSTX), f[0])
	}
	require.Equal(t, byte(cCPMEOF), res.frames[2][1026])
	require.Equal(t, []byte{cEOT}, res.frames[3])
}

func TestTransferSequenceWraps(t *testing.T) {
	data := pattern(300 * 128)
	res := transfer(t, testConfig(VariantChecksum), receiverConfig(VariantChecksum), data)
	require.Equal(t, data, res.out)
	require.Equal(t, 300, res.got.Blocks)

	require.Len(t, res.frames, 301)
	require.Equal(t, byte(0xFF), res.frames[254][1])
	require.Equal(t, byte(0x00), res.frames[255][1])
	require.Equal(t, byte(0xFF), res.frames[255][2])
	require.Equal(t, byte(0x01), res.frames[256][1])
}

func TestTransferText(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		newline string
		want    string
	}{
		{"unix to dos", "line1\nline2\n", "\r\n", "line1\r\nline2\r\n"},
		{"dos to unix", "a\r\nb\r\n", "\n", "a\nb\n"},
		{"mac to unix", "a\rb\r", "\n", "a\nb\n"},
		{"no trailing newline", "a\nb", "\n", "a\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := testConfig(VariantCRC)
			sc.TextMode = true
			rc := receiverConfig(VariantCRC)
			rc.TextMode = true
			rc.Newline = tt.newline
			res := transfer(t, sc, rc, []byte(tt.in))
			require.Equal(t, tt.want, string(res.out))
		})
	}
}

func TestTransferTextAcrossBlocks(t *testing.T) {
	// 127 letters put the CR of the first line end last in block 1
	line := bytes.Repeat([]byte{'x'}, 127)
	in := append(append([]byte(nil), line...), '\n')
	in = append(in, []byte("next\n")...)

	sc := testConfig(VariantChecksum)
	sc.TextMode = true
	rc := receiverConfig(VariantChecksum)
	rc.TextMode = true
	rc.Newline = "\n"
	res := transfer(t, sc, rc, in)
	require.Equal(t, string(in), string(res.out))
	require.Equal(t, 2, res.got.Blocks)
}

func TestTransfer1KFallback(t *testing.T) {
	rc := testConfig(VariantCRC1K)
	rc.ConnectTimeout1K = 5 * time.Millisecond
	data := pattern(500)

	res := transfer(t, testConfig(VariantChecksum), rc, data)
	require.Equal(t, data, res.out)
	require.Equal(t, VariantChecksum, res.got.Variant)
	require.Len(t, res.frames[0], 132)
}

func TestTransferFiles(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	data := pattern(5000)
	require.NoError(t, os.WriteFile(src, data, 0o644))

	tx, rx := newPipe()
	ctx := context.Background()
	var got *Result
	var rerr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		got, rerr = ReceiveFile(ctx, rx, dst, receiverConfig(VariantCRC1K), nil, nil)
	}()
	var calls int
	sent, err := SendFile(ctx, tx, src, testConfig(VariantCRC1K), nil, func(_ int, _ int64) { calls++ })
	<-done
	require.NoError(t, err)
	require.NoError(t, rerr)
	require.Equal(t, 5, sent.Blocks)
	require.Equal(t, 5, calls)
	require.Equal(t, int64(5000), got.Bytes)

	written, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, data, written)
}

func TestSendFileMissing(t *testing.T) {
	_, err := SendFile(context.Background(), &scriptPort{}, filepath.Join(t.TempDir(), "nope"), testConfig(VariantCRC), nil, nil)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReceiveFileBadPath(t *testing.T) {
	_, err := ReceiveFile(context.Background(), &scriptPort{}, filepath.Join(t.TempDir(), "missing", "dst"), testConfig(VariantCRC), nil, nil)
	require.Error(t, err)
}
