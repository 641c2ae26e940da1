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
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/serialxfer/xfer/stats"
	log "github.com/sirupsen/logrus"
)

type receiverState int

const (
	receiverConnect receiverState = iota
	receiverData
	receiverVerify
	receiverReply
	receiverDone
)

var receiverStateToString = map[receiverState]string{
	receiverConnect: "CONNECT",
	receiverData:    "RECEIVE_DATA",
	receiverVerify:  "VERIFY",
	receiverReply:   "REPLY",
	receiverDone:    "DONE",
}

func (s receiverState) String() string {
	return receiverStateToString[s]
}

type verdict int

const (
	verdictValid verdict = iota
	verdictDuplicate
	verdictCorrupted
	verdictEOT
)

// errFallback asks Receive to restart with the checksum variant
var errFallback = errors.New("no answer to 1K handshake")

// Receiver accepts a file over the Port
type Receiver struct {
	// Progress is optional
	Progress ProgressFunc

	port   Port
	config *Config
	stats  stats.Stats
}

// NewReceiver creates a Receiver. A nil Stats gets a private JSONStats
func NewReceiver(p Port, c *Config, st stats.Stats) *Receiver {
	if st == nil {
		st = stats.NewJSONStats()
	}
	return &Receiver{port: p, config: c, stats: st}
}

// receiveSession is the state of one Receive call
type receiveSession struct {
	*Receiver

	out      *countingWriter
	sink     sink
	acc      []byte
	buf      []byte
	frame    []byte
	lastData time.Time

	framing    Framing
	block      uint8
	naks       int
	duplicates int
	verdict    verdict
	result     *Result
}

// Receive writes the incoming file to w. It returns after EOT was
// acknowledged, on the first terminal error, or when ctx is cancelled.
// The 1K variant falls back to the checksum variant when the transmitter
// never answers the 'C' handshake
func (r *Receiver) Receive(ctx context.Context, w io.Writer) (*Result, error) {
	if err := r.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	start := time.Now()
	rs := r.newSession(w)
	err := rs.run(ctx)
	if errors.Is(err, errFallback) {
		log.Warningf("xmodem transmitter did not answer %s handshake, falling back to %s", r.config.Variant, VariantChecksum)
		c := *r.config
		c.Variant = VariantChecksum
		fallback := NewReceiver(r.port, &c, r.stats)
		fallback.Progress = r.Progress
		res, err := fallback.Receive(ctx, w)
		if res != nil {
			res.Duration = time.Since(start)
		}
		return res, err
	}
	rs.result.Duration = time.Since(start)
	r.stats.IncTransfer(stats.RX, outcome(err))
	if err != nil {
		log.Errorf("xmodem receive failed after %d blocks: %v", rs.result.Blocks, err)
	}
	return rs.result, err
}

func (r *Receiver) newSession(w io.Writer) *receiveSession {
	cw := &countingWriter{w: w}
	rs := &receiveSession{
		Receiver: r,
		out:      cw,
		buf:      make([]byte, 2*framingCRC1K.BlockSize()),
		block:    1,
		result:   &Result{Variant: r.config.Variant},
	}
	if r.config.TextMode {
		rs.sink = &textSink{dec: newTextDecoder(cw, r.config.newline())}
	} else {
		rs.sink = &binarySink{w: cw}
	}
	return rs
}

func (s *receiveSession) run(ctx context.Context) error {
	state := receiverConnect
	for state != receiverDone {
		if err := ctx.Err(); err != nil {
			log.Warningf("xmodem receive aborted in state %s", state)
			return &abortedError{cause: err}
		}
		log.Debugf("xmodem receiver state %s, block %d", state, s.block)

		var err error
		switch state {
		case receiverConnect:
			err = s.connect(ctx)
			state = receiverData
		case receiverData:
			err = s.receiveData(ctx)
			state = receiverVerify
		case receiverVerify:
			err = s.verify()
			state = receiverReply
		case receiverReply:
			state, err = s.reply()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// connect sends the handshake until the first byte of a block arrives
func (s *receiveSession) connect(ctx context.Context) error {
	variant := s.config.Variant
	timeout := s.config.ConnectTimeout
	if variant == VariantCRC1K {
		timeout = s.config.ConnectTimeout1K
	}
	for attempt := 1; ; attempt++ {
		log.Debugf("xmodem sending handshake 0x%02x, attempt %d", variant.handshake(), attempt)
		if err := writeFull(s.port, []byte{variant.handshake()}); err != nil {
			return fmt.Errorf("writing handshake: %w", err)
		}
		got, err := s.poll(ctx, timeout)
		if err != nil {
			return err
		}
		if got {
			return nil
		}
		s.stats.IncTimeout()
		if variant == VariantCRC1K && attempt >= s.config.FallbackAfter1K {
			return errFallback
		}
		if attempt > s.config.ConnectRetries {
			return ErrTransmitterConnectTimeout
		}
	}
}

// poll reads into acc until something arrives or timeout passes
func (s *receiveSession) poll(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		n, err := s.port.Read(s.buf)
		if err != nil {
			return false, fmt.Errorf("reading port: %w", err)
		}
		if n > 0 {
			s.acc = append(s.acc, s.buf[:n]...)
			s.lastData = time.Now()
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		if err := sleep(ctx, s.config.ReadInterval); err != nil {
			return false, err
		}
	}
}

// receiveData assembles one full block or detects EOT
func (s *receiveSession) receiveData(ctx context.Context) error {
	for {
		if len(s.acc) > 0 {
			if s.acc[0] == cEOT {
				s.frame = s.acc[:1]
				return nil
			}
			f, ok := receiveFraming(s.config.Variant, s.acc[0])
			if !ok {
				// not a block start, let verify reject it
				s.frame = s.acc
				return nil
			}
			if len(s.acc) >= f.BlockSize() {
				s.frame = s.acc[:f.BlockSize()]
				return nil
			}
		}
		remaining := s.config.DataTimeout - time.Since(s.lastData)
		got, err := s.poll(ctx, remaining)
		if err != nil {
			return err
		}
		if !got {
			s.stats.IncTimeout()
			return fmt.Errorf("%w: waiting for block %d", ErrReceiverDataTimeout, s.block)
		}
	}
}

// verify classifies the assembled frame
func (s *receiveSession) verify() error {
	if len(s.frame) == 1 && s.frame[0] == cEOT {
		s.verdict = verdictEOT
		return nil
	}
	f, ok := receiveFraming(s.config.Variant, s.frame[0])
	if !ok {
		log.Warningf("xmodem unexpected block start 0x%02x", s.frame[0])
		s.verdict = verdictCorrupted
		return nil
	}
	b, err := DecodeBlock(f, s.frame)
	if err != nil {
		return err
	}
	s.framing = f
	switch {
	case !b.Valid(f):
		log.Warningf("xmodem block %d failed integrity check", b.Seq)
		s.verdict = verdictCorrupted
	case b.Seq == s.block:
		s.verdict = verdictValid
	case b.Seq == s.block-1 && s.result.Blocks > 0:
		s.verdict = verdictDuplicate
	default:
		log.Warningf("xmodem block %d out of sequence, expected %d", b.Seq, s.block)
		s.verdict = verdictCorrupted
	}
	return nil
}

// reply answers the transmitter and writes accepted payloads
func (s *receiveSession) reply() (receiverState, error) {
	switch s.verdict {
	case verdictEOT:
		if err := s.sink.finish(); err != nil {
			return receiverDone, fmt.Errorf("writing destination: %w", err)
		}
		if err := s.send(cACK); err != nil {
			return receiverDone, err
		}
		s.stats.AddBytes(stats.RX, s.out.n-s.result.Bytes)
		s.result.Bytes = s.out.n
		log.Infof("xmodem receive complete, %d blocks, %d bytes", s.result.Blocks, s.result.Bytes)
		return receiverDone, nil
	case verdictCorrupted:
		s.stats.IncCorrupted()
		s.naks++
		if s.naks > s.config.MaxRetries {
			return receiverDone, fmt.Errorf("%w: block %d rejected %d times", ErrMaxRetriesReached, s.block, s.naks)
		}
		s.acc = s.acc[:0]
		// clear before NAK, the retransmission may follow immediately
		if err := s.port.ClearBuffers(true, false); err != nil {
			return receiverDone, fmt.Errorf("clearing port buffers: %w", err)
		}
		s.stats.IncNAK(stats.RX)
		if err := s.send(cNAK); err != nil {
			return receiverDone, err
		}
		return receiverData, nil
	}

	payload := s.frame[3 : len(s.frame)-s.framing.TrailerSize()]
	if s.verdict == verdictDuplicate {
		s.stats.IncDuplicate()
		s.duplicates++
		if s.duplicates > s.config.MaxDuplicates {
			return receiverDone, fmt.Errorf("%w: block %d", ErrMaxDuplicateRetries, s.block-1)
		}
		log.Warningf("xmodem duplicate block %d", s.block-1)
		if s.config.WriteDuplicates {
			if err := s.sink.write(payload); err != nil {
				return receiverDone, fmt.Errorf("writing duplicate block %d: %w", s.block-1, err)
			}
		}
	} else {
		if err := s.sink.write(payload); err != nil {
			return receiverDone, fmt.Errorf("writing block %d: %w", s.block, err)
		}
		s.naks = 0
		s.duplicates = 0
		s.block++
		s.result.Blocks++
		s.stats.IncBlocks(stats.RX)
		s.stats.AddBytes(stats.RX, s.out.n-s.result.Bytes)
		s.result.Bytes = s.out.n
	}
	s.consume(len(s.frame))
	if err := s.send(cACK); err != nil {
		return receiverDone, err
	}
	if s.verdict == verdictValid && s.Progress != nil {
		s.Progress(s.result.Blocks, s.result.Bytes)
	}
	return receiverData, nil
}

// consume drops n bytes from the head of acc
func (s *receiveSession) consume(n int) {
	s.acc = s.acc[:copy(s.acc, s.acc[n:])]
}

func (s *receiveSession) send(b byte) error {
	if err := writeFull(s.port, []byte{b}); err != nil {
		return fmt.Errorf("writing reply 0x%02x: %w", b, err)
	}
	s.lastData = time.Now()
	return nil
}

// sink writes accepted payloads to the destination
type sink interface {
	write(payload []byte) error
	finish() error
}

// binarySink holds the last payload back so its SUB padding can be dropped at EOT
type binarySink struct {
	w    io.Writer
	held []byte
	has  bool
}

func (b *binarySink) write(payload []byte) error {
	if b.has {
		if err := writeFull(b.w, b.held); err != nil {
			return err
		}
	}
	b.held = append(b.held[:0], payload...)
	b.has = true
	return nil
}

func (b *binarySink) finish() error {
	if !b.has {
		return nil
	}
	b.has = false
	return writeFull(b.w, bytes.TrimRight(b.held, string(cCPMEOF)))
}

type textSink struct {
	dec *textDecoder
}

func (t *textSink) write(payload []byte) error {
	_, err := t.dec.Write(payload)
	return err
}

func (t *textSink) finish() error {
	return t.dec.Flush()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
