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

type senderState int

const (
	senderConnect senderState = iota
	senderBeginSend
	senderWaitAck
	senderResend
	senderSendNext
	senderEndTx
	senderDone
)

var senderStateToString = map[senderState]string{
	senderConnect:   "CONNECT",
	senderBeginSend: "BEGIN_SEND",
	senderWaitAck:   "WAIT_ACK",
	senderResend:    "RESEND",
	senderSendNext:  "SEND_NEXT",
	senderEndTx:     "END_TX",
	senderDone:      "DONE",
}

func (s senderState) String() string {
	return senderStateToString[s]
}

// Sender transmits a file over the Port
type Sender struct {
	// Progress is optional
	Progress ProgressFunc

	port   Port
	config *Config
	stats  stats.Stats
}

// NewSender creates a Sender. A nil Stats gets a private JSONStats
func NewSender(p Port, c *Config, st stats.Stats) *Sender {
	if st == nil {
		st = stats.NewJSONStats()
	}
	return &Sender{port: p, config: c, stats: st}
}

// sendSession is the state of one Send call
type sendSession struct {
	*Sender

	framing Framing
	src     source
	payload []byte
	frame   []byte
	buf     []byte

	block   uint8
	retries int
	eotSent bool
	sentAt  time.Time
	result  *Result
}

// Send transmits everything r provides. It returns when the receiver
// acknowledged EOT, on the first terminal error, or when ctx is cancelled
func (s *Sender) Send(ctx context.Context, r io.Reader) (*Result, error) {
	if err := s.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	start := time.Now()
	ss := s.newSession(r)
	err := ss.run(ctx)
	ss.result.Duration = time.Since(start)
	s.stats.IncTransfer(stats.TX, outcome(err))
	if err != nil {
		log.Errorf("xmodem send failed after %d blocks: %v", ss.result.Blocks, err)
	}
	return ss.result, err
}

func (s *Sender) newSession(r io.Reader) *sendSession {
	f := FramingFor(s.config.Variant)
	ss := &sendSession{
		Sender:  s,
		framing: f,
		payload: make([]byte, f.PayloadSize),
		frame:   make([]byte, 0, f.BlockSize()),
		buf:     make([]byte, 2*framingCRC1K.BlockSize()),
		result:  &Result{Variant: s.config.Variant},
	}
	if s.config.TextMode {
		ss.src = newTextSource(r)
	} else {
		ss.src = &binarySource{r: r}
	}
	return ss
}

func (s *sendSession) run(ctx context.Context) error {
	state := senderConnect
	for state != senderDone {
		if err := ctx.Err(); err != nil {
			log.Warningf("xmodem send aborted in state %s", state)
			return &abortedError{cause: err}
		}
		log.Debugf("xmodem sender state %s, block %d", state, s.block)

		var err error
		switch state {
		case senderConnect:
			state, err = s.connect(ctx)
		case senderBeginSend:
			s.block = 1
			state, err = s.loadAndSend()
		case senderWaitAck:
			state, err = s.waitAck(ctx)
		case senderResend:
			s.stats.IncRetransmit()
			if s.eotSent {
				err = s.sendEOT()
			} else {
				err = s.sendFrame()
			}
			state = senderWaitAck
		case senderSendNext:
			s.retries = 0
			s.block++
			state, err = s.loadAndSend()
		case senderEndTx:
			s.retries = 0
			err = s.sendEOT()
			state = senderWaitAck
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// connect waits for the handshake byte of the variant
func (s *sendSession) connect(ctx context.Context) (senderState, error) {
	want := s.config.Variant.handshake()
	deadline := time.Now().Add(s.config.SenderConnectTimeout)
	for {
		n, err := s.port.Read(s.buf)
		if err != nil {
			return senderConnect, fmt.Errorf("waiting for receiver: %w", err)
		}
		if bytes.IndexByte(s.buf[:n], want) >= 0 {
			break
		}
		if time.Now().After(deadline) {
			s.stats.IncTimeout()
			return senderConnect, ErrReceiverConnectTimeout
		}
		if err := sleep(ctx, s.config.PollInterval); err != nil {
			return senderConnect, err
		}
	}
	log.Infof("xmodem receiver connected, sending %s blocks", s.config.Variant)
	// drop queued handshake bytes so they are not taken for a NAK of block 1
	if err := s.port.ClearBuffers(true, false); err != nil {
		return senderConnect, fmt.Errorf("clearing port buffers: %w", err)
	}
	return senderBeginSend, nil
}

// loadAndSend frames the next payload, or moves to END_TX at the end of the source
func (s *sendSession) loadAndSend() (senderState, error) {
	err := s.src.fill(s.payload)
	if errors.Is(err, io.EOF) {
		return senderEndTx, nil
	}
	if err != nil {
		return senderDone, fmt.Errorf("reading block %d from source: %w", s.block, err)
	}
	if s.frame, err = EncodeBlock(s.frame[:0], s.framing, s.block, s.payload); err != nil {
		return senderDone, err
	}
	return senderWaitAck, s.sendFrame()
}

func (s *sendSession) sendFrame() error {
	s.sentAt = time.Now()
	if err := writeFull(s.port, s.frame); err != nil {
		return fmt.Errorf("writing block %d: %w", s.block, err)
	}
	return nil
}

func (s *sendSession) sendEOT() error {
	s.eotSent = true
	s.sentAt = time.Now()
	if err := writeFull(s.port, []byte{cEOT}); err != nil {
		return fmt.Errorf("writing EOT: %w", err)
	}
	return nil
}

// waitAck polls for the receiver answer to the last block or EOT
func (s *sendSession) waitAck(ctx context.Context) (senderState, error) {
	interval := s.config.PollInterval
	if s.eotSent {
		interval = s.config.EOTPollInterval
	}
	deadline := time.Now().Add(s.config.AckTimeout)
	for {
		n, err := s.port.Read(s.buf)
		if err != nil {
			return senderDone, fmt.Errorf("waiting for ack: %w", err)
		}
		if n > 0 {
			if n > 1 {
				log.Debugf("xmodem ignoring %d bytes after answer 0x%02x: % x", n-1, s.buf[0], s.buf[1:n])
			}
			return s.answer(s.buf[0])
		}
		if time.Now().After(deadline) {
			s.stats.IncTimeout()
			if s.eotSent {
				return senderDone, ErrEOTAckTimeout
			}
			return senderDone, ErrAckTimeout
		}
		if err := sleep(ctx, interval); err != nil {
			return senderDone, err
		}
	}
}

func (s *sendSession) answer(b byte) (senderState, error) {
	switch b {
	case cACK:
		s.stats.ObserveAckLatency(time.Since(s.sentAt))
		if s.eotSent {
			log.Infof("xmodem send complete, %d blocks, %d bytes", s.result.Blocks, s.result.Bytes)
			return senderDone, nil
		}
		sent := s.src.consumed()
		s.stats.IncBlocks(stats.TX)
		s.stats.AddBytes(stats.TX, sent-s.result.Bytes)
		s.result.Blocks++
		s.result.Bytes = sent
		if s.Progress != nil {
			s.Progress(s.result.Blocks, s.result.Bytes)
		}
		return senderSendNext, nil
	case cNAK:
		s.stats.IncNAK(stats.TX)
		s.retries++
		if s.retries > s.config.MaxRetries {
			return senderDone, fmt.Errorf("%w: block %d was NAKed %d times", ErrMaxRetriesReached, s.block, s.retries)
		}
		log.Warningf("xmodem block %d NAKed, retry %d", s.block, s.retries)
		return senderResend, nil
	}
	return senderDone, protocolError(b)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return &abortedError{cause: ctx.Err()}
	case <-t.C:
		return nil
	}
}

func outcome(err error) stats.Outcome {
	switch {
	case err == nil:
		return stats.OutcomeOK
	case errors.Is(err, ErrAborted):
		return stats.OutcomeAborted
	}
	return stats.OutcomeFailed
}
