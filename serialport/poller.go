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

package serialport

import (
	"context"
	"errors"
	"time"

	"github.com/serialxfer/xfer/dispatch"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultPollInterval is how often modem status lines are sampled
const DefaultPollInterval = 50 * time.Millisecond

const readBufferSize = 4096

// Sink receives what a Poller produces. dispatch.Dispatcher is a Sink
type Sink interface {
	PushData(h dispatch.Handle, b []byte) error
	PushDataError(h dispatch.Handle, err error) error
	PushLineEvent(h dispatch.Handle, ev dispatch.LineEvent) error
}

// Poller reads a port and samples its status lines, pushing both into a Sink
type Poller struct {
	handle   dispatch.Handle
	port     *Port
	sink     Sink
	interval time.Duration

	cancel context.CancelFunc
	eg     *errgroup.Group
}

// StartPoller starts the reader and the line sampler of p
func StartPoller(ctx context.Context, h dispatch.Handle, p *Port, sink Sink, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	eg, ctx := errgroup.WithContext(ctx)
	pl := &Poller{
		handle:   h,
		port:     p,
		sink:     sink,
		interval: interval,
		cancel:   cancel,
		eg:       eg,
	}
	eg.Go(func() error {
		return pl.readLoop(ctx)
	})
	eg.Go(func() error {
		return pl.lineLoop(ctx)
	})
	return pl
}

func (pl *Poller) push(err error) {
	if err != nil && !errors.Is(err, dispatch.ErrUnknownHandle) {
		log.Debugf("%s: %v", pl.port.Name(), err)
	}
}

func (pl *Poller) readLoop(ctx context.Context) error {
	buf := make([]byte, readBufferSize)
	for ctx.Err() == nil {
		n, err := pl.port.Read(buf)
		if n > 0 {
			// the looper keeps its own copy
			pl.push(pl.sink.PushData(pl.handle, buf[:n]))
		}
		if err == nil {
			continue
		}
		pl.push(pl.sink.PushDataError(pl.handle, err))
		if closedError(err) {
			log.Warningf("%s: stopped reading: %v", pl.port.Name(), err)
			return nil
		}
		select {
		case <-ctx.Done():
		case <-time.After(pl.interval):
		}
	}
	return nil
}

func (pl *Poller) lineLoop(ctx context.Context) error {
	prev, err := pl.port.Lines()
	if err != nil {
		// status lines are optional, e.g. on pseudo terminals
		log.Infof("%s: no modem status lines: %v", pl.port.Name(), err)
		return nil
	}
	ticker := time.NewTicker(pl.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		cur, err := pl.port.Lines()
		if err != nil {
			if closedError(err) {
				return nil
			}
			log.Debugf("%s: %v", pl.port.Name(), err)
			continue
		}
		if cur == prev {
			continue
		}
		pl.push(pl.sink.PushLineEvent(pl.handle, dispatch.LineEvent{Old: prev, New: cur}))
		prev = cur
	}
}

// Stop the poller and wait for its goroutines
func (pl *Poller) Stop() {
	pl.cancel()
	_ = pl.eg.Wait()
}
