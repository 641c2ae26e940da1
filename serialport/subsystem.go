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
	"fmt"
	"sync"
	"time"

	"github.com/serialxfer/xfer/dispatch"
	log "github.com/sirupsen/logrus"
)

// ErrAlreadyPolling is returned when a handle has a running Poller
var ErrAlreadyPolling = errors.New("port is already polled")

// Subsystem owns every open port of the process and the Dispatcher they
// report to. Handles are only valid within the Subsystem that issued them
type Subsystem struct {
	sync.Mutex
	dispatcher *dispatch.Dispatcher
	open       OpenFunc
	next       dispatch.Handle
	ports      map[dispatch.Handle]*Port
	pollers    map[dispatch.Handle]*Poller
}

// NewSubsystem creates a Subsystem opening real serial devices
func NewSubsystem(d *dispatch.Dispatcher) *Subsystem {
	return newSubsystem(d, openSerial)
}

func newSubsystem(d *dispatch.Dispatcher, openFn OpenFunc) *Subsystem {
	if d == nil {
		d = dispatch.NewDispatcher(nil)
	}
	return &Subsystem{
		dispatcher: d,
		open:       openFn,
		ports:      make(map[dispatch.Handle]*Port),
		pollers:    make(map[dispatch.Handle]*Poller),
	}
}

// Dispatcher returns the dispatcher the ports are registered with
func (s *Subsystem) Dispatcher() *dispatch.Dispatcher {
	return s.dispatcher
}

// Open opens the device name and registers it with the dispatcher
func (s *Subsystem) Open(name string, o Options) (dispatch.Handle, *Port, error) {
	p, err := open(s.open, name, o)
	if err != nil {
		return 0, nil, err
	}

	s.Lock()
	defer s.Unlock()
	s.next++
	h := s.next
	if err := s.dispatcher.AddHandle(name, h); err != nil {
		p.Close()
		return 0, nil, err
	}
	s.ports[h] = p
	log.Infof("opened %s as handle %d", name, h)
	return h, p, nil
}

// Port returns the open port of h
func (s *Subsystem) Port(h dispatch.Handle) (*Port, error) {
	s.Lock()
	defer s.Unlock()
	p, ok := s.ports[h]
	if !ok {
		return nil, fmt.Errorf("%w: %d", dispatch.ErrUnknownHandle, h)
	}
	return p, nil
}

// StartPolling feeds the traffic of h into the dispatcher until
// StopPolling or Close. A port being polled must not run an xmodem session
func (s *Subsystem) StartPolling(ctx context.Context, h dispatch.Handle, interval time.Duration) error {
	s.Lock()
	defer s.Unlock()
	p, ok := s.ports[h]
	if !ok {
		return fmt.Errorf("%w: %d", dispatch.ErrUnknownHandle, h)
	}
	if _, ok := s.pollers[h]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyPolling, p.Name())
	}
	s.pollers[h] = StartPoller(ctx, h, p, s.dispatcher, interval)
	return nil
}

// StopPolling stops the poller of h, if any
func (s *Subsystem) StopPolling(h dispatch.Handle) {
	s.Lock()
	pl := s.pollers[h]
	delete(s.pollers, h)
	s.Unlock()
	if pl != nil {
		pl.Stop()
	}
}

// ClosePort closes h. It fails while listeners are registered on h
func (s *Subsystem) ClosePort(h dispatch.Handle) error {
	s.Lock()
	p, ok := s.ports[h]
	if !ok {
		s.Unlock()
		return fmt.Errorf("%w: %d", dispatch.ErrUnknownHandle, h)
	}
	if err := s.dispatcher.RemoveHandle(h); err != nil {
		s.Unlock()
		return err
	}
	delete(s.ports, h)
	pl := s.pollers[h]
	delete(s.pollers, h)
	s.Unlock()

	if pl != nil {
		pl.Stop()
	}
	log.Infof("closing %s (handle %d)", p.Name(), h)
	return p.Close()
}

// Close stops every poller and looper and closes all ports
func (s *Subsystem) Close() error {
	s.Lock()
	pollers := s.pollers
	ports := s.ports
	s.pollers = make(map[dispatch.Handle]*Poller)
	s.ports = make(map[dispatch.Handle]*Port)
	s.Unlock()

	for _, pl := range pollers {
		pl.Stop()
	}
	s.dispatcher.Close()

	var errs []error
	for h, p := range ports {
		if err := s.dispatcher.RemoveHandle(h); err != nil {
			errs = append(errs, err)
		}
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
