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
Package dispatch fans out inbound serial traffic to application listeners.

A Dispatcher keeps one PortHandleInfo per open handle with at most one
DataListener and one EventListener. The first registration on a handle
starts a Looper; removing the last listener stops it. Producers push data,
read errors and line events through the Dispatcher and are never blocked
by slow listeners.
*/
package dispatch

import (
	"fmt"
	"sort"
	"sync"

	"github.com/serialxfer/xfer/stats"
	log "github.com/sirupsen/logrus"
)

// Handle identifies an open port
type Handle int64

// PortHandleInfo is the registry entry of one handle
type PortHandleInfo struct {
	Name          string
	Handle        Handle
	Mask          Lines
	HasData       bool
	HasEvents     bool
	LooperRunning bool
}

type handleEntry struct {
	name   string
	handle Handle
	mask   Lines
	looper *Looper
	data   DataListener
	events EventListener
}

func (e *handleEntry) info() PortHandleInfo {
	return PortHandleInfo{
		Name:          e.name,
		Handle:        e.handle,
		Mask:          e.mask,
		HasData:       e.data != nil,
		HasEvents:     e.events != nil,
		LooperRunning: e.looper != nil,
	}
}

// Dispatcher is the per-process registry of handles and their listeners
type Dispatcher struct {
	sync.RWMutex
	handles map[Handle]*handleEntry
	stats   stats.Stats
}

// NewDispatcher creates an empty Dispatcher. A nil Stats gets a private JSONStats
func NewDispatcher(st stats.Stats) *Dispatcher {
	if st == nil {
		st = stats.NewJSONStats()
	}
	return &Dispatcher{
		handles: make(map[Handle]*handleEntry),
		stats:   st,
	}
}

// AddHandle makes h known to the dispatcher
func (d *Dispatcher) AddHandle(name string, h Handle) error {
	d.Lock()
	defer d.Unlock()
	if _, ok := d.handles[h]; ok {
		return fmt.Errorf("%w: %d", ErrHandleExists, h)
	}
	d.handles[h] = &handleEntry{name: name, handle: h, mask: LinesAll}
	return nil
}

// RemoveHandle forgets h. It fails while any listener is registered
func (d *Dispatcher) RemoveHandle(h Handle) error {
	d.Lock()
	defer d.Unlock()
	e, ok := d.handles[h]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	if e.data != nil || e.events != nil {
		return fmt.Errorf("%w: %s", ErrHandleBusy, e.name)
	}
	delete(d.handles, h)
	return nil
}

// Info returns the registry entry of h
func (d *Dispatcher) Info(h Handle) (PortHandleInfo, error) {
	d.RLock()
	defer d.RUnlock()
	e, ok := d.handles[h]
	if !ok {
		return PortHandleInfo{}, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	return e.info(), nil
}

// Handles lists all entries ordered by handle
func (d *Dispatcher) Handles() []PortHandleInfo {
	d.RLock()
	res := make([]PortHandleInfo, 0, len(d.handles))
	for _, e := range d.handles {
		res = append(res, e.info())
	}
	d.RUnlock()
	sort.Slice(res, func(i, j int) bool { return res[i].Handle < res[j].Handle })
	return res
}

// entry must be called with the lock held
func (d *Dispatcher) entry(h Handle) (*handleEntry, error) {
	e, ok := d.handles[h]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	return e, nil
}

// looperFor starts the looper of e if needed. Must be called with the lock held
func (d *Dispatcher) looperFor(e *handleEntry) *Looper {
	if e.looper == nil {
		e.looper = NewLooper(e.name, e.mask, d.stats)
		log.Infof("started looper for %s (handle %d)", e.name, e.handle)
	}
	return e.looper
}

// releaseLooper detaches the looper of e once it has no listeners.
// Must be called with the lock held; the caller closes the returned looper after unlocking
func releaseLooper(e *handleEntry) *Looper {
	if e.data != nil || e.events != nil || e.looper == nil {
		return nil
	}
	l := e.looper
	e.looper = nil
	return l
}

func closeLooper(name string, l *Looper) {
	if l == nil {
		return
	}
	l.Close()
	log.Infof("stopped looper for %s", name)
}

// RegisterDataListener attaches dl to h
func (d *Dispatcher) RegisterDataListener(h Handle, dl DataListener) error {
	if dl == nil {
		return ErrNilListener
	}
	d.Lock()
	defer d.Unlock()
	e, err := d.entry(h)
	if err != nil {
		return err
	}
	if e.data != nil {
		return fmt.Errorf("%w: data listener on %s", ErrListenerAlreadyExists, e.name)
	}
	e.data = dl
	d.looperFor(e).SetDataListener(dl)
	return nil
}

// UnregisterDataListener detaches the data listener of h. The looper is
// stopped and joined when no listener is left
func (d *Dispatcher) UnregisterDataListener(h Handle) error {
	d.Lock()
	e, err := d.entry(h)
	if err != nil {
		d.Unlock()
		return err
	}
	if e.data == nil {
		d.Unlock()
		return fmt.Errorf("%w: data listener on %s", ErrListenerNotRegistered, e.name)
	}
	e.data = nil
	e.looper.SetDataListener(nil)
	l := releaseLooper(e)
	d.Unlock()

	closeLooper(e.name, l)
	return nil
}

// RegisterEventListener attaches el to h
func (d *Dispatcher) RegisterEventListener(h Handle, el EventListener) error {
	if el == nil {
		return ErrNilListener
	}
	d.Lock()
	defer d.Unlock()
	e, err := d.entry(h)
	if err != nil {
		return err
	}
	if e.events != nil {
		return fmt.Errorf("%w: event listener on %s", ErrListenerAlreadyExists, e.name)
	}
	e.events = el
	d.looperFor(e).SetEventListener(el)
	return nil
}

// UnregisterEventListener detaches the event listener of h
func (d *Dispatcher) UnregisterEventListener(h Handle) error {
	d.Lock()
	e, err := d.entry(h)
	if err != nil {
		d.Unlock()
		return err
	}
	if e.events == nil {
		d.Unlock()
		return fmt.Errorf("%w: event listener on %s", ErrListenerNotRegistered, e.name)
	}
	e.events = nil
	e.looper.SetEventListener(nil)
	l := releaseLooper(e)
	d.Unlock()

	closeLooper(e.name, l)
	return nil
}

// withLooper runs f on the looper of h
func (d *Dispatcher) withLooper(h Handle, f func(l *Looper)) error {
	d.RLock()
	defer d.RUnlock()
	e, err := d.entry(h)
	if err != nil {
		return err
	}
	if e.looper == nil {
		return fmt.Errorf("%w: %s", ErrListenerNotRegistered, e.name)
	}
	f(e.looper)
	return nil
}

// PauseData stops delivery of data and data errors on h
func (d *Dispatcher) PauseData(h Handle) error {
	return d.withLooper(h, (*Looper).PauseData)
}

// ResumeData restarts delivery of data and data errors on h
func (d *Dispatcher) ResumeData(h Handle) error {
	return d.withLooper(h, (*Looper).ResumeData)
}

// PauseEvents stops delivery of line events on h. Data keeps flowing
func (d *Dispatcher) PauseEvents(h Handle) error {
	return d.withLooper(h, (*Looper).PauseEvents)
}

// ResumeEvents restarts delivery of line events on h
func (d *Dispatcher) ResumeEvents(h Handle) error {
	return d.withLooper(h, (*Looper).ResumeEvents)
}

// SetEventMask sets the lines whose changes are delivered on h.
// The mask is kept when no looper runs and applied when one starts
func (d *Dispatcher) SetEventMask(h Handle, m Lines) error {
	if m&^LinesAll != 0 {
		return fmt.Errorf("%w: %s", ErrInvalidEventMask, m)
	}
	d.Lock()
	defer d.Unlock()
	e, err := d.entry(h)
	if err != nil {
		return err
	}
	e.mask = m
	if e.looper != nil {
		e.looper.SetEventMask(m)
	}
	return nil
}

// EventMask returns the event mask of h
func (d *Dispatcher) EventMask(h Handle) (Lines, error) {
	d.RLock()
	defer d.RUnlock()
	e, err := d.entry(h)
	if err != nil {
		return 0, err
	}
	return e.mask, nil
}

// PushData hands inbound bytes of h to its looper. Without a looper the data is discarded
func (d *Dispatcher) PushData(h Handle, b []byte) error {
	return d.push(h, func(l *Looper) { l.PushData(b) })
}

// PushDataError hands a read error of h to its looper
func (d *Dispatcher) PushDataError(h Handle, err error) error {
	return d.push(h, func(l *Looper) { l.PushDataError(err) })
}

// PushLineEvent hands a line change of h to its looper
func (d *Dispatcher) PushLineEvent(h Handle, ev LineEvent) error {
	return d.push(h, func(l *Looper) { l.PushLineEvent(ev) })
}

func (d *Dispatcher) push(h Handle, f func(l *Looper)) error {
	d.RLock()
	defer d.RUnlock()
	e, err := d.entry(h)
	if err != nil {
		return err
	}
	if e.looper != nil {
		f(e.looper)
	}
	return nil
}

// Close detaches every listener and stops all loopers. Handles stay known
func (d *Dispatcher) Close() {
	d.Lock()
	var stopped []*handleEntry
	for _, e := range d.handles {
		if e.looper != nil {
			// keep a copy, the entry is reset below
			c := *e
			stopped = append(stopped, &c)
		}
		if e.looper != nil {
			e.looper.SetDataListener(nil)
			e.looper.SetEventListener(nil)
		}
		e.data = nil
		e.events = nil
		e.looper = nil
	}
	d.Unlock()

	for _, e := range stopped {
		closeLooper(e.name, e.looper)
	}
}
