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
	"context"
	"sync"

	"github.com/serialxfer/xfer/stats"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Looper delivers the traffic of one handle to its listeners.
// Every lane (data, data errors, line events) has its own bounded queue
// and consumer goroutine. Producers never block: a full lane drops its
// oldest item
type Looper struct {
	name  string
	stats stats.Stats

	sync.Mutex
	dataListener  DataListener
	eventListener EventListener
	mask          Lines

	data   *queue[[]byte]
	errs   *queue[error]
	events *queue[LineEvent]

	cancel    context.CancelFunc
	eg        *errgroup.Group
	closeOnce sync.Once
}

// NewLooper starts the consumers. Close must be called to stop them
func NewLooper(name string, mask Lines, st stats.Stats) *Looper {
	if st == nil {
		st = stats.NewJSONStats()
	}
	l := &Looper{
		name:   name,
		stats:  st,
		mask:   mask,
		data:   newQueue[[]byte](QueueCapacity),
		errs:   newQueue[error](QueueCapacity),
		events: newQueue[LineEvent](QueueCapacity),
	}

	var ctx context.Context
	ctx, l.cancel = context.WithCancel(context.Background())
	l.eg, ctx = errgroup.WithContext(ctx)
	l.eg.Go(func() error {
		return drain(ctx, l, stats.LaneData, l.data, func(b []byte) bool {
			dl := l.currentDataListener()
			if dl == nil {
				return false
			}
			dl.OnData(b)
			return true
		})
	})
	l.eg.Go(func() error {
		return drain(ctx, l, stats.LaneDataError, l.errs, func(err error) bool {
			dl := l.currentDataListener()
			if dl == nil {
				return false
			}
			dl.OnDataError(err)
			return true
		})
	})
	l.eg.Go(func() error {
		return drain(ctx, l, stats.LaneLineEvent, l.events, func(ev LineEvent) bool {
			el := l.currentEventListener()
			if el == nil {
				return false
			}
			el.OnLineEvent(ev)
			return true
		})
	})
	log.Debugf("looper %s started", name)
	return l
}

// drain delivers items of one lane until ctx is done
func drain[T any](ctx context.Context, l *Looper, lane stats.Lane, q *queue[T], deliver func(T) bool) error {
	for {
		v, ok := q.pop(ctx)
		if !ok {
			return nil
		}
		l.invoke(lane, func() bool { return deliver(v) })
	}
}

// invoke calls the listener, a panicking listener does not stop the lane
func (l *Looper) invoke(lane stats.Lane, call func() bool) {
	defer func() {
		if r := recover(); r != nil {
			l.stats.IncListenerPanic(lane)
			log.Errorf("looper %s: %s listener panicked: %v", l.name, lane, r)
		}
	}()
	if call() {
		l.stats.IncDelivered(lane)
	} else {
		l.stats.IncDropped(lane)
		log.Debugf("looper %s: no %s listener, item dropped", l.name, lane)
	}
}

func (l *Looper) currentDataListener() DataListener {
	l.Lock()
	defer l.Unlock()
	return l.dataListener
}

func (l *Looper) currentEventListener() EventListener {
	l.Lock()
	defer l.Unlock()
	return l.eventListener
}

// SetDataListener replaces the data listener, nil detaches it
func (l *Looper) SetDataListener(dl DataListener) {
	l.Lock()
	defer l.Unlock()
	l.dataListener = dl
}

// SetEventListener replaces the event listener, nil detaches it
func (l *Looper) SetEventListener(el EventListener) {
	l.Lock()
	defer l.Unlock()
	l.eventListener = el
}

// SetEventMask sets the lines whose changes are delivered
func (l *Looper) SetEventMask(m Lines) {
	l.Lock()
	defer l.Unlock()
	l.mask = m
}

// EventMask returns the applied mask
func (l *Looper) EventMask() Lines {
	l.Lock()
	defer l.Unlock()
	return l.mask
}

func (l *Looper) pushed(lane stats.Lane, dropped bool, n int) {
	if dropped {
		l.stats.IncDropped(lane)
		log.Debugf("looper %s: %s queue full, oldest item dropped", l.name, lane)
	}
	l.stats.SetMaxQueue(lane, int64(n))
}

// PushData queues a copy of b
func (l *Looper) PushData(b []byte) {
	dropped, n := l.data.push(append([]byte(nil), b...))
	l.pushed(stats.LaneData, dropped, n)
}

// PushDataError queues a read error
func (l *Looper) PushDataError(err error) {
	dropped, n := l.errs.push(err)
	l.pushed(stats.LaneDataError, dropped, n)
}

// PushLineEvent queues ev if one of the changed lines is in the mask.
// It returns false when the event was filtered out
func (l *Looper) PushLineEvent(ev LineEvent) bool {
	if ev.Changed()&l.EventMask() == 0 {
		return false
	}
	dropped, n := l.events.push(ev)
	l.pushed(stats.LaneLineEvent, dropped, n)
	return true
}

// PauseData stops data and data error delivery, items keep queueing
func (l *Looper) PauseData() {
	l.data.setPaused(true)
	l.errs.setPaused(true)
}

// ResumeData restarts data and data error delivery
func (l *Looper) ResumeData() {
	l.data.setPaused(false)
	l.errs.setPaused(false)
}

// PauseEvents stops line event delivery, events keep queueing
func (l *Looper) PauseEvents() {
	l.events.setPaused(true)
}

// ResumeEvents restarts line event delivery
func (l *Looper) ResumeEvents() {
	l.events.setPaused(false)
}

// DataPaused reports the data gate
func (l *Looper) DataPaused() bool {
	return l.data.isPaused()
}

// EventsPaused reports the line event gate
func (l *Looper) EventsPaused() bool {
	return l.events.isPaused()
}

// Pending returns the number of queued items per lane
func (l *Looper) Pending() (data, errs, events int) {
	return l.data.len(), l.errs.len(), l.events.len()
}

// Close stops the consumers and waits for them. Queued items are discarded.
// It must not be called from a listener of this looper
func (l *Looper) Close() {
	l.closeOnce.Do(func() {
		l.cancel()
		_ = l.eg.Wait()
		log.Debugf("looper %s stopped", l.name)
	})
}
