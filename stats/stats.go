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
Package stats implements statistics collection and reporting.
It is used by transfer sessions and the completion dispatcher to report
internal statistics, such as number of blocks, retries and dropped events.
*/
package stats

import (
	"fmt"
	"sync"
	"time"

	"github.com/eclesh/welford"
)

// Direction of a transfer
type Direction int

// Directions
const (
	TX Direction = iota
	RX
)

func (d Direction) String() string {
	if d == TX {
		return "tx"
	}
	return "rx"
}

// Outcome of a finished transfer
type Outcome int

// Outcomes
const (
	OutcomeOK Outcome = iota
	OutcomeFailed
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeAborted:
		return "aborted"
	default:
		return "failed"
	}
}

// Lane is a looper delivery queue
type Lane int

// Lanes
const (
	LaneData Lane = iota
	LaneDataError
	LaneLineEvent
)

func (l Lane) String() string {
	switch l {
	case LaneData:
		return "data"
	case LaneDataError:
		return "data_error"
	default:
		return "line_event"
	}
}

// Stats is a metric collection interface
type Stats interface {
	// Start starts a stat reporter
	// Use this for passive reporters
	Start(monitoringport int)

	// Snapshot the values so they can be reported atomically
	Snapshot()

	// Reset atomically sets all the counters to 0
	Reset()

	// IncBlocks atomically add 1 to the counter of accepted blocks
	IncBlocks(d Direction)

	// AddBytes atomically adds n file bytes to the counter
	AddBytes(d Direction, n int64)

	// IncNAK atomically add 1 to the counter of NAKs sent (RX) or received (TX)
	IncNAK(d Direction)

	// IncRetransmit atomically add 1 to the counter
	IncRetransmit()

	// IncDuplicate atomically add 1 to the counter
	IncDuplicate()

	// IncCorrupted atomically add 1 to the counter
	IncCorrupted()

	// IncTimeout atomically add 1 to the counter
	IncTimeout()

	// IncTransfer atomically add 1 to the counter of finished transfers
	IncTransfer(d Direction, o Outcome)

	// ObserveAckLatency adds a block round trip sample
	ObserveAckLatency(latency time.Duration)

	// IncDelivered atomically add 1 to the counter
	IncDelivered(l Lane)

	// IncDropped atomically add 1 to the counter
	IncDropped(l Lane)

	// IncListenerPanic atomically add 1 to the counter
	IncListenerPanic(l Lane)

	// SetMaxQueue atomically sets max looper queue len
	SetMaxQueue(l Lane, queue int64)
}

// syncMapInt64 sync map of counters
type syncMapInt64 struct {
	sync.Mutex
	m map[int]int64
}

// init initializes the underlying map
func (s *syncMapInt64) init() {
	s.m = make(map[int]int64)
}

// keys returns slice of keys of the underlying map
func (s *syncMapInt64) keys() []int {
	s.Lock()
	defer s.Unlock()
	keys := make([]int, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	return keys
}

// load gets the value by the key
func (s *syncMapInt64) load(key int) int64 {
	s.Lock()
	defer s.Unlock()
	return s.m[key]
}

// add adds delta to the counter for the given key
func (s *syncMapInt64) add(key int, delta int64) {
	s.Lock()
	s.m[key] += delta
	s.Unlock()
}

// inc increments the counter for the given key
func (s *syncMapInt64) inc(key int) {
	s.add(key, 1)
}

// storeMax saves the value if it is bigger than the current one
func (s *syncMapInt64) storeMax(key int, value int64) {
	s.Lock()
	if value > s.m[key] {
		s.m[key] = value
	}
	s.Unlock()
}

// store saves the value with the key
func (s *syncMapInt64) store(key int, value int64) {
	s.Lock()
	s.m[key] = value
	s.Unlock()
}

// copy all key-values between maps
func (s *syncMapInt64) copy(dst *syncMapInt64) {
	for _, t := range s.keys() {
		dst.store(t, s.load(t))
	}
}

// reset stats to 0
func (s *syncMapInt64) reset() {
	s.Lock()
	for t := range s.m {
		s.m[t] = 0
	}
	s.Unlock()
}

// latency keeps running statistics of ACK round trips
type latency struct {
	sync.Mutex
	w *welford.Stats
	n int64
}

func (l *latency) init() {
	l.w = welford.New()
}

func (l *latency) reset() {
	l.Lock()
	l.w = welford.New()
	l.n = 0
	l.Unlock()
}

func (l *latency) add(d time.Duration) {
	l.Lock()
	l.w.Add(float64(d.Microseconds()))
	l.n++
	l.Unlock()
}

// values returns count, mean and stddev in microseconds
func (l *latency) values() (int64, float64, float64) {
	l.Lock()
	defer l.Unlock()
	if l.n == 0 {
		return 0, 0, 0
	}
	return l.n, l.w.Mean(), l.w.Stddev()
}

type counters struct {
	blocks       syncMapInt64
	bytes        syncMapInt64
	naks         syncMapInt64
	transfersTX  syncMapInt64
	transfersRX  syncMapInt64
	delivered    syncMapInt64
	dropped      syncMapInt64
	panics       syncMapInt64
	maxQueue     syncMapInt64
	retransmits  int64
	duplicates   int64
	corrupted    int64
	timeouts     int64
	ackCount     int64
	ackMeanUS    int64
	ackStddevUS  int64
	ackLatencies latency
}

func (c *counters) init() {
	c.blocks.init()
	c.bytes.init()
	c.naks.init()
	c.transfersTX.init()
	c.transfersRX.init()
	c.delivered.init()
	c.dropped.init()
	c.panics.init()
	c.maxQueue.init()
	c.ackLatencies.init()
}

func (c *counters) reset() {
	c.blocks.reset()
	c.bytes.reset()
	c.naks.reset()
	c.transfersTX.reset()
	c.transfersRX.reset()
	c.delivered.reset()
	c.dropped.reset()
	c.panics.reset()
	c.maxQueue.reset()
	c.retransmits = 0
	c.duplicates = 0
	c.corrupted = 0
	c.timeouts = 0
	c.ackCount = 0
	c.ackMeanUS = 0
	c.ackStddevUS = 0
	c.ackLatencies.reset()
}

// toMap converts counters to a map
func (c *counters) toMap() (export map[string]int64) {
	res := make(map[string]int64)

	for _, t := range c.blocks.keys() {
		res[fmt.Sprintf("xmodem.%s.blocks", Direction(t))] = c.blocks.load(t)
	}
	for _, t := range c.bytes.keys() {
		res[fmt.Sprintf("xmodem.%s.bytes", Direction(t))] = c.bytes.load(t)
	}
	for _, t := range c.naks.keys() {
		res[fmt.Sprintf("xmodem.%s.naks", Direction(t))] = c.naks.load(t)
	}
	for _, t := range c.transfersTX.keys() {
		res[fmt.Sprintf("xmodem.tx.transfers.%s", Outcome(t))] = c.transfersTX.load(t)
	}
	for _, t := range c.transfersRX.keys() {
		res[fmt.Sprintf("xmodem.rx.transfers.%s", Outcome(t))] = c.transfersRX.load(t)
	}
	for _, t := range c.delivered.keys() {
		res[fmt.Sprintf("looper.%s.delivered", Lane(t))] = c.delivered.load(t)
	}
	for _, t := range c.dropped.keys() {
		res[fmt.Sprintf("looper.%s.dropped", Lane(t))] = c.dropped.load(t)
	}
	for _, t := range c.panics.keys() {
		res[fmt.Sprintf("looper.%s.panics", Lane(t))] = c.panics.load(t)
	}
	for _, t := range c.maxQueue.keys() {
		res[fmt.Sprintf("looper.%s.max_queue", Lane(t))] = c.maxQueue.load(t)
	}

	res["xmodem.retransmits"] = c.retransmits
	res["xmodem.duplicates"] = c.duplicates
	res["xmodem.corrupted"] = c.corrupted
	res["xmodem.timeouts"] = c.timeouts
	res["xmodem.ack_latency.count"] = c.ackCount
	res["xmodem.ack_latency.mean_us"] = c.ackMeanUS
	res["xmodem.ack_latency.stddev_us"] = c.ackStddevUS

	return res
}
