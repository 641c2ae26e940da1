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

package stats

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// JSONStats is what we want to report as stats via http
type JSONStats struct {
	reportMu sync.Mutex
	report   counters

	counters
}

// NewJSONStats returns a new JSONStats
func NewJSONStats() *JSONStats {
	s := &JSONStats{}

	s.init()
	s.report.init()

	return s
}

// Handler serves snapshot as JSON on / and in Prometheus format on /metrics
func (s *JSONStats) Handler() http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(s))

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return mux
}

// Start runs http server
func (s *JSONStats) Start(monitoringport int) {
	addr := fmt.Sprintf(":%d", monitoringport)
	log.Infof("Starting http json server on %s", addr)
	err := http.ListenAndServe(addr, s.Handler())
	if err != nil {
		log.Errorf("Failed to start listener: %v", err)
	}
}

// Snapshot the values so they can be reported atomically
func (s *JSONStats) Snapshot() {
	s.reportMu.Lock()
	defer s.reportMu.Unlock()

	s.blocks.copy(&s.report.blocks)
	s.bytes.copy(&s.report.bytes)
	s.naks.copy(&s.report.naks)
	s.transfersTX.copy(&s.report.transfersTX)
	s.transfersRX.copy(&s.report.transfersRX)
	s.delivered.copy(&s.report.delivered)
	s.dropped.copy(&s.report.dropped)
	s.panics.copy(&s.report.panics)
	s.maxQueue.copy(&s.report.maxQueue)
	s.report.retransmits = atomic.LoadInt64(&s.retransmits)
	s.report.duplicates = atomic.LoadInt64(&s.duplicates)
	s.report.corrupted = atomic.LoadInt64(&s.corrupted)
	s.report.timeouts = atomic.LoadInt64(&s.timeouts)

	count, mean, stddev := s.ackLatencies.values()
	s.report.ackCount = count
	s.report.ackMeanUS = roundInt64(mean)
	s.report.ackStddevUS = roundInt64(stddev)
}

// Values returns the last snapshot
func (s *JSONStats) Values() map[string]int64 {
	s.reportMu.Lock()
	defer s.reportMu.Unlock()
	return s.report.toMap()
}

func roundInt64(v float64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int64(math.Round(v))
}

// handleRequest is a handler used for all http monitoring requests
func (s *JSONStats) handleRequest(w http.ResponseWriter, _ *http.Request) {
	s.Snapshot()
	js, err := json.Marshal(s.Values())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err = w.Write(js); err != nil {
		log.Errorf("Failed to reply: %v", err)
	}
}

// Reset atomically sets all the counters to 0
func (s *JSONStats) Reset() {
	s.reset()
}

// IncBlocks atomically add 1 to the counter
func (s *JSONStats) IncBlocks(d Direction) {
	s.blocks.inc(int(d))
}

// AddBytes atomically adds n to the counter
func (s *JSONStats) AddBytes(d Direction, n int64) {
	s.bytes.add(int(d), n)
}

// IncNAK atomically add 1 to the counter
func (s *JSONStats) IncNAK(d Direction) {
	s.naks.inc(int(d))
}

// IncRetransmit atomically add 1 to the counter
func (s *JSONStats) IncRetransmit() {
	atomic.AddInt64(&s.retransmits, 1)
}

// IncDuplicate atomically add 1 to the counter
func (s *JSONStats) IncDuplicate() {
	atomic.AddInt64(&s.duplicates, 1)
}

// IncCorrupted atomically add 1 to the counter
func (s *JSONStats) IncCorrupted() {
	atomic.AddInt64(&s.corrupted, 1)
}

// IncTimeout atomically add 1 to the counter
func (s *JSONStats) IncTimeout() {
	atomic.AddInt64(&s.timeouts, 1)
}

// IncTransfer atomically add 1 to the counter
func (s *JSONStats) IncTransfer(d Direction, o Outcome) {
	if d == TX {
		s.transfersTX.inc(int(o))
		return
	}
	s.transfersRX.inc(int(o))
}

// ObserveAckLatency adds a block round trip sample
func (s *JSONStats) ObserveAckLatency(latency time.Duration) {
	s.ackLatencies.add(latency)
}

// IncDelivered atomically add 1 to the counter
func (s *JSONStats) IncDelivered(l Lane) {
	s.delivered.inc(int(l))
}

// IncDropped atomically add 1 to the counter
func (s *JSONStats) IncDropped(l Lane) {
	s.dropped.inc(int(l))
}

// IncListenerPanic atomically add 1 to the counter
func (s *JSONStats) IncListenerPanic(l Lane) {
	s.panics.inc(int(l))
}

// SetMaxQueue atomically sets max looper queue len
func (s *JSONStats) SetMaxQueue(l Lane, queue int64) {
	s.maxQueue.storeMax(int(l), queue)
}
