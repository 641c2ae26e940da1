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
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// Collector exports JSONStats counters as Prometheus gauges
type Collector struct {
	stats *JSONStats
}

// NewCollector creates a new Collector
func NewCollector(s *JSONStats) *Collector {
	return &Collector{stats: s}
}

// Describe is empty, metric names depend on which counters are set
func (c *Collector) Describe(_ chan<- *prometheus.Desc) {}

// Collect takes a fresh snapshot and sends every counter
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.stats.Snapshot()
	values := c.stats.Values()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		desc := prometheus.NewDesc(flattenKey(k), k, nil, nil)
		m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, float64(values[k]))
		if err != nil {
			log.Errorf("failed to export metric %s: %v", k, err)
			continue
		}
		ch <- m
	}
}

func flattenKey(key string) string {
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, ".", "_")
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, "=", "_")
	key = strings.ReplaceAll(key, "/", "_")
	return key
}
