// Copyright 2023 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package prometheus adapts a metrics.Registry to prometheus.Collector, so the
// counters, gauges and timers registered in it can be scraped the way
// go-ethereum's node exposes its own metrics registry. The engine's
// QueryStatistics counters are not registered in any registry.
package prometheus

import (
	"strings"

	"github.com/nebulastream/streamcore/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector walks a metrics.Registry on every scrape, translating each Counter, Gauge
// and Timer into the corresponding prometheus metric family.
type Collector struct {
	registry  metrics.Registry
	namespace string
}

// NewCollector wraps registry as a prometheus.Collector. namespace is prefixed to
// every exported metric name (after sanitizing dots to underscores).
func NewCollector(registry metrics.Registry, namespace string) *Collector {
	return &Collector{registry: registry, namespace: namespace}
}

var _ prometheus.Collector = (*Collector)(nil)

// Describe is a no-op: this collector is unchecked, matching go-ethereum's own
// prometheus bridge, since the metric set is dynamic (metrics can be registered and
// unregistered at any time).
func (c *Collector) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.registry.Each(func(name string, i any) {
		fqName := c.fqName(name)
		switch m := i.(type) {
		case metrics.Counter:
			c.emit(ch, fqName, prometheus.GaugeValue, float64(m.Snapshot().Count()))
		case metrics.Gauge:
			c.emit(ch, fqName, prometheus.GaugeValue, float64(m.Snapshot().Value()))
		case metrics.Timer:
			snap := m.Snapshot()
			c.emit(ch, fqName+"_count", prometheus.CounterValue, float64(snap.Count()))
			c.emit(ch, fqName+"_sum_seconds", prometheus.CounterValue, float64(snap.Sum())/1e9)
			c.emit(ch, fqName+"_max_seconds", prometheus.GaugeValue, float64(snap.Max())/1e9)
		}
	})
}

func (c *Collector) emit(ch chan<- prometheus.Metric, name string, valType prometheus.ValueType, value float64) {
	desc := prometheus.NewDesc(name, name, nil, nil)
	ch <- prometheus.MustNewConstMetric(desc, valType, value)
}

func (c *Collector) fqName(metricName string) string {
	sanitized := strings.NewReplacer(".", "_", "-", "_", "/", "_").Replace(metricName)
	if c.namespace == "" {
		return sanitized
	}
	return c.namespace + "_" + sanitized
}
