// Copyright 2013 Richard Crowley. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics provides the counters, gauges and timers go-ethereum vendors from
// rcrowley/go-metrics, trimmed to the primitives the query manager's QueryStatistics
// (spec §4.3) needs. A
// prometheus.Collector in the prometheus subpackage exports a Registry's contents.
package metrics

import "sync/atomic"

// Counter holds a monotonically adjustable int64 value.
type Counter interface {
	Clear()
	Count() int64
	Dec(int64)
	Inc(int64)
	Snapshot() Counter
}

// NewCounter creates a new live Counter.
func NewCounter() Counter {
	return &counter{}
}

type counter struct{ count atomic.Int64 }

func (c *counter) Clear()          { c.count.Store(0) }
func (c *counter) Count() int64    { return c.count.Load() }
func (c *counter) Dec(v int64)     { c.count.Add(-v) }
func (c *counter) Inc(v int64)     { c.count.Add(v) }
func (c *counter) Snapshot() Counter {
	return counterSnapshot(c.count.Load())
}

type counterSnapshot int64

func (c counterSnapshot) Clear()            { panic("Clear called on a counterSnapshot") }
func (c counterSnapshot) Count() int64      { return int64(c) }
func (c counterSnapshot) Dec(int64)         { panic("Dec called on a counterSnapshot") }
func (c counterSnapshot) Inc(int64)         { panic("Inc called on a counterSnapshot") }
func (c counterSnapshot) Snapshot() Counter { return c }

// Gauge holds a single int64 value that can be set arbitrarily.
type Gauge interface {
	Snapshot() Gauge
	Update(int64)
	Value() int64
}

// NewGauge creates a new live Gauge.
func NewGauge() Gauge {
	return &gauge{}
}

type gauge struct{ value atomic.Int64 }

func (g *gauge) Snapshot() Gauge    { return gaugeSnapshot(g.value.Load()) }
func (g *gauge) Update(v int64)     { g.value.Store(v) }
func (g *gauge) Value() int64       { return g.value.Load() }

type gaugeSnapshot int64

func (g gaugeSnapshot) Snapshot() Gauge { return g }
func (g gaugeSnapshot) Update(int64)    { panic("Update called on a gaugeSnapshot") }
func (g gaugeSnapshot) Value() int64    { return int64(g) }

// FunctionalGauge reports a value computed by f on every read, useful for exposing a
// derived value (e.g. queue depth) without maintaining a separate counter.
type FunctionalGauge struct {
	f func() int64
}

// NewFunctionalGauge creates a new FunctionalGauge.
func NewFunctionalGauge(f func() int64) Gauge {
	return &FunctionalGauge{f: f}
}

func (g *FunctionalGauge) Value() int64    { return g.f() }
func (g *FunctionalGauge) Update(int64)    { panic("Update called on a FunctionalGauge") }
func (g *FunctionalGauge) Snapshot() Gauge { return gaugeSnapshot(g.Value()) }

// NewRegisteredFunctionalGauge creates and registers a new FunctionalGauge.
func NewRegisteredFunctionalGauge(name string, r Registry, f func() int64) Gauge {
	g := NewFunctionalGauge(f)
	if r == nil {
		r = DefaultRegistry
	}
	r.Register(name, g)
	return g
}

// NewRegisteredCounter creates and registers a new Counter.
func NewRegisteredCounter(name string, r Registry) Counter {
	c := NewCounter()
	if r == nil {
		r = DefaultRegistry
	}
	r.Register(name, c)
	return c
}

// GetOrRegisterCounter returns the Counter registered under name, creating and
// registering a new one if none exists yet.
func GetOrRegisterCounter(name string, r Registry) Counter {
	if r == nil {
		r = DefaultRegistry
	}
	return r.GetOrRegister(name, NewCounter).(Counter)
}

// NewRegisteredGauge creates and registers a new Gauge.
func NewRegisteredGauge(name string, r Registry) Gauge {
	g := NewGauge()
	if r == nil {
		r = DefaultRegistry
	}
	r.Register(name, g)
	return g
}

// GetOrRegisterGauge returns the Gauge registered under name, creating and
// registering a new one if none exists yet.
func GetOrRegisterGauge(name string, r Registry) Gauge {
	if r == nil {
		r = DefaultRegistry
	}
	return r.GetOrRegister(name, NewGauge).(Gauge)
}
