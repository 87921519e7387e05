// Copyright 2018 The go-ethereum Authors
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

package mclock

import (
	"container/heap"
	"sync"
	"time"
)

// Simulated implements Clock with a virtual clock fully controlled by calls to Run. It
// is used in tests of the query manager's stop-timeout handling, where wall-clock sleeps
// would make tests slow and flaky.
type Simulated struct {
	mu     sync.Mutex
	cond   *sync.Cond
	now    AbsTime
	timers simTimerHeap
	nextID uint64
}

type simTimer struct {
	at       AbsTime
	id       uint64
	index    int
	fired    bool
	stopped  bool
	fn       func()
	ch       chan AbsTime
	clock    *Simulated
}

func (c *Simulated) init() {
	if c.cond == nil {
		c.cond = sync.NewCond(&c.mu)
	}
}

// Now returns the current virtual time.
func (c *Simulated) Now() AbsTime {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep blocks until the clock has advanced by d.
func (c *Simulated) Sleep(d time.Duration) {
	<-c.After(d)
}

// After returns a channel that fires once the clock has advanced by d.
func (c *Simulated) After(d time.Duration) <-chan AbsTime {
	t := c.NewTimer(d)
	return t.C()
}

// AfterFunc schedules fn to run once the clock has advanced by d.
func (c *Simulated) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.init()
	t := c.scheduleLocked(d, fn, nil)
	return t
}

// NewTimer creates a resettable timer scheduled to fire after d.
func (c *Simulated) NewTimer(d time.Duration) ChanTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.init()
	ch := make(chan AbsTime, 1)
	t := c.scheduleLocked(d, nil, ch)
	return t
}

func (c *Simulated) scheduleLocked(d time.Duration, fn func(), ch chan AbsTime) *simTimer {
	c.nextID++
	t := &simTimer{
		at:    c.now.Add(d),
		id:    c.nextID,
		fn:    fn,
		ch:    ch,
		clock: c,
	}
	heap.Push(&c.timers, t)
	c.cond.Broadcast()
	return t
}

// ActiveTimers returns the number of timers that have not yet fired or been stopped.
func (c *Simulated) ActiveTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// WaitForTimers blocks until at least n timers are pending.
func (c *Simulated) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.init()
	for len(c.timers) < n {
		c.cond.Wait()
	}
}

// Run advances the simulated clock by d, firing any timer whose deadline falls within
// the new interval in deadline order.
func (c *Simulated) Run(d time.Duration) {
	c.mu.Lock()
	c.init()
	end := c.now.Add(d)

	var due []*simTimer
	for len(c.timers) > 0 && c.timers[0].at <= end {
		t := heap.Pop(&c.timers).(*simTimer)
		t.fired = true
		due = append(due, t)
	}
	c.now = end
	c.cond.Broadcast()
	c.mu.Unlock()

	for _, t := range due {
		if t.ch != nil {
			select {
			case t.ch <- t.at:
			default:
			}
		}
		if t.fn != nil {
			t.fn()
		}
	}
}

// Stop cancels the timer. It returns false if the timer already fired or was stopped.
func (t *simTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	if t.index >= 0 && t.index < len(c.timers) && c.timers[t.index] == t {
		heap.Remove(&c.timers, t.index)
	}
	return true
}

// C returns the timer's fire channel.
func (t *simTimer) C() <-chan AbsTime { return t.ch }

// Reset reschedules the timer to fire after d from the current virtual time.
func (t *simTimer) Reset(d time.Duration) {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	if !t.fired && !t.stopped && t.index >= 0 && t.index < len(c.timers) && c.timers[t.index] == t {
		heap.Remove(&c.timers, t.index)
	}
	t.fired = false
	t.stopped = false
	t.at = c.now.Add(d)
	heap.Push(&c.timers, t)
	c.cond.Broadcast()
}

type simTimerHeap []*simTimer

func (h simTimerHeap) Len() int            { return len(h) }
func (h simTimerHeap) Less(i, j int) bool  { return h[i].at < h[j].at }
func (h simTimerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *simTimerHeap) Push(x any) {
	t := x.(*simTimer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *simTimerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
