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

// Package mclock is a wrapper for a monotonic clock source that can be replaced by a
// simulated clock in tests of components that depend on wall-clock time such as the
// query manager's stop-timeout.
package mclock

import "time"

// AbsTime represents absolute monotonic time.
type AbsTime time.Duration

// Now returns the current absolute monotonic time.
func Now() AbsTime {
	return AbsTime(time.Since(processStart))
}

var processStart = time.Now()

// Add returns t + d.
func (t AbsTime) Add(d time.Duration) AbsTime {
	return t + AbsTime(d)
}

// Sub returns t - t2.
func (t AbsTime) Sub(t2 AbsTime) time.Duration {
	return time.Duration(t - t2)
}

// Clock interface makes it possible to replace the monotonic system clock with a
// simulated clock in deterministic tests.
type Clock interface {
	Now() AbsTime
	Sleep(time.Duration)
	NewTimer(time.Duration) ChanTimer
	After(time.Duration) <-chan AbsTime
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer represents a cancellable event returned by AfterFunc.
type Timer interface {
	// Stop cancels the timer. It returns false if the timer has already expired or been
	// stopped.
	Stop() bool
}

// ChanTimer is a timer that expires by sending on a channel, returned by NewTimer.
type ChanTimer interface {
	Timer
	// C returns the timer's channel, which receives a value when the timer expires.
	C() <-chan AbsTime
	// Reset reschedules the timer to fire after the given duration.
	Reset(time.Duration)
}

// System implements Clock using the system clock.
type System struct{}

// Now returns the current monotonic time.
func (System) Now() AbsTime {
	return Now()
}

// Sleep blocks for the given duration.
func (System) Sleep(d time.Duration) {
	time.Sleep(d)
}

// After returns a channel that receives the current time after the given duration.
func (System) After(d time.Duration) <-chan AbsTime {
	ch := make(chan AbsTime, 1)
	time.AfterFunc(d, func() { ch <- Now() })
	return ch
}

// AfterFunc runs f in its own goroutine after the given duration.
func (System) AfterFunc(d time.Duration, f func()) Timer {
	return (*systemTimer)(time.AfterFunc(d, f))
}

// NewTimer creates a resettable timer.
func (System) NewTimer(d time.Duration) ChanTimer {
	ch := make(chan AbsTime, 1)
	t := time.AfterFunc(d, func() {
		select {
		case ch <- Now():
		default:
		}
	})
	return &systemChanTimer{Timer: t, ch: ch}
}

type systemTimer time.Timer

func (t *systemTimer) Stop() bool {
	return (*time.Timer)(t).Stop()
}

type systemChanTimer struct {
	*time.Timer
	ch chan AbsTime
}

func (t *systemChanTimer) C() <-chan AbsTime { return t.ch }

func (t *systemChanTimer) Reset(d time.Duration) {
	t.Timer.Reset(d)
}
