// Copyright 2022 The go-ethereum Authors
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

// Alarm sends on a channel when a predetermined time has arrived. Unlike Timer from
// package time, it does not require a monotonic goroutine running the whole time; it
// also doesn't require stopping/draining for reuse, and supports rescheduling to an
// earlier time.
type Alarm struct {
	ch        chan struct{}
	clock     Clock
	timer     Timer
	deadline  AbsTime
	isPending bool
}

// NewAlarm creates an alarm.
func NewAlarm(clock Clock) *Alarm {
	if clock == nil {
		panic("nil clock")
	}
	return &Alarm{
		ch:    make(chan struct{}, 1),
		clock: clock,
	}
}

// C returns the channel on which notifications are delivered.
func (e *Alarm) C() <-chan struct{} {
	return e.ch
}

// Stop disables the alarm.
func (e *Alarm) Stop() {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.isPending = false
	// drain the channel.
	select {
	case <-e.ch:
	default:
	}
}

// Schedule arms the alarm to fire no later than the given time. If the alarm is already
// scheduled for an earlier or equal time, it is left unchanged; if it is scheduled for a
// later time, it is rescheduled to the given time.
func (e *Alarm) Schedule(time AbsTime) {
	now := e.clock.Now()
	if e.isPending {
		if e.deadline <= time {
			// Already scheduled earlier than the new time, nothing to do.
			return
		}
		e.timer.Stop()
	}

	d := time.Sub(now)
	e.deadline = time
	e.isPending = true
	e.timer = e.clock.AfterFunc(d, e.fire)
}

func (e *Alarm) fire() {
	e.isPending = false
	select {
	case e.ch <- struct{}{}:
	default:
	}
}
