// Copyright 2013 Richard Crowley. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetOrRegisterTimer(t *testing.T) {
	r := NewRegistry()
	NewRegisteredTimer("foo", r).Update(47)
	require.Equal(t, int64(1), GetOrRegisterTimer("foo", r).Snapshot().Count())
}

func TestTimerCountAndSum(t *testing.T) {
	tm := NewTimer()
	tm.Update(10 * time.Millisecond)
	tm.Update(20 * time.Millisecond)
	tm.Update(30 * time.Millisecond)

	snap := tm.Snapshot()
	require.EqualValues(t, 3, snap.Count())
	require.EqualValues(t, 60*time.Millisecond, snap.Sum())
	require.EqualValues(t, 10*time.Millisecond, snap.Min())
	require.EqualValues(t, 30*time.Millisecond, snap.Max())
	require.InDelta(t, float64(20*time.Millisecond), snap.Mean(), 1)
}

func TestTimerFunc(t *testing.T) {
	tm := NewTimer()
	tm.Time(func() { time.Sleep(5 * time.Millisecond) })
	require.GreaterOrEqual(t, tm.Snapshot().Max(), int64(5*time.Millisecond))
}

func TestTimerSnapshotIsImmutable(t *testing.T) {
	tm := NewTimer()
	tm.Update(1)
	snap := tm.Snapshot()
	tm.Update(100 * time.Second)
	require.EqualValues(t, 1, snap.Count())
	require.Panics(t, func() { snap.Update(1) })
}
