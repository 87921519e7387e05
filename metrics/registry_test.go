// Copyright 2013 Richard Crowley. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("foo", NewCounter())

	count := 0
	r.Each(func(name string, i any) {
		count++
		require.Equal(t, "foo", name)
		_, ok := i.(Counter)
		require.True(t, ok)
	})
	require.Equal(t, 1, count)

	r.Unregister("foo")
	count = 0
	r.Each(func(string, any) { count++ })
	require.Zero(t, count)
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("foo", NewCounter()))
	require.Error(t, r.Register("foo", NewGauge()))
}

func TestRegistryGet(t *testing.T) {
	r := NewRegistry()
	r.Register("foo", NewCounter())
	r.Get("foo").(Counter).Inc(1)
	require.EqualValues(t, 1, r.Get("foo").(Counter).Count())
}

func TestRegistryGetOrRegisterFirstWins(t *testing.T) {
	r := NewRegistry()
	_ = r.GetOrRegister("foo", NewCounter())
	m := r.GetOrRegister("foo", NewGauge())
	_, ok := m.(Counter)
	require.True(t, ok)
}

func TestRegistryGetOrRegisterLazyInstantiation(t *testing.T) {
	r := NewRegistry()
	_ = r.GetOrRegister("foo", NewCounter)
	m := r.GetOrRegister("foo", NewGauge)
	_, ok := m.(Counter)
	require.True(t, ok)
}

func TestPrefixedChildRegistryGetOrRegister(t *testing.T) {
	r := NewRegistry()
	pr := NewPrefixedChildRegistry(r, "prefix.")
	_ = pr.GetOrRegister("foo", NewCounter())

	count := 0
	r.Each(func(name string, _ any) {
		count++
		require.Equal(t, "prefix.foo", name)
	})
	require.Equal(t, 1, count)
}

func TestPrefixedRegistryGet(t *testing.T) {
	pr := NewPrefixedRegistry("prefix.")
	pr.Register("foo", NewCounter())
	require.NotNil(t, pr.Get("foo"))
}

func TestNestedPrefixedChildRegistry(t *testing.T) {
	r := NewPrefixedChildRegistry(NewRegistry(), "prefix.")
	r2 := NewPrefixedChildRegistry(r, "prefix2.")
	require.NoError(t, r.Register("foo2", NewCounter()))
	require.NoError(t, r2.Register("baz", NewCounter()))

	count := 0
	r2.Each(func(name string, _ any) {
		count++
		require.Equal(t, "prefix.prefix2.baz", name)
	})
	require.Equal(t, 1, count)
}
