// CookieJar - A contestant's algorithm toolbox
// Copyright (c) 2013 Peter Szilagyi. All rights reserved.
//
// CookieJar is dual licensed: use of this source code is governed by a BSD
// license that can be found in the LICENSE file. Alternatively, the CookieJar
// toolbox may be used in accordance with the terms and conditions contained
// in a signed written agreement between you and the author(s).

// Package prque provides a priority queue data structure supporting arbitrary
// value types and any ordered (cmp.Ordered) priority type. It backs the query manager's decision
// manager, which ranks sub-plans by overload score.
package prque

import (
	"cmp"
	"container/heap"
)

const blockSize = 4096

// Prque is a priority queue data structure where the lowest priority value is
// popped first. Higher numeric priority therefore means lower precedence;
// callers wanting max-priority-first semantics should negate their priority
// values, matching the convention used for go-ethereum's transaction pool.
type Prque[P cmp.Ordered, V any] struct {
	cont *sstack[P, V]
}

// New creates a new priority queue. The setIndex callback, if non-nil, is
// invoked whenever a value's position in the queue changes, allowing the
// caller to track an item's index for removal; pass nil when that is not
// needed.
func New[P cmp.Ordered, V any](setIndex func(data V, index int)) *Prque[P, V] {
	return &Prque[P, V]{newSstack[P, V](setIndex)}
}

// Push adds a value with the given priority.
func (p *Prque[P, V]) Push(data V, priority P) {
	heap.Push(p.cont, &item[P, V]{data, priority})
}

// Peek returns the value with the lowest priority without removing it.
func (p *Prque[P, V]) Peek() (V, P) {
	it := p.cont.blocks[0][0]
	return it.value, it.priority
}

// Pop removes and returns the value with the lowest priority.
func (p *Prque[P, V]) Pop() (V, P) {
	it := heap.Pop(p.cont).(*item[P, V])
	return it.value, it.priority
}

// Size returns the number of elements in the queue.
func (p *Prque[P, V]) Size() int {
	return p.cont.Len()
}

// Empty reports whether the queue has no elements.
func (p *Prque[P, V]) Empty() bool {
	return p.cont.Len() == 0
}

// Reset clears the contents of the queue.
func (p *Prque[P, V]) Reset() {
	*p.cont = *newSstack[P, V](p.cont.setIndex)
}
