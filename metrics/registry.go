// Copyright 2013 Richard Crowley. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metrics

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// DuplicateMetric is returned by a Registry when registering a metric name that is
// already in use with a different type.
type DuplicateMetric string

func (err DuplicateMetric) Error() string {
	return fmt.Sprintf("duplicate metric: %s", string(err))
}

// Registry holds references to a set of named metrics, backing one
// ExecutableQueryPlan's QueryStatistics as well as engine-wide counters.
type Registry interface {
	Each(func(string, any))
	Get(string) any
	GetOrRegister(string, any) any
	Register(string, any) error
	Unregister(string)
}

// NewRegistry creates a new, empty Registry.
func NewRegistry() Registry {
	return &standardRegistry{metrics: make(map[string]any)}
}

type standardRegistry struct {
	mu      sync.Mutex
	metrics map[string]any
}

func (r *standardRegistry) Each(f func(string, any)) {
	r.mu.Lock()
	names := make([]string, 0, len(r.metrics))
	snapshot := make(map[string]any, len(r.metrics))
	for name, m := range r.metrics {
		names = append(names, name)
		snapshot[name] = m
	}
	r.mu.Unlock()

	sort.Strings(names)
	for _, name := range names {
		f(name, snapshot[name])
	}
}

func (r *standardRegistry) Get(name string) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics[name]
}

func (r *standardRegistry) GetOrRegister(name string, i any) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.metrics[name]; ok {
		return m
	}
	m := resolve(i)
	r.metrics[name] = m
	return m
}

func (r *standardRegistry) Register(name string, i any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.metrics[name]; ok {
		if reflect.TypeOf(existing) != reflect.TypeOf(i) {
			return DuplicateMetric(name)
		}
		return DuplicateMetric(name)
	}
	r.metrics[name] = resolve(i)
	return nil
}

func (r *standardRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.metrics, name)
}

// resolve instantiates i if it is a constructor func() any-like value, matching
// GetOrRegister's "lazy instantiation" convention from go-ethereum's metrics package.
func resolve(i any) any {
	v := reflect.ValueOf(i)
	if v.Kind() == reflect.Func && v.Type().NumIn() == 0 && v.Type().NumOut() == 1 {
		return v.Call(nil)[0].Interface()
	}
	return i
}

// DefaultRegistry is the registry used by the package-level Register helper.
var DefaultRegistry = NewRegistry()

// Register adds a metric to DefaultRegistry, returning an error if the name is already
// taken.
func Register(name string, metric any) error {
	return DefaultRegistry.Register(name, metric)
}

// PrefixedRegistry wraps a Registry, prepending prefix to every metric name.
type PrefixedRegistry struct {
	underlying Registry
	prefix     string
}

// NewPrefixedRegistry creates a standalone registry all of whose metrics carry prefix.
func NewPrefixedRegistry(prefix string) *PrefixedRegistry {
	return &PrefixedRegistry{underlying: NewRegistry(), prefix: prefix}
}

// NewPrefixedChildRegistry creates a registry that stores its metrics, prefixed, in
// parent. Prefixes compose when parent is itself prefixed.
func NewPrefixedChildRegistry(parent Registry, prefix string) *PrefixedRegistry {
	return &PrefixedRegistry{underlying: parent, prefix: prefix}
}

func (r *PrefixedRegistry) Each(f func(string, any)) {
	_, prefix := findPrefix(r, "")
	r.baseRegistry().Each(func(name string, i any) {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			f(name, i)
		}
	})
}

func (r *PrefixedRegistry) Get(name string) any {
	_, prefix := findPrefix(r, "")
	return r.baseRegistry().Get(prefix + name)
}

func (r *PrefixedRegistry) GetOrRegister(name string, i any) any {
	_, prefix := findPrefix(r, "")
	return r.baseRegistry().GetOrRegister(prefix+name, i)
}

func (r *PrefixedRegistry) Register(name string, i any) error {
	_, prefix := findPrefix(r, "")
	return r.baseRegistry().Register(prefix+name, i)
}

func (r *PrefixedRegistry) Unregister(name string) {
	_, prefix := findPrefix(r, "")
	r.baseRegistry().Unregister(prefix + name)
}

func (r *PrefixedRegistry) baseRegistry() Registry {
	base, _ := findPrefix(r, "")
	return base
}

// findPrefix walks up the chain of PrefixedRegistry parents, returning the innermost
// non-prefixed Registry and the fully composed prefix string.
func findPrefix(r Registry, prefix string) (Registry, string) {
	pr, ok := r.(*PrefixedRegistry)
	if !ok {
		return r, prefix
	}
	return findPrefix(pr.underlying, pr.prefix+prefix)
}
