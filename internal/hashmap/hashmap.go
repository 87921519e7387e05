package hashmap

import (
	"bytes"
	"context"
	"fmt"
)

// HashFunc computes the bucket hash of a projected key's raw bytes. The
// default is xxhash (see DefaultHashFunc); callers may supply any function
// with stable output for equal byte slices.
type HashFunc func(key []byte) uint64

// ChainedHashMap owns the buckets, pages and counters of a single-threaded
// arena hash table. A ChainedHashMap is used by exactly one worker thread at
// a time (spec: "single-threaded, one worker thread executing one pipeline
// task at a time"); parallel aggregation gives every worker its own map and
// merges them at a barrier via Merger.
type ChainedHashMap struct {
	buckets    []*Entry
	numBuckets uint64

	pages    []*page
	provider *PageProvider

	keySize, valueSize int
	numberOfTuples      uint64

	destructor func(*Entry)
}

// New creates an empty map with numBuckets rounded up to the next power of
// two, drawing pages of pageSize bytes from provider.
func New(keySize, valueSize int, numBuckets uint64, provider *PageProvider) *ChainedHashMap {
	numBuckets = nextPowerOfTwo(numBuckets)
	return &ChainedHashMap{
		buckets:    make([]*Entry, numBuckets),
		numBuckets: numBuckets,
		provider:   provider,
		keySize:    keySize,
		valueSize:  valueSize,
	}
}

func nextPowerOfTwo(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	p := uint64(1)
	for p < n {
		p <<= 1
	}
	return p
}

// SetDestructorCallback registers a finaliser invoked once per entry when
// Close is called, for value types that embed non-POD state.
func (m *ChainedHashMap) SetDestructorCallback(fn func(*Entry)) {
	m.destructor = fn
}

// NumberOfTuples returns the total live entry count across all buckets.
func (m *ChainedHashMap) NumberOfTuples() uint64 { return m.numberOfTuples }

// FindOrCreateEntry walks the bucket chain for hashFn(key), returning the
// first entry whose key bytes equal key. If none exists, it allocates a new
// entry (growing the page list via the provider if the current page is
// full), links it at the chain head, writes the key, and invokes onInsert
// before returning it.
func (m *ChainedHashMap) FindOrCreateEntry(ctx context.Context, key []byte, hashFn HashFunc, onInsert func(*Entry)) (*Entry, error) {
	h := hashFn(key)
	bucket := h & (m.numBuckets - 1)
	for e := m.buckets[bucket]; e != nil; e = e.Next {
		if e.Hash == h && bytes.Equal(e.Key, key) {
			return e, nil
		}
	}

	entry, err := m.allocEntry(ctx)
	if err != nil {
		return nil, fmt.Errorf("hashmap: allocate entry: %w", err)
	}
	entry.Hash = h
	copy(entry.Key, key)
	entry.Next = m.buckets[bucket]
	m.buckets[bucket] = entry
	m.numberOfTuples++
	if onInsert != nil {
		onInsert(entry)
	}
	return entry, nil
}

// FindEntry looks up key without creating it, returning (nil, false) on a miss.
func (m *ChainedHashMap) FindEntry(key []byte, hashFn HashFunc) (*Entry, bool) {
	h := hashFn(key)
	bucket := h & (m.numBuckets - 1)
	for e := m.buckets[bucket]; e != nil; e = e.Next {
		if e.Hash == h && bytes.Equal(e.Key, key) {
			return e, true
		}
	}
	return nil, false
}

func (m *ChainedHashMap) allocEntry(ctx context.Context) (*Entry, error) {
	if len(m.pages) == 0 || m.pages[len(m.pages)-1].full() {
		p, err := m.provider.newPage(ctx, m.keySize, m.valueSize)
		if err != nil {
			return nil, err
		}
		m.pages = append(m.pages, p)
	}
	return m.pages[len(m.pages)-1].alloc(), nil
}

// InsertOrUpdateEntry applies onUpdate to entry, which must already exist
// (typically the result of a prior FindOrCreateEntry call). onInsertAssert
// is the invariant callback fired only if entry is nil, which must never
// happen in correct caller code.
func (m *ChainedHashMap) InsertOrUpdateEntry(entry *Entry, onUpdate, onInsertAssert func(*Entry)) {
	if entry != nil {
		onUpdate(entry)
		return
	}
	onInsertAssert(entry)
}

// Close invokes the destructor callback, if any, exactly once per live
// entry. It does not release page memory; that is left to the garbage
// collector once the map itself becomes unreachable.
func (m *ChainedHashMap) Close() {
	if m.destructor == nil {
		return
	}
	it := m.Iterator()
	for {
		e, ok := it.Next()
		if !ok {
			return
		}
		m.destructor(e)
	}
}
