package hashmap

import (
	"context"

	"github.com/cespare/xxhash/v2"
)

// DefaultHashFunc is the hash used when a caller does not supply its own. It
// stands in for the MurmurHash-style function the reference implementation
// uses: xxhash is the hot-path hash already carried by this module's
// dependency graph.
func DefaultHashFunc(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// HashMapRef is the reference-only view a compiled pipeline stage holds: a
// ChainedHashMap plus the field-offset projection needed to read and write
// Records against it.
type HashMapRef struct {
	Map      *ChainedHashMap
	Provider *ChainedEntryMemoryProvider
}

// NewHashMapRef pairs a map with the projection used to address its entries.
func NewHashMapRef(m *ChainedHashMap, p *ChainedEntryMemoryProvider) *HashMapRef {
	return &HashMapRef{Map: m, Provider: p}
}

// FindOrCreateEntry projects key through the ref's provider and delegates to
// the underlying map, defaulting hashFn to DefaultHashFunc when nil.
func (r *HashMapRef) FindOrCreateEntry(ctx context.Context, key Record, hashFn HashFunc, onInsert func(*Entry)) (*Entry, error) {
	if hashFn == nil {
		hashFn = DefaultHashFunc
	}
	return r.Map.FindOrCreateEntry(ctx, r.Provider.EncodeKey(key), hashFn, onInsert)
}

// InsertOrUpdateEntry delegates to the underlying map.
func (r *HashMapRef) InsertOrUpdateEntry(entry *Entry, onUpdate, onInsertAssert func(*Entry)) {
	r.Map.InsertOrUpdateEntry(entry, onUpdate, onInsertAssert)
}

// Iterator delegates to the underlying map.
func (r *HashMapRef) Iterator() *Iterator { return r.Map.Iterator() }
