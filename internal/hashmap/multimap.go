package hashmap

import (
	"context"
	"encoding/binary"
)

// MultiMap models the "custom value" use case from the reference
// implementation's paged-vector test: each key maps to an ordered list of
// Records, appended to in insertion order, mirroring a multimap built on top
// of ChainedHashMap. The entry's fixed-size value region holds only an
// index into an external slice of open-ended lists; the hash map itself
// never needs to know the value's size grows over time.
type MultiMap struct {
	entries  *ChainedHashMap
	provider *ChainedEntryMemoryProvider
	lists    [][]Record
}

// NewMultiMap creates a multimap over the given key schema. The value
// region is a single uint64 handle into the multimap's list table.
func NewMultiMap(keyFields []SchemaField, pageProvider *PageProvider, numBuckets uint64) *MultiMap {
	provider := NewChainedEntryMemoryProvider(keyFields, []SchemaField{{Name: "listHandle", Type: UInt64}})
	mm := &MultiMap{
		entries:  New(provider.KeySize(), provider.ValueSize(), numBuckets, pageProvider),
		provider: provider,
	}
	mm.entries.SetDestructorCallback(func(e *Entry) {
		handle := binary.LittleEndian.Uint64(e.Value)
		mm.lists[handle] = nil
	})
	return mm
}

// Append inserts value under key, creating the key's list on first use.
func (mm *MultiMap) Append(ctx context.Context, key Record, value Record) error {
	entry, err := mm.entries.FindOrCreateEntry(ctx, mm.provider.EncodeKey(key), DefaultHashFunc, func(e *Entry) {
		handle := uint64(len(mm.lists))
		mm.lists = append(mm.lists, nil)
		binary.LittleEndian.PutUint64(e.Value, handle)
	})
	if err != nil {
		return err
	}
	handle := binary.LittleEndian.Uint64(entry.Value)
	mm.lists[handle] = append(mm.lists[handle], value)
	return nil
}

// Get returns the ordered list of values appended under key, or nil if the
// key was never used.
func (mm *MultiMap) Get(key Record) []Record {
	entry, ok := mm.entries.FindEntry(mm.provider.EncodeKey(key), DefaultHashFunc)
	if !ok {
		return nil
	}
	handle := binary.LittleEndian.Uint64(entry.Value)
	return mm.lists[handle]
}

// NumberOfKeys returns the number of distinct keys seen.
func (mm *MultiMap) NumberOfKeys() uint64 { return mm.entries.NumberOfTuples() }

// Close runs the destructor callback, releasing every key's list.
func (mm *MultiMap) Close() { mm.entries.Close() }
