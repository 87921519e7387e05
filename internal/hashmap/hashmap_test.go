package hashmap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func uint64Schema(name string) []SchemaField {
	return []SchemaField{{Name: name, Type: UInt64}}
}

func newTestMap(keySize, valueSize int) *ChainedHashMap {
	provider := NewPageProvider(4096, 4)
	return New(keySize, valueSize, 16, provider)
}

func keyRecord(k uint64) Record {
	r := NewRecord()
	r.Set("key", uint64(k))
	return r
}

func valueRecord(v uint64) Record {
	r := NewRecord()
	r.Set("value", uint64(v))
	return r
}

// Functional: findOrCreate is first-wins; a later call with the same key
// does not overwrite the value written at creation.
func TestFindOrCreateIsFirstWins(t *testing.T) {
	ctx := context.Background()
	provider := NewChainedEntryMemoryProvider(uint64Schema("key"), uint64Schema("value"))
	m := newTestMap(provider.KeySize(), provider.ValueSize())
	ref := NewHashMapRef(m, provider)

	_, err := ref.FindOrCreateEntry(ctx, keyRecord(7), nil, func(e *Entry) {
		provider.CopyValuesToEntry(e, valueRecord(100))
	})
	require.NoError(t, err)

	entry, err := ref.FindOrCreateEntry(ctx, keyRecord(7), nil, func(e *Entry) {
		provider.CopyValuesToEntry(e, valueRecord(999))
	})
	require.NoError(t, err)
	require.Equal(t, uint64(100), provider.GetValue(entry).Get("value"))
	require.EqualValues(t, 1, m.NumberOfTuples())
}

// Update: findOrCreate followed by insertOrUpdate leaves the last update in
// place.
func TestInsertOrUpdateAppliesLastWrite(t *testing.T) {
	ctx := context.Background()
	provider := NewChainedEntryMemoryProvider(uint64Schema("key"), uint64Schema("value"))
	m := newTestMap(provider.KeySize(), provider.ValueSize())
	ref := NewHashMapRef(m, provider)

	for _, v := range []uint64{1, 2, 3} {
		entry, err := ref.FindOrCreateEntry(ctx, keyRecord(42), nil, func(e *Entry) {
			provider.CopyValuesToEntry(e, valueRecord(v))
		})
		require.NoError(t, err)
		ref.InsertOrUpdateEntry(entry, func(e *Entry) {
			provider.CopyValuesToEntry(e, valueRecord(v))
		}, func(*Entry) {
			t.Fatal("onInsertAssert must not fire for an existing entry")
		})
	}

	entry, err := ref.FindOrCreateEntry(ctx, keyRecord(42), nil, func(*Entry) {
		t.Fatal("key 42 must already exist")
	})
	require.NoError(t, err)
	require.Equal(t, uint64(3), provider.GetValue(entry).Get("value"))
}

// Stability: a pointer returned by findOrCreate stays valid (and its value
// intact) across subsequent insertions that force new pages/buckets.
func TestEntryPointersAreStable(t *testing.T) {
	ctx := context.Background()
	provider := NewChainedEntryMemoryProvider(uint64Schema("key"), uint64Schema("value"))
	m := newTestMap(provider.KeySize(), provider.ValueSize())
	ref := NewHashMapRef(m, provider)

	first, err := ref.FindOrCreateEntry(ctx, keyRecord(1), nil, func(e *Entry) {
		provider.CopyValuesToEntry(e, valueRecord(111))
	})
	require.NoError(t, err)

	for k := uint64(2); k < 5000; k++ {
		_, err := ref.FindOrCreateEntry(ctx, keyRecord(k), nil, func(e *Entry) {
			provider.CopyValuesToEntry(e, valueRecord(k))
		})
		require.NoError(t, err)
	}

	require.Equal(t, uint64(111), provider.GetValue(first).Get("value"))
}

// Scenario 5: 10000 distinct keys, iteration yields exactly that many
// entries whose key set matches, and each re-lookup returns the original
// value.
func TestScenario5BulkInsertAndIterate(t *testing.T) {
	ctx := context.Background()
	provider := NewChainedEntryMemoryProvider(uint64Schema("key"), uint64Schema("value"))
	m := newTestMap(provider.KeySize(), provider.ValueSize())
	ref := NewHashMapRef(m, provider)

	const n = 10000
	for k := uint64(1); k <= n; k++ {
		v := k * 31
		_, err := ref.FindOrCreateEntry(ctx, keyRecord(k), nil, func(e *Entry) {
			provider.CopyValuesToEntry(e, valueRecord(v))
		})
		require.NoError(t, err)
	}
	require.EqualValues(t, n, m.NumberOfTuples())

	// Iteration: exactly n entries, each once, key set equal to {1..n}.
	seen := make(map[uint64]bool, n)
	it := ref.Iterator()
	count := 0
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		count++
		k := provider.GetKey(e).Get("key").(uint64)
		require.False(t, seen[k], "key %d visited twice", k)
		seen[k] = true
	}
	require.Equal(t, n, count)
	require.Len(t, seen, n)

	// Re-lookup returns the original value for every key.
	for k := uint64(1); k <= n; k++ {
		entry, err := ref.FindOrCreateEntry(ctx, keyRecord(k), nil, func(*Entry) {
			t.Fatalf("key %d should already exist", k)
		})
		require.NoError(t, err)
		require.Equal(t, k*31, provider.GetValue(entry).Get("value"))
	}
}

// Destructor: the registered callback fires exactly once per entry.
func TestDestructorFiresOncePerEntry(t *testing.T) {
	ctx := context.Background()
	provider := NewChainedEntryMemoryProvider(uint64Schema("key"), uint64Schema("value"))
	m := newTestMap(provider.KeySize(), provider.ValueSize())

	fired := make(map[uint64]int)
	m.SetDestructorCallback(func(e *Entry) {
		fired[e.Hash]++
	})

	for k := uint64(0); k < 50; k++ {
		_, err := m.FindOrCreateEntry(ctx, provider.EncodeKey(keyRecord(k)), DefaultHashFunc, nil)
		require.NoError(t, err)
	}
	m.Close()

	require.Len(t, fired, 50)
	for h, count := range fired {
		require.Equalf(t, 1, count, "hash %d destructed more than once", h)
	}
}
