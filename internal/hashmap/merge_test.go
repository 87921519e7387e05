package hashmap

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// Merge folds two per-worker partial sum maps into one, combining colliding
// keys by summing their uint64 values.
func TestMergeCombinesSharedKeys(t *testing.T) {
	ctx := context.Background()
	provider := NewChainedEntryMemoryProvider(uint64Schema("key"), uint64Schema("value"))
	makeMap := func() *ChainedHashMap { return newTestMap(provider.KeySize(), provider.ValueSize()) }

	a := makeMap()
	b := makeMap()
	refA := NewHashMapRef(a, provider)
	refB := NewHashMapRef(b, provider)

	insert := func(ref *HashMapRef, k, v uint64) {
		entry, err := ref.FindOrCreateEntry(ctx, keyRecord(k), nil, func(e *Entry) {
			provider.CopyValuesToEntry(e, valueRecord(0))
		})
		require.NoError(t, err)
		ref.InsertOrUpdateEntry(entry, func(e *Entry) {
			cur := provider.GetValue(e).Get("value").(uint64)
			provider.CopyValuesToEntry(e, valueRecord(cur+v))
		}, func(*Entry) { t.Fatal("unreachable") })
	}

	insert(refA, 1, 10)
	insert(refA, 2, 20)
	insert(refB, 2, 5)
	insert(refB, 3, 30)

	merger := NewMerger(1<<20, 64*1024)
	combine := func(dst, src []byte) {
		dv := binary.LittleEndian.Uint64(dst)
		sv := binary.LittleEndian.Uint64(src)
		binary.LittleEndian.PutUint64(dst, dv+sv)
	}
	require.NoError(t, merger.Merge(ctx, a, b, combine))

	require.EqualValues(t, 3, a.NumberOfTuples())
	refMerged := NewHashMapRef(a, provider)
	for k, want := range map[uint64]uint64{1: 10, 2: 25, 3: 30} {
		entry, err := refMerged.FindOrCreateEntry(ctx, keyRecord(k), nil, func(*Entry) {
			t.Fatalf("key %d must already exist after merge", k)
		})
		require.NoError(t, err)
		require.Equal(t, want, provider.GetValue(entry).Get("value"))
	}
}
