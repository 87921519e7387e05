package hashmap

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/VictoriaMetrics/fastcache"
)

// Merger folds per-worker partial aggregation maps into one at a barrier.
// Once the destination map grows past spillThreshold entries, the oldest
// page's key/value bytes are mirrored into an off-heap cache so a wide
// fan-in merge does not have to keep every partial map's cold tail resident
// at the same time.
type Merger struct {
	spillCache     *fastcache.Cache
	spillThreshold uint64
}

// NewMerger returns a Merger whose spill mirror is bounded to spillCacheBytes.
func NewMerger(spillThresholdEntries uint64, spillCacheBytes int) *Merger {
	return &Merger{
		spillCache:     fastcache.New(spillCacheBytes),
		spillThreshold: spillThresholdEntries,
	}
}

// Merge folds every entry of src into dest. For keys absent from dest, the
// source's value bytes are copied verbatim; for keys already present,
// combine(dst, srcValue) is called to fold the two values together.
func (mg *Merger) Merge(ctx context.Context, dest, src *ChainedHashMap, combine func(dst, srcValue []byte)) error {
	it := src.Iterator()
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		bucket := e.Hash & (dest.numBuckets - 1)
		var found *Entry
		for c := dest.buckets[bucket]; c != nil; c = c.Next {
			if c.Hash == e.Hash && bytes.Equal(c.Key, e.Key) {
				found = c
				break
			}
		}
		if found == nil {
			newEntry, err := dest.allocEntry(ctx)
			if err != nil {
				return err
			}
			newEntry.Hash = e.Hash
			copy(newEntry.Key, e.Key)
			copy(newEntry.Value, e.Value)
			newEntry.Next = dest.buckets[bucket]
			dest.buckets[bucket] = newEntry
			dest.numberOfTuples++
		} else {
			combine(found.Value, e.Value)
		}
	}
	if dest.numberOfTuples > mg.spillThreshold {
		mg.mirrorOldestPage(dest)
	}
	return nil
}

// mirrorOldestPage writes a read-through snapshot of the destination map's
// oldest page into the spill cache. It does not unlink entries from their
// bucket chains: the map stays authoritative, the cache only gives a
// bounded-memory place to look up values for keys that have aged out of a
// caller's own working set.
func (mg *Merger) mirrorOldestPage(dest *ChainedHashMap) {
	if len(dest.pages) == 0 {
		return
	}
	oldest := dest.pages[0]
	for i := 0; i < oldest.used; i++ {
		e := &oldest.entries[i]
		mg.spillCache.Set(spillKey(e.Hash, e.Key), e.Value)
	}
}

// ProbeSpill looks a key up in the spill mirror without touching the map.
func (mg *Merger) ProbeSpill(hash uint64, key []byte) ([]byte, bool) {
	return mg.spillCache.HasGet(nil, spillKey(hash, key))
}

func spillKey(hash uint64, key []byte) []byte {
	buf := make([]byte, 8+len(key))
	binary.LittleEndian.PutUint64(buf, hash)
	copy(buf[8:], key)
	return buf
}
