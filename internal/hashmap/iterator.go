package hashmap

// Iterator visits every live entry of a ChainedHashMap exactly once, in an
// unspecified but stable (bucket-major, chain-order) sequence, crossing
// pages transparently.
type Iterator struct {
	m         *ChainedHashMap
	bucketIdx int
	cur       *Entry
}

// Iterator returns a fresh forward iterator over m.
func (m *ChainedHashMap) Iterator() *Iterator {
	return &Iterator{m: m, bucketIdx: -1}
}

// Next returns the next entry and true, or (nil, false) once exhausted.
func (it *Iterator) Next() (*Entry, bool) {
	for {
		if it.cur != nil {
			e := it.cur
			it.cur = it.cur.Next
			return e, true
		}
		it.bucketIdx++
		if it.bucketIdx >= len(it.m.buckets) {
			return nil, false
		}
		it.cur = it.m.buckets[it.bucketIdx]
	}
}
