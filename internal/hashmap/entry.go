package hashmap

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Entry is one slot of a bucket chain, carved out of a page's backing array.
// Next, Hash, Key and Value are addressed directly; there is no header
// struct distinct from the Entry itself, since Go already gives each field
// a stable address for the page's lifetime.
type Entry struct {
	Next  *Entry
	Hash  uint64
	Key   []byte
	Value []byte
}

// page is a fixed-length arena slab. Its entries slice is allocated once
// with len == cap and never appended to again, so every *Entry taken from it
// keeps a stable address for as long as the page is reachable.
type page struct {
	entries []Entry
	used    int
}

func newPage(entriesPerPage, keySize, valueSize int) *page {
	if entriesPerPage < 1 {
		entriesPerPage = 1
	}
	entries := make([]Entry, entriesPerPage)
	arena := make([]byte, entriesPerPage*(keySize+valueSize))
	for i := range entries {
		off := i * (keySize + valueSize)
		entries[i].Key = arena[off : off+keySize : off+keySize]
		entries[i].Value = arena[off+keySize : off+keySize+valueSize : off+keySize+valueSize]
	}
	return &page{entries: entries}
}

func (p *page) full() bool { return p.used >= len(p.entries) }

func (p *page) alloc() *Entry {
	e := &p.entries[p.used]
	p.used++
	return e
}

// PageProvider hands out pages to one or more ChainedHashMaps. A semaphore
// bounds how many page allocations may be in flight at once, so a burst of
// concurrently growing per-worker partial maps cannot spike memory all at
// the same instant.
type PageProvider struct {
	sem      *semaphore.Weighted
	pageSize int
}

// NewPageProvider returns a provider producing pages of pageSize bytes,
// allowing at most maxConcurrentAllocations page allocations to run
// simultaneously across every map drawing from it.
func NewPageProvider(pageSize int, maxConcurrentAllocations int64) *PageProvider {
	if maxConcurrentAllocations < 1 {
		maxConcurrentAllocations = 1
	}
	return &PageProvider{sem: semaphore.NewWeighted(maxConcurrentAllocations), pageSize: pageSize}
}

func (pp *PageProvider) newPage(ctx context.Context, keySize, valueSize int) (*page, error) {
	if err := pp.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer pp.sem.Release(1)
	entrySize := keySize + valueSize
	if entrySize == 0 {
		entrySize = 1
	}
	return newPage(pp.pageSize/entrySize, keySize, valueSize), nil
}
