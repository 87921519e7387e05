// Package shred implements the SequenceShredder: a lock-amortised structure that
// reassembles logical tuples, including tuples spanning multiple raw buffers, from an
// out-of-order multi-producer stream of sequence-numbered buffers.
//
// A single mutex (mu) protects bitmap transitions, the tail and the staged-buffer
// use-counts; the expensive spanning-tuple search runs against a lock-free snapshot
// taken while the lock is held. Every bit is written under the lock before any search
// that could observe it, so no wake-up is ever lost across concurrent callers.
package shred

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/nebulastream/streamcore/log"
)

const (
	bitmapSizeBitShift = 6
	bitsPerBitmap       = 1 << bitmapSizeBitShift // 64
	bitmapSizeModulo    = bitsPerBitmap - 1
	maxBitmapValue      = ^uint64(0)

	// DefaultInitialBitmaps is the starting window size (in 64-bit bitmap words) of a
	// freshly constructed SequenceShredder.
	DefaultInitialBitmaps = 4
	// DefaultMaxBitmaps caps how far the bitmap window may grow.
	DefaultMaxBitmaps = 1 << 16
	// DefaultResizeThreshold is the number of isInRange misses required before a
	// tail-wraparound is allowed to double the window.
	DefaultResizeThreshold = 8
)

// SequenceNumber is the dense, monotonically assigned identifier of a raw buffer on one
// physical stream.
type SequenceNumber uint64

// StagedBuffer is an owned handle to one raw buffer plus its delimiter offsets.
type StagedBuffer struct {
	Buffer                      []byte
	SizeOfBufferInBytes         int
	OffsetOfFirstTupleDelimiter int
	OffsetOfLastTupleDelimiter  int

	// seq tags the buffer with the sequence number it was staged under, so a
	// ring slot can be checked for reuse by identity rather than by nilness.
	seq SequenceNumber
}

// SpanningTupleBuffers is the result of processing one sequence number: the ordered run
// of buffers that make up a just-completed spanning tuple, and the index within that run
// of the buffer the caller submitted.
type SpanningTupleBuffers struct {
	IndexOfProcessedSequenceNumber int
	Buffers                        []StagedBuffer
}

func (s SpanningTupleBuffers) empty() bool { return len(s.Buffers) == 0 }

// spanningTuple is the (possibly partially valid) result of searching a bitmap snapshot
// for the start and end of a spanning tuple around one sequence number.
type spanningTuple struct {
	spanStart, spanEnd           SequenceNumber
	isStartValid, isEndValid bool
}

// wrappingMode selects which of the four fast-path searches processSequenceNumber runs.
type wrappingMode int

const (
	noWrapping wrappingMode = iota
	wrapLower
	wrapHigher
	wrapBoth
)

// SequenceShredder reassembles spanning-tuple buffer groups from sequence-numbered
// buffers arriving in arbitrary order across multiple producers.
type SequenceShredder struct {
	mu sync.Mutex

	tail                  uint64
	numberOfBitmaps       uint64
	numberOfBitmapsModulo uint64
	maxBitmaps            uint64
	resizeThreshold       uint64
	resizeRequestCount    uint64

	tupleDelimiterBitmaps []uint64
	seenAndUsedBitmaps    []uint64
	stagedBuffers         []StagedBuffer
	stagedBufferUses      []int8

	isFirstTuple bool
	isLastTuple  bool

	log log.Logger
}

// New creates a SequenceShredder with the given initial bitmap-window size (rounded up
// to a power of two), maximum window size, and resize-request threshold.
func New(initialNumBitmaps, maxBitmaps, resizeThreshold uint64) *SequenceShredder {
	if initialNumBitmaps == 0 {
		initialNumBitmaps = DefaultInitialBitmaps
	}
	initialNumBitmaps = nextPowerOfTwo(initialNumBitmaps)
	if maxBitmaps == 0 {
		maxBitmaps = DefaultMaxBitmaps
	}
	if resizeThreshold == 0 {
		resizeThreshold = DefaultResizeThreshold
	}

	s := &SequenceShredder{
		numberOfBitmaps:       initialNumBitmaps,
		numberOfBitmapsModulo: initialNumBitmaps - 1,
		maxBitmaps:            maxBitmaps,
		resizeThreshold:       resizeThreshold,
		tupleDelimiterBitmaps: make([]uint64, initialNumBitmaps),
		seenAndUsedBitmaps:    make([]uint64, initialNumBitmaps),
		stagedBuffers:         make([]StagedBuffer, initialNumBitmaps*bitsPerBitmap),
		stagedBufferUses:      make([]int8, initialNumBitmaps*bitsPerBitmap),
		isFirstTuple:          true,
		log:                   log.New("component", "shred"),
	}
	// Sequence number 0 is treated as an implicit leading delimiter, so the very first
	// real spanning tuple always has a valid start.
	s.tupleDelimiterBitmaps[0] |= 1
	s.stagedBufferUses[0] = 1
	return s
}

func nextPowerOfTwo(n uint64) uint64 {
	if n&(n-1) == 0 {
		return n
	}
	p := uint64(1)
	for p < n {
		p <<= 1
	}
	return p
}

// IsInRange reports whether seq falls within the current bitmap window. On false it
// increments the internal resize-request counter; the caller must back off and retry.
func (s *SequenceShredder) IsInRange(seq SequenceNumber) bool {
	targetBitmap := uint64(seq) >> bitmapSizeBitShift
	s.mu.Lock()
	defer s.mu.Unlock()
	if targetBitmap < s.tail+s.numberOfBitmaps {
		return true
	}
	s.resizeRequestCount++
	return false
}

// ProcessSequenceNumber is the core entry point: it stages stagedBuffer at seq, searches
// for a completed spanning tuple around it, and — if one completes — commits the result
// and returns it. hasDelimiter indicates whether stagedBuffer carries a tuple delimiter.
func (s *SequenceShredder) ProcessSequenceNumber(stagedBuffer StagedBuffer, seq SequenceNumber, hasDelimiter bool) SpanningTupleBuffers {
	bitmapCount := uint64(seq) >> bitmapSizeBitShift
	bitmapOffset := SequenceNumber(bitmapCount << bitmapSizeBitShift)
	bitIndex := uint64(seq) & bitmapSizeModulo
	bit := uint64(1) << bitIndex

	lowerMask := bit - 1
	higherMask := maxBitmapValue ^ (lowerMask | bit)

	var bitmapIndex uint64
	var needLower, needHigher bool
	var wordSnapshot [2]uint64 // [tupleDelimiter, seenAndUsed] for the sequence number's own bitmap
	var vecSnapshot *bitmapVectorSnapshot

	s.mu.Lock()
	bufferPos := uint64(seq) & (uint64(len(s.stagedBuffers)) - 1)
	stagedBuffer.seq = seq
	s.stagedBuffers[bufferPos] = stagedBuffer
	bitmapIndex = bitmapCount & s.numberOfBitmapsModulo

	if hasDelimiter {
		// Up to three uses: forming the leading spanning tuple, the trailing spanning
		// tuple, and (if the buffer holds complete in-buffer tuples) being returned as
		// itself.
		s.stagedBufferUses[bufferPos] = 3
		s.tupleDelimiterBitmaps[bitmapIndex] |= bit
	} else {
		s.stagedBufferUses[bufferPos] = 1
		s.seenAndUsedBitmaps[bitmapIndex] |= bit
	}

	wrapCheck := (s.tupleDelimiterBitmaps[bitmapIndex] | s.seenAndUsedBitmaps[bitmapIndex]) ^ s.tupleDelimiterBitmaps[bitmapIndex]
	needLower = (lowerMask | wrapCheck) == wrapCheck
	needHigher = (higherMask | wrapCheck) == wrapCheck

	if needLower || needHigher {
		vecSnapshot = newBitmapVectorSnapshot(s)
	} else {
		wordSnapshot = [2]uint64{s.tupleDelimiterBitmaps[bitmapIndex], s.seenAndUsedBitmaps[bitmapIndex]}
	}
	modSnapshot := s.numberOfBitmapsModulo
	s.mu.Unlock()

	mode := noWrapping
	if needLower {
		mode |= wrapLower
	}
	if needHigher {
		mode |= wrapHigher
	}

	var st spanningTuple
	switch mode {
	case noWrapping:
		start, startOK := tryGetSpanningTupleStart(bitIndex, bitmapOffset, wordSnapshot[0], wordSnapshot[1])
		end, endOK := tryGetSpanningTupleEnd(bitIndex, bitmapOffset, wordSnapshot[0], wordSnapshot[1])
		st = spanningTuple{spanStart: start, spanEnd: end, isStartValid: startOK, isEndValid: endOK}

	case wrapLower:
		td, su := vecSnapshot.words(bitmapIndex)
		end, endOK := tryGetSpanningTupleEnd(bitIndex, bitmapOffset, td, su)
		if endOK || hasDelimiter {
			start, startOK := tryToFindLowerWrappingSpanningTuple(bitmapOffset, bitmapIndex, vecSnapshot)
			st = spanningTuple{spanStart: start, spanEnd: end, isStartValid: startOK, isEndValid: endOK}
		} else {
			st = spanningTuple{isEndValid: endOK, spanEnd: end}
		}

	case wrapHigher:
		td, su := vecSnapshot.words(bitmapIndex)
		start, startOK := tryGetSpanningTupleStart(bitIndex, bitmapOffset, td, su)
		if startOK || hasDelimiter {
			end, endOK := tryToFindHigherWrappingSpanningTuple(bitmapOffset, bitmapIndex, vecSnapshot)
			st = spanningTuple{spanStart: start, spanEnd: end, isStartValid: startOK, isEndValid: endOK}
		} else {
			st = spanningTuple{isStartValid: startOK, spanStart: start}
		}

	case wrapBoth:
		start, startOK := tryToFindLowerWrappingSpanningTuple(bitmapOffset, bitmapIndex, vecSnapshot)
		if startOK || hasDelimiter {
			end, endOK := tryToFindHigherWrappingSpanningTuple(bitmapOffset, bitmapIndex, vecSnapshot)
			st = spanningTuple{spanStart: start, spanEnd: end, isStartValid: startOK, isEndValid: endOK}
		} else {
			st = spanningTuple{isStartValid: startOK, spanStart: start}
		}
	}

	if hasDelimiter {
		return s.checkSpanningTupleWithDelimiter(st, seq, modSnapshot, stagedBuffer)
	}
	if !st.isStartValid || !st.isEndValid {
		return SpanningTupleBuffers{}
	}
	return s.checkSpanningTupleWithoutDelimiter(st, seq, modSnapshot)
}

// bitmapVectorSnapshot is a lock-free copy of the full bitmap vectors taken while the
// lock was held, used when a spanning-tuple search might need to walk into a
// neighbouring bitmap.
type bitmapVectorSnapshot struct {
	tail                  uint64
	numberOfBitmapsModulo uint64
	tupleDelimiter        []uint64
	seenAndUsed           []uint64
}

func newBitmapVectorSnapshot(s *SequenceShredder) *bitmapVectorSnapshot {
	td := make([]uint64, len(s.tupleDelimiterBitmaps))
	su := make([]uint64, len(s.seenAndUsedBitmaps))
	copy(td, s.tupleDelimiterBitmaps)
	copy(su, s.seenAndUsedBitmaps)
	return &bitmapVectorSnapshot{
		tail:                  s.tail,
		numberOfBitmapsModulo: s.numberOfBitmapsModulo,
		tupleDelimiter:        td,
		seenAndUsed:           su,
	}
}

func (v *bitmapVectorSnapshot) words(bitmapIndex uint64) (tupleDelimiter, seenAndUsed uint64) {
	return v.tupleDelimiter[bitmapIndex], v.seenAndUsed[bitmapIndex]
}

// tryGetSpanningTupleStart looks, below the bit for the sequence number, for the closest
// reachable tuple delimiter via a run of "seen" bits.
func tryGetSpanningTupleStart(bitIndex uint64, bitmapOffset SequenceNumber, tupleDelimiter, seenAndUsed uint64) (SequenceNumber, bool) {
	aligned := seenAndUsed << (bitsPerBitmap - bitIndex)
	offset := countLeadingOnes64(aligned)
	index := bitIndex - uint64(offset+1)
	seq := bitmapOffset + SequenceNumber(index)
	isDelimiter := (uint64(1)<<index)&tupleDelimiter != 0
	return seq, isDelimiter
}

// tryGetSpanningTupleEnd looks, above the bit for the sequence number, for the closest
// reachable tuple delimiter via a run of "seen but not delimiter" bits.
func tryGetSpanningTupleEnd(bitIndex uint64, bitmapOffset SequenceNumber, tupleDelimiter, seenAndUsed uint64) (SequenceNumber, bool) {
	onlySeen := seenAndUsed &^ tupleDelimiter
	aligned := onlySeen >> (bitIndex + 1)
	offset := countTrailingOnes64(aligned) + 1
	index := bitIndex + uint64(offset)
	seq := bitmapOffset + SequenceNumber(index)
	isDelimiter := (uint64(1)<<index)&tupleDelimiter != 0
	return seq, isDelimiter
}

func tryToFindLowerWrappingSpanningTuple(bitmapOffset SequenceNumber, currentBitmapIndex uint64, snap *bitmapVectorSnapshot) (SequenceNumber, bool) {
	bitmapIndex := currentBitmapIndex
	var offset uint64
	for {
		offset++
		bitmapIndex = (currentBitmapIndex - offset) & snap.numberOfBitmapsModulo
		if !(snap.seenAndUsed[bitmapIndex] == maxBitmapValue && snap.tupleDelimiter[bitmapIndex] == 0) {
			break
		}
	}
	potentialStart := countLeadingOnes64(snap.seenAndUsed[bitmapIndex]) + 1
	index := bitsPerBitmap - potentialStart
	seq := bitmapOffset - SequenceNumber(offset<<bitmapSizeBitShift) + SequenceNumber(index)
	isDelimiter := (uint64(1)<<uint64(index))&snap.tupleDelimiter[bitmapIndex] != 0
	return seq, isDelimiter
}

func tryToFindHigherWrappingSpanningTuple(bitmapOffset SequenceNumber, currentBitmapIndex uint64, snap *bitmapVectorSnapshot) (SequenceNumber, bool) {
	bitmapIndex := currentBitmapIndex
	var offset uint64
	for {
		offset++
		bitmapIndex = (currentBitmapIndex + offset) & snap.numberOfBitmapsModulo
		if !(snap.seenAndUsed[bitmapIndex] == maxBitmapValue && snap.tupleDelimiter[bitmapIndex] == 0) {
			break
		}
	}
	onlySeen := snap.seenAndUsed[bitmapIndex] &^ snap.tupleDelimiter[bitmapIndex]
	index := countTrailingOnes64(onlySeen)
	seq := bitmapOffset + SequenceNumber(offset<<bitmapSizeBitShift) + SequenceNumber(index)
	isDelimiter := (uint64(1)<<uint64(index))&snap.tupleDelimiter[bitmapIndex] != 0
	tailBitmapIndex := snap.tail & snap.numberOfBitmapsModulo
	isNotTailBitmap := bitmapIndex != tailBitmapIndex
	return seq, isDelimiter && isNotTailBitmap
}

func countLeadingOnes64(x uint64) int  { return bits.LeadingZeros64(^x) }
func countTrailingOnes64(x uint64) int { return bits.TrailingZeros64(^x) }

func (s *SequenceShredder) checkSpanningTupleWithoutDelimiter(st spanningTuple, seq SequenceNumber, modSnapshot uint64) SpanningTupleBuffers {
	startBitmap := uint64(st.spanStart) >> bitmapSizeBitShift
	startBitmapIndex := startBitmap & modSnapshot
	startPos := uint64(st.spanStart) & bitmapSizeModulo
	startBit := uint64(1) << startPos

	numberOfBitmapsSnapshot := modSnapshot + 1
	ringModulo := (numberOfBitmapsSnapshot << bitmapSizeBitShift) - 1

	s.mu.Lock()
	defer s.mu.Unlock()

	buffers := make([]StagedBuffer, 0, st.spanEnd-st.spanStart+1)
	for i := st.spanStart; i <= st.spanEnd; i++ {
		idx := uint64(i) & ringModulo
		s.stagedBufferUses[idx]--
		buffers = append(buffers, s.stagedBuffers[idx])
	}
	s.seenAndUsedBitmaps[startBitmapIndex] |= startBit
	completedBitmap := s.seenAndUsedBitmaps[startBitmapIndex] == maxBitmapValue
	if completedBitmap && startBitmap == s.tail {
		s.incrementTailLocked()
	}
	s.isFirstTuple = false

	return SpanningTupleBuffers{
		IndexOfProcessedSequenceNumber: int(seq - st.spanStart),
		Buffers:                        buffers,
	}
}

func (s *SequenceShredder) checkSpanningTupleWithDelimiter(st spanningTuple, seq SequenceNumber, modSnapshot uint64, stagedBufferOfSeq StagedBuffer) SpanningTupleBuffers {
	startBitmap := uint64(st.spanStart) >> bitmapSizeBitShift
	startBitmapIndex := startBitmap & modSnapshot
	startPos := uint64(st.spanStart) & bitmapSizeModulo

	seqBitmap := uint64(seq) >> bitmapSizeBitShift
	seqBitmapIndex := seqBitmap & modSnapshot
	seqPos := uint64(seq) & bitmapSizeModulo

	var startBit, seqBit uint64
	if st.isStartValid {
		startBit = uint64(1) << startPos
	}
	if st.isEndValid {
		seqBit = uint64(1) << seqPos
	}

	startIndex, endIndex := seq, seq
	if st.isStartValid {
		startIndex = st.spanStart
	}
	if st.isEndValid {
		endIndex = st.spanEnd
	}
	usingLeading := int8(0)
	if startIndex < seq {
		usingLeading = 1
	}
	usingTrailing := int8(0)
	if seq < endIndex {
		usingTrailing = 1
	}

	numberOfBitmapsSnapshot := modSnapshot + 1
	ringModulo := (numberOfBitmapsSnapshot << bitmapSizeBitShift) - 1

	s.mu.Lock()
	defer s.mu.Unlock()

	minSeq := SequenceNumber(s.tail << bitmapSizeBitShift)
	if seq < minSeq {
		// Two other callers already completed the leading and trailing spanning
		// tuples that would have used stagedBufferOfSeq; hand it straight back,
		// unless the ring slot still holds the buffer this call itself staged
		// (checked by sequence-number identity, since the slot is only ever
		// overwritten, never cleared, so a later sequence number can already
		// occupy it).
		idx := uint64(seq) & ringModulo
		owned := s.stagedBuffers[idx]
		if owned.seq != seq {
			owned = stagedBufferOfSeq
		}
		return SpanningTupleBuffers{Buffers: []StagedBuffer{owned}}
	}

	buffers := make([]StagedBuffer, 0, endIndex-startIndex+1)
	for i := startIndex; i <= endIndex; i++ {
		idx := uint64(i) & ringModulo
		var uses int8 = 1
		if i == seq {
			uses = 1 + usingLeading + usingTrailing
		}
		s.stagedBufferUses[idx] -= uses
		if s.stagedBufferUses[idx] < 0 {
			panic(fmt.Sprintf("shred: staged buffer uses went negative for sequence number %d", i))
		}
		buffers = append(buffers, s.stagedBuffers[idx])
	}

	s.seenAndUsedBitmaps[startBitmapIndex] |= startBit
	s.seenAndUsedBitmaps[seqBitmapIndex] |= seqBit

	firstCompleted := st.isStartValid && s.seenAndUsedBitmaps[startBitmapIndex] == maxBitmapValue
	secondCompleted := st.isEndValid && s.seenAndUsedBitmaps[seqBitmapIndex] == maxBitmapValue
	firstCompletedTail := firstCompleted && startBitmap == s.tail
	secondCompletedTail := secondCompleted && seqBitmap == s.tail
	if firstCompletedTail || secondCompletedTail {
		s.incrementTailLocked()
	}
	s.isFirstTuple = false

	return SpanningTupleBuffers{
		IndexOfProcessedSequenceNumber: int(seq - startIndex),
		Buffers:                        buffers,
	}
}

// incrementTailLocked advances the tail past every fully-drained bitmap and, if enough
// resize requests have accumulated and the tail just wrapped to index 0, doubles the
// bitmap window. Callers must hold s.mu.
func (s *SequenceShredder) incrementTailLocked() {
	tailBitmapIndex := s.tail & s.numberOfBitmapsModulo
	wrapped := false
	for {
		s.tupleDelimiterBitmaps[tailBitmapIndex] = 0
		s.seenAndUsedBitmaps[tailBitmapIndex] = 0
		s.tail++
		wrapped = wrapped || tailBitmapIndex == 0
		tailBitmapIndex = s.tail & s.numberOfBitmapsModulo
		if s.seenAndUsedBitmaps[tailBitmapIndex] != maxBitmapValue {
			break
		}
	}

	if s.resizeRequestCount < s.resizeThreshold || !wrapped {
		return
	}
	next := s.numberOfBitmaps << 1
	preservesTail := (s.tail & (next - 1)) == tailBitmapIndex
	if !preservesTail || next > s.maxBitmaps {
		return
	}

	s.log.Debug("resizing sequence shredder bitmap window", "from", s.numberOfBitmaps, "to", next)
	s.numberOfBitmaps = next
	s.numberOfBitmapsModulo = next - 1
	s.tupleDelimiterBitmaps = growUint64(s.tupleDelimiterBitmaps, next)
	s.seenAndUsedBitmaps = growUint64(s.seenAndUsedBitmaps, next)
	s.stagedBuffers = growBuffers(s.stagedBuffers, next<<bitmapSizeBitShift)
	s.stagedBufferUses = growInt8(s.stagedBufferUses, next<<bitmapSizeBitShift)
	s.resizeRequestCount = 0
}

func growUint64(s []uint64, n uint64) []uint64 {
	grown := make([]uint64, n)
	copy(grown, s)
	return grown
}

func growInt8(s []int8, n uint64) []int8 {
	grown := make([]int8, n)
	copy(grown, s)
	return grown
}

func growBuffers(s []StagedBuffer, n uint64) []StagedBuffer {
	grown := make([]StagedBuffer, n)
	copy(grown, s)
	return grown
}

// FlushFinalPartialTuple synthesizes a delimiter-less virtual buffer at the next unseen
// sequence number to flush out whatever spanning tuple is still open at end of stream. It
// returns an empty SpanningTupleBuffers if nothing was pending.
func (s *SequenceShredder) FlushFinalPartialTuple() (SpanningTupleBuffers, SequenceNumber) {
	s.mu.Lock()
	s.isLastTuple = true

	for offsetToTail := uint64(1); offsetToTail <= s.numberOfBitmaps; offsetToTail++ {
		bitmapIndex := (s.tail + (s.numberOfBitmaps - offsetToTail)) & s.numberOfBitmapsModulo
		seenAndUsed := s.seenAndUsedBitmaps[bitmapIndex]
		tupleDelimiter := s.tupleDelimiterBitmaps[bitmapIndex]
		if (seenAndUsed | tupleDelimiter) == 0 {
			continue
		}

		firstSeqOfTail := SequenceNumber(s.tail * bitsPerBitmap)
		seqOffsetOfBitmap := SequenceNumber(((s.numberOfBitmaps - offsetToTail) & s.numberOfBitmapsModulo) << bitmapSizeBitShift)
		firstSeqOfBitmap := firstSeqOfTail + seqOffsetOfBitmap
		notSeen := countLeadingZeros64(seenAndUsed | tupleDelimiter)
		offsetToNext := bitsPerBitmap - notSeen
		nextLargest := firstSeqOfBitmap + SequenceNumber(offsetToNext)

		largest := nextLargest - 1
		bitOfLargest := uint64(1) << uint64(offsetToNext-1)
		hasDelimiter := tupleDelimiter&bitOfLargest != 0
		idxOfLargest := uint64(largest) & (uint64(len(s.stagedBuffers)) - 1)
		usesOfLargest := s.stagedBufferUses[idxOfLargest]
		largestAlreadyProduced := hasDelimiter && usesOfLargest != 2

		seqForFlushedTuple := largest
		if largestAlreadyProduced {
			seqForFlushedTuple = nextLargest
		}

		dummy := StagedBuffer{}
		s.mu.Unlock()
		return s.ProcessSequenceNumber(dummy, nextLargest, true), seqForFlushedTuple
	}

	s.mu.Unlock()
	return SpanningTupleBuffers{}, 0
}

func countLeadingZeros64(x uint64) int { return bits.LeadingZeros64(x) }

// String renders summary state for diagnostics; it takes the lock.
func (s *SequenceShredder) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("SequenceShredder(bitmaps=%d, resizeRequests=%d, tail=%d)", s.numberOfBitmaps, s.resizeRequestCount, s.tail)
}
