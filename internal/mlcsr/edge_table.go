package mlcsr

import "sync/atomic"

// ============================================================================
// Edge table - the flat per-level array of packed edge words
// ============================================================================

// EdgeTable is one level's edge table: packed words addressed by the index
// part of an EdgeID. Each word carries the target node in the payload bits
// and the edge's max-visible-level in the top bits; continuation records
// occupy two consecutive words directly after a node's new edges.
//
// An edge table is owned by its level and write-once: after the level's
// edges are finished, the only legal mutation is lowering a word's
// max-visible-level.
type EdgeTable struct {
	words []uint64
}

// NewEdgeTable allocates an edge table with the given word capacity.
// Out of memory is fatal (make panics), matching the allocator contract.
func NewEdgeTable(capacity int64) *EdgeTable {
	return &EdgeTable{words: make([]uint64, capacity)}
}

// Len returns the word capacity.
func (et *EdgeTable) Len() int64 { return int64(len(et.words)) }

// Value returns the packed word at the index.
func (et *EdgeTable) Value(index int64) uint64 { return et.words[index] }

// SetValue stores a packed word at the index.
func (et *EdgeTable) SetValue(index int64, w uint64) { et.words[index] = w }

// LoadValue atomically reads the word at the index. Edge words are updated
// through CAS after the level freezes, so visibility reads go through here
// when racing with deletions is possible.
func (et *EdgeTable) LoadValue(index int64) uint64 {
	return atomic.LoadUint64(&et.words[index])
}

// CompareAndSwapValue atomically replaces the word at the index.
func (et *EdgeTable) CompareAndSwapValue(index int64, old, new uint64) bool {
	return atomic.CompareAndSwapUint64(&et.words[index], old, new)
}

// StoreValue atomically stores the word at the index.
func (et *EdgeTable) StoreValue(index int64, w uint64) {
	atomic.StoreUint64(&et.words[index], w)
}

// Continuation decodes the continuation record at the index.
func (et *EdgeTable) Continuation(index int64) VTEntry {
	return VTEntry{
		AdjListStart: EdgeID(et.words[index]),
		LevelLength:  uint32(et.words[index+1]),
		Degree:       Degree(et.words[index+1] >> 32),
	}
}

// SetContinuation encodes a continuation record at the index.
func (et *EdgeTable) SetContinuation(index int64, e VTEntry) {
	et.words[index] = uint64(e.AdjListStart)
	et.words[index+1] = uint64(e.LevelLength) | uint64(e.Degree)<<32
}

// Memset fills [start, finish) with the given word.
func (et *EdgeTable) Memset(start, finish int64, w uint64) {
	for i := start; i < finish; i++ {
		et.words[i] = w
	}
}

// Copy copies length words from source starting at start into this table
// at to.
func (et *EdgeTable) Copy(to int64, source *EdgeTable, start, length int64) {
	copy(et.words[to:to+length], source.words[start:start+length])
}

// Advise hints that [from, to) is about to be scanned. The in-memory
// representation has nothing to fault in; the persistence-backed tables
// translate this to madvise.
func (et *EdgeTable) Advise(from, to int64) {}
