package mlcsr

import (
	"github.com/goatdb/llama/pkg/parallel"
)

// ============================================================================
// Sparse modification views
// ============================================================================

// CreateSparseRepresentation captures a column-store view of the nodes that
// contributed new edges at the given level: their IDs and their vertex-table
// entries. Eviction bookkeeping walks this view after the level's vertex
// table is gone.
//
// Parallelized over vertex-table pages, static schedule.
func (c *CSR) CreateSparseRepresentation(level int) {
	if !c.begin.LevelExists(level) {
		return
	}
	if c.sparseIDs[level] != nil {
		return
	}

	vt := c.begin.Level(level)
	pages := vt.Pages()
	size := vt.Size()

	// First pass: count the per-page hits so the fill pass can write into
	// disjoint slices without synchronization.
	counts := make([]int, pages)
	parallel.ForRange(c.workers, pages, func(worker, start, end int) {
		for p := start; p < end; p++ {
			page := vt.Page(p)
			base := NodeID(p) << EntriesPerPageBits
			n := 0
			for i := 0; i < EntriesPerPage && int64(base)+int64(i) < size; i++ {
				e := page[i]
				if e.AdjListStart != NilEdge && EdgeLevel(e.AdjListStart) == level {
					n++
				}
			}
			counts[p] = n
		}
	})

	length := 0
	offsets := make([]int, pages+1)
	for p := 0; p < pages; p++ {
		offsets[p] = length
		length += counts[p]
	}
	offsets[pages] = length

	ids := make([]NodeID, length)
	data := make([]VTEntry, length)
	parallel.ForRange(c.workers, pages, func(worker, start, end int) {
		for p := start; p < end; p++ {
			page := vt.Page(p)
			base := NodeID(p) << EntriesPerPageBits
			index := offsets[p]
			for i := 0; i < EntriesPerPage && int64(base)+int64(i) < size; i++ {
				e := page[i]
				if e.AdjListStart != NilEdge && EdgeLevel(e.AdjListStart) == level {
					ids[index] = base + NodeID(i)
					data[index] = e
					index++
				}
			}
		}
	})

	c.sparseIDs[level] = ids
	c.sparseData[level] = data
}

// HasSparseRepresentation reports whether the level has a sparse view.
func (c *CSR) HasSparseRepresentation(level int) bool {
	return level >= 0 && level < len(c.sparseIDs) && c.sparseIDs[level] != nil
}

// SparseLength returns the number of nodes in the level's sparse view.
func (c *CSR) SparseLength(level int) int { return len(c.sparseIDs[level]) }

// SparseNodeIDs returns the node IDs of the level's sparse view.
func (c *CSR) SparseNodeIDs(level int) []NodeID { return c.sparseIDs[level] }

// SparseNodeData returns the vertex-table entries of the level's sparse view.
func (c *CSR) SparseNodeData(level int) []VTEntry { return c.sparseData[level] }
