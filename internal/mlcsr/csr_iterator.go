package mlcsr

// ============================================================================
// Edge iteration - the hot path
// ============================================================================

// EdgeIterator enumerates a node's visible edges, newest level first. It is
// an explicit state record advanced by Next; descending to an older level
// reads the continuation record placed directly after the current segment.
// Iteration terminates when a continuation points below the minimum level.
type EdgeIterator struct {
	csr  *CSR
	node NodeID
	edge EdgeID
	left uint32

	table *EdgeTable
	index int64

	// maxLevel is the query level for deletion checks: an edge is skipped
	// iff its max-visible-level is <= maxLevel.
	maxLevel int

	target NodeID
}

// IterBegin positions the iterator on the node's adjacency at the given
// level (-1 for the latest). maxLevel overrides the deletion-visibility
// level (-1 to use the queried level).
func (c *CSR) IterBegin(it *EdgeIterator, n NodeID, level, maxLevel int) {
	it.csr = c
	it.node = n

	l := level
	if l == -1 {
		l = c.maxLevel
	}
	it.maxLevel = maxLevel
	if it.maxLevel < 0 {
		it.maxLevel = l
	}

	if l < c.minLevel || l > c.maxLevel || c.begin.Level(l) == nil {
		it.edge = NilEdge
		return
	}
	vt := c.begin.Level(l)
	if n < 0 || n >= NodeID(vt.Size()) {
		it.edge = NilEdge
		return
	}

	b := vt.Get(n)
	it.edge = b.AdjListStart

	if it.edge != NilEdge && EdgeLevel(it.edge) < c.minLevel {
		it.left = 0
		it.edge = NilEdge
		return
	}

	it.left = b.LevelLength
	if it.left == 0 {
		it.edge = NilEdge
		return
	}
	it.table = c.values[EdgeLevel(it.edge)]
	it.index = EdgeIndex(it.edge)
	it.skipDeleted()
}

// Iter is the convenience form of IterBegin over the latest level.
func (c *CSR) Iter(n NodeID) EdgeIterator {
	var it EdgeIterator
	c.IterBegin(&it, n, -1, -1)
	return it
}

// Next yields the next visible edge, or false at the end. The target node
// of the yielded edge is available through Target.
func (it *EdgeIterator) Next() (EdgeID, bool) {
	r := it.edge
	if r == NilEdge {
		return NilEdge, false
	}
	it.target = ValuePayload(it.table.LoadValue(it.index))
	it.advance()
	it.skipDeleted()
	return r, true
}

// HasNext reports whether another edge is available.
func (it *EdgeIterator) HasNext() bool { return it.edge != NilEdge }

// Target returns the head node of the edge most recently yielded.
func (it *EdgeIterator) Target() NodeID { return it.target }

// SetToEnd turns the iterator into an exhausted one.
func (it *EdgeIterator) SetToEnd() {
	it.node = NilNode
	it.edge = NilEdge
	it.left = 0
}

// advance steps within the current segment, or descends to the previous
// level through the continuation record at the end of the segment.
func (it *EdgeIterator) advance() {
	if it.left > 1 {
		it.left--
		it.edge++
		it.index++
		return
	}
	it.descend()
}

// descend follows the continuation record past the current segment. The
// previous level holds zeros instead of NIL for some nodes it never saw, so
// a zero-length continuation also terminates.
func (it *EdgeIterator) descend() {
	c := it.csr
	level := EdgeLevel(it.edge)
	if level == 0 || it.node >= NodeID(c.perLevelNodes[level-1]) {
		it.edge = NilEdge
		return
	}

	b := it.table.Continuation(it.index + 1)
	it.edge = b.AdjListStart
	if it.edge == NilEdge {
		return
	}
	if EdgeLevel(it.edge) < c.minLevel {
		it.left = 0
		it.edge = NilEdge
		return
	}
	it.left = b.LevelLength
	if it.left == 0 {
		it.edge = NilEdge
		return
	}
	it.table = c.values[EdgeLevel(it.edge)]
	it.index = EdgeIndex(it.edge)
}

// skipDeleted moves past edges invisible at the query level.
func (it *EdgeIterator) skipDeleted() {
	for it.edge != NilEdge && ValueIsDeleted(it.table.LoadValue(it.index), it.maxLevel) {
		it.advance()
	}
}

// ============================================================================
// Within-level iteration
// ============================================================================

// IterBeginWithinLevel positions the iterator on the node's edges
// contributed at exactly the given level, without descending. Pass vte when
// the vertex-table entry is already at hand (sparse eviction views).
func (c *CSR) IterBeginWithinLevel(it *EdgeIterator, n NodeID, level, maxLevel int, vte *VTEntry) {
	it.csr = c
	it.node = n
	it.maxLevel = maxLevel
	if it.maxLevel < 0 {
		it.maxLevel = level
	}

	var b VTEntry
	if vte != nil {
		b = *vte
	} else {
		vt := c.begin.Level(level)
		if vt == nil || n >= NodeID(vt.Size()) {
			it.edge = NilEdge
			return
		}
		b = vt.Get(n)
	}

	it.edge = b.AdjListStart
	it.left = b.LevelLength
	if it.left == 0 || it.edge == NilEdge || EdgeLevel(it.edge) != level {
		it.edge = NilEdge
		return
	}
	it.table = c.values[level]
	it.index = EdgeIndex(it.edge)
	it.skipDeletedWithinLevel()
}

// NextWithinLevel yields the next visible edge of the level, or false.
func (it *EdgeIterator) NextWithinLevel() (EdgeID, bool) {
	r := it.edge
	if r == NilEdge {
		return NilEdge, false
	}
	it.target = ValuePayload(it.table.LoadValue(it.index))
	it.advanceWithinLevel()
	it.skipDeletedWithinLevel()
	return r, true
}

func (it *EdgeIterator) advanceWithinLevel() {
	if it.left > 1 {
		it.left--
		it.edge++
		it.index++
		return
	}
	it.edge = NilEdge
}

func (it *EdgeIterator) skipDeletedWithinLevel() {
	for it.edge != NilEdge && ValueIsDeleted(it.table.LoadValue(it.index), it.maxLevel) {
		it.advanceWithinLevel()
	}
}
