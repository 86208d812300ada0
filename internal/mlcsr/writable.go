package mlcsr

import "sync/atomic"

// ============================================================================
// Writable stage - mutable node and edge records awaiting checkpoint
// ============================================================================

// wEdge is one staged edge. Until checkpoint it is addressed by a writable
// EdgeID whose low bits index the edge arena; checkpoint assigns the final
// numerical IDs.
type wEdge struct {
	source NodeID
	target NodeID

	// publicID is the writable EdgeID handed out at add time.
	publicID EdgeID

	// numericalID / reverseNumericalID are assigned while the out- and
	// in-edge tables of the new level are written.
	numericalID        EdgeID
	reverseNumericalID EdgeID

	// supersedes references the frozen predecessor this edge replaces in
	// streaming mode, NilEdge otherwise.
	supersedes EdgeID

	deleted bool

	props32 [MaxEdgePropertyID]uint32
	props64 [MaxEdgePropertyID]uint64
}

func (e *wEdge) exists() bool { return !e.deleted }

// wNode is one staged node: its pending out- and in-edge buffers and the
// delta counters the checkpoint sweep reads. The spinlock serializes
// concurrent writers of the same node; writers of different nodes never
// contend.
type wNode struct {
	lock SpinLock

	outEdges []*wEdge
	inEdges  []*wEdge

	// outDelta / inDelta count staged additions net of staged deletions.
	outDelta uint32
	inDelta  uint32

	// numDeletedOut / numDeletedIn count deletions of frozen edges.
	numDeletedOut uint32
	numDeletedIn  uint32

	deleted bool
}

// reset prepares a pooled record for reuse. Field-wise so the lock is
// never copied.
func (n *wNode) reset() {
	n.outEdges = nil
	n.inEdges = nil
	n.outDelta = 0
	n.inDelta = 0
	n.numDeletedOut = 0
	n.numDeletedIn = 0
	n.deleted = false
	n.lock.Unlock()
}

// ============================================================================
// Edge arena
// ============================================================================

// The arena grows in fixed blocks so records never move and a writable
// EdgeID index stays valid for the whole staging phase.
const (
	wEdgeBlockBits = 12
	wEdgeBlockSize = 1 << wEdgeBlockBits
)

// wEdgeArena is an append-only store of staged edges addressed by index.
type wEdgeArena struct {
	blocks atomic.Pointer[[]*[wEdgeBlockSize]wEdge]
	next   atomic.Int64
	grow   SpinLock
}

func newWEdgeArena() *wEdgeArena {
	a := &wEdgeArena{}
	empty := make([]*[wEdgeBlockSize]wEdge, 0, 8)
	a.blocks.Store(&empty)
	return a
}

// alloc reserves a record and returns it with its arena index.
func (a *wEdgeArena) alloc() (int64, *wEdge) {
	idx := a.next.Add(1) - 1
	outer := int(idx >> wEdgeBlockBits)

	blocks := *a.blocks.Load()
	if outer >= len(blocks) {
		a.grow.Lock()
		blocks = *a.blocks.Load()
		for outer >= len(blocks) {
			grown := make([]*[wEdgeBlockSize]wEdge, len(blocks)+1)
			copy(grown, blocks)
			grown[len(blocks)] = new([wEdgeBlockSize]wEdge)
			a.blocks.Store(&grown)
			blocks = grown
		}
		a.grow.Unlock()
	}

	return idx, &blocks[outer][idx&(wEdgeBlockSize-1)]
}

// get returns the record at the index.
func (a *wEdgeArena) get(idx int64) *wEdge {
	blocks := *a.blocks.Load()
	return &blocks[idx>>wEdgeBlockBits][idx&(wEdgeBlockSize-1)]
}

// len returns the number of allocated records.
func (a *wEdgeArena) len() int64 { return a.next.Load() }

// reset drops all records after their contents were frozen.
func (a *wEdgeArena) reset() {
	empty := make([]*[wEdgeBlockSize]wEdge, 0, 8)
	a.blocks.Store(&empty)
	a.next.Store(0)
}
