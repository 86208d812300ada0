package mlcsr

import (
	"sync"
	"sync/atomic"

	"github.com/goatdb/llama/pkg/collections"
)

// ============================================================================
// Writable vertex table - sparse paged directory of staged nodes
// ============================================================================

// wvtPage holds one page of staged node slots.
type wvtPage struct {
	nodes [EntriesPerPage]atomic.Pointer[wNode]
}

// wvtBlock is the BLOCK sentinel: installed by the thread that will
// allocate a page; other threads spin while they observe it.
var wvtBlock = &wvtPage{}

// The directory is two-level so page slots never move: the outer vector of
// chunks grows under a lock, page installation CASes inside a chunk.
const (
	wvtChunkBits = 10
	wvtChunkSize = 1 << wvtChunkBits
)

type wvtChunk struct {
	pages [wvtChunkSize]atomic.Pointer[wvtPage]
}

// WritableVT is the shared sparse array of staged nodes, keyed by NodeID
// with per-page lazy allocation. Page installation is a lock-free CAS with
// a BLOCK sentinel; the slot within a page is claimed the same way. Node
// records come from a pool so checkpoint-heavy workloads do not thrash the
// allocator.
type WritableVT struct {
	chunks   atomic.Pointer[[]*wvtChunk]
	numPages atomic.Int64
	occupied *collections.AtomicBitset

	growLock SpinLock
	nodePool sync.Pool
}

// NewWritableVT creates a writable vertex table with capacity for
// maxNodes node IDs; the directory regrows on demand.
func NewWritableVT(maxNodes int64) *WritableVT {
	vt := &WritableVT{
		occupied: collections.NewAtomicBitset(1024),
		nodePool: sync.Pool{New: func() any { return new(wNode) }},
	}
	empty := make([]*wvtChunk, 0, 8)
	vt.chunks.Store(&empty)

	pages := maxNodes >> EntriesPerPageBits
	if maxNodes&(EntriesPerPage-1) != 0 {
		pages++
	}
	if pages < 1 {
		pages = 1
	}
	vt.ensurePages(pages)
	return vt
}

// NumPages returns the directory size.
func (vt *WritableVT) NumPages() int { return int(vt.numPages.Load()) }

// EntriesPerPage returns the node slots per page.
func (vt *WritableVT) EntriesPerPage() int { return EntriesPerPage }

// PageWithContents reports whether any node on the page was staged.
func (vt *WritableVT) PageWithContents(p int) bool { return vt.occupied.Test(p) }

// pageSlot returns the directory slot of page p, or nil when beyond the
// directory.
func (vt *WritableVT) pageSlot(p int64) *atomic.Pointer[wvtPage] {
	chunks := *vt.chunks.Load()
	outer := int(p >> wvtChunkBits)
	if outer >= len(chunks) {
		return nil
	}
	return &chunks[outer].pages[p&(wvtChunkSize-1)]
}

// ensurePages extends the directory to cover at least pages page slots.
func (vt *WritableVT) ensurePages(pages int64) {
	for {
		if vt.numPages.Load() >= pages {
			return
		}
		vt.growLock.Lock()
		if vt.numPages.Load() >= pages {
			vt.growLock.Unlock()
			return
		}
		chunks := *vt.chunks.Load()
		needed := int((pages + wvtChunkSize - 1) >> wvtChunkBits)
		for len(chunks) < needed {
			grown := make([]*wvtChunk, len(chunks)+1)
			copy(grown, chunks)
			grown[len(chunks)] = &wvtChunk{}
			vt.chunks.Store(&grown)
			chunks = grown
		}
		vt.numPages.Store(int64(len(chunks)) << wvtChunkBits)
		vt.growLock.Unlock()
	}
}

// Get returns the staged record of the node, or nil.
func (vt *WritableVT) Get(node NodeID) *wNode {
	slot := vt.pageSlot(int64(node) >> EntriesPerPageBits)
	if slot == nil {
		return nil
	}
	page := slot.Load()
	if page == nil || page == wvtBlock {
		return nil
	}
	return page.nodes[node&(EntriesPerPage-1)].Load()
}

// GetOrCreate returns the staged record of the node, creating it if
// absent. Safe for concurrent callers of any node mix.
func (vt *WritableVT) GetOrCreate(node NodeID) *wNode {
	p := int64(node) >> EntriesPerPageBits
	slot := vt.pageSlot(p)
	if slot == nil {
		vt.ensurePages(p + 1)
		slot = vt.pageSlot(p)
	}

	page := slot.Load()
	for {
		if page == nil {
			if slot.CompareAndSwap(nil, wvtBlock) {
				page = &wvtPage{}
				slot.Store(page)
				vt.occupied.Set(int(p))
				break
			}
			page = slot.Load()
			continue
		}
		if page == wvtBlock {
			page = slot.Load()
			continue
		}
		break
	}

	ns := &page.nodes[node&(EntriesPerPage-1)]
	if w := ns.Load(); w != nil {
		return w
	}
	w := vt.nodePool.Get().(*wNode)
	w.reset()
	if ns.CompareAndSwap(nil, w) {
		return w
	}
	vt.nodePool.Put(w)
	return ns.Load()
}

// Page returns the page at index p, or nil.
func (vt *WritableVT) Page(p int) *wvtPage {
	slot := vt.pageSlot(int64(p))
	if slot == nil {
		return nil
	}
	page := slot.Load()
	if page == wvtBlock {
		return nil
	}
	return page
}

// Reset returns all node records to the pool and clears the directory.
func (vt *WritableVT) Reset() {
	n := vt.NumPages()
	for p := 0; p < n; p++ {
		slot := vt.pageSlot(int64(p))
		page := slot.Load()
		if page == nil || page == wvtBlock {
			continue
		}
		for i := range page.nodes {
			if w := page.nodes[i].Load(); w != nil {
				w.reset()
				vt.nodePool.Put(w)
			}
		}
		slot.Store(nil)
	}
	vt.occupied.ClearAll()
}
