package mlcsr

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// ============================================================================
// Page manager - fixed-size typed pages with reference counting
// ============================================================================

// PageID identifies a page within one PageManager.
type PageID int64

// NilPage is the sentinel for "no page".
const NilPage PageID = -1

// Pages are allocated in blocks of allocationStep to amortize directory
// growth; the block index is the top bits of the PageID.
const (
	allocationStepBits = 8
	allocationStep     = 1 << allocationStepBits
)

// pageBlock holds allocationStep pages and their refcounts.
type pageBlock[T any] struct {
	refcounts [allocationStep]atomic.Int32
	data      []T // allocationStep * pageLength elements
}

// freeShard is one shard of the free list. Released pages go to a shard
// picked round-robin; allocation starts its scan at the next shard in the
// same rotation, then scans the others, before the directory is extended.
// Shards are not tied to callers or workers. Pages on the free list are
// never returned to the runtime.
type freeShard struct {
	lock SpinLock
	ids  []PageID
}

// PageManager allocates fixed-size pages of element type T and tracks a
// reference count per page. Levels share vertex-table pages by acquiring
// them; a page whose refcount drops to zero goes back to the free list.
//
// Memory comparison for 1M shared 512-entry VTEntry pages across 10 levels:
//   - one table per level: ~80GB
//   - refcounted shared pages: bounded by the modified pages only
type PageManager[T any] struct {
	pageLength int
	elemSize   uintptr
	zeroPages  bool

	numPages atomic.Int64
	lock     SpinLock
	blocks   atomic.Pointer[[]*pageBlock[T]]

	zeroPage  atomic.Int64 // PageID, or -1 if not yet created
	shards    []freeShard
	nextShard atomic.Uint32

	counterAllocateNew   atomic.Int64
	counterAllocateReuse atomic.Int64
	counterFree          atomic.Int64
}

// PageManagerStats is a point-in-time accounting snapshot.
type PageManagerStats struct {
	TotalPages    int64
	FreePages     int64
	LiveRefcounts int64
	AllocatedNew  int64
	Reused        int64
	Freed         int64
}

// NewPageManager creates a page manager for pages of pageLength elements.
// If zeroPages is set, pages are zeroed on every allocation.
func NewPageManager[T any](pageLength int, zeroPages bool, shards int) *PageManager[T] {
	if shards < 1 {
		shards = 1
	}
	var zero T
	pm := &PageManager[T]{
		pageLength: pageLength,
		elemSize:   unsafe.Sizeof(zero),
		zeroPages:  zeroPages,
		shards:     make([]freeShard, shards),
	}
	pm.zeroPage.Store(int64(NilPage))
	empty := make([]*pageBlock[T], 0, 8)
	pm.blocks.Store(&empty)
	return pm
}

// PageLength returns the number of elements per page.
func (pm *PageManager[T]) PageLength() int {
	return pm.pageLength
}

// PageBytes returns the page size in bytes.
func (pm *PageManager[T]) PageBytes() int64 {
	return int64(pm.elemSize) * int64(pm.pageLength)
}

// ZeroesPages reports whether pages are zeroed on allocation.
func (pm *PageManager[T]) ZeroesPages() bool {
	return pm.zeroPages
}

// Refcount returns the current refcount of the page. The value is only a
// guide unless the caller holds exclusive access; the one stable answer is
// refcount 1 observed by the page's sole owner.
func (pm *PageManager[T]) Refcount(id PageID) int {
	b, inner := pm.locate(id)
	return int(b.refcounts[inner].Load())
}

// Page returns the page contents without touching the refcount.
func (pm *PageManager[T]) Page(id PageID) []T {
	b, inner := pm.locate(id)
	return pm.pageSlice(b, inner)
}

// Allocate returns a fresh page with refcount 1.
func (pm *PageManager[T]) Allocate() (PageID, []T) {
	// First check the free lists, starting at a round-robin shard.
	n := len(pm.shards)
	start := int(pm.nextShard.Add(1)) % n
	for i := 0; i < n; i++ {
		s := &pm.shards[(start+i)%n]
		if len(s.ids) == 0 {
			continue
		}
		s.lock.Lock()
		if len(s.ids) == 0 {
			s.lock.Unlock()
			continue
		}
		id := s.ids[len(s.ids)-1]
		s.ids = s.ids[:len(s.ids)-1]
		s.lock.Unlock()

		b, inner := pm.locate(id)
		b.refcounts[inner].Store(1)
		page := pm.pageSlice(b, inner)
		if pm.zeroPages {
			clear(page)
		}
		pm.counterAllocateReuse.Add(1)
		return id, page
	}

	// Otherwise extend the directory.
	id := PageID(pm.numPages.Add(1) - 1)
	outer := int(id >> allocationStepBits)
	inner := int(id & (allocationStep - 1))
	pm.counterAllocateNew.Add(1)

	blocks := *pm.blocks.Load()
	if outer >= len(blocks) {
		pm.lock.Lock()
		blocks = *pm.blocks.Load()
		for outer >= len(blocks) {
			nb := &pageBlock[T]{data: make([]T, allocationStep*pm.pageLength)}
			grown := make([]*pageBlock[T], len(blocks)+1)
			copy(grown, blocks)
			grown[len(blocks)] = nb
			pm.blocks.Store(&grown)
			blocks = grown
		}
		pm.lock.Unlock()
	}

	b := blocks[outer]
	b.refcounts[inner].Store(1)
	return id, pm.pageSlice(b, inner)
}

// AllocateRange allocates a range of pages, writing ids and page contents
// into the given slices. Used by dense vertex-table initialization.
func (pm *PageManager[T]) AllocateRange(ids []PageID, pages [][]T) {
	for i := range ids {
		ids[i], pages[i] = pm.Allocate()
	}
}

// Acquire increments the page's refcount by count and returns the page.
func (pm *PageManager[T]) Acquire(id PageID, count int) []T {
	b, inner := pm.locate(id)
	b.refcounts[inner].Add(int32(count))
	return pm.pageSlice(b, inner)
}

// AcquirePages increments the refcount of every page in ids by one.
func (pm *PageManager[T]) AcquirePages(ids []PageID) {
	for _, id := range ids {
		b, inner := pm.locate(id)
		b.refcounts[inner].Add(1)
	}
}

// Release decrements the page's refcount and returns the new count. A page
// reaching zero is pushed onto a free-list shard.
func (pm *PageManager[T]) Release(id PageID) int {
	b, inner := pm.locate(id)
	n := b.refcounts[inner].Add(-1)
	if n < 0 {
		panic(fmt.Sprintf("mlcsr: page %d released below zero", id))
	}
	if n == 0 {
		pm.counterFree.Add(1)
		s := &pm.shards[int(pm.nextShard.Add(1))%len(pm.shards)]
		s.lock.Lock()
		s.ids = append(s.ids, id)
		s.lock.Unlock()
	}
	return int(n)
}

// ReleasePages releases every page in ids, skipping NilPage entries.
func (pm *PageManager[T]) ReleasePages(ids []PageID) {
	for _, id := range ids {
		if id == NilPage {
			continue
		}
		pm.Release(id)
	}
}

// COW allocates a new page, copies srcPage into it, and releases the source.
func (pm *PageManager[T]) COW(src PageID, srcPage []T) (PageID, []T) {
	id, page := pm.Allocate()
	copy(page, srcPage)
	pm.Release(src)
	return id, page
}

// ZeroPage returns the shared all-zeros page with its refcount incremented
// by count. A single instance is enough; it is created on first use.
func (pm *PageManager[T]) ZeroPage(count int) (PageID, []T) {
	if zp := PageID(pm.zeroPage.Load()); zp != NilPage {
		return zp, pm.Acquire(zp, count)
	}

	// A race here could create two zeroed pages; behavior stays correct,
	// only one of them becomes the shared instance.
	id, page := pm.Allocate()
	if !pm.zeroPages {
		clear(page)
	}
	if count > 1 {
		pm.Acquire(id, count-1)
	}
	pm.zeroPage.Store(int64(id))
	return id, page
}

// ZeroPageID returns the zero page ID, or NilPage if never created.
func (pm *PageManager[T]) ZeroPageID() PageID {
	return PageID(pm.zeroPage.Load())
}

// Stats returns the allocation accounting. LiveRefcounts counts the pages
// holding at least one share, each page once however many shares it has,
// so LiveRefcounts + FreePages == TotalPages holds whenever no allocation
// or release is in flight.
func (pm *PageManager[T]) Stats() PageManagerStats {
	st := PageManagerStats{
		TotalPages:   pm.numPages.Load(),
		AllocatedNew: pm.counterAllocateNew.Load(),
		Reused:       pm.counterAllocateReuse.Load(),
		Freed:        pm.counterFree.Load(),
	}
	for i := range pm.shards {
		s := &pm.shards[i]
		s.lock.Lock()
		st.FreePages += int64(len(s.ids))
		s.lock.Unlock()
	}
	blocks := *pm.blocks.Load()
	total := st.TotalPages
	for outer := 0; outer < len(blocks) && total > 0; outer++ {
		limit := int64(allocationStep)
		if total < limit {
			limit = total
		}
		for inner := int64(0); inner < limit; inner++ {
			if blocks[outer].refcounts[inner].Load() > 0 {
				st.LiveRefcounts++
			}
		}
		total -= limit
	}
	return st
}

func (pm *PageManager[T]) locate(id PageID) (*pageBlock[T], int) {
	blocks := *pm.blocks.Load()
	return blocks[id>>allocationStepBits], int(id & (allocationStep - 1))
}

func (pm *PageManager[T]) pageSlice(b *pageBlock[T], inner int) []T {
	off := inner * pm.pageLength
	return b.data[off : off+pm.pageLength : off+pm.pageLength]
}
