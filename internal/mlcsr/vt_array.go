package mlcsr

// ============================================================================
// SW-COW vertex table - paged array with an indirection table
// ============================================================================

// PageArray is one level of a vertex table: size entries of T laid out
// across EntriesPerPage-entry pages behind an indirection table. Level 0
// initializes dense (every page owned exclusively); later levels initialize
// COW from the previous level, sharing pages until written.
type PageArray[T comparable] struct {
	pm    *PageManager[T]
	prev  *PageArray[T]
	level int
	size  int64
	pages int

	indirection [][]T
	pageIDs     []PageID

	// tableShared marks that indirection/pageIDs still alias the previous
	// level's tables; the first cow write clones them under cowLock.
	tableShared   bool
	modifiedPages int
	cowLock       SpinLock
}

// newPageArray creates an uninitialized level. One of DenseInit or CowInit
// must follow before any access.
func newPageArray[T comparable](pm *PageManager[T], prev *PageArray[T], level int, size int64) *PageArray[T] {
	pa := &PageArray[T]{pm: pm, prev: prev, level: level, size: size}
	// One entry past the end is writable (the level sentinel), plus one
	// spare page so that the sentinel never straddles the last page.
	pa.pages = int((size + 4) / EntriesPerPage)
	if (size+4)%EntriesPerPage > 0 {
		pa.pages++
	}
	return pa
}

// Level returns the level number.
func (pa *PageArray[T]) Level() int { return pa.level }

// Size returns the number of entries.
func (pa *PageArray[T]) Size() int64 { return pa.size }

// Pages returns the number of data pages.
func (pa *PageArray[T]) Pages() int { return pa.pages }

// Page returns the contents of the given logical page.
func (pa *PageArray[T]) Page(index int) []T { return pa.indirection[index] }

// PageID returns the page ID behind the given logical page.
func (pa *PageArray[T]) PageID(index int) PageID { return pa.pageIDs[index] }

// ModifiedPages returns how many pages this level owns privately.
func (pa *PageArray[T]) ModifiedPages() int { return pa.modifiedPages }

// SharesTable reports whether the indirection table still aliases the
// previous level's (no write has happened at this level).
func (pa *PageArray[T]) SharesTable() bool { return pa.tableShared }

// Get returns the entry of the given node. One entry past the end is legal.
func (pa *PageArray[T]) Get(node NodeID) T {
	return pa.indirection[node>>EntriesPerPageBits][node&(EntriesPerPage-1)]
}

// DenseInit allocates every page exclusively. Writes may then proceed
// unsynchronized as long as callers partition the node range.
func (pa *PageArray[T]) DenseInit() {
	n := pa.pages + 1
	pa.indirection = make([][]T, n)
	pa.pageIDs = make([]PageID, n)
	pa.pm.AllocateRange(pa.pageIDs, pa.indirection)
	pa.modifiedPages = n
}

// DenseWrite writes directly into a dense-initialized table.
func (pa *PageArray[T]) DenseWrite(node NodeID, value T) {
	pa.indirection[node>>EntriesPerPageBits][node&(EntriesPerPage-1)] = value
}

// DenseFinish ends dense writing.
func (pa *PageArray[T]) DenseFinish() {}

// CowInit initializes the level as a copy of the previous one. If the level
// does not grow past the previous page count, the indirection table itself
// is shared and only cloned lazily on the first write; otherwise a fresh
// table is built with the tail filled by the zero page.
func (pa *PageArray[T]) CowInit() {
	prev := pa.prev
	if pa.pages <= prev.pages {
		pa.indirection = prev.indirection
		pa.pageIDs = prev.pageIDs
		pa.tableShared = true
		pa.pm.AcquirePages(pa.pageIDs[:pa.pages+1])
		return
	}

	pa.indirection = make([][]T, pa.pages+1)
	pa.pageIDs = make([]PageID, pa.pages+1)
	pa.copyIndirectionRange(0, pa.pages+1)
}

// copyIndirectionRange fills [start, end) of the indirection table from the
// previous level, extending past its end with the shared zero page.
func (pa *PageArray[T]) copyIndirectionRange(start, end int) {
	if start >= end {
		return
	}
	prev := pa.prev
	mp := prev.pages
	switch {
	case end <= mp:
		copy(pa.indirection[start:end], prev.indirection[start:end])
		copy(pa.pageIDs[start:end], prev.pageIDs[start:end])
		pa.pm.AcquirePages(pa.pageIDs[start:end])
	case start < mp:
		copy(pa.indirection[start:mp], prev.indirection[start:mp])
		copy(pa.pageIDs[start:mp], prev.pageIDs[start:mp])
		pa.pm.AcquirePages(pa.pageIDs[start:mp])
		zp, zpPage := pa.pm.ZeroPage(end - mp)
		for i := mp; i < end; i++ {
			pa.indirection[i] = zpPage
			pa.pageIDs[i] = zp
		}
	default:
		zp, zpPage := pa.pm.ZeroPage(end - start)
		for i := start; i < end; i++ {
			pa.indirection[i] = zpPage
			pa.pageIDs[i] = zp
		}
	}
}

// CowWrite writes through copy-on-write. The check is two-level: first the
// indirection table is privatized if it still aliases the previous level's,
// then the target page is privatized unless this level already owns it.
// Both checks re-validate under the lock; a thread that loaded the old
// table still lands on a correct page because the page-level refcount check
// catches it.
func (pa *PageArray[T]) CowWrite(node NodeID, value T) {
	if pa.tableShared {
		pa.cowLock.Lock()
		if pa.tableShared {
			n := pa.pages + 1
			ind := make([][]T, n)
			ids := make([]PageID, n)
			copy(ind, pa.indirection[:n])
			copy(ids, pa.pageIDs[:n])
			pa.indirection = ind
			pa.pageIDs = ids
			pa.tableShared = false
		}
		pa.cowLock.Unlock()
	}

	wp := node >> EntriesPerPageBits
	wi := node & (EntriesPerPage - 1)

	page := pa.indirection[wp]
	id := pa.pageIDs[wp]
	if pa.pm.Refcount(id) == 1 {
		page[wi] = value
		return
	}

	pa.cowLock.Lock()
	page = pa.indirection[wp]
	id = pa.pageIDs[wp]
	if pa.pm.Refcount(id) == 1 {
		page[wi] = value
		pa.cowLock.Unlock()
		return
	}

	newID, newPage := pa.pm.COW(id, page)
	pa.pageIDs[wp] = newID
	pa.indirection[wp] = newPage
	pa.modifiedPages++
	newPage[wi] = value
	pa.cowLock.Unlock()
}

// CowFinish ends COW writing for this level.
func (pa *PageArray[T]) CowFinish() {}

// Release drops this level's share of every page.
func (pa *PageArray[T]) Release() {
	pa.pm.ReleasePages(pa.pageIDs[:pa.pages+1])
}

// InMemorySize returns the bytes attributable to this level: the header,
// the indirection tables, and the privately owned pages.
func (pa *PageArray[T]) InMemorySize() int64 {
	const headerBytes = 128
	tables := int64(pa.pages+1) * (8 + 8) // page pointer + page ID words
	return headerBytes + tables + int64(pa.modifiedPages)*pa.pm.PageBytes()
}

// ============================================================================
// Modified-node iteration
// ============================================================================

// VertexIterator walks the nodes whose entry at this level differs from the
// previous level's, in ascending node order. It skips whole pages that are
// still shared with the previous level and diffs entry-by-entry inside
// privatized pages. This is the workhorse for snapshot-diff algorithms.
type VertexIterator[T comparable] struct {
	pa    *PageArray[T]
	next  NodeID
	end   NodeID
	value T
}

// ModifiedNodes returns an iterator over [start, end). Pass end = -1 for
// the whole table.
func (pa *PageArray[T]) ModifiedNodes(start, end NodeID) *VertexIterator[T] {
	if end < 0 || end > NodeID(pa.size) {
		end = NodeID(pa.size)
	}
	it := &VertexIterator[T]{pa: pa, next: start, end: end}
	it.skipUnmodified()
	return it
}

// Next returns the next modified node, or false when exhausted.
func (it *VertexIterator[T]) Next() (NodeID, bool) {
	if it.next >= it.end {
		return NilNode, false
	}
	r := it.next
	it.value = it.pa.Get(r)
	it.next++
	it.skipUnmodified()
	return r, true
}

// Value returns the entry of the node most recently returned by Next.
func (it *VertexIterator[T]) Value() T { return it.value }

// skipUnmodified advances next past entries equal to the previous level's.
// For a level-0 table every node counts as modified. Past the previous
// level's size, the baseline is the zero entry: a page still backed by the
// shared zero page is skipped wholesale, a privatized page diffs against
// the zero value.
func (it *VertexIterator[T]) skipUnmodified() {
	pa := it.pa
	prev := pa.prev
	if prev == nil {
		return
	}
	var zero T
	zp := pa.pm.ZeroPageID()

	for it.next < it.end {
		page := int(it.next >> EntriesPerPageBits)

		if page < prev.pages && pa.pageIDs[page] == prev.pageIDs[page] {
			// Identical shared page.
			it.next = (it.next + EntriesPerPage) &^ (EntriesPerPage - 1)
			continue
		}
		if page >= prev.pages && pa.pageIDs[page] == zp {
			// Tail page never written; every entry is the zero baseline.
			it.next = (it.next + EntriesPerPage) &^ (EntriesPerPage - 1)
			continue
		}

		d := pa.indirection[page]
		var p []T
		if page < prev.pages {
			p = prev.indirection[page]
		}
		i := int(it.next & (EntriesPerPage - 1))
		for i < EntriesPerPage && it.next < it.end {
			if p != nil {
				if d[i] != p[i] {
					return
				}
			} else if d[i] != zero {
				return
			}
			it.next++
			i++
		}
	}
}
