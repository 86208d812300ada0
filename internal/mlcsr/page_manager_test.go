package mlcsr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageManager_AllocateRelease(t *testing.T) {
	pm := NewPageManager[uint64](16, true, 2)

	id, page := pm.Allocate()
	require.Len(t, page, 16)
	assert.Equal(t, 1, pm.Refcount(id))

	page[3] = 42
	assert.Equal(t, uint64(42), pm.Page(id)[3])

	pm.Acquire(id, 2)
	assert.Equal(t, 3, pm.Refcount(id))

	assert.Equal(t, 2, pm.Release(id))
	assert.Equal(t, 1, pm.Release(id))
	assert.Equal(t, 0, pm.Release(id))

	st := pm.Stats()
	assert.Equal(t, int64(1), st.TotalPages)
	assert.Equal(t, int64(1), st.FreePages)
	assert.Equal(t, int64(0), st.LiveRefcounts)
}

func TestPageManager_FreeListReuse(t *testing.T) {
	pm := NewPageManager[uint64](8, true, 1)

	id, page := pm.Allocate()
	page[0] = 7
	pm.Release(id)

	id2, page2 := pm.Allocate()
	assert.Equal(t, id, id2)
	assert.Equal(t, uint64(0), page2[0], "reused page must be zeroed")

	st := pm.Stats()
	assert.Equal(t, int64(1), st.TotalPages)
	assert.Equal(t, int64(1), st.Reused)
}

func TestPageManager_COW(t *testing.T) {
	pm := NewPageManager[uint64](8, true, 1)

	id, page := pm.Allocate()
	page[1] = 11
	pm.Acquire(id, 1) // a second owner

	newID, newPage := pm.COW(id, page)
	assert.NotEqual(t, id, newID)
	assert.Equal(t, uint64(11), newPage[1])
	assert.Equal(t, 1, pm.Refcount(id), "source lost one share")
	assert.Equal(t, 1, pm.Refcount(newID))

	newPage[1] = 22
	assert.Equal(t, uint64(11), pm.Page(id)[1], "source page unchanged")
}

func TestPageManager_ZeroPage(t *testing.T) {
	pm := NewPageManager[uint64](8, false, 1)
	assert.Equal(t, NilPage, pm.ZeroPageID())

	id, page := pm.ZeroPage(3)
	require.NotEqual(t, NilPage, id)
	for _, v := range page {
		assert.Equal(t, uint64(0), v)
	}
	assert.Equal(t, 3, pm.Refcount(id))

	id2, _ := pm.ZeroPage(1)
	assert.Equal(t, id, id2, "zero page is a singleton")
	assert.Equal(t, 4, pm.Refcount(id))
}

// Conservation: live refcounts plus free-list length always account for
// every page ever allocated.
func TestPageManager_Conservation(t *testing.T) {
	pm := NewPageManager[uint64](8, true, 4)

	var held []PageID
	for i := 0; i < 600; i++ {
		id, _ := pm.Allocate()
		if i%3 == 0 {
			pm.Acquire(id, 1)
		}
		held = append(held, id)
	}
	for i, id := range held {
		if i%2 == 0 {
			pm.Release(id)
			if i%3 == 0 {
				pm.Release(id)
			}
		}
	}

	st := pm.Stats()
	assert.Equal(t, st.TotalPages, st.LiveRefcounts+st.FreePages)
}
