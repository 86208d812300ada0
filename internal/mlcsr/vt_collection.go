package mlcsr

import (
	"fmt"

	llerrors "github.com/goatdb/llama/pkg/errors"
)

// ============================================================================
// Level collection - the ordered sequence of vertex-table snapshots
// ============================================================================

// PageArrayCollection owns the vertex tables of all levels of one CSR and
// the page manager they share. Appends happen under a lock during level
// construction; reads are lock-free.
type PageArrayCollection[T comparable] struct {
	pm     *PageManager[T]
	levels []*PageArray[T]

	minLevel int
	maxLevel int
	lock     SpinLock
}

// NewPageArrayCollection creates a collection backed by the given page
// manager.
func NewPageArrayCollection[T comparable](pm *PageManager[T]) *PageArrayCollection[T] {
	return &PageArrayCollection[T]{pm: pm, maxLevel: -1}
}

// PageManager returns the backing page manager.
func (c *PageArrayCollection[T]) PageManager() *PageManager[T] { return c.pm }

// Level returns the vertex table of the given level, or nil if deleted.
func (c *PageArrayCollection[T]) Level(index int) *PageArray[T] {
	return c.levels[index]
}

// NumLevels returns the number of level slots, deleted levels included.
func (c *PageArrayCollection[T]) NumLevels() int { return len(c.levels) }

// Empty reports whether no level was ever created.
func (c *PageArrayCollection[T]) Empty() bool { return len(c.levels) == 0 }

// MinLevel returns the minimum level to consider.
func (c *PageArrayCollection[T]) MinLevel() int { return c.minLevel }

// MaxLevel returns the most recent committed level, or -1.
func (c *PageArrayCollection[T]) MaxLevel() int { return c.maxLevel }

// SetMinLevel raises the minimum level to consider. Lowering it back is a
// programming error.
func (c *PageArrayCollection[T]) SetMinLevel(m int) {
	if m < c.minLevel {
		panic(fmt.Sprintf("mlcsr: min level moving backwards (%d -> %d)", c.minLevel, m))
	}
	c.minLevel = m
}

// HasPrevLevel reports whether the level below exists.
func (c *PageArrayCollection[T]) HasPrevLevel(level int) bool {
	return level > 0 && c.levels[level-1] != nil
}

// PrevLevel returns the vertex table of the level below.
func (c *PageArrayCollection[T]) PrevLevel(level int) *PageArray[T] {
	return c.levels[level-1]
}

// LatestLevel returns the most recent vertex table, or nil.
func (c *PageArrayCollection[T]) LatestLevel() *PageArray[T] {
	if c.maxLevel < 0 {
		return nil
	}
	return c.levels[c.maxLevel]
}

// NextLevelID returns the ID the next level will get. Exhausting the level
// space is fatal: level IDs are never recycled.
func (c *PageArrayCollection[T]) NextLevelID() int {
	id := len(c.levels)
	if id > MaxLevel {
		panic(llerrors.New(llerrors.CodeLevelOverflow,
			fmt.Sprintf("maximum number of levels reached (%d)", MaxLevel+1)))
	}
	return id
}

// NewLevel appends a new, uninitialized vertex table of the given size and
// returns it. The caller follows up with DenseInit or CowInit.
func (c *PageArrayCollection[T]) NewLevel(size int64) *PageArray[T] {
	c.lock.Lock()
	defer c.lock.Unlock()

	id := c.NextLevelID()
	var prev *PageArray[T]
	if id > 0 {
		prev = c.levels[id-1]
	}
	pa := newPageArray(c.pm, prev, id, size)
	c.levels = append(c.levels, pa)
	c.maxLevel = id
	return pa
}

// LevelExists reports whether the level is present (created, not deleted).
func (c *PageArrayCollection[T]) LevelExists(level int) bool {
	return level >= 0 && level < len(c.levels) && c.levels[level] != nil
}

// CountExistingLevels returns the number of non-deleted levels.
func (c *PageArrayCollection[T]) CountExistingLevels() int {
	n := 0
	for _, l := range c.levels {
		if l != nil {
			n++
		}
	}
	return n
}

// DeleteLevel releases the level's pages and removes it. The level above,
// if present, loses its back-reference; its modified-node iteration is no
// longer meaningful afterwards (eviction captures a sparse view first).
func (c *PageArrayCollection[T]) DeleteLevel(level int) {
	pa := c.levels[level]
	if pa == nil {
		panic(fmt.Sprintf("mlcsr: level %d already deleted", level))
	}
	pa.Release()
	c.levels[level] = nil
	if level+1 < len(c.levels) && c.levels[level+1] != nil {
		c.levels[level+1].prev = nil
	}
}

// KeepOnlyRecentLevels deletes every level except the most recent keep.
func (c *PageArrayCollection[T]) KeepOnlyRecentLevels(keep int) {
	for l := 0; l <= c.maxLevel-keep; l++ {
		if c.LevelExists(l) {
			c.DeleteLevel(l)
		}
	}
}
