package mlcsr

import "fmt"

// ============================================================================
// Property store - per-snapshot node properties
// ============================================================================

// Value is the set of payload types a property array can carry. Reference
// payloads are stored as uint64 handles with a destructor.
type Value interface {
	~uint32 | ~uint64 | ~int32 | ~int64 | ~float32 | ~float64
}

// vertexArray is the common operation contract of the two vertex-table
// variants (SW-COW paged and flat). Callers that need polymorphism hold
// this; the CSR hot path stays monomorphized on PageArray.
type vertexArray[T comparable] interface {
	Level() int
	Size() int64
	Get(node NodeID) T
	DenseInit()
	DenseWrite(node NodeID, value T)
	DenseFinish()
	CowInit()
	CowWrite(node NodeID, value T)
	CowFinish()
	Release()
	InMemorySize() int64
}

// NodeProperty is a per-node property whose level lineage mirrors the
// MLCSR's: one vertex-table snapshot per level, sharing pages through the
// same SW-COW machinery. Reads take a node and a target level.
type NodeProperty[T Value] struct {
	id         int
	name       string
	typ        int
	destructor func(T)

	pm   *PageManager[T]
	flat bool

	levels   []vertexArray[T]
	minLevel int
	maxLevel int

	writable bool
	lock     SpinLock
}

// NewNodeProperty creates an uninitialized node property. If flat is set,
// levels use the flat single-buffer representation (minimum access
// overhead, no page sharing).
func NewNodeProperty[T Value](id int, name string, typ int, destructor func(T), flat bool, workers int) *NodeProperty[T] {
	p := &NodeProperty[T]{
		id:         id,
		name:       name,
		typ:        typ,
		destructor: destructor,
		flat:       flat,
		maxLevel:   -1,
	}
	if !flat {
		p.pm = NewPageManager[T](EntriesPerPage, true, workers)
	}
	return p
}

// ID returns the dense property ID.
func (p *NodeProperty[T]) ID() int { return p.id }

// Name returns the property name.
func (p *NodeProperty[T]) Name() string { return p.name }

// Type returns the property's type tag.
func (p *NodeProperty[T]) Type() int { return p.typ }

// MaxLevel returns the most recent level, or -1.
func (p *NodeProperty[T]) MaxLevel() int { return p.maxLevel }

// MinLevel returns the minimum visible level.
func (p *NodeProperty[T]) MinLevel() int { return p.minLevel }

// NumLevels returns the number of level slots.
func (p *NodeProperty[T]) NumLevels() int { return len(p.levels) }

// Writable reports whether a writable level is open.
func (p *NodeProperty[T]) Writable() bool { return p.writable }

// LevelExists reports whether the level is present.
func (p *NodeProperty[T]) LevelExists(level int) bool {
	return level >= 0 && level < len(p.levels) && p.levels[level] != nil
}

// Get returns the node's value at the given level; zero when out of range.
func (p *NodeProperty[T]) Get(node NodeID, level int) T {
	var zero T
	if level < p.minLevel || !p.LevelExists(level) {
		return zero
	}
	a := p.levels[level]
	if node < 0 || node >= NodeID(a.Size()) {
		return zero
	}
	return a.Get(node)
}

// GetLatest returns the node's value at the most recent level.
func (p *NodeProperty[T]) GetLatest(node NodeID) T {
	return p.Get(node, p.maxLevel)
}

// newLevelArray appends an uninitialized level of the configured variant.
func (p *NodeProperty[T]) newLevelArray(size int64) vertexArray[T] {
	level := len(p.levels)
	if level > MaxLevel {
		panic(fmt.Sprintf("mlcsr: property %s: level overflow", p.name))
	}
	var a vertexArray[T]
	if p.flat {
		var prev *FlatArray[T]
		if level > 0 && p.levels[level-1] != nil {
			prev = p.levels[level-1].(*FlatArray[T])
		}
		a = newFlatArray(prev, level, size)
	} else {
		var prev *PageArray[T]
		if level > 0 && p.levels[level-1] != nil {
			prev = p.levels[level-1].(*PageArray[T])
		}
		a = newPageArray(p.pm, prev, level, size)
	}
	p.levels = append(p.levels, a)
	p.maxLevel = level
	return a
}

// DenseInitLevel opens a new level for direct writes.
func (p *NodeProperty[T]) DenseInitLevel(maxNodes int64) {
	p.newLevelArray(maxNodes).DenseInit()
}

// DenseWrite writes directly into a dense-initialized level.
func (p *NodeProperty[T]) DenseWrite(node NodeID, value T) {
	p.levels[p.maxLevel].DenseWrite(node, value)
}

// CowInitLevel opens a new level as a copy-on-write extension of the
// previous one.
func (p *NodeProperty[T]) CowInitLevel(maxNodes int64) {
	p.newLevelArray(maxNodes).CowInit()
}

// CowWrite writes the node's value in the latest level through COW.
func (p *NodeProperty[T]) CowWrite(node NodeID, value T) {
	p.levels[p.maxLevel].CowWrite(node, value)
}

// FinishLevel ends writing for the latest level.
func (p *NodeProperty[T]) FinishLevel() {
	a := p.levels[p.maxLevel]
	if a.Level() == 0 {
		a.DenseFinish()
	} else {
		a.CowFinish()
	}
}

// InitLevel opens a new level: dense for the first, COW afterwards.
func (p *NodeProperty[T]) InitLevel(maxNodes int64) {
	if len(p.levels) == 0 {
		p.DenseInitLevel(maxNodes)
	} else {
		p.CowInitLevel(maxNodes)
	}
}

// WritableInit opens the writable level mirroring the MLCSR writable stage.
func (p *NodeProperty[T]) WritableInit(maxNodes int64) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.writable {
		return
	}
	p.InitLevel(maxNodes)
	p.writable = true
}

// Set writes the node's value into the writable level.
func (p *NodeProperty[T]) Set(node NodeID, value T) {
	if !p.writable {
		panic(fmt.Sprintf("mlcsr: property %s: set without a writable level", p.name))
	}
	a := p.levels[p.maxLevel]
	if a.Level() == 0 {
		a.DenseWrite(node, value)
	} else {
		a.CowWrite(node, value)
	}
}

// Freeze closes the writable level at the given node count, making it the
// property's snapshot for the level being checkpointed. A writable level
// opened before new nodes arrived is regrown first.
func (p *NodeProperty[T]) Freeze(maxNodes int64) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.writable {
		panic(fmt.Sprintf("mlcsr: property %s: freeze without a writable level", p.name))
	}
	a := p.levels[p.maxLevel]
	if a.Size() < maxNodes {
		p.growLatest(maxNodes)
	}
	p.FinishLevel()
	p.writable = false
}

// growLatest replaces the latest level with a larger copy of itself.
func (p *NodeProperty[T]) growLatest(maxNodes int64) {
	level := p.maxLevel
	old := p.levels[level]
	if p.flat {
		grown := newFlatArray(old.(*FlatArray[T]), level, maxNodes)
		grown.CowInit()
		grown.prev = old.(*FlatArray[T]).prev
		p.levels[level] = grown
	} else {
		oldPA := old.(*PageArray[T])
		grown := newPageArray(p.pm, oldPA, level, maxNodes)
		grown.CowInit()
		grown.prev = oldPA.prev
		p.levels[level] = grown
	}
	old.Release()
}

// EnsureMinLevels fills in empty levels so a property created after the
// MLCSR already has levels follows the same lineage.
func (p *NodeProperty[T]) EnsureMinLevels(minLevels int, maxNodes int64) {
	for len(p.levels) < minLevels {
		p.InitLevel(maxNodes)
		p.FinishLevel()
	}
}

// SetMinLevel raises the minimum visible level.
func (p *NodeProperty[T]) SetMinLevel(m int) {
	if m > p.minLevel {
		p.minLevel = m
	}
}

// DeleteLevel tears down a level, running the destructor over the values
// going out of existence. For the paged variant that is the contents of the
// pages this level owns exclusively; values on shared pages are still
// reachable through other levels.
func (p *NodeProperty[T]) DeleteLevel(level int) {
	if !p.LevelExists(level) {
		return
	}
	a := p.levels[level]
	if p.destructor != nil {
		var zero T
		if pa, ok := a.(*PageArray[T]); ok {
			for i := 0; i < pa.Pages(); i++ {
				if p.pm.Refcount(pa.PageID(i)) != 1 {
					continue
				}
				for _, v := range pa.Page(i) {
					if v != zero {
						p.destructor(v)
					}
				}
			}
		} else {
			for n := NodeID(0); n < NodeID(a.Size()); n++ {
				if v := a.Get(n); v != zero {
					p.destructor(v)
				}
			}
		}
	}
	a.Release()
	p.levels[level] = nil
}

// KeepOnlyRecentLevels deletes all but the keep most recent levels.
func (p *NodeProperty[T]) KeepOnlyRecentLevels(keep int) {
	for l := 0; l <= p.maxLevel-keep; l++ {
		p.DeleteLevel(l)
	}
}

// InMemorySize returns the bytes attributable to this property.
func (p *NodeProperty[T]) InMemorySize() int64 {
	var total int64
	for _, a := range p.levels {
		if a != nil {
			total += a.InMemorySize()
		}
	}
	return total
}
