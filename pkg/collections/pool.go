package collections

import (
	"sync"
)

// ============================================================================
// Generic slice pools - reduce allocation overhead of scratch buffers
// ============================================================================

// SlicePool is a generic pool for slices of any type.
type SlicePool[T any] struct {
	pool       sync.Pool
	initialCap int
}

// NewSlicePool creates a new slice pool with the given initial capacity.
func NewSlicePool[T any](initialCap int) *SlicePool[T] {
	if initialCap <= 0 {
		initialCap = 256
	}
	return &SlicePool[T]{
		initialCap: initialCap,
		pool: sync.Pool{
			New: func() interface{} {
				s := make([]T, 0, initialCap)
				return &s
			},
		},
	}
}

// Get gets a slice from the pool.
func (p *SlicePool[T]) Get() *[]T {
	return p.pool.Get().(*[]T)
}

// Put returns a slice to the pool after clearing it.
func (p *SlicePool[T]) Put(s *[]T) {
	*s = (*s)[:0]
	p.pool.Put(s)
}

// NodeSlicePool is a pool for node-ID scratch slices.
var NodeSlicePool = NewSlicePool[int64](256)

// GetNodeSlice gets a slice from the pool.
func GetNodeSlice() *[]int64 {
	return NodeSlicePool.Get()
}

// PutNodeSlice returns a slice to the pool after clearing it.
func PutNodeSlice(s *[]int64) {
	NodeSlicePool.Put(s)
}
