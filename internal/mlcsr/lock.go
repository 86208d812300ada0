package mlcsr

import (
	"runtime"
	"sync/atomic"
)

// SpinLock is a minimal test-and-set lock for the very short critical
// sections of the hot paths (per-node edge buffers, indirection tables).
// The zero value is an unlocked lock.
type SpinLock struct {
	state atomic.Int32
}

// Lock acquires the lock, spinning until it is free.
func (l *SpinLock) Lock() {
	for !l.state.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

// TryLock acquires the lock if it is free.
func (l *SpinLock) TryLock() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Unlock releases the lock.
func (l *SpinLock) Unlock() {
	l.state.Store(0)
}
