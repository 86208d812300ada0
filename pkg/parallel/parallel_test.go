package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForRange_CoversEverythingOnce(t *testing.T) {
	for _, workers := range []int{1, 2, 7, 100} {
		seen := make([]int32, 1000)
		ForRange(workers, len(seen), func(worker, start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&seen[i], 1)
			}
		})
		for i, v := range seen {
			require.Equal(t, int32(1), v, "workers=%d index=%d", workers, i)
		}
	}
}

func TestForRange_Empty(t *testing.T) {
	called := false
	ForRange(4, 0, func(worker, start, end int) { called = true })
	assert.False(t, called)
}

func TestForRangeDynamic_CoversEverythingOnce(t *testing.T) {
	seen := make([]int32, 1003)
	ForRangeDynamic(5, len(seen), 16, func(worker, start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
	})
	for i, v := range seen {
		require.Equal(t, int32(1), v, "index=%d", i)
	}
}

func TestChunkProcessor_SumReduce(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i + 1
	}

	p := NewChunkProcessor[int, int](PoolConfig{MaxWorkers: 4})
	total := p.ProcessChunks(context.Background(), items,
		func(ctx context.Context, chunk []int, workerID int) int {
			s := 0
			for _, v := range chunk {
				s += v
			}
			return s
		},
		func(results []int) int {
			s := 0
			for _, v := range results {
				s += v
			}
			return s
		})
	assert.Equal(t, 5050, total)
}

func TestMapReduce(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	sum := MapReduce(context.Background(), items, PoolConfig{MaxWorkers: 3},
		func(ctx context.Context, v int) int { return v * v },
		func(mapped []int) int {
			s := 0
			for _, v := range mapped {
				s += v
			}
			return s
		})
	assert.Equal(t, 55, sum)
}

func TestForEach_FirstError(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	boom := errors.New("boom")
	processed, err := ForEach(context.Background(), items, PoolConfig{MaxWorkers: 2},
		func(ctx context.Context, v int) error {
			if v == 4 {
				return boom
			}
			return nil
		})
	assert.Equal(t, int64(7), processed)
	assert.Equal(t, boom, err)
}

func TestProgressTracker(t *testing.T) {
	var last atomic.Int64
	pt := NewProgressTracker(10, func(done, total int64) {
		last.Store(done)
	}, 10*time.Millisecond)
	pt.Start(context.Background())

	pt.Add(3)
	pt.Increment()
	assert.Eventually(t, func() bool { return last.Load() == 4 },
		time.Second, 5*time.Millisecond)
	pt.Stop()
	assert.Equal(t, int64(4), pt.Completed())
}

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig()
	assert.GreaterOrEqual(t, cfg.MaxWorkers, 2)
	assert.LessOrEqual(t, cfg.MaxWorkers, 8)
	assert.Equal(t, 3, cfg.WithWorkers(3).MaxWorkers)
}
