package mlcsr

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Precomputed degrees always match enumeration, across random batches of
// additions, deletions and checkpoints.
func TestCheckpoint_DegreeMatchesEnumeration(t *testing.T) {
	g := newTestGraph(t, GraphOptions{ReverseEdges: true, ReverseMaps: true})
	rng := rand.New(rand.NewSource(7))

	const nodes = 200
	reference := make(map[NodeID][]NodeID)

	for round := 0; round < 4; round++ {
		// Random additions.
		for i := 0; i < 500; i++ {
			s := NodeID(rng.Intn(nodes))
			d := NodeID(rng.Intn(nodes))
			g.AddEdge(s, d)
			reference[s] = append(reference[s], d)
		}

		// Random deletions of frozen edges.
		if round > 0 {
			for i := 0; i < 100; i++ {
				s := NodeID(rng.Intn(nodes))
				targets := reference[s]
				if len(targets) == 0 {
					continue
				}
				d := targets[rng.Intn(len(targets))]
				e := g.FindEdge(s, d)
				if e == NilEdge {
					continue // staged this round, not frozen yet
				}
				if g.DeleteEdge(s, e) {
					for j, x := range targets {
						if x == d {
							reference[s] = append(targets[:j], targets[j+1:]...)
							break
						}
					}
				}
			}
		}

		checkpointAll(t, g)

		for n := NodeID(0); n < nodes; n++ {
			got := outTargets(t, g, n, -1)
			want := make([]int64, 0, len(reference[n]))
			for _, d := range reference[n] {
				want = append(want, int64(d))
			}
			sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
			if len(want) == 0 {
				assert.Empty(t, got, "node %d", n)
			} else {
				assert.Equal(t, want, got, "node %d", n)
			}
			assert.Equal(t, int64(len(want)), g.OutDegree(n), "degree of node %d", n)
		}
	}
}

// A checkpoint with zero writable mutations shares the whole vertex table
// with the previous level and contributes no edges.
func TestCheckpoint_NoMutationsSharesEverything(t *testing.T) {
	g := newTestGraph(t, GraphOptions{ReverseEdges: true, ReverseMaps: true})

	g.AddEdge(1, 2)
	g.AddEdge(2, 3)
	checkpointAll(t, g)
	checkpointAll(t, g)

	level := g.MaxLevel()
	require.Equal(t, 1, level)

	vt := g.Out().VertexTable(level)
	assert.True(t, vt.SharesTable(), "vertex table pointer-equal to the previous level's")
	assert.Equal(t, 0, vt.ModifiedPages())
	assert.Equal(t, int64(0), g.Out().MaxEdgesAt(level), "empty edge table")

	assert.Equal(t, []int64{2}, outTargets(t, g, 1, -1))
	assert.Equal(t, int64(1), g.OutDegree(1))
}

// The modified-node iterator over a fresh level enumerates exactly the
// nodes whose entry changed: new out-edges, frozen-edge deletions, and
// node slots that came into range with this level.
func TestCheckpoint_ModifiedNodeIterator(t *testing.T) {
	g := newTestGraph(t, GraphOptions{})
	rng := rand.New(rand.NewSource(11))

	// Level 0: a base population.
	const baseNodes = 600
	for i := 0; i < 2000; i++ {
		g.AddEdge(NodeID(rng.Intn(baseNodes)), NodeID(rng.Intn(baseNodes)))
	}
	checkpointAll(t, g)
	prevSize := g.Out().LatestVertexTable().Size()

	// Level 1: touch a scattered set of nodes, some beyond the old range.
	expect := make(map[NodeID]bool)
	for i := 0; i < 300; i++ {
		s := NodeID(rng.Intn(1000))
		d := NodeID(rng.Intn(1000))
		g.AddEdge(s, d)
		expect[s] = true
	}
	for i := 0; i < 50; i++ {
		s := NodeID(rng.Intn(baseNodes))
		got := outTargets(t, g, s, -1)
		if len(got) == 0 {
			continue
		}
		e := g.FindEdge(s, NodeID(got[0]))
		if e != NilEdge && g.DeleteEdge(s, e) {
			expect[s] = true
		}
	}
	checkpointAll(t, g)

	// Any node slot at or past the previous size is written this level
	// (NIL or not), so it counts as modified.
	newSize := g.Out().LatestVertexTable().Size()
	for n := prevSize; n < newSize; n++ {
		expect[NodeID(n)] = true
	}

	var got []NodeID
	it := g.Out().LatestVertexTable().ModifiedNodes(0, -1)
	for {
		n, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, n)
	}

	want := make([]NodeID, 0, len(expect))
	for n := range expect {
		want = append(want, n)
	}
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	assert.Equal(t, want, got)
}

func TestCheckpoint_SortEdges(t *testing.T) {
	g := newTestGraph(t, GraphOptions{})

	g.AddEdge(1, 9)
	g.AddEdge(1, 2)
	g.AddEdge(1, 5)
	cc := DefaultCheckpointConfig()
	cc.SortEdges = true
	require.NoError(t, g.Checkpoint(cc))

	var it EdgeIterator
	g.OutIterBegin(&it, 1, -1, -1)
	var got []int64
	for {
		if _, ok := it.Next(); !ok {
			break
		}
		got = append(got, int64(it.Target()))
	}
	assert.Equal(t, []int64{2, 5, 9}, got, "adjacency emitted in sorted order")
}

func TestCheckpointConfig_Validate(t *testing.T) {
	g := newTestGraph(t, GraphOptions{})

	cc := DefaultCheckpointConfig()
	cc.ReverseMaps = true
	err := cc.Validate(g)
	require.Error(t, err, "reverse maps without reverse edges")

	cc = DefaultCheckpointConfig()
	cc.ReverseEdges = true
	cc.ReverseMaps = true
	err = cc.Validate(g)
	require.Error(t, err, "reverse maps on a graph without translation")

	gs := newTestGraph(t, GraphOptions{Streaming: true})
	cc = DefaultCheckpointConfig()
	cc.SortEdges = true
	require.Error(t, cc.Validate(gs), "sorted edges in streaming mode")

	cc = DefaultCheckpointConfig()
	cc.Direction = Direction(42)
	require.Error(t, cc.Validate(g))

	cc = DefaultCheckpointConfig()
	require.NoError(t, cc.Validate(g))
}

// Writers hitting disjoint nodes concurrently, then one checkpoint.
func TestCheckpoint_ConcurrentStaging(t *testing.T) {
	g := newTestGraph(t, GraphOptions{Workers: 4})

	done := make(chan struct{})
	for w := 0; w < 4; w++ {
		go func(w int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 250; i++ {
				n := NodeID(w*1000 + i)
				g.AddEdge(n, n+1)
			}
		}(w)
	}
	for w := 0; w < 4; w++ {
		<-done
	}
	checkpointAll(t, g)

	total := int64(0)
	for n := NodeID(0); n < NodeID(g.MaxNodes()); n++ {
		total += g.OutDegree(n)
	}
	assert.Equal(t, int64(1000), total)
	assert.Equal(t, []int64{5}, outTargets(t, g, 4, -1))
}
