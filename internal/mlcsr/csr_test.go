package mlcsr

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGraph(t *testing.T, opts GraphOptions) *Graph {
	t.Helper()
	if opts.Workers == 0 {
		opts.Workers = 2
	}
	return NewGraph("test", opts, nil)
}

func outTargets(t *testing.T, g *Graph, n NodeID, level int) []int64 {
	t.Helper()
	var it EdgeIterator
	g.OutIterBegin(&it, n, level, -1)
	var got []int64
	for {
		if _, ok := it.Next(); !ok {
			break
		}
		got = append(got, int64(it.Target()))
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	return got
}

func inSources(t *testing.T, g *Graph, n NodeID, level int) []int64 {
	t.Helper()
	var it EdgeIterator
	g.InIterBegin(&it, n, level, -1)
	var got []int64
	for {
		if _, ok := it.Next(); !ok {
			break
		}
		got = append(got, int64(it.Target()))
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	return got
}

func checkpointAll(t *testing.T, g *Graph) {
	t.Helper()
	cc := DefaultCheckpointConfig()
	cc.ReverseEdges = g.Options().ReverseEdges
	cc.ReverseMaps = g.Options().ReverseMaps
	require.NoError(t, g.Checkpoint(cc))
}

// Start empty, add (1->2), (1->3), (2->3), checkpoint: degrees and
// iteration over the first snapshot.
func TestGraph_FirstCheckpoint(t *testing.T) {
	g := newTestGraph(t, GraphOptions{ReverseEdges: true, ReverseMaps: true})

	g.AddEdge(1, 2)
	g.AddEdge(1, 3)
	g.AddEdge(2, 3)
	checkpointAll(t, g)

	assert.Equal(t, int64(2), g.OutDegree(1))
	assert.Equal(t, int64(1), g.OutDegree(2))
	assert.Equal(t, int64(0), g.OutDegree(3))
	assert.Equal(t, int64(2), g.InDegree(3))

	assert.Equal(t, []int64{2, 3}, outTargets(t, g, 1, -1))
	assert.Equal(t, []int64{3}, outTargets(t, g, 2, -1))
	assert.Empty(t, outTargets(t, g, 3, -1))

	assert.True(t, g.NodeExists(1))
	assert.True(t, g.NodeExists(3), "in-degree keeps the node alive")
	assert.False(t, g.NodeExists(99))
}

// Delete (1->2), checkpoint: the new snapshot hides the edge, the
// previous snapshot still shows it.
func TestGraph_DeleteAcrossSnapshots(t *testing.T) {
	g := newTestGraph(t, GraphOptions{ReverseEdges: true, ReverseMaps: true})

	g.AddEdge(1, 2)
	g.AddEdge(1, 3)
	g.AddEdge(2, 3)
	checkpointAll(t, g)

	e := g.FindEdge(1, 2)
	require.NotEqual(t, NilEdge, e)
	require.True(t, g.DeleteEdge(1, e))
	checkpointAll(t, g)

	assert.Equal(t, int64(1), g.OutDegree(1))
	assert.Equal(t, []int64{3}, outTargets(t, g, 1, -1))
	assert.Equal(t, []int64{2, 3}, outTargets(t, g, 1, 0), "previous snapshot unchanged")
	assert.Equal(t, int64(2), g.OutDegreeAt(1, 0))

	assert.Equal(t, int64(0), g.InDegree(2))
	assert.Empty(t, inSources(t, g, 2, -1))
	assert.Equal(t, []int64{1}, inSources(t, g, 2, 0))
}

// Reverse edges with translation: the out<->in bijection round-trips and
// endpoints match.
func TestGraph_EdgeTranslationRoundTrip(t *testing.T) {
	g := newTestGraph(t, GraphOptions{ReverseEdges: true, ReverseMaps: true})

	g.AddEdge(1, 2)
	g.AddEdge(1, 3)
	g.AddEdge(2, 3)
	checkpointAll(t, g)

	for _, src := range []NodeID{1, 2} {
		var it EdgeIterator
		g.OutIterBegin(&it, src, -1, -1)
		for {
			e, ok := it.Next()
			if !ok {
				break
			}
			in := g.OutToIn(e)
			require.NotEqual(t, NilEdge, in)
			assert.Equal(t, e, g.InToOut(in), "round trip")
			assert.Equal(t, src, g.In().Value(in), "in-edge payload is the source")
		}
	}

	assert.Equal(t, []int64{1, 2}, inSources(t, g, 3, -1))
}

// MakeReverseEdges catches up levels built without reverse edges.
func TestGraph_MakeReverseEdgesCatchUp(t *testing.T) {
	g := newTestGraph(t, GraphOptions{ReverseEdges: false, ReverseMaps: true})

	g.AddEdge(1, 2)
	g.AddEdge(2, 3)
	cc := DefaultCheckpointConfig()
	require.NoError(t, g.Checkpoint(cc))
	assert.False(t, g.HasReverseEdges())

	g.MakeReverseEdges(nil)
	assert.True(t, g.HasReverseEdges())
	assert.Equal(t, []int64{1}, inSources(t, g, 2, -1))
	assert.Equal(t, []int64{2}, inSources(t, g, 3, -1))

	e := g.FindEdge(1, 2)
	require.NotEqual(t, NilEdge, e)
	assert.Equal(t, e, g.InToOut(g.OutToIn(e)))
}

// Lowering the max visible level: iteration at or above the new bound
// never yields the edge, below it is unchanged; raising is a no-op.
func TestCSR_UpdateMaxVisibleLevelLowerOnly(t *testing.T) {
	g := newTestGraph(t, GraphOptions{})

	g.AddEdge(1, 2)
	checkpointAll(t, g)
	g.AddEdge(1, 3)
	checkpointAll(t, g)
	g.AddEdge(1, 4)
	checkpointAll(t, g)

	e := g.FindEdge(1, 2)
	require.NotEqual(t, NilEdge, e)

	assert.True(t, g.UpdateMaxVisibleLevelLowerOnly(e, 1))
	assert.Equal(t, []int64{3, 4}, outTargets(t, g, 1, -1))
	assert.Equal(t, []int64{3}, outTargets(t, g, 1, 1), "hidden at and above the bound")
	assert.Equal(t, []int64{2}, outTargets(t, g, 1, 0), "visible below the bound")

	// Idempotent and monotone: not-lower values are no-ops.
	assert.False(t, g.UpdateMaxVisibleLevelLowerOnly(e, 1))
	assert.False(t, g.UpdateMaxVisibleLevelLowerOnly(e, 5))
	assert.Equal(t, []int64{2}, outTargets(t, g, 1, 0))

	assert.True(t, g.UpdateMaxVisibleLevelLowerOnly(e, 0))
	assert.Equal(t, []int64{3}, outTargets(t, g, 1, 1))
	assert.Empty(t, outTargets(t, g, 1, 0))
}

func TestCSR_Boundaries(t *testing.T) {
	g := newTestGraph(t, GraphOptions{})

	// A node never inserted exists in no level.
	assert.Equal(t, int64(0), g.OutDegree(12345))
	assert.Empty(t, outTargets(t, g, 12345, -1))

	g.AddEdge(1, 2)
	checkpointAll(t, g)

	assert.Empty(t, outTargets(t, g, 1, -2), "below the window is empty")
	assert.Equal(t, int64(0), g.OutDegreeAt(1, 5))
	assert.Empty(t, outTargets(t, g, -1, -1))
	assert.False(t, g.Out().EdgeExists(NilEdge, 0))
	assert.False(t, g.Out().EdgeExists(EdgeCreate(0, 999), 0))
}

func TestCSR_FindWithinLevels(t *testing.T) {
	g := newTestGraph(t, GraphOptions{})

	g.AddEdge(1, 2)
	checkpointAll(t, g)
	g.AddEdge(1, 3)
	checkpointAll(t, g)

	e2 := g.FindEdge(1, 2)
	e3 := g.FindEdge(1, 3)
	require.NotEqual(t, NilEdge, e2)
	require.NotEqual(t, NilEdge, e3)
	assert.Equal(t, 0, EdgeLevel(e2))
	assert.Equal(t, 1, EdgeLevel(e3))
	assert.Equal(t, NilEdge, g.FindEdge(1, 9))

	// Newest level first.
	var it EdgeIterator
	g.OutIterBegin(&it, 1, -1, -1)
	first, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, e3, first)
	second, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, e2, second)
	_, ok = it.Next()
	assert.False(t, ok)
}

func TestEdgeIDPacking(t *testing.T) {
	e := EdgeCreate(7, 123456)
	assert.Equal(t, 7, EdgeLevel(e))
	assert.Equal(t, int64(123456), EdgeIndex(e))
	assert.False(t, EdgeIsWritable(e))
	assert.True(t, EdgeIsWritable(EdgeCreate(WritableLevel, 3)))

	w := NewValue(42)
	assert.Equal(t, NodeID(42), ValuePayload(w))
	assert.False(t, ValueIsDeleted(w, MaxLevel))

	d := NewValueExt(42, 3)
	assert.True(t, ValueIsDeleted(d, 3))
	assert.True(t, ValueIsDeleted(d, 10))
	assert.False(t, ValueIsDeleted(d, 2))
}
