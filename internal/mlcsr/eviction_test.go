package mlcsr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Advancing the minimum level: snapshots below the window read empty,
// edges contributed at evicted levels disappear from every view, degrees
// follow, and the evicted levels' pages are reclaimed.
func TestEviction_SetMinLevel(t *testing.T) {
	g := newTestGraph(t, GraphOptions{ReverseEdges: true, ReverseMaps: true})

	g.AddEdge(1, 2)
	g.AddEdge(1, 3)
	g.AddEdge(2, 3)
	checkpointAll(t, g) // level 0

	g.AddEdge(1, 4)
	checkpointAll(t, g) // level 1

	require.Equal(t, int64(3), g.OutDegree(1))

	require.NoError(t, g.SetMinLevel(1))
	assert.Equal(t, 1, g.MinLevel())

	// Below the window: empty for every node.
	assert.Empty(t, outTargets(t, g, 1, 0))
	assert.Equal(t, int64(0), g.OutDegreeAt(1, 0))

	// At the window: only the edges contributed at surviving levels.
	assert.Equal(t, []int64{4}, outTargets(t, g, 1, 1))
	assert.Equal(t, int64(1), g.OutDegree(1))
	assert.Equal(t, int64(0), g.OutDegree(2))
	assert.Empty(t, outTargets(t, g, 2, -1))

	// Level 0 is gone; its pages are back on the free list or rehomed.
	assert.False(t, g.Out().VertexTable(0) != nil)
	st := g.Out().PageManager().Stats()
	assert.Equal(t, st.TotalPages, st.LiveRefcounts+st.FreePages)

	live := int64(g.Out().VertexTable(1).Pages() + 1)
	assert.Equal(t, live, st.LiveRefcounts,
		"live refcounts match the pages referenced by the surviving level")
}

func TestEviction_KeepOnlyRecentVersions(t *testing.T) {
	g := newTestGraph(t, GraphOptions{})

	for i := 0; i < 5; i++ {
		g.AddEdge(NodeID(i), NodeID(i+1))
		checkpointAll(t, g)
	}
	require.Equal(t, 4, g.MaxLevel())

	require.NoError(t, g.KeepOnlyRecentVersions(2))
	assert.Equal(t, 3, g.MinLevel())
	assert.Empty(t, outTargets(t, g, 0, -1))
	assert.Empty(t, outTargets(t, g, 2, -1))
	assert.Equal(t, []int64{4}, outTargets(t, g, 3, -1))
	assert.Equal(t, []int64{5}, outTargets(t, g, 4, -1))
}

func TestEviction_Bounds(t *testing.T) {
	g := newTestGraph(t, GraphOptions{})

	g.AddEdge(1, 2)
	checkpointAll(t, g)

	// The most recent level is never evicted.
	require.Error(t, g.SetMinLevel(1))

	g.AddEdge(1, 3)
	checkpointAll(t, g)
	require.NoError(t, g.SetMinLevel(1))

	// Moving backwards is a no-op.
	require.NoError(t, g.SetMinLevel(0))
	assert.Equal(t, 1, g.MinLevel())

	require.Error(t, g.KeepOnlyRecentVersions(0))
}

func TestEviction_InterruptedBetweenLevels(t *testing.T) {
	g := newTestGraph(t, GraphOptions{})

	for i := 0; i < 4; i++ {
		g.AddEdge(1, NodeID(10+i))
		checkpointAll(t, g)
	}

	g.Terminate()
	require.NoError(t, g.SetMinLevel(3))
	assert.Equal(t, 0, g.MinLevel(), "termination stops eviction before the first level")
}
