package loader

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatdb/llama/internal/mlcsr"
	"github.com/goatdb/llama/pkg/config"
)

func newTestGraph() *mlcsr.Graph {
	return mlcsr.NewGraph("test", mlcsr.GraphOptions{
		ReverseEdges: true,
		ReverseMaps:  true,
		Workers:      2,
	}, nil)
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func outDegree(g *mlcsr.Graph, n mlcsr.NodeID) int64 { return g.OutDegree(n) }

func TestLoad_TextEdgeList(t *testing.T) {
	path := writeFile(t, "g.net", []byte(
		"# a comment\n"+
			"1 2\n"+
			"1 3 0.5\n"+
			"\n"+
			"2 3\n"))

	g := newTestGraph()
	l := New(g, config.LoaderConfig{}, nil)
	stats, err := l.LoadFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.EdgesRead)
	assert.Equal(t, int64(3), stats.EdgesLoaded)
	assert.Equal(t, 0, stats.FirstLevel)
	assert.Equal(t, 0, stats.LastLevel)
	assert.Equal(t, int64(2), outDegree(g, 1))
	assert.Equal(t, int64(1), outDegree(g, 2))

	w := g.GetEdgeProperty32(WeightProperty)
	require.NotNil(t, w, "weighted line creates the weight property")
	e := g.FindEdge(1, 3)
	assert.Equal(t, float32(0.5), math.Float32frombits(w.Get(e)))
}

func TestLoad_TextEdgeListMalformed(t *testing.T) {
	path := writeFile(t, "bad.net", []byte("1\n"))
	l := New(newTestGraph(), config.LoaderConfig{}, nil)
	_, err := l.LoadFile(context.Background(), path)
	require.Error(t, err)
}

func TestLoad_BinaryEdgeList(t *testing.T) {
	buf := make([]byte, 0, 32)
	for _, pair := range [][2]uint64{{1, 2}, {2, 3}} {
		var rec [16]byte
		binary.LittleEndian.PutUint64(rec[0:], pair[0])
		binary.LittleEndian.PutUint64(rec[8:], pair[1])
		buf = append(buf, rec[:]...)
	}
	path := writeFile(t, "g.bin", buf)

	g := newTestGraph()
	_, err := New(g, config.LoaderConfig{}, nil).LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int64(1), outDegree(g, 1))
	assert.Equal(t, int64(1), outDegree(g, 2))
}

func TestLoad_XStream1(t *testing.T) {
	var buf []byte
	for _, rec := range []struct {
		tail, head uint32
		w          float32
	}{{1, 2, 1.5}, {3, 1, 2.5}} {
		var b [12]byte
		binary.LittleEndian.PutUint32(b[0:], rec.tail)
		binary.LittleEndian.PutUint32(b[4:], rec.head)
		binary.LittleEndian.PutUint32(b[8:], math.Float32bits(rec.w))
		buf = append(buf, b[:]...)
	}
	path := writeFile(t, "g.xs1", buf)

	g := newTestGraph()
	_, err := New(g, config.LoaderConfig{XSBufferSize: 1024}, nil).LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int64(1), outDegree(g, 1))
	assert.Equal(t, int64(1), outDegree(g, 3))

	w := g.GetEdgeProperty32(WeightProperty)
	require.NotNil(t, w)
	assert.Equal(t, float32(1.5), math.Float32frombits(w.Get(g.FindEdge(1, 2))))
}

func TestLoad_Deduplicate(t *testing.T) {
	path := writeFile(t, "dup.net", []byte("1 2\n1 2\n1 2\n2 3\n"))

	g := newTestGraph()
	stats, err := New(g, config.LoaderConfig{Deduplicate: true}, nil).
		LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Deduplicated)
	assert.Equal(t, int64(1), outDegree(g, 1))
}

func TestLoad_UndirectedDouble(t *testing.T) {
	path := writeFile(t, "u.net", []byte("1 2\n3 3\n"))

	g := newTestGraph()
	_, err := New(g, config.LoaderConfig{Direction: "undirected_double"}, nil).
		LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int64(1), outDegree(g, 1))
	assert.Equal(t, int64(1), outDegree(g, 2))
	assert.Equal(t, int64(1), outDegree(g, 3), "self loop emitted once")
}

func TestLoad_UndirectedOrdered(t *testing.T) {
	path := writeFile(t, "o.net", []byte("2 1\n1 2\n"))

	g := newTestGraph()
	stats, err := New(g, config.LoaderConfig{Direction: "undirected_ordered"}, nil).
		LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Dropped)
	assert.Equal(t, int64(1), outDegree(g, 1))
	assert.Equal(t, int64(0), outDegree(g, 2))
}

func TestLoad_Batches(t *testing.T) {
	path := writeFile(t, "b.net", []byte("1 2\n2 3\n3 4\n4 5\n5 6\n"))

	g := newTestGraph()
	stats, err := New(g, config.LoaderConfig{BatchSize: 2}, nil).
		LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FirstLevel)
	assert.Equal(t, 2, stats.LastLevel, "five edges in batches of two make three levels")
	assert.Equal(t, 3, g.NumLevels())
}

func TestLoad_UnknownExtension(t *testing.T) {
	path := writeFile(t, "g.weird", []byte("1 2\n"))
	_, err := New(newTestGraph(), config.LoaderConfig{}, nil).
		LoadFile(context.Background(), path)
	require.Error(t, err)
}

func TestForFile_Registry(t *testing.T) {
	p, err := ForFile("x/y/graph.net")
	require.NoError(t, err)
	assert.Equal(t, "edge-list-text", p.Name())

	p, err = ForFile("graph.XS1")
	require.NoError(t, err)
	assert.Equal(t, "xstream-type1", p.Name())
}
