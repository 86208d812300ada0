package mlcsr

import (
	"fmt"
	"sort"

	llerrors "github.com/goatdb/llama/pkg/errors"
	"github.com/goatdb/llama/pkg/parallel"
)

// ============================================================================
// Checkpoint - freeze the writable stage into a new immutable level
// ============================================================================

// Direction selects how the loader emits undirected inputs.
type Direction int

const (
	// Directed emits edges as given.
	Directed Direction = iota
	// UndirectedDouble emits both orientations of every edge.
	UndirectedDouble
	// UndirectedOrdered emits only edges with tail <= head.
	UndirectedOrdered
)

// CheckpointConfig enumerates the loader options the core honors.
type CheckpointConfig struct {
	ReverseEdges  bool
	ReverseMaps   bool
	Deduplicate   bool
	SortEdges     bool
	Direction     Direction
	XSBufferSize  int64
	TmpDirs       []string
	PrintProgress bool
}

// DefaultCheckpointConfig returns the default configuration.
func DefaultCheckpointConfig() *CheckpointConfig {
	return &CheckpointConfig{XSBufferSize: 256 * 1024 * 1024}
}

// Validate fails fast on feature combinations the graph cannot honor.
func (c *CheckpointConfig) Validate(g *Graph) error {
	if c.ReverseMaps && !c.ReverseEdges {
		return llerrors.New(llerrors.CodeUnsupportedFeature,
			"reverse maps require reverse edges")
	}
	if c.ReverseMaps && !g.out.HasEdgeTranslation() {
		return llerrors.New(llerrors.CodeUnsupportedFeature,
			"reverse maps require a graph built with reverse maps enabled")
	}
	if c.SortEdges && g.opts.Streaming {
		return llerrors.New(llerrors.CodeUnsupportedFeature,
			"sorted edges and streaming mode cannot be combined")
	}
	switch c.Direction {
	case Directed, UndirectedDouble, UndirectedOrdered:
	default:
		return llerrors.New(llerrors.CodeInvalidInput,
			fmt.Sprintf("unknown direction %d", c.Direction))
	}
	return nil
}

// forEachStagedPage runs fn over every writable-VT page with contents,
// split across the configured workers.
func (g *Graph) forEachStagedPage(fn func(p int, page *wvtPage)) {
	vt := g.wVT
	parallel.ForRange(g.opts.Workers, vt.NumPages(), func(worker, start, end int) {
		for p := start; p < end; p++ {
			if !vt.PageWithContents(p) {
				continue
			}
			page := vt.Page(p)
			if page == nil {
				continue
			}
			fn(p, page)
		}
	})
}

// Checkpoint freezes the writable stage into a new immutable level. It is
// a single logical transaction: readers of the previous snapshot are
// unaffected throughout, and the new level only becomes addressable after
// every structure and property finished.
func (g *Graph) Checkpoint(cfg *CheckpointConfig) error {
	if cfg == nil {
		cfg = DefaultCheckpointConfig()
	}
	if err := cfg.Validate(g); err != nil {
		return err
	}

	level := g.out.NumLevels()
	numTotalNodes := g.maxNodeID.Load() + 1
	if numTotalNodes < g.out.MaxNodes() {
		numTotalNodes = g.out.MaxNodes()
	}

	g.log.Debug("checkpoint: level=%d nodes=%d staged_edges=%d",
		level, numTotalNodes, g.wNumEdges.Load())

	// Per-node deltas, filled by one parallel sweep over the staged nodes.
	newOutDegrees := make([]Degree, numTotalNodes)
	deletedFrozenOut := make([]Degree, numTotalNodes)
	deletedFrozenIn := make([]Degree, numTotalNodes)

	g.forEachStagedPage(func(p int, page *wvtPage) {
		base := NodeID(p) << EntriesPerPageBits
		for i := range page.nodes {
			w := page.nodes[i].Load()
			if w == nil {
				continue
			}
			n := base + NodeID(i)
			newOutDegrees[n] = Degree(w.outDelta)
			deletedFrozenOut[n] = Degree(w.numDeletedOut)
			deletedFrozenIn[n] = Degree(w.numDeletedIn)
		}
	})

	g.out.InitLevelFromDegrees(numTotalNodes, newOutDegrees, deletedFrozenOut)

	// Open a new level for every edge property, sized for the new edge
	// table, filling lineage gaps for properties created late.
	outWords := g.out.MaxEdgesAt(level)
	for _, p := range g.edgeProps32 {
		p.CowInitLevelPartial(level)
		p.CowInitLevel(outWords)
	}
	for _, p := range g.edgeProps64 {
		p.CowInitLevelPartial(level)
		p.CowInitLevel(outWords)
	}
	if g.streamForward != nil {
		g.streamForward.CowInitLevelPartial(level)
		g.streamForward.CowInitLevel(outWords)
	}
	if cfg.ReverseMaps {
		g.out.EdgeTranslation().CowInitLevelPartial(level)
		g.out.EdgeTranslation().CowInitLevel(outWords)
	}

	// Write the staged out-edges. Nodes on different pages never share an
	// edge-table range, so pages proceed in parallel.
	g.forEachStagedPage(func(p int, page *wvtPage) {
		base := NodeID(p) << EntriesPerPageBits
		for i := range page.nodes {
			w := page.nodes[i].Load()
			if w == nil || len(w.outEdges) == 0 {
				continue
			}
			n := base + NodeID(i)
			if cfg.SortEdges {
				sort.Slice(w.outEdges, func(a, b int) bool {
					return w.outEdges[a].target < w.outEdges[b].target
				})
			}
			g.writeStagedOutEdges(n, w.outEdges, level)
		}
	})

	g.out.FinishLevelEdges()

	// Reverse edges, when requested and not already behind by more than
	// this one level (a larger gap is caught up by MakeReverseEdges).
	if cfg.ReverseEdges && g.in.NumLevels()+1 == g.out.NumLevels() {
		newInDegrees := make([]Degree, numTotalNodes)
		g.forEachStagedPage(func(p int, page *wvtPage) {
			base := NodeID(p) << EntriesPerPageBits
			for i := range page.nodes {
				if w := page.nodes[i].Load(); w != nil {
					newInDegrees[base+NodeID(i)] = Degree(w.inDelta)
				}
			}
		})

		g.in.InitLevelFromDegrees(numTotalNodes, newInDegrees, deletedFrozenIn)

		hasTranslation := cfg.ReverseMaps &&
			g.in.HasEdgeTranslation() && g.out.HasEdgeTranslation()
		if hasTranslation {
			g.in.EdgeTranslation().CowInitLevelPartial(level)
			g.in.EdgeTranslation().CowInitLevel(g.in.MaxEdgesAt(level))
		}

		g.forEachStagedPage(func(p int, page *wvtPage) {
			base := NodeID(p) << EntriesPerPageBits
			for i := range page.nodes {
				w := page.nodes[i].Load()
				if w == nil || len(w.inEdges) == 0 {
					continue
				}
				g.writeStagedInEdges(base+NodeID(i), w.inEdges, level)
			}
		})

		if hasTranslation {
			g.forEachStagedPage(func(p int, page *wvtPage) {
				for i := range page.nodes {
					w := page.nodes[i].Load()
					if w == nil {
						continue
					}
					for _, e := range w.outEdges {
						if e.exists() {
							g.out.EdgeTranslation().CowWrite(e.numericalID, e.reverseNumericalID)
						}
					}
					for _, e := range w.inEdges {
						if e.exists() {
							g.in.EdgeTranslation().CowWrite(e.reverseNumericalID, e.numericalID)
						}
					}
				}
			})
		}

		g.in.FinishLevelEdges()
		if hasTranslation {
			g.out.EdgeTranslation().CowFinishLevel()
			g.in.EdgeTranslation().CowFinishLevel()
		}
	} else if cfg.ReverseMaps {
		g.out.EdgeTranslation().CowFinishLevel()
	}

	// Node properties: freeze the writable slot at the new node count.
	for name, p := range g.nodeProps32 {
		if !p.Writable() {
			p.WritableInit(numTotalNodes)
		}
		p.Freeze(numTotalNodes)
		if p.MaxLevel() != g.out.MaxLevel() {
			panic(fmt.Sprintf("mlcsr: node property %q at level %d, expected %d",
				name, p.MaxLevel(), g.out.MaxLevel()))
		}
	}
	for name, p := range g.nodeProps64 {
		if !p.Writable() {
			p.WritableInit(numTotalNodes)
		}
		p.Freeze(numTotalNodes)
		if p.MaxLevel() != g.out.MaxLevel() {
			panic(fmt.Sprintf("mlcsr: node property %q at level %d, expected %d",
				name, p.MaxLevel(), g.out.MaxLevel()))
		}
	}

	// Edge properties: finalize the new level.
	for _, p := range g.edgeProps32 {
		if p.Writable() {
			p.Freeze()
		} else {
			p.CowFinishLevel()
		}
	}
	for _, p := range g.edgeProps64 {
		if p.Writable() {
			p.Freeze()
		} else {
			p.CowFinishLevel()
		}
	}
	if g.streamForward != nil {
		g.streamForward.CowFinishLevel()
	}

	// The staged records are frozen; release them.
	g.wVT.Reset()
	g.wEdges.reset()
	g.wNumEdges.Store(0)

	g.log.Debug("checkpoint: level=%d done, edges=%d words", level, outWords)
	return nil
}

// writeStagedOutEdges fills a node's reserved out-edge range, assigns the
// final edge IDs, records streaming forward pointers, and propagates the
// staged edge property values.
func (g *Graph) writeStagedOutEdges(node NodeID, edges []*wEdge, level int) {
	b := g.out.LatestVertexTable().Get(node)
	if b.AdjListStart == NilEdge {
		return
	}
	start := EdgeIndex(b.AdjListStart)
	et := g.out.EdgeTableAt(level)

	for _, e := range edges {
		if !e.exists() {
			continue
		}
		et.SetValue(start, NewValue(e.target))
		e.numericalID = EdgeCreate(level, start)
		start++

		if g.opts.Streaming && e.supersedes != NilEdge {
			g.streamForward.CowWrite(e.supersedes, e.numericalID)
		}

		for id := 0; id < g.nextEdgePropID; id++ {
			if v := e.props32[id]; v != 0 {
				if p := g.edgeProps32ByID[id]; p != nil {
					p.CowWrite(e.numericalID, v)
				}
			}
			if v := e.props64[id]; v != 0 {
				if p := g.edgeProps64ByID[id]; p != nil {
					p.CowWrite(e.numericalID, v)
				}
			}
		}
	}
}

// writeStagedInEdges fills a node's reserved in-edge range.
func (g *Graph) writeStagedInEdges(node NodeID, edges []*wEdge, level int) {
	b := g.in.LatestVertexTable().Get(node)
	if b.AdjListStart == NilEdge {
		return
	}
	start := EdgeIndex(b.AdjListStart)
	et := g.in.EdgeTableAt(level)

	for _, e := range edges {
		if !e.exists() {
			continue
		}
		et.SetValue(start, NewValue(e.source))
		e.reverseNumericalID = EdgeCreate(level, start)
		start++
	}
}
