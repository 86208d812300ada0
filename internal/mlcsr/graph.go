package mlcsr

import (
	"sync"
	"sync/atomic"

	llerrors "github.com/goatdb/llama/pkg/errors"
	"github.com/goatdb/llama/pkg/parallel"
	"github.com/goatdb/llama/pkg/utils"
)

// ============================================================================
// Graph - the snapshot-aware facade
// ============================================================================

// Stream property names.
const (
	StreamWeightProperty  = "stream-weight"
	StreamForwardProperty = "stream-forward"
)

// GraphOptions configures a graph at construction.
type GraphOptions struct {
	// ReverseEdges builds the in-edge CSR at each checkpoint.
	ReverseEdges bool

	// ReverseMaps additionally maintains the out<->in edge-ID translation.
	ReverseMaps bool

	// Streaming turns on weights-instead-of-duplicate-edges, forward
	// pointers, and precomputed-degree age-off on eviction.
	Streaming bool

	// Workers is the parallelism of internal sweeps.
	Workers int
}

// Graph owns the out- and in-edge CSRs, the named properties, and the
// writable staging area. It is the sole root of everything the store
// allocates; there is no process-wide state.
type Graph struct {
	name string
	opts GraphOptions
	log  utils.Logger

	out *CSR
	in  *CSR

	// Property maps: inserts guarded by propLock, reads effectively
	// immutable after open.
	propLock        sync.Mutex
	nodeProps32     map[string]*NodeProperty[uint32]
	nodeProps64     map[string]*NodeProperty[uint64]
	edgeProps32     map[string]*EdgeProperty[uint32]
	edgeProps64     map[string]*EdgeProperty[uint64]
	edgeProps32ByID [MaxEdgePropertyID]*EdgeProperty[uint32]
	edgeProps64ByID [MaxEdgePropertyID]*EdgeProperty[uint64]
	nextNodePropID  int
	nextEdgePropID  int

	streamWeights *EdgeProperty[uint32]
	streamForward *EdgeProperty[EdgeID]

	updateLock SpinLock
	terminate  atomic.Bool

	// Writable stage.
	wVT       *WritableVT
	wEdges    *wEdgeArena
	wNumEdges atomic.Int64
	maxNodeID atomic.Int64
}

// NewGraph creates an empty graph.
func NewGraph(name string, opts GraphOptions, log utils.Logger) *Graph {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if log == nil {
		log = &utils.NullLogger{}
	}
	g := &Graph{
		name:        name,
		opts:        opts,
		log:         log,
		out:         NewCSR(name+"-out", opts.ReverseMaps, opts.Workers),
		in:          NewCSR(name+"-in", opts.ReverseMaps, opts.Workers),
		nodeProps32: make(map[string]*NodeProperty[uint32]),
		nodeProps64: make(map[string]*NodeProperty[uint64]),
		edgeProps32: make(map[string]*EdgeProperty[uint32]),
		edgeProps64: make(map[string]*EdgeProperty[uint64]),
		wVT:         NewWritableVT(EntriesPerPage),
		wEdges:      newWEdgeArena(),
	}
	g.maxNodeID.Store(-1)

	if opts.Streaming {
		g.streamWeights = g.CreateEdgeProperty32(StreamWeightProperty, TInt32)
		g.streamForward = NewEdgeProperty[EdgeID](g.allocEdgePropID(), StreamForwardProperty, TInt64, nil)
	}
	return g
}

// Name returns the graph's name.
func (g *Graph) Name() string { return g.name }

// Options returns the construction options.
func (g *Graph) Options() GraphOptions { return g.opts }

// Out returns the out-edge CSR.
func (g *Graph) Out() *CSR { return g.out }

// In returns the in-edge CSR.
func (g *Graph) In() *CSR { return g.in }

// NumLevels returns the number of committed levels.
func (g *Graph) NumLevels() int { return g.out.NumLevels() }

// MaxLevel returns the most recent committed level, or -1.
func (g *Graph) MaxLevel() int { return g.out.MaxLevel() }

// MinLevel returns the minimum visible level.
func (g *Graph) MinLevel() int { return g.out.MinLevel() }

// MaxNodes returns 1 + the maximum node ID of the latest level.
func (g *Graph) MaxNodes() int64 { return g.out.MaxNodes() }

// NumStagedEdges returns the number of staged (not yet frozen) edges.
func (g *Graph) NumStagedEdges() int64 { return g.wNumEdges.Load() }

// Terminate asks long operations to stop at their next boundary.
// Checkpoints complete atomically; eviction stops between levels.
func (g *Graph) Terminate() { g.terminate.Store(true) }

// Terminated reports whether termination was requested.
func (g *Graph) Terminated() bool { return g.terminate.Load() }

// HasReverseEdges reports whether the in-edge CSR is up to date with the
// out-edge CSR.
func (g *Graph) HasReverseEdges() bool {
	return g.in.NumLevels() > 0 && g.in.NumLevels() == g.out.NumLevels()
}

// NodeExists reports whether the node exists in the latest level: its
// visible out- or in-degree is positive.
func (g *Graph) NodeExists(n NodeID) bool {
	return g.out.NodeExists(n) || (g.HasReverseEdges() && g.in.NodeExists(n))
}

// OutDegree returns the node's visible out-degree in the latest level.
func (g *Graph) OutDegree(n NodeID) int64 { return g.out.Degree(n) }

// OutDegreeAt returns the node's visible out-degree at the given level.
func (g *Graph) OutDegreeAt(n NodeID, level int) int64 { return g.out.DegreeAt(n, level) }

// InDegree returns the node's visible in-degree in the latest level.
func (g *Graph) InDegree(n NodeID) int64 { return g.in.Degree(n) }

// InDegreeAt returns the node's visible in-degree at the given level.
func (g *Graph) InDegreeAt(n NodeID, level int) int64 { return g.in.DegreeAt(n, level) }

// OutIterBegin positions an iterator on the node's out-edges.
func (g *Graph) OutIterBegin(it *EdgeIterator, n NodeID, level, maxLevel int) {
	g.out.IterBegin(it, n, level, maxLevel)
}

// InIterBegin positions an iterator on the node's in-edges.
func (g *Graph) InIterBegin(it *EdgeIterator, n NodeID, level, maxLevel int) {
	g.in.IterBegin(it, n, level, maxLevel)
}

// OutToIn maps an out-edge ID to the corresponding in-edge ID.
func (g *Graph) OutToIn(e EdgeID) EdgeID { return g.out.TranslateEdge(e) }

// InToOut maps an in-edge ID to the corresponding out-edge ID.
func (g *Graph) InToOut(e EdgeID) EdgeID { return g.in.TranslateEdge(e) }

// EdgeTarget returns the head of a frozen out-edge.
func (g *Graph) EdgeTarget(e EdgeID) NodeID { return g.out.Value(e) }

// FindEdge returns the out-edge source -> target in the latest level.
func (g *Graph) FindEdge(source, target NodeID) EdgeID { return g.out.Find(source, target) }

// StreamWeights returns the streaming weight property, or nil.
func (g *Graph) StreamWeights() *EdgeProperty[uint32] { return g.streamWeights }

// StreamForward returns the streaming forward-pointer property, or nil.
func (g *Graph) StreamForward() *EdgeProperty[EdgeID] { return g.streamForward }

// ============================================================================
// Edge visibility updates
// ============================================================================

// UpdateMaxVisibleLevel unconditionally sets the edge's max-visible-level,
// propagating to the corresponding in-edge.
func (g *Graph) UpdateMaxVisibleLevel(edge EdgeID, mlevel int) {
	g.updateLock.Lock()
	g.out.UpdateMaxVisibleLevel(edge, mlevel)
	if g.canTranslate(edge) {
		g.in.UpdateMaxVisibleLevel(g.OutToIn(edge), mlevel)
	}
	g.updateLock.Unlock()
}

// UpdateMaxVisibleLevelLowerOnly lowers the edge's max-visible-level,
// never raising it, and propagates a successful lowering to the in-edge.
func (g *Graph) UpdateMaxVisibleLevelLowerOnly(edge EdgeID, mlevel int) bool {
	r := g.out.UpdateMaxVisibleLevelLowerOnly(edge, mlevel)
	if r && g.canTranslate(edge) {
		g.in.UpdateMaxVisibleLevelLowerOnly(g.OutToIn(edge), mlevel)
	}
	return r
}

// canTranslate reports whether the out-edge has a valid in-edge mapping:
// reverse edges are maintained and the edge's level carries a translation
// map. The translation of every edge present in a mapped level is valid,
// edge ID zero included.
func (g *Graph) canTranslate(edge EdgeID) bool {
	return g.HasReverseEdges() && g.out.HasEdgeTranslation() &&
		g.out.EdgeTranslation().LevelExists(EdgeLevel(edge))
}

// ============================================================================
// Properties
// ============================================================================

func (g *Graph) allocEdgePropID() int {
	id := g.nextEdgePropID
	if id >= MaxEdgePropertyID {
		panic(llerrors.New(llerrors.CodeInvalidInput, "too many edge properties"))
	}
	g.nextEdgePropID++
	return id
}

// CreateNodeProperty32 creates a 32-bit node property; nil if the name is
// taken.
func (g *Graph) CreateNodeProperty32(name string, typ int, destructor func(uint32)) *NodeProperty[uint32] {
	g.propLock.Lock()
	defer g.propLock.Unlock()
	if _, ok := g.nodeProps32[name]; ok {
		return nil
	}
	p := NewNodeProperty[uint32](g.nextNodePropID, name, typ, destructor, false, g.opts.Workers)
	g.nextNodePropID++
	p.EnsureMinLevels(g.out.NumLevels(), g.out.MaxNodes())
	g.nodeProps32[name] = p
	return p
}

// CreateNodeProperty64 creates a 64-bit node property; nil if the name is
// taken.
func (g *Graph) CreateNodeProperty64(name string, typ int, destructor func(uint64)) *NodeProperty[uint64] {
	g.propLock.Lock()
	defer g.propLock.Unlock()
	if _, ok := g.nodeProps64[name]; ok {
		return nil
	}
	p := NewNodeProperty[uint64](g.nextNodePropID, name, typ, destructor, false, g.opts.Workers)
	g.nextNodePropID++
	p.EnsureMinLevels(g.out.NumLevels(), g.out.MaxNodes())
	g.nodeProps64[name] = p
	return p
}

// GetNodeProperty32 returns the property, or nil.
func (g *Graph) GetNodeProperty32(name string) *NodeProperty[uint32] { return g.nodeProps32[name] }

// GetNodeProperty64 returns the property, or nil.
func (g *Graph) GetNodeProperty64(name string) *NodeProperty[uint64] { return g.nodeProps64[name] }

// CreateEdgeProperty32 creates a 32-bit edge property; nil if the name is
// taken.
func (g *Graph) CreateEdgeProperty32(name string, typ int) *EdgeProperty[uint32] {
	g.propLock.Lock()
	defer g.propLock.Unlock()
	if _, ok := g.edgeProps32[name]; ok {
		return nil
	}
	p := NewEdgeProperty[uint32](g.allocEdgePropID(), name, typ, nil)
	p.CowInitLevelPartial(g.out.NumLevels())
	g.edgeProps32[name] = p
	g.edgeProps32ByID[p.ID()] = p
	return p
}

// CreateEdgeProperty64 creates a 64-bit edge property; nil if the name is
// taken.
func (g *Graph) CreateEdgeProperty64(name string, typ int, destructor func(uint64)) *EdgeProperty[uint64] {
	g.propLock.Lock()
	defer g.propLock.Unlock()
	if _, ok := g.edgeProps64[name]; ok {
		return nil
	}
	p := NewEdgeProperty[uint64](g.allocEdgePropID(), name, typ, destructor)
	p.CowInitLevelPartial(g.out.NumLevels())
	g.edgeProps64[name] = p
	g.edgeProps64ByID[p.ID()] = p
	return p
}

// GetEdgeProperty32 returns the property, or nil.
func (g *Graph) GetEdgeProperty32(name string) *EdgeProperty[uint32] { return g.edgeProps32[name] }

// GetEdgeProperty64 returns the property, or nil.
func (g *Graph) GetEdgeProperty64(name string) *EdgeProperty[uint64] { return g.edgeProps64[name] }

// ============================================================================
// Writable stage operations
// ============================================================================

func (g *Graph) noteNodeID(n NodeID) {
	for {
		cur := g.maxNodeID.Load()
		if int64(n) <= cur || g.maxNodeID.CompareAndSwap(cur, int64(n)) {
			return
		}
	}
}

// AddNode stages a node. Nodes also come into existence implicitly through
// their first edge.
func (g *Graph) AddNode(n NodeID) {
	if n < 0 {
		return
	}
	g.noteNodeID(n)
	g.wVT.GetOrCreate(n)
}

// AddEdge stages the edge source -> target and returns its writable edge
// ID. In streaming mode a duplicate of a staged edge bumps that edge's
// weight instead of creating a new record, and a duplicate of a frozen
// edge records the frozen predecessor it supersedes.
func (g *Graph) AddEdge(source, target NodeID) EdgeID {
	if source < 0 || target < 0 {
		return NilEdge
	}
	g.noteNodeID(source)
	g.noteNodeID(target)

	src := g.wVT.GetOrCreate(source)

	if g.opts.Streaming {
		src.lock.Lock()
		for _, e := range src.outEdges {
			if e.target == target && e.exists() {
				atomic.AddUint32(&e.props32[g.streamWeights.ID()], 1)
				src.lock.Unlock()
				return e.publicID
			}
		}
		src.lock.Unlock()
	}

	idx, e := g.wEdges.alloc()
	*e = wEdge{
		source:             source,
		target:             target,
		publicID:           EdgeCreate(WritableLevel, idx),
		numericalID:        NilEdge,
		reverseNumericalID: NilEdge,
		supersedes:         NilEdge,
	}
	if g.opts.Streaming {
		// The staged edge carries the cumulative weight; the frozen
		// predecessor is hidden from the next snapshot and its weight
		// ages off along the forward-pointer chain on eviction.
		e.props32[g.streamWeights.ID()] = 1
		if frozen := g.out.Find(source, target); frozen != NilEdge {
			e.supersedes = frozen
			e.props32[g.streamWeights.ID()] = g.streamWeights.Get(frozen) + 1
			g.DeleteEdge(source, frozen)
		}
	}

	src.lock.Lock()
	src.outEdges = append(src.outEdges, e)
	src.outDelta++
	src.lock.Unlock()

	tgt := g.wVT.GetOrCreate(target)
	tgt.lock.Lock()
	tgt.inEdges = append(tgt.inEdges, e)
	tgt.inDelta++
	tgt.lock.Unlock()

	g.wNumEdges.Add(1)
	return e.publicID
}

// SetStagedEdgeProperty32 sets a 32-bit property slot of a staged edge.
func (g *Graph) SetStagedEdgeProperty32(e EdgeID, id int, value uint32) {
	if !EdgeIsWritable(e) {
		return
	}
	w := g.wEdges.get(EdgeIndex(e))
	w.props32[id] = value
}

// SetStagedEdgeProperty64 sets a 64-bit property slot of a staged edge.
func (g *Graph) SetStagedEdgeProperty64(e EdgeID, id int, value uint64) {
	if !EdgeIsWritable(e) {
		return
	}
	w := g.wEdges.get(EdgeIndex(e))
	w.props64[id] = value
}

// DeleteEdge deletes the edge with the given source. A staged edge is
// tombstoned; a frozen edge has its max-visible-level lowered so it stays
// visible in committed snapshots and disappears from the next one.
func (g *Graph) DeleteEdge(source NodeID, e EdgeID) bool {
	if e < 0 && !EdgeIsWritable(e) {
		return false
	}

	if EdgeIsWritable(e) {
		w := g.wEdges.get(EdgeIndex(e))
		if w.deleted {
			return false
		}
		w.deleted = true

		src := g.wVT.GetOrCreate(w.source)
		src.lock.Lock()
		src.outDelta--
		src.lock.Unlock()

		tgt := g.wVT.GetOrCreate(w.target)
		tgt.lock.Lock()
		tgt.inDelta--
		tgt.lock.Unlock()

		g.wNumEdges.Add(-1)
		return true
	}

	next := g.out.MaxLevel() + 1
	if !g.UpdateMaxVisibleLevelLowerOnly(e, next) {
		return false
	}
	target := g.out.Value(e)

	src := g.wVT.GetOrCreate(source)
	src.lock.Lock()
	src.numDeletedOut++
	src.lock.Unlock()

	tgt := g.wVT.GetOrCreate(target)
	tgt.lock.Lock()
	tgt.numDeletedIn++
	tgt.lock.Unlock()
	return true
}

// DeleteNode tombstones the node and deletes all of its visible edges.
// In-edges can only be removed when reverse edges are maintained.
func (g *Graph) DeleteNode(n NodeID) bool {
	if n < 0 {
		return false
	}
	w := g.wVT.GetOrCreate(n)
	if w.deleted {
		return false
	}

	var it EdgeIterator
	g.out.IterBegin(&it, n, -1, -1)
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		g.DeleteEdge(n, e)
	}

	w.lock.Lock()
	for _, e := range w.outEdges {
		if e.exists() {
			e.deleted = true
			w.outDelta--
			g.wNumEdges.Add(-1)
		}
	}
	w.lock.Unlock()

	if g.HasReverseEdges() && g.out.HasEdgeTranslation() {
		g.in.IterBegin(&it, n, -1, -1)
		for {
			e, ok := it.Next()
			if !ok {
				break
			}
			if g.in.EdgeTranslation().LevelExists(EdgeLevel(e)) {
				g.DeleteEdge(it.Target(), g.InToOut(e))
			}
		}
	}

	w.deleted = true
	return true
}

// forEachNodeParallel runs fn over [0, maxNodes) split statically across
// the configured workers.
func (g *Graph) forEachNodeParallel(maxNodes int64, fn func(NodeID)) {
	parallel.ForRange(g.opts.Workers, int(maxNodes), func(worker, start, end int) {
		for n := start; n < end; n++ {
			fn(NodeID(n))
		}
	})
}

// ============================================================================
// Reverse edges
// ============================================================================

// MakeReverseEdges builds the in-edge CSR for every level present in the
// out-edges but not yet in the in-edges, including the edge translation
// maps if enabled.
func (g *Graph) MakeReverseEdges(deletedInEdgeCounts []Degree) {
	for level := g.in.NumLevels(); level < g.out.NumLevels(); level++ {
		maxNodes := g.out.MaxNodesAt(level)

		// One parallel pass over the level's out-edges: the in-degree per
		// target, and per out-edge the insertion position within the
		// target's in-adjacency (fetch-add on the per-target counter).
		inDegrees := make([]Degree, maxNodes)
		loc := make([]uint32, g.out.MaxEdgesAt(level))
		g.forEachNodeParallel(g.out.MaxNodes(), func(source NodeID) {
			var it EdgeIterator
			g.out.IterBeginWithinLevel(&it, source, level, -1, nil)
			for {
				e, ok := it.NextWithinLevel()
				if !ok {
					break
				}
				target := it.Target()
				loc[EdgeIndex(e)] = atomic.AddUint32((*uint32)(&inDegrees[target]), 1) - 1
			}
		})

		hasTranslation := g.in.HasEdgeTranslation() && g.out.HasEdgeTranslation()
		if hasTranslation {
			g.out.EdgeTranslation().CowInitLevelPartial(level)
			g.out.EdgeTranslation().CowInitLevel(g.out.MaxEdgesAt(level))
		}

		var deleted []Degree
		if level > 0 {
			deleted = deletedInEdgeCounts
		}
		g.in.InitLevelFromDegrees(maxNodes, inDegrees, deleted)

		if hasTranslation {
			g.in.EdgeTranslation().CowInitLevelPartial(level)
			g.in.EdgeTranslation().CowInitLevel(g.in.MaxEdgesAt(level))
		}

		// Second pass: place each out-edge into its target's in-adjacency
		// and fill the translation maps in both directions.
		g.forEachNodeParallel(g.out.MaxNodes(), func(source NodeID) {
			var it EdgeIterator
			g.out.IterBeginWithinLevel(&it, source, level, -1, nil)
			for {
				e, ok := it.NextWithinLevel()
				if !ok {
					break
				}
				target := it.Target()
				inEdge := g.in.WriteValue(target, int64(loc[EdgeIndex(e)]), source)
				if hasTranslation {
					g.in.EdgeTranslation().CowWrite(inEdge, e)
					g.out.EdgeTranslation().CowWrite(e, inEdge)
				}
			}
		})

		g.in.FinishLevelEdges()
		if hasTranslation {
			g.out.EdgeTranslation().CowFinishLevel()
			g.in.EdgeTranslation().CowFinishLevel()
		}
	}
}
