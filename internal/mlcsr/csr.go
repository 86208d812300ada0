package mlcsr

import (
	"fmt"
)

// ============================================================================
// CSR - the snapshot-aware adjacency structure
// ============================================================================

// CSR is one direction (out or in) of the multi-level adjacency: a vertex
// table per level plus a flat edge table per level, tied together by the
// continuation protocol. A node's edges contributed at level L occupy a
// contiguous run of L's edge table, followed by one continuation record
// pointing at the node's adjacency in the previous level.
type CSR struct {
	name string

	begin       *PageArrayCollection[VTEntry]
	latestBegin *PageArray[VTEntry]

	values       []*EdgeTable
	latestValues *EdgeTable
	frozen       []bool

	perLevelNodes    []int64
	perLevelAdjLists []int64
	perLevelEdges    []int64

	maxNodes int64
	maxEdges int64
	minLevel int
	maxLevel int

	workers int

	// Construction state of the level being built.
	etWriteIndex int64

	// The out-edge-ID <-> in-edge-ID bijection, if enabled.
	translation    *EdgeProperty[EdgeID]
	hasTranslation bool

	// Sparse per-level modification views kept for eviction.
	sparseIDs  [][]NodeID
	sparseData [][]VTEntry
}

// NewCSR creates an empty CSR. The page manager is created per instance;
// there is no process-wide pool.
func NewCSR(name string, edgeTranslation bool, workers int) *CSR {
	if workers < 1 {
		workers = 1
	}
	pm := NewPageManager[VTEntry](EntriesPerPage, true, workers)
	c := &CSR{
		name:           name,
		begin:          NewPageArrayCollection(pm),
		minLevel:       0,
		maxLevel:       -1,
		workers:        workers,
		hasTranslation: edgeTranslation,
	}
	c.translation = NewEdgeProperty[EdgeID](-1, name+"-et", TInt64, nil)
	return c
}

// Name returns the CSR's name.
func (c *CSR) Name() string { return c.name }

// NumLevels returns the number of level slots, deleted levels included.
func (c *CSR) NumLevels() int { return c.begin.NumLevels() }

// MaxNodes returns 1 + the maximum node ID of the latest level.
func (c *CSR) MaxNodes() int64 { return c.maxNodes }

// MaxNodesAt returns the node count of the given level.
func (c *CSR) MaxNodesAt(level int) int64 { return c.perLevelNodes[level] }

// MaxEdgesAt returns the edge-table word count of the given level.
func (c *CSR) MaxEdgesAt(level int) int64 { return c.perLevelEdges[level] }

// MinLevel returns the minimum visible level.
func (c *CSR) MinLevel() int { return c.minLevel }

// MaxLevel returns the most recent committed level, or -1.
func (c *CSR) MaxLevel() int { return c.maxLevel }

// VertexTable returns the vertex table of the given level.
func (c *CSR) VertexTable(level int) *PageArray[VTEntry] { return c.begin.Level(level) }

// LatestVertexTable returns the most recent vertex table, or nil.
func (c *CSR) LatestVertexTable() *PageArray[VTEntry] { return c.latestBegin }

// EdgeTableAt returns the edge table of the given level.
func (c *CSR) EdgeTableAt(level int) *EdgeTable { return c.values[level] }

// PageManager returns the vertex-table page manager.
func (c *CSR) PageManager() *PageManager[VTEntry] { return c.begin.PageManager() }

// HasEdgeTranslation reports whether the edge translation map is enabled,
// even if it is not necessarily up to date for the most recent levels.
func (c *CSR) HasEdgeTranslation() bool { return c.hasTranslation }

// SetEdgeTranslation flips the translation feature flag without touching
// the map itself.
func (c *CSR) SetEdgeTranslation(v bool) { c.hasTranslation = v }

// EdgeTranslation returns the translation property. The behavior of reads
// is undefined when the feature is disabled.
func (c *CSR) EdgeTranslation() *EdgeProperty[EdgeID] { return c.translation }

// TranslateEdge maps an edge ID through the translation map.
func (c *CSR) TranslateEdge(e EdgeID) EdgeID { return c.translation.Get(e) }

// ============================================================================
// Level construction
// ============================================================================

// edgeTableCapacity sizes a level's edge table: the new edges plus one
// continuation record per adjacency list, with slack mirroring the vertex
// table's over-allocation.
func edgeTableCapacity(maxAdjLists, maxEdges int64) int64 {
	return maxEdges + (maxAdjLists+4)*continuationWords + 4
}

// InitLevel creates a new level: a COW-initialized vertex table (dense for
// the first level) and a fresh edge table sized for maxEdges new edges in
// maxAdjLists adjacency lists.
func (c *CSR) InitLevel(maxNodes, maxAdjLists, maxEdges int64) {
	c.etWriteIndex = 0

	level := c.begin.NextLevelID()
	for len(c.values) <= level {
		c.values = append(c.values, nil)
		c.frozen = append(c.frozen, false)
		c.perLevelNodes = append(c.perLevelNodes, 0)
		c.perLevelAdjLists = append(c.perLevelAdjLists, 0)
		c.perLevelEdges = append(c.perLevelEdges, 0)
		c.sparseIDs = append(c.sparseIDs, nil)
		c.sparseData = append(c.sparseData, nil)
	}

	et := NewEdgeTable(edgeTableCapacity(maxAdjLists, maxEdges))
	c.values[level] = et
	c.frozen[level] = false
	c.maxLevel = level

	b := c.begin.NewLevel(maxNodes)
	if c.begin.CountExistingLevels() == 1 {
		b.DenseInit()
	} else {
		b.CowInit()
	}

	c.latestBegin = b
	c.latestValues = et

	c.perLevelNodes[level] = maxNodes
	c.perLevelAdjLists[level] = maxAdjLists
	c.perLevelEdges[level] = maxEdges
	c.maxNodes = maxNodes
	c.maxEdges = maxEdges
}

// ETWriteIndex returns the edge-table write index of the level being built.
func (c *CSR) ETWriteIndex() int64 { return c.etWriteIndex }

// InitNode writes the node's vertex-table entry for the level being built,
// reserves its edge range, and writes the continuation record. Returns the
// edge-table index at which the node's new edges start.
//
// Nodes are initialized in ascending order by a single writer (or by
// callers partitioning disjoint ranges with externally assigned starts).
func (c *CSR) InitNode(node NodeID, newEdges, deletedEdges int64) int64 {
	level := c.maxLevel
	if c.frozen[level] {
		panic(fmt.Sprintf("mlcsr: %s: init of node %d in frozen level %d", c.name, node, level))
	}
	vt := c.latestBegin
	var e VTEntry

	// A node with nothing new, nothing deleted, and no previous existence
	// gets the NIL entry (only needed past the previous level's size; the
	// zero pages cover the rest).
	if level > 0 && newEdges == 0 && deletedEdges == 0 {
		if prev := c.begin.Level(level - 1); prev == nil || node >= NodeID(prev.Size()) {
			e.AdjListStart = NilEdge
			vt.CowWrite(node, e)
		}
		return c.etWriteIndex
	}

	if level == 0 || newEdges > 0 {
		if newEdges == 0 {
			e.AdjListStart = NilEdge
		} else {
			e.AdjListStart = EdgeCreate(level, c.etWriteIndex)
		}
		e.LevelLength = uint32(newEdges)
	} else {
		// Deletions only: inherit the previous level's entry.
		prev := c.begin.Level(level - 1)
		if prev == nil || node >= NodeID(prev.Size()) {
			e.AdjListStart = NilEdge
		} else {
			e = prev.Get(node)
		}
	}

	// Precompute the degree: previous degree + new - deleted. A node whose
	// degree drops to zero collapses to the NIL entry.
	e.Degree = Degree(newEdges - deletedEdges)
	if level > 0 {
		if prev := c.begin.Level(level - 1); prev != nil && node < NodeID(prev.Size()) {
			if bprev := prev.Get(node); bprev.AdjListStart != NilEdge {
				e.Degree += bprev.Degree
			}
		}
	}
	if int32(e.Degree) < 0 {
		panic(fmt.Sprintf("mlcsr: %s: node %d degree underflow at level %d", c.name, node, level))
	}
	if e.Degree == 0 {
		e.AdjListStart = NilEdge
		e.LevelLength = 0
	}

	// The continuation record follows the node's new edges and carries the
	// previous level's entry, fully finalized by now.
	deltaEdges := newEdges
	if level > 0 && newEdges > 0 && e.AdjListStart != NilEdge {
		cont := NilVTEntry
		if prev := c.begin.Level(level - 1); prev != nil && node < NodeID(prev.Size()) {
			cont = prev.Get(node)
		}
		c.latestValues.SetContinuation(c.etWriteIndex+newEdges, cont)
		deltaEdges += continuationWords
	}

	if level >= 1 {
		vt.CowWrite(node, e)
	} else {
		vt.DenseWrite(node, e)
	}

	start := c.etWriteIndex
	c.etWriteIndex += deltaEdges
	return start
}

// InitLevelFromDegrees creates a fully initialized vertex table and a
// partially initialized edge table from per-node new/deleted edge counts.
// The caller writes the edge payloads and then calls FinishLevelEdges.
func (c *CSR) InitLevelFromDegrees(maxNodes int64, newEdgeCounts, deletedEdgeCounts []Degree) {
	var maxEdges, maxAdjLists int64
	for i := int64(0); i < maxNodes; i++ {
		maxEdges += int64(newEdgeCounts[i])
		if newEdgeCounts[i] > 0 {
			maxAdjLists++
		}
	}

	c.InitLevel(maxNodes, maxAdjLists, maxEdges)
	level := c.maxLevel

	for node := int64(0); node < maxNodes; node++ {
		var deleted int64
		if level > 0 && deletedEdgeCounts != nil {
			deleted = int64(deletedEdgeCounts[node])
		}
		c.InitNode(NodeID(node), int64(newEdgeCounts[node]), deleted)
	}

	c.FinishLevelVertices()
}

// WriteValue writes the i-th edge of the node's new adjacency run and
// returns the assigned edge ID.
func (c *CSR) WriteValue(node NodeID, index int64, target NodeID) EdgeID {
	if c.frozen[c.maxLevel] {
		panic(fmt.Sprintf("mlcsr: %s: write to frozen level %d", c.name, c.maxLevel))
	}
	edge := c.latestBegin.Get(node).AdjListStart
	if edge == NilEdge {
		panic(fmt.Sprintf("mlcsr: %s: write to node %d without a reserved range", c.name, node))
	}
	c.latestValues.SetValue(EdgeIndex(edge)+index, NewValue(target))
	return edge + EdgeID(index)
}

// WriteValues writes the node's whole new adjacency run.
func (c *CSR) WriteValues(node NodeID, targets []NodeID) {
	if c.frozen[c.maxLevel] {
		panic(fmt.Sprintf("mlcsr: %s: write to frozen level %d", c.name, c.maxLevel))
	}
	start := EdgeIndex(c.latestBegin.Get(node).AdjListStart)
	for i, t := range targets {
		c.latestValues.SetValue(start+int64(i), NewValue(t))
	}
}

// FinishLevelVertices writes the one-past-the-last sentinel entry and fixes
// up the level's edge count. Use with levels created through InitLevel.
func (c *CSR) FinishLevelVertices() {
	level := c.maxLevel
	vt := c.latestBegin

	e := VTEntry{AdjListStart: EdgeCreate(level, c.etWriteIndex)}
	if level >= 1 {
		// A level that contributed nothing keeps sharing the previous
		// table wholesale; the stale sentinel is never consulted.
		if c.etWriteIndex > 0 || !vt.SharesTable() {
			vt.CowWrite(NodeID(c.maxNodes), e)
		}
		vt.CowFinish()
	} else {
		vt.DenseWrite(NodeID(c.maxNodes), e)
		vt.DenseFinish()
	}

	c.perLevelEdges[level] = c.etWriteIndex
	c.maxEdges = c.etWriteIndex
}

// FinishLevelEdges commits the level's edge table. From here on the table
// is immutable except for max-visible-level lowering.
func (c *CSR) FinishLevelEdges() {
	c.frozen[c.maxLevel] = true
}

// ============================================================================
// Edge visibility
// ============================================================================

// UpdateMaxVisibleLevel unconditionally sets the edge's max-visible-level.
func (c *CSR) UpdateMaxVisibleLevel(edge EdgeID, mlevel int) {
	et := c.values[EdgeLevel(edge)]
	idx := EdgeIndex(edge)
	for {
		old := et.LoadValue(idx)
		if et.CompareAndSwapValue(idx, old, NewValueExt(ValuePayload(old), mlevel)) {
			return
		}
	}
}

// UpdateMaxVisibleLevelLowerOnly lowers the edge's max-visible-level,
// never raising it. The CAS loop makes the update linearizable per edge.
// Returns true if the value was lowered.
func (c *CSR) UpdateMaxVisibleLevelLowerOnly(edge EdgeID, mlevel int) bool {
	et := c.values[EdgeLevel(edge)]
	idx := EdgeIndex(edge)
	for {
		old := et.LoadValue(idx)
		if mlevel >= ValueMaxLevel(old) {
			return false
		}
		if et.CompareAndSwapValue(idx, old, NewValueExt(ValuePayload(old), mlevel)) {
			return true
		}
	}
}

// ============================================================================
// Lookup
// ============================================================================

// Value returns the target node of the edge.
func (c *CSR) Value(e EdgeID) NodeID {
	return ValuePayload(c.values[EdgeLevel(e)].Value(EdgeIndex(e)))
}

// Degree returns the node's visible degree in the latest level.
func (c *CSR) Degree(n NodeID) int64 {
	if n < 0 || n >= NodeID(c.maxNodes) || c.latestBegin == nil {
		return 0
	}
	return int64(c.latestBegin.Get(n).Degree)
}

// DegreeAt returns the node's visible degree at the given level.
func (c *CSR) DegreeAt(n NodeID, level int) int64 {
	if level < c.minLevel || level > c.maxLevel {
		return 0
	}
	vt := c.begin.Level(level)
	if vt == nil || n < 0 || n >= NodeID(vt.Size()) {
		return 0
	}
	return int64(vt.Get(n).Degree)
}

// NodeExists reports whether the node exists in the latest level, which is
// the case iff its visible degree is positive.
func (c *CSR) NodeExists(node NodeID) bool {
	if node < 0 || node >= NodeID(c.maxNodes) {
		return false
	}
	return c.latestBegin.Get(node).Degree > 0
}

// EdgeExists reports whether the edge exists and is visible at the level.
func (c *CSR) EdgeExists(edge EdgeID, level int) bool {
	if edge < 0 {
		return false
	}
	l := EdgeLevel(edge)
	if l >= len(c.values) || c.values[l] == nil {
		return false
	}
	if EdgeIndex(edge) >= c.perLevelEdges[l] {
		return false
	}
	return !ValueIsDeleted(c.values[l].LoadValue(EdgeIndex(edge)), level)
}

// Find returns the edge node -> target in the latest level, or NilEdge.
func (c *CSR) Find(node, target NodeID) EdgeID {
	if c.latestBegin == nil || node >= NodeID(c.latestBegin.Size()) {
		return NilEdge
	}
	var it EdgeIterator
	c.IterBegin(&it, node, -1, -1)
	for {
		e, ok := it.Next()
		if !ok {
			return NilEdge
		}
		if it.Target() == target {
			return e
		}
	}
}

// FindAt returns the edge node -> target at the given level, or NilEdge.
func (c *CSR) FindAt(node, target NodeID, level, maxLevel int) EdgeID {
	var it EdgeIterator
	c.IterBegin(&it, node, level, maxLevel)
	for {
		e, ok := it.Next()
		if !ok {
			return NilEdge
		}
		if it.Target() == target {
			return e
		}
	}
}

// ============================================================================
// Level lifetime
// ============================================================================

// SetMinLevel raises the minimum visible level. The degree and weight
// bookkeeping of eviction happens in the graph facade; this only moves the
// visibility bound.
func (c *CSR) SetMinLevel(m int) {
	if m < c.minLevel {
		panic(fmt.Sprintf("mlcsr: %s: min level moving backwards (%d -> %d)", c.name, c.minLevel, m))
	}
	c.begin.SetMinLevel(m)
	c.minLevel = m
}

// DeleteLevel tears down an evicted level: the vertex table's page shares,
// the edge table, the sparse view, and the translation level.
func (c *CSR) DeleteLevel(level int) {
	if level+1 > c.minLevel {
		panic(fmt.Sprintf("mlcsr: %s: deleting level %d above min level %d", c.name, level, c.minLevel))
	}
	if c.begin.LevelExists(level) {
		c.begin.DeleteLevel(level)
	}
	if level < len(c.values) && c.values[level] != nil {
		c.values[level] = nil
	}
	if level < len(c.perLevelNodes) {
		c.perLevelNodes[level] = 0
		c.perLevelAdjLists[level] = 0
		c.perLevelEdges[level] = 0
	}
	if level < len(c.sparseIDs) {
		c.sparseIDs[level] = nil
		c.sparseData[level] = nil
	}
	if c.translation.LevelExists(level) {
		c.translation.DeleteLevel(level)
	}
}

// KeepOnlyRecentVersions drops all but the keep most recent levels. Sparse
// views are captured first so eviction bookkeeping stays possible.
func (c *CSR) KeepOnlyRecentVersions(keep int) {
	for l := 0; l <= c.maxLevel-keep; l++ {
		c.CreateSparseRepresentation(l)
	}
	c.begin.KeepOnlyRecentLevels(keep)
	c.translation.KeepOnlyRecentLevels(keep)
}

// InMemorySize returns the bytes attributable to this CSR.
func (c *CSR) InMemorySize() int64 {
	var total int64
	for i := 0; i < c.begin.NumLevels(); i++ {
		if vt := c.begin.Level(i); vt != nil {
			total += vt.InMemorySize()
		}
	}
	for _, et := range c.values {
		if et != nil {
			total += et.Len() * 8
		}
	}
	return total
}
