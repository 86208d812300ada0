package mlcsr

import (
	"fmt"

	llerrors "github.com/goatdb/llama/pkg/errors"
	"github.com/goatdb/llama/pkg/parallel"
)

// ============================================================================
// Eviction - advance the minimum level, age off weights, reclaim pages
// ============================================================================

// SetMinLevel raises the minimum visible level to m. Each level below m is
// processed oldest-first: the precomputed degrees of its modified nodes are
// decremented, streaming weights age off along the forward-pointer chains,
// the properties and translation maps drop the level, and the level's pages
// go back to the page manager. The most recent level is never evicted.
//
// Eviction is interruptible between levels through Terminate.
func (g *Graph) SetMinLevel(m int) error {
	if m <= g.out.MinLevel() {
		return nil
	}
	if m > g.out.MaxLevel() {
		return llerrors.New(llerrors.CodeInvalidInput,
			fmt.Sprintf("min level %d beyond max level %d", m, g.out.MaxLevel()))
	}

	for l := g.out.MinLevel(); l < m; l++ {
		if g.Terminated() {
			g.log.Info("eviction interrupted at level %d", l)
			break
		}

		g.evictLevel(g.out, l, g.streamWeights, g.streamForward)
		if g.in.NumLevels() > l {
			g.evictLevel(g.in, l, nil, nil)
		}

		g.out.SetMinLevel(l + 1)
		if g.in.NumLevels() > l {
			g.in.SetMinLevel(l + 1)
		}

		for _, p := range g.nodeProps32 {
			p.SetMinLevel(l + 1)
			p.DeleteLevel(l)
		}
		for _, p := range g.nodeProps64 {
			p.SetMinLevel(l + 1)
			p.DeleteLevel(l)
		}
		for _, p := range g.edgeProps32 {
			p.SetMinLevel(l + 1)
			p.DeleteLevel(l)
		}
		for _, p := range g.edgeProps64 {
			p.SetMinLevel(l + 1)
			p.DeleteLevel(l)
		}
		if g.streamForward != nil {
			g.streamForward.SetMinLevel(l + 1)
			g.streamForward.DeleteLevel(l)
		}

		g.out.DeleteLevel(l)
		if g.in.NumLevels() > l && g.in.MinLevel() > l {
			g.in.DeleteLevel(l)
		}

		g.log.Debug("evicted level %d", l)
	}
	return nil
}

// KeepOnlyRecentVersions advances the minimum level so that only the keep
// most recent levels stay visible.
func (g *Graph) KeepOnlyRecentVersions(keep int) error {
	if keep < 1 {
		return llerrors.New(llerrors.CodeInvalidInput, "must keep at least one level")
	}
	m := g.out.MaxLevel() - keep + 1
	if m <= g.out.MinLevel() {
		return nil
	}
	return g.SetMinLevel(m)
}

// evictLevel runs the per-node bookkeeping for one level of one CSR:
// degree decrements for edges leaving the window, and weight age-off for
// the out-side when streaming. Parallelized over the level's modified
// nodes, through the sparse view if the vertex table is already gone.
func (g *Graph) evictLevel(c *CSR, level int, weights *EdgeProperty[uint32], forward *EdgeProperty[EdgeID]) {
	if c.HasSparseRepresentation(level) {
		ids := c.SparseNodeIDs(level)
		data := c.SparseNodeData(level)
		parallel.ForRange(g.opts.Workers, len(ids), func(worker, start, end int) {
			for i := start; i < end; i++ {
				g.evictNodeLevel(c, ids[i], &data[i], level, weights, forward)
			}
		})
		return
	}

	vt := c.VertexTable(level)
	if vt == nil {
		return
	}
	size := vt.Size()
	parallel.ForRange(g.opts.Workers, vt.Pages(), func(worker, start, end int) {
		for p := start; p < end; p++ {
			page := vt.Page(p)
			base := NodeID(p) << EntriesPerPageBits
			for i := 0; i < EntriesPerPage && int64(base)+int64(i) < size; i++ {
				e := page[i]
				if e.AdjListStart == NilEdge || EdgeLevel(e.AdjListStart) != level {
					continue
				}
				g.evictNodeLevel(c, base+NodeID(i), &e, level, weights, forward)
			}
		}
	})
}

// evictNodeLevel updates one node for one evicted level.
func (g *Graph) evictNodeLevel(c *CSR, n NodeID, vte *VTEntry, level int,
	weights *EdgeProperty[uint32], forward *EdgeProperty[EdgeID]) {

	// Edges contributed at this level and still visible at the latest
	// level leave the window now; take them out of the precomputed degree.
	var it EdgeIterator
	removed := int64(0)
	c.IterBeginWithinLevel(&it, n, level, c.MaxLevel(), vte)
	for {
		if _, ok := it.NextWithinLevel(); !ok {
			break
		}
		removed++
	}
	if removed > 0 {
		latest := c.LatestVertexTable()
		b := latest.Get(n)
		if int64(b.Degree) < removed {
			panic(fmt.Sprintf("mlcsr: %s: node %d degree underflow on eviction", c.name, n))
		}
		b.Degree -= Degree(removed)
		latest.CowWrite(n, b)
	}

	// Streaming weight age-off: the weight of every evicted edge is
	// subtracted along its forward-pointer chain. Levels are evicted in
	// order, so by the time a superseding edge is itself evicted its
	// weight already excludes the aged-off share.
	if weights == nil || forward == nil {
		return
	}
	c.IterBeginWithinLevel(&it, n, level, level, vte)
	for {
		e, ok := it.NextWithinLevel()
		if !ok {
			break
		}
		w := weights.Get(e)
		if w == 0 {
			continue
		}
		for f := forward.Get(e); f != NilEdge && f != 0; f = forward.Get(f) {
			if EdgeLevel(e) >= EdgeLevel(f) {
				panic(fmt.Sprintf("mlcsr: %s: forward pointer not ascending at edge %x", c.name, uint64(e)))
			}
			weights.CowWriteAdd(f, -w)
		}
	}
}
