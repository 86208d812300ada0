package analytics

import (
	"github.com/goatdb/llama/internal/mlcsr"
	"github.com/goatdb/llama/pkg/collections"
)

// BFSResult holds the outcome of one breadth-first search.
type BFSResult struct {
	// Distance maps node -> hop count from the root, -1 if unreached.
	Distance []int32

	// Reached is the number of reached nodes, the root included.
	Reached int64
}

// BFS runs a level-synchronous breadth-first search over the out-edges of
// the latest snapshot.
func BFS(g *mlcsr.Graph, root mlcsr.NodeID) *BFSResult {
	n := g.MaxNodes()
	res := &BFSResult{Distance: make([]int32, n)}
	for i := range res.Distance {
		res.Distance[i] = -1
	}
	if root < 0 || root >= mlcsr.NodeID(n) || !g.NodeExists(root) {
		return res
	}

	visited := collections.NewBitset(int(n))
	frontier := []mlcsr.NodeID{root}
	visited.Set(int(root))
	res.Distance[root] = 0
	res.Reached = 1

	var it mlcsr.EdgeIterator
	depth := int32(0)
	for len(frontier) > 0 {
		depth++
		var next []mlcsr.NodeID
		for _, u := range frontier {
			g.OutIterBegin(&it, u, -1, -1)
			for {
				if _, ok := it.Next(); !ok {
					break
				}
				v := it.Target()
				if visited.Test(int(v)) {
					continue
				}
				visited.Set(int(v))
				res.Distance[v] = depth
				res.Reached++
				next = append(next, v)
			}
		}
		frontier = next
	}
	return res
}

// CountReachable returns, per root, how many nodes its out-edges reach
// (the root included). The visited set resets between roots in O(1).
func CountReachable(g *mlcsr.Graph, roots []mlcsr.NodeID) []int64 {
	n := g.MaxNodes()
	counts := make([]int64, len(roots))
	visited := collections.NewVersionedBitset(int(n))

	frontier := collections.GetNodeSlice()
	next := collections.GetNodeSlice()
	defer collections.PutNodeSlice(frontier)
	defer collections.PutNodeSlice(next)

	var it mlcsr.EdgeIterator
	for ri, root := range roots {
		if root < 0 || root >= mlcsr.NodeID(n) || !g.NodeExists(root) {
			continue
		}
		visited.Reset()
		visited.Set(int(root))
		*frontier = append((*frontier)[:0], int64(root))
		counts[ri] = 1

		for len(*frontier) > 0 {
			*next = (*next)[:0]
			for _, u := range *frontier {
				g.OutIterBegin(&it, mlcsr.NodeID(u), -1, -1)
				for {
					if _, ok := it.Next(); !ok {
						break
					}
					v := it.Target()
					if visited.Test(int(v)) {
						continue
					}
					visited.Set(int(v))
					counts[ri]++
					*next = append(*next, int64(v))
				}
			}
			*frontier, *next = *next, *frontier
		}
	}
	return counts
}
