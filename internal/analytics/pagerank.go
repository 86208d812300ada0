// Package analytics holds the reference analytic kernels. They consume
// only the traversal primitives the store exposes and double as the
// engine's end-to-end exercise of the hot paths.
package analytics

import (
	"github.com/goatdb/llama/internal/mlcsr"
	llerrors "github.com/goatdb/llama/pkg/errors"
	"github.com/goatdb/llama/pkg/parallel"
)

// PageRankOptions configures a PageRank run.
type PageRankOptions struct {
	// Damping is the damping factor.
	Damping float64

	// Iterations is the number of power iterations.
	Iterations int

	// Workers is the parallelism.
	Workers int
}

// DefaultPageRankOptions returns the usual parameters.
func DefaultPageRankOptions() PageRankOptions {
	return PageRankOptions{Damping: 0.85, Iterations: 10, Workers: 4}
}

// PageRank computes the pull-based PageRank over the latest snapshot:
// each node gathers rank from its in-neighbors, divided by their
// out-degrees. Requires reverse edges.
func PageRank(g *mlcsr.Graph, opts PageRankOptions) ([]float64, error) {
	if !g.HasReverseEdges() {
		return nil, llerrors.New(llerrors.CodeUnsupportedFeature,
			"pagerank requires reverse edges")
	}
	n := g.MaxNodes()
	if n == 0 {
		return nil, nil
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Iterations < 1 {
		opts.Iterations = 1
	}

	rank := make([]float64, n)
	next := make([]float64, n)
	initial := 1.0 / float64(n)
	for i := range rank {
		rank[i] = initial
	}
	base := (1.0 - opts.Damping) / float64(n)

	for iter := 0; iter < opts.Iterations; iter++ {
		parallel.ForRange(opts.Workers, int(n), func(worker, start, end int) {
			var it mlcsr.EdgeIterator
			for v := start; v < end; v++ {
				sum := 0.0
				g.InIterBegin(&it, mlcsr.NodeID(v), -1, -1)
				for {
					if _, ok := it.Next(); !ok {
						break
					}
					u := it.Target()
					if d := g.OutDegree(u); d > 0 {
						sum += rank[u] / float64(d)
					}
				}
				next[v] = base + opts.Damping*sum
			}
		})
		rank, next = next, rank
	}
	return rank, nil
}
