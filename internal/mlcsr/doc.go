// Package mlcsr implements a multi-versioned, append-only graph store built
// on the multi-level compressed sparse row (MLCSR) representation.
//
// Each ingestion batch is frozen into an immutable snapshot (a "level").
// Adjacency lists span levels through continuation records, so committing a
// level never rewrites history. Vertex tables are shared across levels with
// software copy-on-write over reference-counted pages; edge tables are flat
// per-level arrays of packed words carrying the target node and the edge's
// maximum visible level. Deletion lowers the visible level and never removes
// the edge word.
//
// The main entry points are:
//
//   - Graph: the snapshot-aware facade over the out- and in-edge CSRs and
//     the named node/edge properties
//   - Graph.AddEdge, Graph.DeleteEdge, Graph.DeleteNode: stage mutations in
//     the writable area between checkpoints
//   - Graph.Checkpoint: freezes the staging area into a new level
//   - Graph.SetMinLevel: advances the visibility window and reclaims levels
package mlcsr
