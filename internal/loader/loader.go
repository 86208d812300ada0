// Package loader ingests graph files into the writable stage and drives
// checkpoints. Parsers are looked up by file extension through a registry;
// the loader owns deduplication, edge direction handling, batching, and
// progress reporting.
package loader

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goatdb/llama/internal/mlcsr"
	"github.com/goatdb/llama/pkg/config"
	llerrors "github.com/goatdb/llama/pkg/errors"
	"github.com/goatdb/llama/pkg/parallel"
	"github.com/goatdb/llama/pkg/utils"
)

// WeightProperty is the edge property weighted input formats fill.
const WeightProperty = "weight"

// Edge is one parsed input edge.
type Edge struct {
	Tail   mlcsr.NodeID
	Head   mlcsr.NodeID
	Weight float32
}

// Parser reads one input format and emits edges in file order.
type Parser interface {
	// Name returns the format name.
	Name() string

	// Extensions returns the file extensions this parser claims.
	Extensions() []string

	// Parse reads the file and calls emit for every edge. A non-nil
	// error from emit aborts the parse.
	Parse(path string, cfg *config.LoaderConfig, emit func(Edge) error) error
}

// ============================================================================
// Registry
// ============================================================================

var (
	registryMu sync.Mutex
	registry   = make(map[string]Parser)
)

// Register adds a parser for its extensions. Later registrations win.
func Register(p Parser) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, ext := range p.Extensions() {
		registry[ext] = p
	}
}

// ForFile returns the parser claiming the file's extension.
func ForFile(path string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(path))
	registryMu.Lock()
	p, ok := registry[ext]
	registryMu.Unlock()
	if !ok {
		return nil, llerrors.New(llerrors.CodeParseError,
			fmt.Sprintf("no parser registered for %q", ext))
	}
	return p, nil
}

func init() {
	Register(&TextEdgeListParser{})
	Register(&BinaryEdgeListParser{})
	Register(&XStream1Parser{})
}

// ============================================================================
// Load driver
// ============================================================================

// Stats summarizes one load run.
type Stats struct {
	EdgesRead    int64
	EdgesLoaded  int64
	Deduplicated int64
	Dropped      int64
	FirstLevel   int
	LastLevel    int
}

// Loader feeds parsed edges into a graph's writable stage, checkpointing
// per batch.
type Loader struct {
	graph *mlcsr.Graph
	cfg   config.LoaderConfig
	log   utils.Logger
}

// New creates a loader for the graph.
func New(graph *mlcsr.Graph, cfg config.LoaderConfig, log utils.Logger) *Loader {
	if log == nil {
		log = &utils.NullLogger{}
	}
	return &Loader{graph: graph, cfg: cfg, log: log}
}

// checkpointConfig maps the loader configuration onto the options the
// core honors.
func (l *Loader) checkpointConfig() *mlcsr.CheckpointConfig {
	cc := mlcsr.DefaultCheckpointConfig()
	cc.ReverseEdges = l.graph.Options().ReverseEdges
	cc.ReverseMaps = l.graph.Options().ReverseMaps
	cc.Deduplicate = l.cfg.Deduplicate
	cc.SortEdges = l.cfg.SortEdges
	cc.XSBufferSize = l.cfg.XSBufferSize
	cc.TmpDirs = l.cfg.TmpDirs
	cc.PrintProgress = l.cfg.PrintProgress
	switch l.cfg.Direction {
	case "undirected_double":
		cc.Direction = mlcsr.UndirectedDouble
	case "undirected_ordered":
		cc.Direction = mlcsr.UndirectedOrdered
	default:
		cc.Direction = mlcsr.Directed
	}
	return cc
}

// LoadFile parses one file into the graph, checkpointing every BatchSize
// edges (one checkpoint for the whole file when zero).
func (l *Loader) LoadFile(ctx context.Context, path string) (*Stats, error) {
	parser, err := ForFile(path)
	if err != nil {
		return nil, err
	}

	cc := l.checkpointConfig()
	if err := cc.Validate(l.graph); err != nil {
		return nil, err
	}

	stats := &Stats{FirstLevel: l.graph.NumLevels()}
	timer := utils.NewTimer()

	var progress *parallel.ProgressTracker
	if l.cfg.PrintProgress {
		if info, err := os.Stat(path); err == nil {
			// Progress in edges is unknown up front; report read counts.
			progress = parallel.NewProgressTracker(info.Size(), func(done, total int64) {
				l.log.Info("load %s: %d edges read", filepath.Base(path), done)
			}, 0)
			progress.Start(ctx)
			defer progress.Stop()
		}
	}

	var weightProp *mlcsr.EdgeProperty[uint32]
	seen := make(map[[2]mlcsr.NodeID]struct{})
	batch := int64(0)

	flush := func() error {
		if err := l.graph.Checkpoint(cc); err != nil {
			return err
		}
		batch = 0
		if l.cfg.Deduplicate {
			seen = make(map[[2]mlcsr.NodeID]struct{})
		}
		return nil
	}

	add := func(tail, head mlcsr.NodeID, weight float32) error {
		if l.cfg.Deduplicate {
			key := [2]mlcsr.NodeID{tail, head}
			if _, dup := seen[key]; dup {
				stats.Deduplicated++
				return nil
			}
			seen[key] = struct{}{}
		}
		e := l.graph.AddEdge(tail, head)
		if e == mlcsr.NilEdge {
			stats.Dropped++
			return nil
		}
		if weight != 0 {
			if weightProp == nil {
				weightProp = l.graph.GetEdgeProperty32(WeightProperty)
				if weightProp == nil {
					weightProp = l.graph.CreateEdgeProperty32(WeightProperty, mlcsr.TFloat)
				}
			}
			l.graph.SetStagedEdgeProperty32(e, weightProp.ID(), math.Float32bits(weight))
		}
		stats.EdgesLoaded++
		batch++
		if l.cfg.BatchSize > 0 && batch >= l.cfg.BatchSize {
			return flush()
		}
		return nil
	}

	err = parser.Parse(path, &l.cfg, func(in Edge) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.graph.Terminated() {
			return llerrors.New(llerrors.CodeInvalidInput, "load terminated")
		}
		stats.EdgesRead++
		if progress != nil {
			progress.Increment()
		}

		switch cc.Direction {
		case mlcsr.UndirectedDouble:
			if err := add(in.Tail, in.Head, in.Weight); err != nil {
				return err
			}
			if in.Tail != in.Head {
				return add(in.Head, in.Tail, in.Weight)
			}
			return nil
		case mlcsr.UndirectedOrdered:
			if in.Tail > in.Head {
				stats.Dropped++
				return nil
			}
			return add(in.Tail, in.Head, in.Weight)
		default:
			return add(in.Tail, in.Head, in.Weight)
		}
	})
	if err != nil {
		return stats, err
	}

	if batch > 0 || l.graph.NumStagedEdges() > 0 || l.graph.NumLevels() == stats.FirstLevel {
		if err := flush(); err != nil {
			return stats, err
		}
	}
	stats.LastLevel = l.graph.NumLevels() - 1

	l.log.Info("loaded %s: %d read, %d loaded, %d deduplicated, levels %d..%d in %s",
		filepath.Base(path), stats.EdgesRead, stats.EdgesLoaded, stats.Deduplicated,
		stats.FirstLevel, stats.LastLevel, utils.FormatDuration(timer.Total()))
	return stats, nil
}
