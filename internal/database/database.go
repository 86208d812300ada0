// Package database assembles the graph store: the MLCSR graph, the
// persistence collaborator, the snapshot catalog, and the archive backend,
// all rooted in one Database value.
package database

import (
	"context"
	"encoding/binary"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"

	"github.com/goatdb/llama/internal/loader"
	"github.com/goatdb/llama/internal/mlcsr"
	"github.com/goatdb/llama/internal/persistence"
	"github.com/goatdb/llama/internal/repository"
	"github.com/goatdb/llama/internal/storage"
	"github.com/goatdb/llama/pkg/config"
	llerrors "github.com/goatdb/llama/pkg/errors"
	"github.com/goatdb/llama/pkg/telemetry"
	"github.com/goatdb/llama/pkg/utils"
)

// Database is the root object of one graph store instance. Everything the
// store allocates is reachable from here; dropping the Database releases
// it all.
type Database struct {
	cfg *config.Config
	log utils.Logger

	graph *mlcsr.Graph

	store   persistence.Store
	outCtx  persistence.Context
	catalog repository.Repository
	archive storage.Storage
}

// Open creates a database from configuration.
func Open(cfg *config.Config, log utils.Logger) (*Database, error) {
	if log == nil {
		log = &utils.NullLogger{}
	}

	db := &Database{cfg: cfg, log: log}
	db.graph = mlcsr.NewGraph(cfg.Database.Name, mlcsr.GraphOptions{
		ReverseEdges: cfg.Database.ReverseEdges,
		ReverseMaps:  cfg.Database.ReverseMaps,
		Streaming:    cfg.Database.Streaming,
		Workers:      cfg.Database.Workers,
	}, log)

	if cfg.Database.DataDir != "" {
		if err := cfg.EnsureDataDir(); err != nil {
			return nil, llerrors.Wrap(llerrors.CodeStorageError, "cannot create data dir", err)
		}
		store, err := persistence.NewMmapStore(cfg.DatabasePath())
		if err != nil {
			return nil, llerrors.Wrap(llerrors.CodeStorageError, "cannot open persistence store", err)
		}
		db.store = store
	} else {
		db.store = persistence.NewMemoryStore()
	}

	outCtx, err := db.store.OpenContext("out-csr", cfg.Database.Name)
	if err != nil {
		return nil, llerrors.Wrap(llerrors.CodeStorageError, "cannot open persistence context", err)
	}
	db.outCtx = outCtx

	if cfg.Catalog.Enabled {
		catalog, err := repository.New(&cfg.Catalog)
		if err != nil {
			return nil, llerrors.Wrap(llerrors.CodeDatabaseError, "cannot open catalog", err)
		}
		db.catalog = catalog
	}

	return db, nil
}

// Graph returns the underlying graph.
func (db *Database) Graph() *mlcsr.Graph { return db.graph }

// Loader returns a loader bound to this database's graph.
func (db *Database) Loader() *loader.Loader {
	return loader.New(db.graph, db.cfg.Loader, db.log)
}

// Checkpoint freezes the writable stage into a new level, persists the
// level image, records it in the catalog, and applies the configured
// retention.
func (db *Database) Checkpoint(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "llama.checkpoint",
		attribute.Int64("staged_edges", db.graph.NumStagedEdges()))
	defer span.End()

	cc := mlcsr.DefaultCheckpointConfig()
	cc.ReverseEdges = db.cfg.Database.ReverseEdges
	cc.ReverseMaps = db.cfg.Database.ReverseMaps

	if err := db.graph.Checkpoint(cc); err != nil {
		return err
	}
	level := db.graph.MaxLevel()

	if err := db.persistLevel(ctx, level); err != nil {
		return err
	}

	if db.catalog != nil {
		err := db.catalog.RecordSnapshot(ctx, &repository.Snapshot{
			Database: db.cfg.Database.Name,
			Level:    level,
			MaxNodes: db.graph.MaxNodes(),
			NumEdges: db.graph.Out().MaxEdgesAt(level),
		})
		if err != nil {
			db.log.Warn("catalog: %v", err)
		}
	}

	if k := db.cfg.Database.KeepLevels; k > 0 {
		if err := db.KeepOnlyRecentVersions(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// SetMinLevel advances the visibility window.
func (db *Database) SetMinLevel(ctx context.Context, m int) error {
	ctx, span := telemetry.StartSpan(ctx, "llama.evict", attribute.Int("min_level", m))
	defer span.End()

	if err := db.graph.SetMinLevel(m); err != nil {
		return err
	}
	for l := 0; l < db.graph.MinLevel(); l++ {
		_ = db.outCtx.DropLevel(l)
	}
	if db.catalog != nil {
		if err := db.catalog.MarkEvicted(ctx, db.cfg.Database.Name, db.graph.MinLevel()); err != nil {
			db.log.Warn("catalog: %v", err)
		}
	}
	return nil
}

// KeepOnlyRecentVersions advances the window to retain keep snapshots.
func (db *Database) KeepOnlyRecentVersions(ctx context.Context, keep int) error {
	m := db.graph.MaxLevel() - keep + 1
	if m <= db.graph.MinLevel() {
		return nil
	}
	return db.SetMinLevel(ctx, m)
}

// persistLevel writes the new level's edge-table image through the
// persistence contract and commits it.
func (db *Database) persistLevel(ctx context.Context, level int) error {
	et := db.graph.Out().EdgeTableAt(level)
	words := db.graph.Out().MaxEdgesAt(level)

	chunk, err := db.outCtx.AllocateChunk(level, words*8)
	if err != nil {
		return llerrors.Wrap(llerrors.CodeStorageError, "cannot allocate level chunk", err)
	}
	buf := chunk.Bytes()
	for i := int64(0); i < words; i++ {
		binary.LittleEndian.PutUint64(buf[i*8:], et.Value(i))
	}
	if err := chunk.Finalize(words * 8); err != nil {
		return llerrors.Wrap(llerrors.CodeStorageError, "cannot finalize level chunk", err)
	}

	var header [16]byte
	binary.LittleEndian.PutUint64(header[0:], uint64(level))
	binary.LittleEndian.PutUint64(header[8:], uint64(words))
	if err := db.outCtx.WriteHeader(header[:]); err != nil {
		return llerrors.Wrap(llerrors.CodeStorageError, "cannot write context header", err)
	}

	if err := db.outCtx.Sync(ctx, level); err != nil {
		return llerrors.Wrap(llerrors.CodeStorageError, "cannot sync level", err)
	}
	return nil
}

// ArchiveLevels uploads the persisted level files to the configured
// archive backend. Only meaningful with a data directory.
func (db *Database) ArchiveLevels(ctx context.Context) error {
	if db.cfg.Database.DataDir == "" {
		return llerrors.New(llerrors.CodeUnsupportedFeature,
			"archiving requires a data directory")
	}
	if db.archive == nil {
		a, err := storage.New(&db.cfg.Archive)
		if err != nil {
			return err
		}
		db.archive = a
	}

	root := db.cfg.DatabasePath()
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(filepath.Join(db.cfg.Database.Name, rel))
		if err := db.archive.UploadFile(ctx, key, path); err != nil {
			return fmt.Errorf("archive %s: %w", rel, err)
		}
		return nil
	})
}

// Stats returns a human-oriented summary of the store.
func (db *Database) Stats() string {
	g := db.graph
	return fmt.Sprintf("name=%s levels=%d min=%d max=%d nodes=%d staged=%d mem=%dB",
		g.Name(), g.NumLevels(), g.MinLevel(), g.MaxLevel(), g.MaxNodes(),
		g.NumStagedEdges(), g.Out().InMemorySize()+g.In().InMemorySize())
}

// Close releases the database.
func (db *Database) Close() error {
	db.graph.Terminate()
	var first error
	if db.catalog != nil {
		if err := db.catalog.Close(); err != nil {
			first = err
		}
	}
	if err := db.store.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// Remove deletes the on-disk state of a database. Destructive.
func Remove(cfg *config.Config) error {
	if cfg.Database.DataDir == "" {
		return nil
	}
	return os.RemoveAll(cfg.DatabasePath())
}
