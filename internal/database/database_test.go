package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatdb/llama/internal/mlcsr"
	"github.com/goatdb/llama/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader("yaml", []byte("database:\n  name: test\n  workers: 2\n"))
	require.NoError(t, err)
	cfg.Database.ReverseEdges = true
	cfg.Database.ReverseMaps = true
	return cfg
}

func writeEdges(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "g.net")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDatabase_LoadAndCheckpoint(t *testing.T) {
	db, err := Open(testConfig(t), nil)
	require.NoError(t, err)
	defer db.Close()

	path := writeEdges(t, "1 2\n1 3\n2 3\n")
	stats, err := db.Loader().LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.EdgesLoaded)

	g := db.Graph()
	assert.Equal(t, 1, g.NumLevels())
	assert.Equal(t, int64(2), g.OutDegree(1))
	assert.Equal(t, int64(2), g.InDegree(3))
	assert.Contains(t, db.Stats(), "levels=1")
}

func TestDatabase_PersistedLevels(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.DataDir = t.TempDir()

	db, err := Open(cfg, nil)
	require.NoError(t, err)

	g := db.Graph()
	g.AddEdge(1, 2)
	require.NoError(t, db.Checkpoint(context.Background()))

	marker := filepath.Join(cfg.DatabasePath(), "test", "out-csr", "level-000000", "COMMIT")
	_, err = os.Stat(marker)
	assert.NoError(t, err, "checkpoint commits the level image")

	require.NoError(t, db.Close())
}

func TestDatabase_Retention(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.KeepLevels = 2

	db, err := Open(cfg, nil)
	require.NoError(t, err)
	defer db.Close()

	g := db.Graph()
	for i := int64(0); i < 4; i++ {
		g.AddEdge(1, mlcsr.NodeID(10+i))
		require.NoError(t, db.Checkpoint(context.Background()))
	}

	assert.Equal(t, 3, g.MaxLevel())
	assert.Equal(t, 2, g.MinLevel(), "only the two most recent snapshots remain")
}

func TestDatabase_ArchiveRequiresDataDir(t *testing.T) {
	db, err := Open(testConfig(t), nil)
	require.NoError(t, err)
	defer db.Close()

	require.Error(t, db.ArchiveLevels(context.Background()))
}

func TestDatabase_ArchiveUploads(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.DataDir = t.TempDir()
	cfg.Archive.Type = "local"
	cfg.Archive.LocalPath = t.TempDir()

	db, err := Open(cfg, nil)
	require.NoError(t, err)
	defer db.Close()

	db.Graph().AddEdge(1, 2)
	require.NoError(t, db.Checkpoint(context.Background()))
	require.NoError(t, db.ArchiveLevels(context.Background()))

	archived := filepath.Join(cfg.Archive.LocalPath, "test", "test", "out-csr",
		"level-000000", "COMMIT")
	_, err = os.Stat(archived)
	assert.NoError(t, err)
}
