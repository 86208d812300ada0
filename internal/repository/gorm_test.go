package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func TestGormRepository_Snapshots(t *testing.T) {
	repo, err := NewGormRepository(setupTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("Empty", func(t *testing.T) {
		snaps, err := repo.GetSnapshots(ctx, "g")
		require.NoError(t, err)
		assert.Empty(t, snaps)
	})

	t.Run("RecordAndList", func(t *testing.T) {
		require.NoError(t, repo.RecordSnapshot(ctx, &Snapshot{
			Database: "g", Level: 0, MaxNodes: 4, NumEdges: 3,
		}))
		require.NoError(t, repo.RecordSnapshot(ctx, &Snapshot{
			Database: "g", Level: 1, MaxNodes: 4, NumEdges: 0,
		}))
		require.NoError(t, repo.RecordSnapshot(ctx, &Snapshot{
			Database: "other", Level: 0, MaxNodes: 1, NumEdges: 1,
		}))

		snaps, err := repo.GetSnapshots(ctx, "g")
		require.NoError(t, err)
		require.Len(t, snaps, 2)
		assert.Equal(t, 0, snaps[0].Level)
		assert.Equal(t, 1, snaps[1].Level)
		assert.Equal(t, int64(3), snaps[0].NumEdges)
	})

	t.Run("MarkEvicted", func(t *testing.T) {
		require.NoError(t, repo.MarkEvicted(ctx, "g", 1))

		snaps, err := repo.GetSnapshots(ctx, "g")
		require.NoError(t, err)
		assert.True(t, snaps[0].Evicted)
		assert.False(t, snaps[1].Evicted)
	})
}

func TestGormRepository_IngestBatches(t *testing.T) {
	repo, err := NewGormRepository(setupTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, repo.RecordIngestBatch(ctx, &IngestBatch{
		Database:   "g",
		Source:     "graph.net",
		FirstLevel: 0,
		LastLevel:  2,
		NumEdges:   1000,
		DurationMS: 12,
	}))

	var batches []IngestBatch
	require.NoError(t, setup(t, repo).Find(&batches).Error)
	require.Len(t, batches, 1)
	assert.Equal(t, "graph.net", batches[0].Source)
}

func setup(t *testing.T, repo *GormRepository) *gorm.DB {
	t.Helper()
	return repo.db
}
