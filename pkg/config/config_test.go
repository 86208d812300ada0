package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromReader_Defaults(t *testing.T) {
	cfg, err := LoadFromReader("yaml", []byte(""))
	require.NoError(t, err)

	assert.Equal(t, "graph", cfg.Database.Name)
	assert.Equal(t, 4, cfg.Database.Workers)
	assert.True(t, cfg.Database.ReverseEdges)
	assert.True(t, cfg.Database.ReverseMaps)
	assert.False(t, cfg.Database.Streaming)
	assert.Equal(t, "directed", cfg.Loader.Direction)
	assert.Equal(t, "sqlite", cfg.Catalog.Type)
	assert.Equal(t, "local", cfg.Archive.Type)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoadFromReader_Overrides(t *testing.T) {
	cfg, err := LoadFromReader("yaml", []byte(`
database:
  name: social
  workers: 16
  streaming: true
  keep_levels: 3
loader:
  direction: undirected_double
  batch_size: 100000
  deduplicate: true
telemetry:
  enabled: true
  endpoint: localhost:4317
`))
	require.NoError(t, err)

	assert.Equal(t, "social", cfg.Database.Name)
	assert.Equal(t, 16, cfg.Database.Workers)
	assert.True(t, cfg.Database.Streaming)
	assert.Equal(t, 3, cfg.Database.KeepLevels)
	assert.Equal(t, "undirected_double", cfg.Loader.Direction)
	assert.Equal(t, int64(100000), cfg.Loader.BatchSize)
	assert.True(t, cfg.Loader.Deduplicate)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.Endpoint)
}

func TestValidate(t *testing.T) {
	cfg, err := LoadFromReader("yaml", []byte(""))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	cfg.Database.Workers = 0
	assert.Error(t, cfg.Validate())
	cfg.Database.Workers = 2

	cfg.Loader.Direction = "sideways"
	assert.Error(t, cfg.Validate())
	cfg.Loader.Direction = "directed"

	cfg.Catalog.Enabled = true
	cfg.Catalog.Type = "mongodb"
	assert.Error(t, cfg.Validate())
	cfg.Catalog.Type = "postgres"
	require.NoError(t, cfg.Validate())

	cfg.Archive.Type = "s3"
	assert.Error(t, cfg.Validate())
}

func TestDatabasePath(t *testing.T) {
	cfg, err := LoadFromReader("yaml", []byte("database:\n  data_dir: /data\n  name: g\n"))
	require.NoError(t, err)
	assert.Equal(t, "/data/g", cfg.DatabasePath())
}
