// Package config provides configuration management for the graph store
// and its companion tools.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all configuration for the database and the CLI.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Loader    LoaderConfig    `mapstructure:"loader"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

// DatabaseConfig holds engine configuration.
type DatabaseConfig struct {
	// Name is the database name, also the persistence namespace prefix.
	Name string `mapstructure:"name"`

	// DataDir is the root of persisted state; empty keeps the store
	// memory-only.
	DataDir string `mapstructure:"data_dir"`

	// Workers is the parallelism of internal sweeps.
	Workers int `mapstructure:"workers"`

	// ReverseEdges builds the in-edge CSR at each checkpoint.
	ReverseEdges bool `mapstructure:"reverse_edges"`

	// ReverseMaps additionally maintains edge-ID translation maps.
	ReverseMaps bool `mapstructure:"reverse_maps"`

	// Streaming enables the sliding-window mode: weights instead of
	// duplicate edges, forward pointers, degree age-off on eviction.
	Streaming bool `mapstructure:"streaming"`

	// KeepLevels, when positive, evicts all but this many most recent
	// snapshots after each checkpoint.
	KeepLevels int `mapstructure:"keep_levels"`
}

// LoaderConfig holds bulk-loader defaults.
type LoaderConfig struct {
	Deduplicate   bool     `mapstructure:"deduplicate"`
	SortEdges     bool     `mapstructure:"sort_edges"`
	Direction     string   `mapstructure:"direction"` // directed, undirected_double, undirected_ordered
	BatchSize     int64    `mapstructure:"batch_size"`
	XSBufferSize  int64    `mapstructure:"xs_buffer_size"`
	TmpDirs       []string `mapstructure:"tmp_dirs"`
	PrintProgress bool     `mapstructure:"print_progress"`
}

// CatalogConfig holds the snapshot-catalog database configuration.
type CatalogConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Type     string `mapstructure:"type"` // sqlite, mysql or postgres
	Path     string `mapstructure:"path"` // sqlite file
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// ArchiveConfig holds the archive-storage configuration for persisted
// level files.
type ArchiveConfig struct {
	Type      string `mapstructure:"type"` // local or cos
	LocalPath string `mapstructure:"local_path"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`
	Scheme    string `mapstructure:"scheme"`
}

// TelemetryConfig holds tracing configuration.
type TelemetryConfig struct {
	Enabled     bool              `mapstructure:"enabled"`
	ServiceName string            `mapstructure:"service_name"`
	Endpoint    string            `mapstructure:"endpoint"`
	Protocol    string            `mapstructure:"protocol"`
	Headers     map[string]string `mapstructure:"headers"`
	Insecure    bool              `mapstructure:"insecure"`
	SampleRatio float64           `mapstructure:"sample_ratio"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
}

// Load reads configuration from the specified file path, falling back to
// the standard locations and the defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/llama")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
			// No config file; run on defaults.
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadFromReader loads configuration from raw content (useful for tests).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.name", "graph")
	v.SetDefault("database.workers", 4)
	v.SetDefault("database.reverse_edges", true)
	v.SetDefault("database.reverse_maps", true)
	v.SetDefault("database.streaming", false)
	v.SetDefault("database.keep_levels", 0)

	v.SetDefault("loader.direction", "directed")
	v.SetDefault("loader.batch_size", 0)
	v.SetDefault("loader.xs_buffer_size", 256*1024*1024)
	v.SetDefault("loader.print_progress", false)

	v.SetDefault("catalog.enabled", false)
	v.SetDefault("catalog.type", "sqlite")
	v.SetDefault("catalog.path", "./llama-catalog.db")
	v.SetDefault("catalog.port", 5432)

	v.SetDefault("archive.type", "local")
	v.SetDefault("archive.local_path", "./archive")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "llama")
	v.SetDefault("telemetry.protocol", "grpc")

	v.SetDefault("log.level", "info")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.Workers < 1 {
		return fmt.Errorf("database workers must be at least 1")
	}
	switch c.Loader.Direction {
	case "directed", "undirected_double", "undirected_ordered":
	default:
		return fmt.Errorf("unsupported loader direction: %s", c.Loader.Direction)
	}
	if c.Catalog.Enabled {
		switch c.Catalog.Type {
		case "sqlite", "mysql", "postgres":
		default:
			return fmt.Errorf("unsupported catalog type: %s", c.Catalog.Type)
		}
	}
	switch c.Archive.Type {
	case "", "local", "cos":
	default:
		return fmt.Errorf("unsupported archive type: %s", c.Archive.Type)
	}
	return nil
}

// EnsureDataDir creates the data directory if it is configured.
func (c *Config) EnsureDataDir() error {
	if c.Database.DataDir == "" {
		return nil
	}
	return os.MkdirAll(c.Database.DataDir, 0755)
}

// DatabasePath returns the directory of the named database under DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Database.DataDir, c.Database.Name)
}
