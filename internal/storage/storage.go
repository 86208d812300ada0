// Package storage provides the archive backends that ship finalized
// persistence files (level images, headers) off-box.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/goatdb/llama/pkg/config"
)

// Storage defines the interface for archive storage operations.
type Storage interface {
	// Upload uploads data from reader to the specified key.
	Upload(ctx context.Context, key string, reader io.Reader) error

	// UploadFile uploads a local file to the specified key.
	UploadFile(ctx context.Context, key string, localPath string) error

	// Download downloads data from the specified key.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// DownloadFile downloads data from the specified key to a local file.
	DownloadFile(ctx context.Context, key string, localPath string) error

	// Delete deletes the object at the specified key.
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists at the specified key.
	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns the URL for the specified key (if applicable).
	GetURL(key string) string
}

// Type represents the archive backend type.
type Type string

const (
	TypeLocal Type = "local"
	TypeCOS   Type = "cos"
)

// LevelKey returns the archive key of one level's image of a database.
func LevelKey(database string, level int, file string) string {
	return path.Join(database, fmt.Sprintf("level-%06d", level), file)
}

// New creates a Storage instance based on the configuration.
func New(cfg *config.ArchiveConfig) (Storage, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	switch Type(cfg.Type) {
	case TypeCOS:
		return NewCOSStorage(&COSConfig{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
			Domain:    cfg.Domain,
			Scheme:    cfg.Scheme,
		})
	default:
		return NewLocalStorage(cfg.LocalPath)
	}
}

// ValidateConfig validates the archive configuration.
func ValidateConfig(cfg *config.ArchiveConfig) error {
	if cfg == nil {
		return fmt.Errorf("archive config is nil")
	}

	t := Type(cfg.Type)
	if t == "" {
		t = TypeLocal
	}
	if t != TypeCOS && t != TypeLocal {
		return fmt.Errorf("unsupported archive type: %s", cfg.Type)
	}

	if t == TypeCOS {
		if cfg.Bucket == "" {
			return fmt.Errorf("COS bucket is required")
		}
		if cfg.Region == "" {
			return fmt.Errorf("COS region is required")
		}
		if cfg.SecretID == "" || cfg.SecretKey == "" {
			return fmt.Errorf("COS credentials are required")
		}
	}
	if t == TypeLocal && cfg.LocalPath == "" {
		return fmt.Errorf("local archive path is required")
	}
	return nil
}
