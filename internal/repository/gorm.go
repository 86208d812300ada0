package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// GormRepository implements Repository on top of a GORM connection.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository wraps an open GORM connection and migrates the
// catalog schema.
func NewGormRepository(db *gorm.DB) (*GormRepository, error) {
	if err := db.AutoMigrate(&Snapshot{}, &IngestBatch{}); err != nil {
		return nil, fmt.Errorf("failed to migrate catalog schema: %w", err)
	}
	return &GormRepository{db: db}, nil
}

// RecordSnapshot stores one committed level.
func (r *GormRepository) RecordSnapshot(ctx context.Context, s *Snapshot) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("failed to record snapshot: %w", err)
	}
	return nil
}

// MarkEvicted flags every level of the database below minLevel.
func (r *GormRepository) MarkEvicted(ctx context.Context, database string, minLevel int) error {
	err := r.db.WithContext(ctx).
		Model(&Snapshot{}).
		Where("database_name = ? AND level < ? AND evicted = ?", database, minLevel, false).
		Update("evicted", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark evicted snapshots: %w", err)
	}
	return nil
}

// GetSnapshots returns the database's snapshots in level order.
func (r *GormRepository) GetSnapshots(ctx context.Context, database string) ([]Snapshot, error) {
	var out []Snapshot
	err := r.db.WithContext(ctx).
		Where("database_name = ?", database).
		Order("level ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}
	return out, nil
}

// RecordIngestBatch stores one bulk-load run.
func (r *GormRepository) RecordIngestBatch(ctx context.Context, b *IngestBatch) error {
	if err := r.db.WithContext(ctx).Create(b).Error; err != nil {
		return fmt.Errorf("failed to record ingest batch: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (r *GormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
