// Package repository provides the snapshot catalog: a small relational
// record of committed levels and ingestion batches, useful for operating
// a store across restarts and for auditing window advancement.
package repository

import (
	"context"
	"time"
)

// Snapshot is one committed level of a database.
type Snapshot struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Database  string    `gorm:"column:database_name;type:varchar(128);index:idx_db_level,unique"`
	Level     int       `gorm:"column:level;index:idx_db_level,unique"`
	MaxNodes  int64     `gorm:"column:max_nodes"`
	NumEdges  int64     `gorm:"column:num_edges"`
	Evicted   bool      `gorm:"column:evicted"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name for Snapshot.
func (Snapshot) TableName() string {
	return "snapshots"
}

// IngestBatch is one bulk-load run that produced one or more snapshots.
type IngestBatch struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Database   string    `gorm:"column:database_name;type:varchar(128);index"`
	Source     string    `gorm:"column:source;type:varchar(512)"`
	FirstLevel int       `gorm:"column:first_level"`
	LastLevel  int       `gorm:"column:last_level"`
	NumEdges   int64     `gorm:"column:num_edges"`
	DurationMS int64     `gorm:"column:duration_ms"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name for IngestBatch.
func (IngestBatch) TableName() string {
	return "ingest_batches"
}

// Repository defines the catalog operations.
type Repository interface {
	// RecordSnapshot stores one committed level.
	RecordSnapshot(ctx context.Context, s *Snapshot) error

	// MarkEvicted flags every level of the database below minLevel.
	MarkEvicted(ctx context.Context, database string, minLevel int) error

	// GetSnapshots returns the database's snapshots in level order.
	GetSnapshots(ctx context.Context, database string) ([]Snapshot, error)

	// RecordIngestBatch stores one bulk-load run.
	RecordIngestBatch(ctx context.Context, b *IngestBatch) error

	// Close releases the underlying connection.
	Close() error
}
