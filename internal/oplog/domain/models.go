// Package domain contains persistence models for the append-only operation
// log and its daily rollups.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// OperationStatus is the terminal state of one PDF operation request.
type OperationStatus string

const (
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusFailed    OperationStatus = "failed"
)

// OperationRecord is one row of operation history. Rows are appended on
// completion and never mutated.
type OperationRecord struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	UserID     *snowflake.ID     `gorm:"index"`
	Type       string            `gorm:"type:text;not null;index"`
	FileName   string            `gorm:"type:text"`
	SizeBytes  int64             `gorm:"not null;default:0"`
	Status     OperationStatus   `gorm:"type:text;not null"`
	AccessType string            `gorm:"type:text;not null"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt  time.Time         `gorm:"not null;index"`
}

// TableName sets the database table name.
func (OperationRecord) TableName() string { return "operation_records" }

// OperationDailyStat is the scheduler-maintained per-day rollup the admin
// dashboard reads.
type OperationDailyStat struct {
	Day            time.Time `gorm:"primaryKey;type:date"`
	Type           string    `gorm:"primaryKey;type:text"`
	CompletedCount int64     `gorm:"not null;default:0"`
	FailedCount    int64     `gorm:"not null;default:0"`
	TotalBytes     int64     `gorm:"not null;default:0"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (OperationDailyStat) TableName() string { return "operation_daily_stats" }
