package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *OperationRecord) error
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, beforeID snowflake.ID, limit int) ([]*OperationRecord, error)
	Summarize(ctx context.Context, db *gorm.DB) (Summary, error)
	ListDailyStats(ctx context.Context, db *gorm.DB, from, to time.Time) ([]OperationDailyStat, error)
	UpsertDailyStats(ctx context.Context, db *gorm.DB, day time.Time, now time.Time) error
}
