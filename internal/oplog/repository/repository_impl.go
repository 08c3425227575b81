package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	oplogdomain "github.com/smallbiznis/papermill/internal/oplog/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() oplogdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *oplogdomain.OperationRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, beforeID snowflake.ID, limit int) ([]*oplogdomain.OperationRecord, error) {
	stmt := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit)
	if beforeID != 0 {
		stmt = stmt.Where("id < ?", beforeID)
	}

	var records []*oplogdomain.OperationRecord
	err := stmt.Find(&records).Error
	return records, err
}

func (r *repo) Summarize(ctx context.Context, db *gorm.DB) (oplogdomain.Summary, error) {
	summary := oplogdomain.Summary{ByType: map[string]int64{}}

	type totalsRow struct {
		Total     int64
		Completed int64
		Failed    int64
		Bytes     int64
	}
	var totals totalsRow
	err := db.WithContext(ctx).Model(&oplogdomain.OperationRecord{}).
		Select(`COUNT(*) AS total,
			SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) AS completed,
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) AS failed,
			COALESCE(SUM(size_bytes), 0) AS bytes`).
		Scan(&totals).Error
	if err != nil {
		return summary, err
	}
	summary.TotalOperations = totals.Total
	summary.TotalCompleted = totals.Completed
	summary.TotalFailed = totals.Failed
	summary.TotalBytes = totals.Bytes

	type typeRow struct {
		Type  string
		Count int64
	}
	var byType []typeRow
	err = db.WithContext(ctx).Model(&oplogdomain.OperationRecord{}).
		Select("type, COUNT(*) AS count").
		Group("type").
		Scan(&byType).Error
	if err != nil {
		return summary, err
	}
	for _, row := range byType {
		summary.ByType[row.Type] = row.Count
	}
	return summary, nil
}

func (r *repo) ListDailyStats(ctx context.Context, db *gorm.DB, from, to time.Time) ([]oplogdomain.OperationDailyStat, error) {
	var stats []oplogdomain.OperationDailyStat
	err := db.WithContext(ctx).
		Where("day >= ? AND day <= ?", from, to).
		Order("day ASC").
		Find(&stats).Error
	return stats, err
}

// UpsertDailyStats recomputes one day's rollup from the raw log. Safe to run
// repeatedly for the same day.
func (r *repo) UpsertDailyStats(ctx context.Context, db *gorm.DB, day time.Time, now time.Time) error {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	type aggRow struct {
		Type      string
		Completed int64
		Failed    int64
		Bytes     int64
	}
	var rows []aggRow
	err := db.WithContext(ctx).Model(&oplogdomain.OperationRecord{}).
		Select(`type,
			SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) AS completed,
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) AS failed,
			COALESCE(SUM(size_bytes), 0) AS bytes`).
		Where("created_at >= ? AND created_at < ?", dayStart, dayEnd).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return err
	}

	for _, row := range rows {
		stat := oplogdomain.OperationDailyStat{
			Day:            dayStart,
			Type:           row.Type,
			CompletedCount: row.Completed,
			FailedCount:    row.Failed,
			TotalBytes:     row.Bytes,
			UpdatedAt:      now,
		}
		err := db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "day"}, {Name: "type"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"completed_count", "failed_count", "total_bytes", "updated_at",
			}),
		}).Create(&stat).Error
		if err != nil {
			return err
		}
	}
	return nil
}
