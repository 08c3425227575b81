package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/papermill/internal/auth/session"
	"github.com/smallbiznis/papermill/internal/clock"
	oplogdomain "github.com/smallbiznis/papermill/internal/oplog/domain"
	oplogrepo "github.com/smallbiznis/papermill/internal/oplog/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestScheduler(t *testing.T) (*Scheduler, *gorm.DB, *clock.FakeClock, *session.Store) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&oplogdomain.OperationRecord{},
		&oplogdomain.OperationDailyStat{},
		&session.Session{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fakeClock := clock.NewFakeClock(time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC))
	store := session.NewStore(gdb, node)

	sched, err := New(Params{
		DB:        gdb,
		Log:       zap.NewNop(),
		Clock:     fakeClock,
		OplogRepo: oplogrepo.Provide(),
		Sessions:  store,
	})
	require.NoError(t, err)
	return sched, gdb, fakeClock, store
}

func TestRollupDailyStatsJob(t *testing.T) {
	sched, gdb, fakeClock, _ := newTestScheduler(t)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	now := fakeClock.Now()
	records := []oplogdomain.OperationRecord{
		{ID: node.Generate(), Type: "merge", Status: "completed", SizeBytes: 1000, AccessType: "free", CreatedAt: now},
		{ID: node.Generate(), Type: "merge", Status: "completed", SizeBytes: 2000, AccessType: "one_time", CreatedAt: now},
		{ID: node.Generate(), Type: "split", Status: "failed", SizeBytes: 500, AccessType: "free", CreatedAt: now},
		// Yesterday's record lands in the lookback bucket.
		{ID: node.Generate(), Type: "merge", Status: "completed", SizeBytes: 300, AccessType: "free", CreatedAt: now.Add(-24 * time.Hour)},
	}
	for i := range records {
		require.NoError(t, gdb.Create(&records[i]).Error)
	}

	require.NoError(t, sched.RollupDailyStatsJob(context.Background()))

	var stats []oplogdomain.OperationDailyStat
	require.NoError(t, gdb.Order("day, type").Find(&stats).Error)
	require.Len(t, stats, 3)

	today := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	yesterday := today.Add(-24 * time.Hour)

	assert.Equal(t, yesterday, stats[0].Day.UTC())
	assert.Equal(t, "merge", stats[0].Type)
	assert.Equal(t, int64(1), stats[0].CompletedCount)

	assert.Equal(t, today, stats[1].Day.UTC())
	assert.Equal(t, "merge", stats[1].Type)
	assert.Equal(t, int64(2), stats[1].CompletedCount)
	assert.Equal(t, int64(3000), stats[1].TotalBytes)

	assert.Equal(t, "split", stats[2].Type)
	assert.Equal(t, int64(1), stats[2].FailedCount)

	// Re-running recomputes in place instead of duplicating rows.
	require.NoError(t, sched.RollupDailyStatsJob(context.Background()))
	var count int64
	require.NoError(t, gdb.Model(&oplogdomain.OperationDailyStat{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestPruneSessionsJob(t *testing.T) {
	sched, gdb, _, store := newTestScheduler(t)

	_, live, err := store.Create(context.Background(), 1, "ua", "127.0.0.1")
	require.NoError(t, err)

	expired := session.Session{
		ID:         live.ID + 1,
		UserID:     2,
		TokenHash:  "stale",
		ExpiresAt:  time.Now().UTC().Add(-time.Hour),
		CreatedAt:  time.Now().UTC().Add(-48 * time.Hour),
		LastSeenAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	require.NoError(t, gdb.Create(&expired).Error)

	require.NoError(t, sched.PruneSessionsJob(context.Background()))

	var remaining []session.Session
	require.NoError(t, gdb.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, live.ID, remaining[0].ID)
}
