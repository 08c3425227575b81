package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/papermill/internal/auth/session"
	"github.com/smallbiznis/papermill/internal/clock"
	oplogdomain "github.com/smallbiznis/papermill/internal/oplog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	OplogRepo oplogdomain.Repository
	Sessions  *session.Store `optional:"true"`
	Config    Config         `optional:"true"`
}

// Scheduler runs the periodic maintenance jobs: the daily analytics
// rollup and expired-session pruning.
type Scheduler struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       Config
	clock     clock.Clock
	oplogRepo oplogdomain.Repository
	sessions  *session.Store
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.OplogRepo == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:        p.DB,
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		clock:     p.Clock,
		oplogRepo: p.OplogRepo,
		sessions:  p.Sessions,
	}, nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var jobErr error
	if err := s.runJob(parent, "rollup_daily_stats", s.RollupDailyStatsJob); err != nil {
		jobErr = errors.Join(jobErr, err)
	}
	if err := s.runJob(parent, "prune_sessions", s.PruneSessionsJob); err != nil {
		jobErr = errors.Join(jobErr, err)
	}
	return jobErr
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	start := s.clock.Now()
	err := fn(ctx)
	log := s.log.With(
		zap.String("job", name),
		zap.Duration("elapsed", s.clock.Now().Sub(start)),
	)
	if err != nil {
		log.Warn("job failed", zap.Error(err))
		return err
	}
	log.Debug("job finished")
	return nil
}

// RollupDailyStatsJob re-aggregates operation_daily_stats for today and
// the trailing lookback days, so late log appends still land in the
// right bucket.
func (s *Scheduler) RollupDailyStatsJob(ctx context.Context) error {
	now := s.clock.Now()
	var jobErr error
	for i := 0; i < s.cfg.RollupLookback; i++ {
		day := now.AddDate(0, 0, -i).Truncate(24 * time.Hour)
		if err := s.oplogRepo.UpsertDailyStats(ctx, s.db, day, now); err != nil {
			jobErr = errors.Join(jobErr, err)
		}
	}
	return jobErr
}

func (s *Scheduler) PruneSessionsJob(ctx context.Context) error {
	if s.sessions == nil {
		return nil
	}
	pruned, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		return err
	}
	if pruned > 0 {
		s.log.Info("pruned expired sessions", zap.Int64("count", pruned))
	}
	return nil
}
