package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/papermill/internal/clock"
	oplogdomain "github.com/smallbiznis/papermill/internal/oplog/domain"
	"github.com/smallbiznis/papermill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  oplogdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  oplogdomain.Repository
}

func NewService(p ServiceParam) oplogdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("oplog.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Append swallows failures: history is best-effort bookkeeping and must not
// disturb a response the transform already earned.
func (s *Service) Append(ctx context.Context, req oplogdomain.AppendRequest) {
	record := &oplogdomain.OperationRecord{
		ID:         s.genID.Generate(),
		UserID:     req.UserID,
		Type:       strings.ToUpper(strings.TrimSpace(req.Type)),
		FileName:   req.FileName,
		SizeBytes:  req.SizeBytes,
		Status:     req.Status,
		AccessType: req.AccessType,
		Metadata:   datatypes.JSONMap(req.Metadata),
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, record); err != nil {
		s.log.Error("operation log append failed",
			zap.String("operation_type", record.Type),
			zap.Error(err),
		)
	}
}

func (s *Service) List(ctx context.Context, req oplogdomain.ListRequest) (oplogdomain.ListResponse, error) {
	limit := req.PageSize
	if limit <= 0 {
		limit = 20
	}
	if limit > 250 {
		limit = 250
	}

	var beforeID snowflake.ID
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return oplogdomain.ListResponse{}, err
		}
		raw, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return oplogdomain.ListResponse{}, err
		}
		beforeID = snowflake.ID(raw)
	}

	records, err := s.repo.ListByUser(ctx, s.db, req.UserID, beforeID, limit+1)
	if err != nil {
		return oplogdomain.ListResponse{}, err
	}

	pageInfo, records := pagination.BuildCursorPageInfo(records, limit, func(r *oplogdomain.OperationRecord) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: strconv.FormatInt(int64(r.ID), 10)})
		return token
	})

	resp := oplogdomain.ListResponse{PageInfo: *pageInfo}
	resp.Operations = make([]oplogdomain.OperationRecord, 0, len(records))
	for _, r := range records {
		resp.Operations = append(resp.Operations, *r)
	}
	return resp, nil
}

func (s *Service) Summarize(ctx context.Context) (oplogdomain.Summary, error) {
	return s.repo.Summarize(ctx, s.db)
}

func (s *Service) DailyStats(ctx context.Context, from, to time.Time) ([]oplogdomain.OperationDailyStat, error) {
	return s.repo.ListDailyStats(ctx, s.db, from, to)
}
