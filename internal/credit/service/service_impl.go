package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/papermill/internal/clock"
	creditdomain "github.com/smallbiznis/papermill/internal/credit/domain"
	obsmetrics "github.com/smallbiznis/papermill/internal/observability/metrics"
	pkgdb "github.com/smallbiznis/papermill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const purchaseIDPrefix = "otp_"

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    creditdomain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    creditdomain.Repository
	metrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) creditdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("credit.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

// Consume is the authoritative half of the optimistic-decision design: the
// unique index on purchase_id is the only concurrency control, so concurrent
// duplicates race the insert and exactly one row ever lands. Failures other
// than a duplicate are swallowed; the caller's already-successful operation
// response must not change because bookkeeping misfired.
func (s *Service) Consume(ctx context.Context, purchaseID, operationType string) creditdomain.ConsumptionResult {
	purchaseID = strings.TrimSpace(purchaseID)
	result := s.consume(ctx, purchaseID, operationType)
	s.metrics.RecordCreditConsumption(string(result.Status))
	return result
}

func (s *Service) consume(ctx context.Context, purchaseID, operationType string) creditdomain.ConsumptionResult {
	if purchaseID == "" {
		return creditdomain.ConsumptionResult{Status: creditdomain.StatusUnknownPurchase}
	}

	purchase, err := s.repo.FindPurchase(ctx, s.db, purchaseID)
	if err != nil {
		s.log.Error("purchase lookup failed during consumption",
			zap.String("purchase_id", purchaseID),
			zap.Error(err),
		)
		return creditdomain.ConsumptionResult{Status: creditdomain.StatusFailed}
	}
	if purchase == nil {
		s.log.Warn("consumption attempted for unminted purchase id",
			zap.String("purchase_id", purchaseID),
			zap.String("operation_type", operationType),
		)
		return creditdomain.ConsumptionResult{Status: creditdomain.StatusUnknownPurchase}
	}

	row := &creditdomain.ConsumedOneTimePayment{
		ID:            s.genID.Generate(),
		PurchaseID:    purchaseID,
		OperationType: strings.ToUpper(strings.TrimSpace(operationType)),
		ConsumedAt:    s.clock.Now(),
	}
	if err := s.repo.InsertConsumed(ctx, s.db, row); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return creditdomain.ConsumptionResult{Status: creditdomain.StatusAlreadyConsumed}
		}
		s.log.Error("credit consumption insert failed",
			zap.String("purchase_id", purchaseID),
			zap.Error(err),
		)
		return creditdomain.ConsumptionResult{Status: creditdomain.StatusFailed}
	}

	return creditdomain.ConsumptionResult{Status: creditdomain.StatusConsumed}
}

func (s *Service) PurchaseExists(ctx context.Context, purchaseID string) (bool, error) {
	purchaseID = strings.TrimSpace(purchaseID)
	if purchaseID == "" {
		return false, creditdomain.ErrInvalidPurchaseID
	}
	purchase, err := s.repo.FindPurchase(ctx, s.db, purchaseID)
	if err != nil {
		return false, err
	}
	return purchase != nil, nil
}

func (s *Service) MintPurchase(ctx context.Context, email string, amountCent int64, currency string) (*creditdomain.OneTimePurchase, error) {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = "usd"
	}

	purchase := &creditdomain.OneTimePurchase{
		ID:         s.genID.Generate(),
		PurchaseID: purchaseIDPrefix + ulid.Make().String(),
		Email:      strings.ToLower(strings.TrimSpace(email)),
		AmountCent: amountCent,
		Currency:   currency,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.InsertPurchase(ctx, s.db, purchase); err != nil {
		return nil, err
	}
	return purchase, nil
}
