package service

import (
	"context"

	accessdomain "github.com/smallbiznis/papermill/internal/access/domain"
	"github.com/smallbiznis/papermill/internal/cache"
	"github.com/smallbiznis/papermill/internal/clock"
	"github.com/smallbiznis/papermill/internal/observability/logger"
	userdomain "github.com/smallbiznis/papermill/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	UserSvc userdomain.Service
	Cache   cache.AccessRecordCache `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	clock   clock.Clock
	userSvc userdomain.Service
	cache   cache.AccessRecordCache
}

func NewService(p ServiceParam) accessdomain.Resolver {
	return &Service{
		log:     p.Log.Named("access.service"),
		clock:   p.Clock,
		userSvc: p.UserSvc,
		cache:   p.Cache,
	}
}

// Resolve computes the watermark decision for one request. The decision is
// optimistic for one-time claims: the ledger is consulted at consumption
// time, not here. A subscription always wins over a presented claim so a
// paid credit is never burned when the subscription already covers the
// request.
func (s *Service) Resolve(ctx context.Context, auth accessdomain.AuthContext, claim accessdomain.OneTimeClaim) accessdomain.AccessDecision {
	if auth.Anonymous {
		return decisionForFreeTier(claim)
	}

	user, err := s.lookupUser(ctx, auth)
	if err != nil {
		// Availability over strictness: resolver failures must not fail
		// the PDF operation.
		s.log.Warn("user lookup failed, degrading to anonymous tier",
			zap.String("email", auth.Email),
			zap.Error(err),
		)
		return decisionForFreeTier(claim)
	}
	if user == nil {
		// Authenticated session without a store record. Same degrade.
		logger.WithContext(ctx, s.log).Warn("authenticated user missing from store",
			zap.String("email", auth.Email),
		)
		return decisionForFreeTier(claim)
	}

	if user.IsPaid(s.clock.Now()) {
		return accessdomain.AccessDecision{
			HasWatermarkFreeAccess: true,
			AccessType:             accessdomain.AccessTypeSubscription,
			ShouldConsumeCredit:    false,
		}
	}

	return decisionForFreeTier(claim)
}

func (s *Service) lookupUser(ctx context.Context, auth accessdomain.AuthContext) (*userdomain.User, error) {
	if s.cache != nil {
		if user, ok := s.cache.GetUser(auth.Email); ok {
			return user, nil
		}
	}

	user, err := s.userSvc.GetByEmail(ctx, auth.Email)
	if err == userdomain.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetUser(auth.Email, user)
	}
	return user, nil
}

func decisionForFreeTier(claim accessdomain.OneTimeClaim) accessdomain.AccessDecision {
	if claim.Present {
		return accessdomain.AccessDecision{
			HasWatermarkFreeAccess: true,
			AccessType:             accessdomain.AccessTypeOneTime,
			ShouldConsumeCredit:    true,
			PurchaseID:             claim.PurchaseID,
		}
	}
	return accessdomain.AccessDecision{
		HasWatermarkFreeAccess: false,
		AccessType:             accessdomain.AccessTypeFree,
		ShouldConsumeCredit:    false,
	}
}
