package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accessdomain "github.com/smallbiznis/papermill/internal/access/domain"
	"github.com/smallbiznis/papermill/internal/clock"
	userdomain "github.com/smallbiznis/papermill/internal/user/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockUserSvc struct {
	mock.Mock
}

func (m *mockUserSvc) Register(ctx context.Context, req userdomain.RegisterRequest) (*userdomain.User, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*userdomain.User), args.Error(1)
}

func (m *mockUserSvc) Authenticate(ctx context.Context, req userdomain.AuthenticateRequest) (*userdomain.User, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*userdomain.User), args.Error(1)
}

func (m *mockUserSvc) GetByID(ctx context.Context, id snowflake.ID) (*userdomain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*userdomain.User), args.Error(1)
}

func (m *mockUserSvc) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*userdomain.User), args.Error(1)
}

func (m *mockUserSvc) ApplySubscriptionUpdate(ctx context.Context, update userdomain.SubscriptionUpdate) error {
	args := m.Called(ctx, update)
	return args.Error(0)
}

func newResolver(t *testing.T, userSvc userdomain.Service, now time.Time) accessdomain.Resolver {
	t.Helper()
	return NewService(ServiceParam{
		Log:     zap.NewNop(),
		Clock:   clock.NewFakeClock(now),
		UserSvc: userSvc,
	})
}

func timePtr(t time.Time) *time.Time { return &t }

func TestResolve_SubscriptionWinsOverClaim(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, plan := range []userdomain.Plan{userdomain.PlanMonthly, userdomain.PlanYearly} {
		userSvc := &mockUserSvc{}
		userSvc.On("GetByEmail", mock.Anything, "paid@example.com").Return(&userdomain.User{
			ID:                    1,
			Email:                 "paid@example.com",
			SubscriptionPlan:      plan,
			SubscriptionStatus:    userdomain.SubscriptionStatusActive,
			SubscriptionPeriodEnd: timePtr(now.Add(24 * time.Hour)),
		}, nil)

		resolver := newResolver(t, userSvc, now)
		decision := resolver.Resolve(context.Background(),
			accessdomain.AuthContext{Email: "paid@example.com"},
			accessdomain.OneTimeClaim{Present: true, PurchaseID: "p-unused"},
		)

		assert.True(t, decision.HasWatermarkFreeAccess, "plan %s", plan)
		assert.Equal(t, accessdomain.AccessTypeSubscription, decision.AccessType)
		assert.False(t, decision.ShouldConsumeCredit, "credit must never burn under a subscription")
	}
}

func TestResolve_OneTimeClaimGrantsAccess(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("anonymous", func(t *testing.T) {
		resolver := newResolver(t, &mockUserSvc{}, now)
		decision := resolver.Resolve(context.Background(),
			accessdomain.AnonymousContext(),
			accessdomain.OneTimeClaim{Present: true, PurchaseID: "p1"},
		)
		assert.True(t, decision.HasWatermarkFreeAccess)
		assert.Equal(t, accessdomain.AccessTypeOneTime, decision.AccessType)
		assert.True(t, decision.ShouldConsumeCredit)
		assert.Equal(t, "p1", decision.PurchaseID)
	})

	t.Run("free user", func(t *testing.T) {
		userSvc := &mockUserSvc{}
		userSvc.On("GetByEmail", mock.Anything, "free@example.com").Return(&userdomain.User{
			ID:               2,
			Email:            "free@example.com",
			SubscriptionPlan: userdomain.PlanFree,
		}, nil)

		resolver := newResolver(t, userSvc, now)
		decision := resolver.Resolve(context.Background(),
			accessdomain.AuthContext{Email: "free@example.com"},
			accessdomain.OneTimeClaim{Present: true, PurchaseID: "p2"},
		)
		assert.True(t, decision.HasWatermarkFreeAccess)
		assert.Equal(t, accessdomain.AccessTypeOneTime, decision.AccessType)
		assert.True(t, decision.ShouldConsumeCredit)
	})
}

func TestResolve_NoSubscriptionNoClaim(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	resolver := newResolver(t, &mockUserSvc{}, now)
	decision := resolver.Resolve(context.Background(), accessdomain.AnonymousContext(), accessdomain.OneTimeClaim{})

	assert.False(t, decision.HasWatermarkFreeAccess)
	assert.Equal(t, accessdomain.AccessTypeFree, decision.AccessType)
	assert.False(t, decision.ShouldConsumeCredit)
}

func TestResolve_ExpiredPeriodOverridesStoredPlan(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	userSvc := &mockUserSvc{}
	userSvc.On("GetByEmail", mock.Anything, "lapsed@example.com").Return(&userdomain.User{
		ID:                    3,
		Email:                 "lapsed@example.com",
		SubscriptionPlan:      userdomain.PlanMonthly,
		SubscriptionStatus:    userdomain.SubscriptionStatusActive,
		SubscriptionPeriodEnd: timePtr(now.Add(-time.Hour)),
	}, nil)

	resolver := newResolver(t, userSvc, now)

	decision := resolver.Resolve(context.Background(),
		accessdomain.AuthContext{Email: "lapsed@example.com"},
		accessdomain.OneTimeClaim{},
	)
	assert.False(t, decision.HasWatermarkFreeAccess)
	assert.Equal(t, accessdomain.AccessTypeFree, decision.AccessType)

	// With a claim, the lapsed user behaves exactly like a free user.
	withClaim := resolver.Resolve(context.Background(),
		accessdomain.AuthContext{Email: "lapsed@example.com"},
		accessdomain.OneTimeClaim{Present: true, PurchaseID: "p3"},
	)
	assert.True(t, withClaim.HasWatermarkFreeAccess)
	assert.Equal(t, accessdomain.AccessTypeOneTime, withClaim.AccessType)
	assert.True(t, withClaim.ShouldConsumeCredit)
}

func TestResolve_MissingRecordDegradesToAnonymous(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	userSvc := &mockUserSvc{}
	userSvc.On("GetByEmail", mock.Anything, "ghost@example.com").Return(nil, userdomain.ErrNotFound)

	resolver := newResolver(t, userSvc, now)
	decision := resolver.Resolve(context.Background(),
		accessdomain.AuthContext{Email: "ghost@example.com"},
		accessdomain.OneTimeClaim{Present: true, PurchaseID: "p4"},
	)

	require.True(t, decision.HasWatermarkFreeAccess)
	assert.Equal(t, accessdomain.AccessTypeOneTime, decision.AccessType)
}

func TestResolve_LookupErrorDegradesToAnonymous(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	userSvc := &mockUserSvc{}
	userSvc.On("GetByEmail", mock.Anything, "down@example.com").Return(nil, errors.New("store unavailable"))

	resolver := newResolver(t, userSvc, now)
	decision := resolver.Resolve(context.Background(),
		accessdomain.AuthContext{Email: "down@example.com"},
		accessdomain.OneTimeClaim{},
	)

	assert.False(t, decision.HasWatermarkFreeAccess)
	assert.Equal(t, accessdomain.AccessTypeFree, decision.AccessType)
}
