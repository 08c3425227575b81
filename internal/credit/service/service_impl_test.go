package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accessdomain "github.com/smallbiznis/papermill/internal/access/domain"
	accessservice "github.com/smallbiznis/papermill/internal/access/service"
	"github.com/smallbiznis/papermill/internal/clock"
	creditdomain "github.com/smallbiznis/papermill/internal/credit/domain"
	creditrepo "github.com/smallbiznis/papermill/internal/credit/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newCreditService(t *testing.T) (creditdomain.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&creditdomain.OneTimePurchase{},
		&creditdomain.ConsumedOneTimePayment{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Repo:  creditrepo.Provide(),
	})
	return svc, db
}

func TestConsume_FirstUseThenIdempotent(t *testing.T) {
	svc, db := newCreditService(t)
	ctx := context.Background()

	purchase, err := svc.MintPurchase(ctx, "buyer@example.com", 499, "usd")
	require.NoError(t, err)
	require.NotEmpty(t, purchase.PurchaseID)

	first := svc.Consume(ctx, purchase.PurchaseID, "MERGE")
	assert.Equal(t, creditdomain.StatusConsumed, first.Status)

	// A client retry after a timed-out response replays the consume.
	second := svc.Consume(ctx, purchase.PurchaseID, "MERGE")
	assert.Equal(t, creditdomain.StatusAlreadyConsumed, second.Status)

	var count int64
	require.NoError(t, db.Model(&creditdomain.ConsumedOneTimePayment{}).
		Where("purchase_id = ?", purchase.PurchaseID).Count(&count).Error)
	assert.Equal(t, int64(1), count, "exactly one ledger row per purchase id")
}

func TestConsume_UnknownPurchaseID(t *testing.T) {
	svc, db := newCreditService(t)

	result := svc.Consume(context.Background(), "otp_FORGED", "SPLIT")
	assert.Equal(t, creditdomain.StatusUnknownPurchase, result.Status)

	var count int64
	require.NoError(t, db.Model(&creditdomain.ConsumedOneTimePayment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestConsume_EmptyPurchaseID(t *testing.T) {
	svc, _ := newCreditService(t)

	result := svc.Consume(context.Background(), "  ", "MERGE")
	assert.Equal(t, creditdomain.StatusUnknownPurchase, result.Status)
}

func TestConsume_StorageFailureIsSwallowed(t *testing.T) {
	svc, db := newCreditService(t)
	ctx := context.Background()

	purchase, err := svc.MintPurchase(ctx, "buyer@example.com", 499, "usd")
	require.NoError(t, err)

	// Simulate the ledger table going away mid-flight.
	require.NoError(t, db.Migrator().DropTable(&creditdomain.ConsumedOneTimePayment{}))

	result := svc.Consume(ctx, purchase.PurchaseID, "COMPRESS")
	assert.Equal(t, creditdomain.StatusFailed, result.Status, "non-conflict failures surface as failed, never as an error")
}

func TestPurchaseExists(t *testing.T) {
	svc, _ := newCreditService(t)
	ctx := context.Background()

	purchase, err := svc.MintPurchase(ctx, "buyer@example.com", 499, "usd")
	require.NoError(t, err)

	exists, err := svc.PurchaseExists(ctx, purchase.PurchaseID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = svc.PurchaseExists(ctx, "otp_NOPE")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = svc.PurchaseExists(ctx, "")
	assert.ErrorIs(t, err, creditdomain.ErrInvalidPurchaseID)
}

// Two anonymous requests present the same freshly minted purchase id. The
// first burns the credit; the replay is a no-op against the ledger even
// though the resolver stays optimistic on both requests.
func TestOneTimeCreditAcrossTwoRequests(t *testing.T) {
	svc, db := newCreditService(t)
	ctx := context.Background()

	resolver := accessservice.NewService(accessservice.ServiceParam{
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	})

	purchase, err := svc.MintPurchase(ctx, "buyer@example.com", 499, "usd")
	require.NoError(t, err)
	claim := accessdomain.OneTimeClaim{Present: true, PurchaseID: purchase.PurchaseID}

	first := resolver.Resolve(ctx, accessdomain.AnonymousContext(), claim)
	require.True(t, first.HasWatermarkFreeAccess)
	require.True(t, first.ShouldConsumeCredit)
	assert.Equal(t, creditdomain.StatusConsumed, svc.Consume(ctx, first.PurchaseID, "merge").Status)

	second := resolver.Resolve(ctx, accessdomain.AnonymousContext(), claim)
	require.True(t, second.ShouldConsumeCredit)
	assert.Equal(t, creditdomain.StatusAlreadyConsumed, svc.Consume(ctx, second.PurchaseID, "merge").Status)

	var count int64
	require.NoError(t, db.Model(&creditdomain.ConsumedOneTimePayment{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestMintPurchase_UniqueIDs(t *testing.T) {
	svc, _ := newCreditService(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for range 10 {
		purchase, err := svc.MintPurchase(ctx, "buyer@example.com", 499, "usd")
		require.NoError(t, err)
		assert.False(t, seen[purchase.PurchaseID])
		seen[purchase.PurchaseID] = true
	}
}
