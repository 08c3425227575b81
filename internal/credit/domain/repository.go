package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	InsertConsumed(ctx context.Context, db *gorm.DB, row *ConsumedOneTimePayment) error
	InsertPurchase(ctx context.Context, db *gorm.DB, row *OneTimePurchase) error
	FindPurchase(ctx context.Context, db *gorm.DB, purchaseID string) (*OneTimePurchase, error)
	FindConsumed(ctx context.Context, db *gorm.DB, purchaseID string) (*ConsumedOneTimePayment, error)
}
