package repository

import (
	"context"
	"errors"

	creditdomain "github.com/smallbiznis/papermill/internal/credit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() creditdomain.Repository {
	return &repo{}
}

func (r *repo) InsertConsumed(ctx context.Context, db *gorm.DB, row *creditdomain.ConsumedOneTimePayment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO consumed_one_time_payments (id, purchase_id, operation_type, consumed_at)
		 VALUES (?, ?, ?, ?)`,
		row.ID,
		row.PurchaseID,
		row.OperationType,
		row.ConsumedAt,
	).Error
}

func (r *repo) InsertPurchase(ctx context.Context, db *gorm.DB, row *creditdomain.OneTimePurchase) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO one_time_purchases (id, purchase_id, email, amount_cent, currency, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		row.ID,
		row.PurchaseID,
		row.Email,
		row.AmountCent,
		row.Currency,
		row.CreatedAt,
	).Error
}

func (r *repo) FindPurchase(ctx context.Context, db *gorm.DB, purchaseID string) (*creditdomain.OneTimePurchase, error) {
	var purchase creditdomain.OneTimePurchase
	err := db.WithContext(ctx).Where("purchase_id = ?", purchaseID).First(&purchase).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &purchase, nil
}

func (r *repo) FindConsumed(ctx context.Context, db *gorm.DB, purchaseID string) (*creditdomain.ConsumedOneTimePayment, error) {
	var consumed creditdomain.ConsumedOneTimePayment
	err := db.WithContext(ctx).Where("purchase_id = ?", purchaseID).First(&consumed).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &consumed, nil
}
