package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	userdomain "github.com/smallbiznis/papermill/internal/user/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() userdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, user *userdomain.User) error {
	return db.WithContext(ctx).Create(user).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*userdomain.User, error) {
	var user userdomain.User
	err := db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*userdomain.User, error) {
	var user userdomain.User
	err := db.WithContext(ctx).Where("email = ?", userdomain.NormalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *repo) UpdateSubscription(ctx context.Context, db *gorm.DB, update userdomain.SubscriptionUpdate) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users
		 SET subscription_plan = ?, subscription_status = ?, subscription_period_end = ?, updated_at = ?
		 WHERE id = ?`,
		update.Plan,
		update.Status,
		update.PeriodEnd,
		update.UpdatedAt,
		update.UserID,
	).Error
}
