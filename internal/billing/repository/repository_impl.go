package repository

import (
	"context"

	"github.com/smallbiznis/papermill/internal/billing/domain"
	"gorm.io/gorm"
)

type repositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) InsertEvent(ctx context.Context, record *domain.EventRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}
