package repository

import (
	"context"

	"github.com/smallbiznis/vouchr/internal/callback/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, attempt *domain.Attempt) error {
	return db.WithContext(ctx).Create(attempt).Error
}
