package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/vouchr/internal/callbackauth/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, dealID snowflake.ID) (*domain.CallbackConfig, error) {
	var item domain.CallbackConfig
	err := db.WithContext(ctx).Raw(
		`SELECT id, deal_id, secret, is_active, created_at, updated_at
		 FROM deal_callback_configs
		 WHERE deal_id = ?
		 LIMIT 1`,
		dealID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, cfg *domain.CallbackConfig) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "deal_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"secret", "is_active", "updated_at"}),
	}).Create(cfg).Error
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, dealID snowflake.ID, active bool, updatedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE deal_callback_configs SET is_active = ?, updated_at = ? WHERE deal_id = ?`,
		active,
		updatedAt,
		dealID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
