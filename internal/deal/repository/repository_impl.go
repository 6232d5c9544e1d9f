package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/vouchr/internal/deal/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) GetDealWithBusiness(ctx context.Context, db *gorm.DB, dealID snowflake.ID) (*domain.DealWithBusiness, error) {
	var deal domain.Deal
	err := db.WithContext(ctx).Raw(
		`SELECT id, business_id, title, description, status, price, currency, expiration_hours,
			validity_windows, max_vouchers, issued_count, county_id, created_at, updated_at
		 FROM deals WHERE id = ?`,
		dealID,
	).Scan(&deal).Error
	if err != nil {
		return nil, err
	}
	if deal.ID == 0 {
		return nil, nil
	}

	var business domain.Business
	err = db.WithContext(ctx).Raw(
		`SELECT id, name, status, timezone, county_id, contact_email, subscription_id, created_at, updated_at
		 FROM businesses WHERE id = ?`,
		deal.BusinessID,
	).Scan(&business).Error
	if err != nil {
		return nil, err
	}

	result := &domain.DealWithBusiness{Deal: deal, Business: business}
	if business.SubscriptionID == nil {
		return result, nil
	}

	var subscription domain.Subscription
	err = db.WithContext(ctx).Raw(
		`SELECT id, business_id, status, ends_at, created_at
		 FROM subscriptions WHERE id = ?`,
		*business.SubscriptionID,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID != 0 {
		result.Subscription = &subscription
	}
	return result, nil
}

func (r *repo) ReserveCapacity(ctx context.Context, db *gorm.DB, dealID snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE deals
		 SET issued_count = issued_count + 1
		 WHERE id = ? AND (max_vouchers IS NULL OR issued_count < max_vouchers)`,
		dealID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
