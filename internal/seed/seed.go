package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	callbackauthdomain "github.com/smallbiznis/vouchr/internal/callbackauth/domain"
	dealdomain "github.com/smallbiznis/vouchr/internal/deal/domain"
	"gorm.io/gorm"
)

const (
	defaultBusinessName  = "Demo Coffee"
	defaultBusinessEmail = "owner@demo-coffee.test"
	defaultDealTitle     = "Two coffees for one"
	defaultPrice         = "10.00"
	defaultCurrency      = "USD"
	defaultExpiration    = 720
)

// Demo identifies the rows EnsureDemo created or found.
type Demo struct {
	BusinessID snowflake.ID
	DealID     snowflake.ID
}

// EnsureDemo seeds one active business with a subscription and a
// purchasable deal for local development. Existing rows are reused, so the
// call is safe to repeat. A non-empty secret is stored as the deal's
// callback secret.
func EnsureDemo(ctx context.Context, db *gorm.DB, node *snowflake.Node, secrets callbackauthdomain.Service, secret string) (Demo, error) {
	if db == nil {
		return Demo{}, errors.New("seed database handle is required")
	}
	if node == nil {
		return Demo{}, errors.New("seed id generator is required")
	}

	var demo Demo
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		business, err := ensureBusinessTx(ctx, tx, node)
		if err != nil {
			return err
		}
		deal, err := ensureDealTx(ctx, tx, node, business.ID)
		if err != nil {
			return err
		}
		demo = Demo{BusinessID: business.ID, DealID: deal.ID}
		return nil
	})
	if err != nil {
		return Demo{}, err
	}

	if strings.TrimSpace(secret) != "" {
		if secrets == nil {
			return Demo{}, errors.New("callback secret service is required")
		}
		if err := secrets.Configure(ctx, demo.DealID, secret); err != nil {
			return Demo{}, fmt.Errorf("configure demo callback secret: %w", err)
		}
	}
	return demo, nil
}

func ensureBusinessTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (dealdomain.Business, error) {
	var business dealdomain.Business
	err := tx.WithContext(ctx).Where("name = ?", defaultBusinessName).First(&business).Error
	if err == nil {
		return business, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return business, err
	}

	now := time.Now().UTC()
	email := defaultBusinessEmail
	business = dealdomain.Business{
		ID:           node.Generate(),
		Name:         defaultBusinessName,
		Status:       dealdomain.BusinessStatusActive,
		Timezone:     "UTC",
		ContactEmail: &email,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.WithContext(ctx).Create(&business).Error; err != nil {
		return business, err
	}

	subscription := dealdomain.Subscription{
		ID:         node.Generate(),
		BusinessID: business.ID,
		Status:     dealdomain.SubscriptionStatusActive,
		CreatedAt:  now,
	}
	if err := tx.WithContext(ctx).Create(&subscription).Error; err != nil {
		return business, err
	}

	business.SubscriptionID = &subscription.ID
	if err := tx.WithContext(ctx).
		Model(&dealdomain.Business{}).
		Where("id = ?", business.ID).
		Update("subscription_id", subscription.ID).Error; err != nil {
		return business, err
	}
	return business, nil
}

func ensureDealTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, businessID snowflake.ID) (dealdomain.Deal, error) {
	var deal dealdomain.Deal
	err := tx.WithContext(ctx).
		Where("business_id = ? AND title = ?", businessID, defaultDealTitle).
		First(&deal).Error
	if err == nil {
		return deal, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return deal, err
	}

	now := time.Now().UTC()
	deal = dealdomain.Deal{
		ID:              node.Generate(),
		BusinessID:      businessID,
		Title:           defaultDealTitle,
		Status:          dealdomain.DealStatusActive,
		Price:           decimal.RequireFromString(defaultPrice),
		Currency:        defaultCurrency,
		ExpirationHours: defaultExpiration,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.WithContext(ctx).Create(&deal).Error; err != nil {
		return deal, err
	}
	return deal, nil
}
