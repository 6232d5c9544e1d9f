package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// GetDealWithBusiness returns nil without error when the deal does not exist.
	GetDealWithBusiness(ctx context.Context, db *gorm.DB, dealID snowflake.ID) (*DealWithBusiness, error)
	// ReserveCapacity increments the deal's issued counter unless the cap is
	// reached. It reports false when the deal is sold out.
	ReserveCapacity(ctx context.Context, db *gorm.DB, dealID snowflake.ID) (bool, error)
}
