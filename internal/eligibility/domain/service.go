package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	dealdomain "github.com/smallbiznis/vouchr/internal/deal/domain"
)

type CheckRequest struct {
	DealID        snowflake.ID
	AmountPaid    decimal.Decimal
	Currency      string
	PaymentStatus string
}

// Service decides whether a confirmed payment may produce a voucher. A
// refusal is returned as a *voucher/domain.Rejection.
type Service interface {
	Check(ctx context.Context, req CheckRequest) (*dealdomain.DealWithBusiness, error)
}
