package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusIssued   Status = "ISSUED"
	StatusRedeemed Status = "REDEEMED"
	// StatusExpired is never stored. It is derived at read time.
	StatusExpired Status = "EXPIRED"
)

// Validation is the idempotency ledger row for one confirmed payment.
type Validation struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	BusinessID  snowflake.ID `json:"business_id"`
	DealID      snowflake.ID `json:"deal_id"`
	ExternalRef string       `json:"external_ref"`
	CreatedAt   time.Time    `json:"created_at"`
}

func (Validation) TableName() string { return "validations" }

type Voucher struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	DealID            snowflake.ID `json:"deal_id"`
	BusinessID        snowflake.ID `json:"business_id"`
	ValidationID      snowflake.ID `json:"validation_id"`
	QRToken           string       `json:"-"`
	Status            Status       `json:"status"`
	CustomerReference string       `json:"-"`
	IssuedAt          time.Time    `json:"issued_at"`
	ExpiresAt         time.Time    `json:"expires_at"`
	RedeemedAt        *time.Time   `json:"redeemed_at,omitempty"`
}

func (Voucher) TableName() string { return "vouchers" }

// EffectiveStatus reports EXPIRED for an unredeemed voucher past expiry.
func (v Voucher) EffectiveStatus(now time.Time) Status {
	if v.Status == StatusIssued && now.After(v.ExpiresAt) {
		return StatusExpired
	}
	return v.Status
}

// VoucherView is the read model returned to vendors and admins.
type VoucherView struct {
	ID         snowflake.ID `json:"id"`
	DealID     snowflake.ID `json:"deal_id"`
	BusinessID snowflake.ID `json:"business_id"`
	DealTitle  string       `json:"deal_title"`
	Status     Status       `json:"status"`
	IssuedAt   time.Time    `json:"issued_at"`
	ExpiresAt  time.Time    `json:"expires_at"`
	RedeemedAt *time.Time   `json:"redeemed_at,omitempty"`
}
