package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SignableFields are the callback fields covered by the provider signature.
type SignableFields struct {
	TransactionID     string
	Amount            decimal.Decimal
	Currency          string
	Status            string
	CustomerReference string
	Timestamp         int64
}

type Reason string

const (
	ReasonOK                   Reason = "ok"
	ReasonMissingSignature     Reason = "missing_signature"
	ReasonMalformedSignature   Reason = "malformed_signature"
	ReasonConfigNotFound       Reason = "callback_config_not_found"
	ReasonConfigInvalid        Reason = "callback_config_invalid"
	ReasonReplayWindowExceeded Reason = "replay_window_exceeded"
	ReasonSignatureMismatch    Reason = "signature_mismatch"
)

type VerifyResult struct {
	Valid  bool
	Reason Reason
}

// CallbackConfig holds the per-deal shared secret as an encrypted envelope.
type CallbackConfig struct {
	ID        snowflake.ID   `gorm:"primaryKey"`
	DealID    snowflake.ID   `gorm:"column:deal_id"`
	Secret    datatypes.JSON `gorm:"column:secret"`
	IsActive  bool           `gorm:"column:is_active"`
	CreatedAt time.Time      `gorm:"column:created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at"`
}

func (CallbackConfig) TableName() string { return "deal_callback_configs" }
