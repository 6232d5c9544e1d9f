package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// CallbackRequest is a decoded payment confirmation from the provider.
type CallbackRequest struct {
	DealID                string
	ExternalTransactionID string
	AmountPaid            decimal.Decimal
	Currency              string
	PaymentStatus         string
	CustomerReference     string
	Signature             string
	Timestamp             int64
	Payload               json.RawMessage
}

type CallbackResult struct {
	VoucherID  snowflake.ID `json:"voucherId"`
	Idempotent bool         `json:"idempotent"`
	Message    string       `json:"message"`
}

type Outcome string

const (
	OutcomeIssued          Outcome = "issued"
	OutcomeIdempotentRetry Outcome = "idempotent_retry"
	OutcomeRejected        Outcome = "rejected"
	OutcomeFailed          Outcome = "failed"
)

// Attempt is the append-only diagnostic record of one inbound callback.
type Attempt struct {
	ID                    snowflake.ID        `gorm:"primaryKey" json:"id"`
	DealID                string              `json:"deal_id"`
	ExternalTransactionID string              `json:"external_transaction_id"`
	AmountPaid            decimal.NullDecimal `json:"amount_paid"`
	Currency              string              `json:"currency"`
	PaymentStatus         string              `json:"payment_status"`
	CustomerReference     string              `json:"customer_reference"`
	CallbackTimestamp     *int64              `json:"callback_timestamp,omitempty"`
	SignatureValid        bool                `json:"signature_valid"`
	Outcome               Outcome             `json:"outcome"`
	ErrorCode             string              `json:"error_code,omitempty"`
	ErrorMessage          *string             `json:"error_message,omitempty"`
	VoucherID             *snowflake.ID       `json:"voucher_id,omitempty"`
	RequestID             string              `json:"request_id,omitempty"`
	Payload               datatypes.JSON      `json:"payload,omitempty"`
	ReceivedAt            time.Time           `json:"received_at"`
}

func (Attempt) TableName() string { return "payment_callback_attempts" }
