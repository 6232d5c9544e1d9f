package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeSystem ActorType = "SYSTEM"
	ActorTypeVendor ActorType = "VENDOR"
	ActorTypeAdmin  ActorType = "ADMIN"
)

type Action string

const (
	ActionIssued                  Action = "ISSUED"
	ActionCallbackIdempotentRetry Action = "CALLBACK_IDEMPOTENT_RETRY"
	ActionRedeemed                Action = "REDEEMED"
	ActionRejectedAlreadyRedeemed Action = "REDEMPTION_REJECTED_ALREADY_REDEEMED"
	ActionRejectedWrongBusiness   Action = "REDEMPTION_REJECTED_WRONG_BUSINESS"
	ActionRejectedExpired         Action = "REDEMPTION_REJECTED_EXPIRED"
	ActionRejectedOutsideWindow   Action = "REDEMPTION_REJECTED_OUTSIDE_WINDOW"
	ActionEmailSent               Action = "EMAIL_SENT"
	ActionEmailFailed             Action = "EMAIL_FAILED"
)

// AuditLog is one immutable entry of a voucher's history.
type AuditLog struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	VoucherID snowflake.ID      `json:"voucher_id"`
	ActorType string            `json:"actor_type"`
	ActorID   string            `json:"actor_id"`
	Action    string            `json:"action"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func (AuditLog) TableName() string { return "voucher_audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	VoucherID snowflake.ID
	Action    string
	Cursor    *AuditCursor
	Limit     int
}
