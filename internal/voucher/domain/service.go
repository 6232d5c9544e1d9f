package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/vouchr/internal/audit/domain"
	dealdomain "github.com/smallbiznis/vouchr/internal/deal/domain"
	"gorm.io/gorm"
)

type IssueKind int

const (
	IssueCreated IssueKind = iota + 1
	IssueAlreadyExists
	// IssueRejected means the request cannot succeed as sent. Err carries a
	// Rejection such as DealSoldOut, or ErrInvalidIssueRequest.
	IssueRejected
	IssueTransientFailure
)

func (k IssueKind) String() string {
	switch k {
	case IssueCreated:
		return "created"
	case IssueAlreadyExists:
		return "already_exists"
	case IssueRejected:
		return "rejected"
	case IssueTransientFailure:
		return "transient_failure"
	}
	return "unknown"
}

var ErrInvalidIssueRequest = errors.New("invalid_issue_request")

type IssueOutcome struct {
	Kind      IssueKind
	VoucherID snowflake.ID
	Err       error
}

type IssueRequest struct {
	Deal              *dealdomain.DealWithBusiness
	ExternalRef       string
	CustomerReference string
	// OnIssued runs inside the issuance transaction after the voucher row is
	// written. An error rolls the whole issuance back.
	OnIssued func(ctx context.Context, tx *gorm.DB, v *Voucher) error
}

type RedeemRequest struct {
	QRToken    string
	BusinessID snowflake.ID
	ActorType  auditdomain.ActorType
	ActorID    string
}

type RedeemResult struct {
	VoucherID  snowflake.ID `json:"voucherId"`
	RedeemedAt time.Time    `json:"redeemedAt"`
}

type Service interface {
	Issue(ctx context.Context, req IssueRequest) IssueOutcome
	Redeem(ctx context.Context, req RedeemRequest) (*RedeemResult, error)
	GetByQRToken(ctx context.Context, businessID snowflake.ID, qrToken string) (*VoucherView, error)
	Get(ctx context.Context, voucherID snowflake.ID) (*VoucherView, error)
}

type Repository interface {
	// FindByExternalRef returns the voucher issued for a ledger key, or nil.
	FindByExternalRef(ctx context.Context, db *gorm.DB, dealID snowflake.ID, externalRef string) (*Voucher, error)
	// InsertValidation reports false when the ledger key already exists.
	InsertValidation(ctx context.Context, db *gorm.DB, v *Validation) (bool, error)
	InsertVoucher(ctx context.Context, db *gorm.DB, v *Voucher) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*Voucher, error)
	FindByQRToken(ctx context.Context, db *gorm.DB, qrToken string) (*Voucher, error)
	// MarkRedeemed flips ISSUED to REDEEMED and reports false when the row was
	// not in ISSUED state for that business.
	MarkRedeemed(ctx context.Context, db *gorm.DB, id, businessID snowflake.ID, at time.Time) (bool, error)
}
