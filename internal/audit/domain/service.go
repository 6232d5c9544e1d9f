package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/vouchr/pkg/db/pagination"
	"gorm.io/gorm"
)

// Entry describes an audit record before it is stamped with id and time.
// An empty ActorType is resolved from the request context.
type Entry struct {
	VoucherID snowflake.ID
	ActorType ActorType
	ActorID   string
	Action    Action
	Metadata  map[string]any
}

type ListAuditLogRequest struct {
	pagination.Pagination
	VoucherID snowflake.ID
	Action    string
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	// Append inserts an entry using db, which may be an open transaction.
	// A nil db uses the service's own connection.
	Append(ctx context.Context, db *gorm.DB, entry Entry) error
	ListByVoucher(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

var (
	ErrInvalidVoucher   = errors.New("invalid_voucher")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidAction    = errors.New("invalid_action")
)
