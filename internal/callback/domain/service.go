package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Service interface {
	// HandleCallback verifies, checks and issues. Refusals are returned as
	// *voucher/domain.Rejection; malformed input as ErrInvalidRequest.
	HandleCallback(ctx context.Context, req CallbackRequest) (*CallbackResult, error)
	// RecordMalformed stores a rejected attempt for a body that could not be
	// decoded into a CallbackRequest.
	RecordMalformed(ctx context.Context, raw []byte, cause error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, attempt *Attempt) error
}

var ErrInvalidRequest = errors.New("invalid_callback_request")
