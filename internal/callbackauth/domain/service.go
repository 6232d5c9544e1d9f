package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// Verify authenticates a callback. Malformed input yields an invalid
	// result, never an error. Errors are reserved for storage failures.
	Verify(ctx context.Context, dealID snowflake.ID, fields SignableFields, signature string) (VerifyResult, error)
	// Configure encrypts and stores the shared secret for a deal, replacing
	// any previous secret and re-activating the configuration.
	Configure(ctx context.Context, dealID snowflake.ID, secret string) error
	SetActive(ctx context.Context, dealID snowflake.ID, active bool) error
}

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, dealID snowflake.ID) (*CallbackConfig, error)
	Upsert(ctx context.Context, db *gorm.DB, cfg *CallbackConfig) error
	SetActive(ctx context.Context, db *gorm.DB, dealID snowflake.ID, active bool, updatedAt time.Time) (bool, error)
}

// MinSecretLength is the shortest callback secret Configure accepts.
const MinSecretLength = 16

var (
	ErrEncryptionKeyMissing = errors.New("encryption_key_missing")
	ErrInvalidSecret        = errors.New("invalid_secret")
	ErrInvalidConfig        = errors.New("invalid_config")
	ErrConfigNotFound       = errors.New("callback_config_not_found")
	ErrDealNotFound         = errors.New("deal_not_found")
)
