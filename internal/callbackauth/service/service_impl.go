package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/vouchr/internal/callbackauth/domain"
	"github.com/smallbiznis/vouchr/internal/clock"
	"github.com/smallbiznis/vouchr/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Cfg    config.Config
	Policy *config.IssuancePolicyHolder
	Clock  clock.Clock
	GenID  *snowflake.Node
	Repo   domain.Repository
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	policy *config.IssuancePolicyHolder
	clock  clock.Clock
	genID  *snowflake.Node
	repo   domain.Repository
	encKey []byte
}

func NewService(p Params) domain.Service {
	secret := strings.TrimSpace(p.Cfg.CallbackConfigSecret)
	var key []byte
	if secret != "" {
		sum := sha256.Sum256([]byte(secret))
		key = sum[:]
	}

	return &Service{
		db:     p.DB,
		log:    p.Log.Named("callbackauth.service"),
		policy: p.Policy,
		clock:  p.Clock,
		genID:  p.GenID,
		repo:   p.Repo,
		encKey: key,
	}
}

func (s *Service) Verify(ctx context.Context, dealID snowflake.ID, fields domain.SignableFields, signature string) (domain.VerifyResult, error) {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return invalid(domain.ReasonMissingSignature), nil
	}
	provided, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil || len(provided) != sha256.Size {
		return invalid(domain.ReasonMalformedSignature), nil
	}

	window := s.policy.Get().ReplayWindowSeconds
	age := s.clock.Now().Unix() - fields.Timestamp
	if age < 0 {
		age = -age
	}
	if fields.Timestamp <= 0 || age > int64(window) {
		return invalid(domain.ReasonReplayWindowExceeded), nil
	}

	cfg, err := s.repo.Find(ctx, s.db, dealID)
	if err != nil {
		return domain.VerifyResult{}, fmt.Errorf("load callback config: %w", err)
	}
	if cfg == nil || !cfg.IsActive {
		return invalid(domain.ReasonConfigNotFound), nil
	}

	secret, err := decryptSecret(s.encKey, cfg.Secret)
	if err != nil {
		s.log.Warn("callback secret unusable",
			zap.String("deal_id", dealID.String()),
			zap.Error(err),
		)
		return invalid(domain.ReasonConfigInvalid), nil
	}

	msg, err := CanonicalMessage(fields)
	if err != nil {
		return invalid(domain.ReasonSignatureMismatch), nil
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return invalid(domain.ReasonSignatureMismatch), nil
	}

	return domain.VerifyResult{Valid: true, Reason: domain.ReasonOK}, nil
}

func (s *Service) Configure(ctx context.Context, dealID snowflake.ID, secret string) error {
	if dealID == 0 {
		return domain.ErrDealNotFound
	}
	if len(strings.TrimSpace(secret)) < domain.MinSecretLength {
		return domain.ErrInvalidSecret
	}

	encrypted, err := encryptSecret(s.encKey, secret)
	if err != nil {
		return err
	}

	var exists int64
	if err := s.db.WithContext(ctx).Table("deals").Where("id = ?", dealID).Count(&exists).Error; err != nil {
		return err
	}
	if exists == 0 {
		return domain.ErrDealNotFound
	}

	now := s.clock.Now().UTC()
	cfg := domain.CallbackConfig{
		ID:        s.genID.Generate(),
		DealID:    dealID,
		Secret:    encrypted,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Upsert(ctx, s.db, &cfg); err != nil {
		return fmt.Errorf("store callback config: %w", err)
	}

	s.log.Info("callback secret configured", zap.String("deal_id", dealID.String()))
	return nil
}

func (s *Service) SetActive(ctx context.Context, dealID snowflake.ID, active bool) error {
	updated, err := s.repo.SetActive(ctx, s.db, dealID, active, s.clock.Now().UTC())
	if err != nil {
		return err
	}
	if !updated {
		return domain.ErrConfigNotFound
	}
	return nil
}

func invalid(reason domain.Reason) domain.VerifyResult {
	return domain.VerifyResult{Valid: false, Reason: reason}
}
