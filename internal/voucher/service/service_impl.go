package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/vouchr/internal/audit/domain"
	"github.com/smallbiznis/vouchr/internal/clock"
	"github.com/smallbiznis/vouchr/internal/config"
	dealdomain "github.com/smallbiznis/vouchr/internal/deal/domain"
	"github.com/smallbiznis/vouchr/internal/observability/metrics"
	"github.com/smallbiznis/vouchr/internal/voucher/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Cfg       config.Config
	Policy    *config.IssuancePolicyHolder
	Clock     clock.Clock
	GenID     *snowflake.Node
	Repo      domain.Repository
	DealRepo  dealdomain.Repository
	AuditSvc  auditdomain.Service
	Metrics   *metrics.Metrics   `optional:"true"`
	TxMetrics *metrics.TxMetrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       config.Config
	policy    *config.IssuancePolicyHolder
	clock     clock.Clock
	genID     *snowflake.Node
	repo      domain.Repository
	dealRepo  dealdomain.Repository
	auditSvc  auditdomain.Service
	metrics   *metrics.Metrics
	txMetrics *metrics.TxMetrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("voucher.service"),
		cfg:       p.Cfg,
		policy:    p.Policy,
		clock:     p.Clock,
		genID:     p.GenID,
		repo:      p.Repo,
		dealRepo:  p.DealRepo,
		auditSvc:  p.AuditSvc,
		metrics:   p.Metrics,
		txMetrics: p.TxMetrics,
	}
}

func (s *Service) Get(ctx context.Context, voucherID snowflake.ID) (*domain.VoucherView, error) {
	v, err := s.repo.FindByID(ctx, s.db, voucherID, false)
	if err != nil {
		return nil, fmt.Errorf("load voucher: %w", err)
	}
	if v == nil {
		return nil, domain.ErrVoucherNotFound
	}
	return s.view(ctx, v)
}

// GetByQRToken returns the voucher behind a scanned code. Vouchers of another
// business are reported as WrongBusiness without revealing their state.
func (s *Service) GetByQRToken(ctx context.Context, businessID snowflake.ID, qrToken string) (*domain.VoucherView, error) {
	qrToken = strings.TrimSpace(qrToken)
	if qrToken == "" {
		return nil, domain.ErrVoucherNotFound
	}
	v, err := s.repo.FindByQRToken(ctx, s.db, qrToken)
	if err != nil {
		return nil, fmt.Errorf("load voucher: %w", err)
	}
	if v == nil {
		return nil, domain.ErrVoucherNotFound
	}
	if v.BusinessID != businessID {
		return nil, domain.ErrWrongBusiness
	}
	return s.view(ctx, v)
}

func (s *Service) view(ctx context.Context, v *domain.Voucher) (*domain.VoucherView, error) {
	view := &domain.VoucherView{
		ID:         v.ID,
		DealID:     v.DealID,
		BusinessID: v.BusinessID,
		Status:     v.EffectiveStatus(s.clock.Now()),
		IssuedAt:   v.IssuedAt,
		ExpiresAt:  v.ExpiresAt,
		RedeemedAt: v.RedeemedAt,
	}

	snapshot, err := s.dealRepo.GetDealWithBusiness(ctx, s.db, v.DealID)
	if err != nil {
		return nil, fmt.Errorf("load deal: %w", err)
	}
	if snapshot != nil {
		view.DealTitle = snapshot.Deal.Title
	}
	return view, nil
}
