package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/vouchr/internal/clock"
	"github.com/smallbiznis/vouchr/internal/config"
	dealdomain "github.com/smallbiznis/vouchr/internal/deal/domain"
	"github.com/smallbiznis/vouchr/internal/eligibility/domain"
	voucherdomain "github.com/smallbiznis/vouchr/internal/voucher/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Policy   *config.IssuancePolicyHolder
	DealRepo dealdomain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	policy   *config.IssuancePolicyHolder
	dealRepo dealdomain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("eligibility.service"),
		clock:    p.Clock,
		policy:   p.Policy,
		dealRepo: p.DealRepo,
	}
}

func (s *Service) Check(ctx context.Context, req domain.CheckRequest) (*dealdomain.DealWithBusiness, error) {
	snapshot, err := s.dealRepo.GetDealWithBusiness(ctx, s.db, req.DealID)
	if err != nil {
		return nil, fmt.Errorf("load deal: %w", err)
	}
	if snapshot == nil {
		return nil, voucherdomain.Reject(voucherdomain.ReasonDealNotFound, "deal %s does not exist", req.DealID)
	}

	deal := snapshot.Deal
	if deal.Status != dealdomain.DealStatusActive {
		return nil, voucherdomain.Reject(voucherdomain.ReasonDealNotActive, "deal status is %s", deal.Status)
	}
	if snapshot.Business.Status != dealdomain.BusinessStatusActive {
		return nil, voucherdomain.Reject(voucherdomain.ReasonBusinessNotActive, "business status is %s", snapshot.Business.Status)
	}
	if sub := snapshot.Subscription; sub != nil && !sub.ActiveAt(s.clock.Now()) {
		return nil, voucherdomain.Reject(voucherdomain.ReasonSubscriptionInactive, "subscription status is %s", sub.Status)
	}

	policy := s.policy.Get()
	if !strings.EqualFold(strings.TrimSpace(req.Currency), strings.TrimSpace(deal.Currency)) {
		return nil, voucherdomain.Reject(voucherdomain.ReasonAmountMismatch,
			"currency %s does not match deal currency %s", req.Currency, deal.Currency)
	}
	if req.AmountPaid.Sub(deal.Price).Abs().GreaterThan(policy.Tolerance()) {
		return nil, voucherdomain.Reject(voucherdomain.ReasonAmountMismatch,
			"paid %s, deal price is %s", req.AmountPaid.String(), deal.Price.StringFixed(2))
	}
	if !policy.AcceptsStatus(req.PaymentStatus) {
		return nil, voucherdomain.Reject(voucherdomain.ReasonPaymentNotConfirmed, "payment status %q is not confirmed", req.PaymentStatus)
	}

	return snapshot, nil
}
