package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	auditdomain "github.com/smallbiznis/vouchr/internal/audit/domain"
	dealdomain "github.com/smallbiznis/vouchr/internal/deal/domain"
	"github.com/smallbiznis/vouchr/internal/observability/metrics"
	"github.com/smallbiznis/vouchr/internal/voucher/domain"
	pkgdb "github.com/smallbiznis/vouchr/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var rejectionActions = map[domain.Reason]auditdomain.Action{
	domain.ReasonAlreadyRedeemed:  auditdomain.ActionRejectedAlreadyRedeemed,
	domain.ReasonWrongBusiness:    auditdomain.ActionRejectedWrongBusiness,
	domain.ReasonExpired:          auditdomain.ActionRejectedExpired,
	domain.ReasonNotRedeemableNow: auditdomain.ActionRejectedOutsideWindow,
}

// Redeem moves an ISSUED voucher to REDEEMED for the business that owns it.
// The transition happens at most once no matter how many scans race.
func (s *Service) Redeem(ctx context.Context, req domain.RedeemRequest) (*domain.RedeemResult, error) {
	start := time.Now()
	result, err := s.redeem(ctx, req)

	outcome := "redeemed"
	txResult := metrics.TxResultCommitted
	if err != nil {
		if rej, ok := domain.AsRejection(err); ok {
			outcome = string(rej.Reason)
			txResult = metrics.TxResultRejected
		} else {
			outcome = "error"
			txResult = metrics.TxResultFailed
		}
	}
	s.metrics.RecordRedemption(ctx, outcome)
	s.txMetrics.ObserveResult(metrics.TxOpRedeem, txResult, time.Since(start))
	return result, err
}

func (s *Service) redeem(ctx context.Context, req domain.RedeemRequest) (*domain.RedeemResult, error) {
	token := strings.TrimSpace(req.QRToken)
	if token == "" {
		return nil, domain.ErrVoucherNotFound
	}

	v, err := s.repo.FindByQRToken(ctx, s.db, token)
	if err != nil {
		return nil, fmt.Errorf("load voucher: %w", err)
	}
	if v == nil {
		return nil, domain.ErrVoucherNotFound
	}

	if v.BusinessID != req.BusinessID {
		return nil, s.reject(ctx, req, v, domain.Reject(domain.ReasonWrongBusiness,
			"voucher belongs to another business"))
	}
	if v.Status == domain.StatusRedeemed {
		return nil, s.reject(ctx, req, v, alreadyRedeemed(v))
	}

	now := s.clock.Now()
	if now.After(v.ExpiresAt) {
		return nil, s.reject(ctx, req, v, domain.Reject(domain.ReasonExpired,
			"voucher expired at %s", v.ExpiresAt.UTC().Format(time.RFC3339)))
	}

	snapshot, err := s.dealRepo.GetDealWithBusiness(ctx, s.db, v.DealID)
	if err != nil {
		return nil, fmt.Errorf("load deal: %w", err)
	}
	if snapshot != nil {
		if rej := redeemableNow(snapshot, now); rej != nil {
			return nil, s.reject(ctx, req, v, rej)
		}
	}

	policy := s.policy.Get()
	txCfg := pkgdb.TxConfig{
		LockTimeout:      policy.LockTimeout,
		StatementTimeout: policy.StatementTimeout,
		Timeout:          policy.TxTimeout,
	}

	s.txMetrics.IncAttempt(metrics.TxOpRedeem)
	err = pkgdb.Transaction(ctx, s.db, txCfg, func(tx *gorm.DB) error {
		ctx := tx.Statement.Context

		locked, err := s.repo.FindByID(ctx, tx, v.ID, true)
		if err != nil {
			return fmt.Errorf("lock voucher: %w", err)
		}
		if locked == nil {
			return domain.ErrVoucherNotFound
		}
		if locked.BusinessID != req.BusinessID {
			return domain.Reject(domain.ReasonWrongBusiness, "voucher belongs to another business")
		}
		if locked.Status != domain.StatusIssued {
			return alreadyRedeemed(locked)
		}

		ok, err := s.repo.MarkRedeemed(ctx, tx, v.ID, req.BusinessID, now)
		if err != nil {
			return fmt.Errorf("mark redeemed: %w", err)
		}
		if !ok {
			return domain.Reject(domain.ReasonAlreadyRedeemed, "voucher was redeemed concurrently")
		}

		return s.auditSvc.Append(ctx, tx, auditdomain.Entry{
			VoucherID: v.ID,
			ActorType: req.ActorType,
			ActorID:   req.ActorID,
			Action:    auditdomain.ActionRedeemed,
			Metadata: map[string]any{
				"business_id": req.BusinessID.String(),
				"redeemed_at": now.Format(time.RFC3339Nano),
			},
		})
	})
	if err != nil {
		if rej, ok := domain.AsRejection(err); ok {
			return nil, s.reject(ctx, req, v, rej)
		}
		s.txMetrics.IncRetry(metrics.TxOpRedeem, err)
		s.log.Error("redemption failed", zap.String("voucher_id", v.ID.String()), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrTransactionError, err)
	}

	s.log.Info("voucher redeemed",
		zap.String("voucher_id", v.ID.String()),
		zap.String("business_id", req.BusinessID.String()),
	)
	return &domain.RedeemResult{VoucherID: v.ID, RedeemedAt: now}, nil
}

// reject records a diagnostic audit entry for a refused scan of a known
// voucher. Audit failures are logged and never mask the rejection.
func (s *Service) reject(ctx context.Context, req domain.RedeemRequest, v *domain.Voucher, rej *domain.Rejection) error {
	action, ok := rejectionActions[rej.Reason]
	if !ok {
		return rej
	}

	metadata := map[string]any{
		"business_id": req.BusinessID.String(),
		"reason":      string(rej.Reason),
	}
	if rej.Detail != "" {
		metadata["detail"] = rej.Detail
	}
	err := s.auditSvc.Append(ctx, nil, auditdomain.Entry{
		VoucherID: v.ID,
		ActorType: req.ActorType,
		ActorID:   req.ActorID,
		Action:    action,
		Metadata:  metadata,
	})
	if err != nil {
		s.log.Warn("failed to audit redemption rejection",
			zap.String("voucher_id", v.ID.String()),
			zap.String("reason", string(rej.Reason)),
			zap.Error(err),
		)
	}
	s.log.Info("redemption rejected",
		zap.String("voucher_id", v.ID.String()),
		zap.String("reason", string(rej.Reason)),
	)
	return rej
}

func alreadyRedeemed(v *domain.Voucher) *domain.Rejection {
	if v.RedeemedAt == nil {
		return domain.Reject(domain.ReasonAlreadyRedeemed, "voucher already redeemed")
	}
	return domain.Reject(domain.ReasonAlreadyRedeemed, "voucher redeemed at %s", v.RedeemedAt.UTC().Format(time.RFC3339))
}

func redeemableNow(snapshot *dealdomain.DealWithBusiness, now time.Time) *domain.Rejection {
	windows, err := snapshot.Deal.Windows()
	if err != nil {
		return domain.Reject(domain.ReasonNotRedeemableNow, "deal validity windows are invalid")
	}
	if !dealdomain.RedeemableAt(windows, now, snapshot.Business.Location()) {
		return domain.Reject(domain.ReasonNotRedeemableNow, "outside the deal's redemption hours")
	}
	return nil
}
