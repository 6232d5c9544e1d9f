package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	auditdomain "github.com/smallbiznis/vouchr/internal/audit/domain"
	"github.com/smallbiznis/vouchr/internal/config"
	"github.com/smallbiznis/vouchr/internal/observability/metrics"
	"github.com/smallbiznis/vouchr/internal/voucher/domain"
	pkgdb "github.com/smallbiznis/vouchr/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const issuerActorID = "payment-callback"

// errLedgerRace means another transaction claimed the ledger key after our
// re-check. The retry observes the committed row and converges.
var errLedgerRace = errors.New("ledger_race")

// Issue turns an eligible payment into exactly one voucher. Concurrent calls
// with the same (deal, external ref) converge on a single voucher; losers get
// IssueAlreadyExists.
func (s *Service) Issue(ctx context.Context, req domain.IssueRequest) domain.IssueOutcome {
	if req.Deal == nil || strings.TrimSpace(req.ExternalRef) == "" {
		return domain.IssueOutcome{Kind: domain.IssueRejected, Err: domain.ErrInvalidIssueRequest}
	}

	start := time.Now()
	policy := s.policy.Get()
	dealID := req.Deal.Deal.ID

	existing, err := s.repo.FindByExternalRef(ctx, s.db, dealID, req.ExternalRef)
	if err != nil {
		return s.issueFailed(ctx, start, fmt.Errorf("ledger lookup: %w", err))
	}
	if existing != nil {
		s.txMetrics.ObserveResult(metrics.TxOpIssue, metrics.TxResultConverged, time.Since(start))
		return domain.IssueOutcome{Kind: domain.IssueAlreadyExists, VoucherID: existing.ID}
	}

	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		s.txMetrics.IncAttempt(metrics.TxOpIssue)

		outcome, err := s.issueOnce(ctx, req, policy)
		if err == nil {
			result := metrics.TxResultConverged
			if outcome.Kind == domain.IssueCreated {
				result = metrics.TxResultCommitted
				s.metrics.RecordVoucherIssued(ctx)
				s.log.Info("voucher issued",
					zap.String("voucher_id", outcome.VoucherID.String()),
					zap.String("deal_id", dealID.String()),
					zap.Int("attempt", attempt),
				)
			}
			s.txMetrics.ObserveResult(metrics.TxOpIssue, result, time.Since(start))
			return outcome
		}

		if rej, ok := domain.AsRejection(err); ok {
			s.txMetrics.ObserveResult(metrics.TxOpIssue, metrics.TxResultRejected, time.Since(start))
			return domain.IssueOutcome{Kind: domain.IssueRejected, Err: rej}
		}

		lastErr = err
		if !retryable(err) || attempt == maxAttempts {
			break
		}
		s.txMetrics.IncRetry(metrics.TxOpIssue, err)
		s.log.Warn("retrying voucher issuance",
			zap.String("deal_id", dealID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if err := sleep(ctx, retryBackoff(attempt)); err != nil {
			lastErr = err
			break
		}
	}

	return s.issueFailed(ctx, start, lastErr)
}

func (s *Service) issueOnce(ctx context.Context, req domain.IssueRequest, policy config.IssuancePolicy) (domain.IssueOutcome, error) {
	var outcome domain.IssueOutcome
	deal := req.Deal.Deal

	txCfg := pkgdb.TxConfig{
		LockTimeout:      policy.LockTimeout,
		StatementTimeout: policy.StatementTimeout,
		Timeout:          policy.TxTimeout,
	}
	err := pkgdb.Serializable(ctx, s.db, txCfg, func(tx *gorm.DB) error {
		ctx := tx.Statement.Context

		existing, err := s.repo.FindByExternalRef(ctx, tx, deal.ID, req.ExternalRef)
		if err != nil {
			return fmt.Errorf("ledger lookup: %w", err)
		}
		if existing != nil {
			outcome = domain.IssueOutcome{Kind: domain.IssueAlreadyExists, VoucherID: existing.ID}
			return nil
		}

		reserved, err := s.dealRepo.ReserveCapacity(ctx, tx, deal.ID)
		if err != nil {
			return fmt.Errorf("reserve capacity: %w", err)
		}
		if !reserved {
			return domain.Reject(domain.ReasonDealSoldOut, "deal %s reached its voucher cap", deal.ID)
		}

		now := s.clock.Now()
		validation := &domain.Validation{
			ID:          s.genID.Generate(),
			BusinessID:  deal.BusinessID,
			DealID:      deal.ID,
			ExternalRef: req.ExternalRef,
			CreatedAt:   now,
		}
		inserted, err := s.repo.InsertValidation(ctx, tx, validation)
		if err != nil {
			return fmt.Errorf("insert validation: %w", err)
		}
		if !inserted {
			return errLedgerRace
		}

		token, err := NewQRToken()
		if err != nil {
			return fmt.Errorf("generate qr token: %w", err)
		}
		voucher := &domain.Voucher{
			ID:                s.genID.Generate(),
			DealID:            deal.ID,
			BusinessID:        deal.BusinessID,
			ValidationID:      validation.ID,
			QRToken:           token,
			Status:            domain.StatusIssued,
			CustomerReference: req.CustomerReference,
			IssuedAt:          now,
			ExpiresAt:         now.Add(time.Duration(s.expirationHours(deal.ExpirationHours)) * time.Hour),
		}
		if err := s.repo.InsertVoucher(ctx, tx, voucher); err != nil {
			return fmt.Errorf("insert voucher: %w", err)
		}

		if req.OnIssued != nil {
			if err := req.OnIssued(ctx, tx, voucher); err != nil {
				return err
			}
		}

		if err := s.auditSvc.Append(ctx, tx, auditdomain.Entry{
			VoucherID: voucher.ID,
			ActorType: auditdomain.ActorTypeSystem,
			ActorID:   issuerActorID,
			Action:    auditdomain.ActionIssued,
			Metadata: map[string]any{
				"deal_id":       deal.ID.String(),
				"validation_id": validation.ID.String(),
				"external_ref":  req.ExternalRef,
				"expires_at":    voucher.ExpiresAt.Format(time.RFC3339),
			},
		}); err != nil {
			return fmt.Errorf("audit issue: %w", err)
		}

		outcome = domain.IssueOutcome{Kind: domain.IssueCreated, VoucherID: voucher.ID}
		return nil
	})
	if err != nil {
		return domain.IssueOutcome{}, err
	}
	return outcome, nil
}

func (s *Service) issueFailed(ctx context.Context, start time.Time, err error) domain.IssueOutcome {
	s.txMetrics.ObserveResult(metrics.TxOpIssue, metrics.TxResultFailed, time.Since(start))
	s.log.Error("voucher issuance failed", zap.Error(err), zap.String("reason", metrics.ClassifyTxReason(err)))
	return domain.IssueOutcome{
		Kind: domain.IssueTransientFailure,
		Err:  fmt.Errorf("%w: %w", domain.ErrTransactionError, err),
	}
}

func (s *Service) expirationHours(hours int) int {
	if hours > 0 {
		return hours
	}
	if s.cfg.Voucher.DefaultExpirationHours > 0 {
		return s.cfg.Voucher.DefaultExpirationHours
	}
	return 720
}

func retryable(err error) bool {
	return errors.Is(err, errLedgerRace) ||
		pkgdb.IsSerializationErr(err) ||
		pkgdb.IsDuplicateKeyErr(err) ||
		pkgdb.IsTimeoutErr(err)
}

func retryBackoff(attempt int) time.Duration {
	return time.Duration(attempt*attempt) * 25 * time.Millisecond
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
