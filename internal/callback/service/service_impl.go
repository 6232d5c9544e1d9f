package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/vouchr/internal/audit/domain"
	auditcontext "github.com/smallbiznis/vouchr/internal/auditcontext"
	"github.com/smallbiznis/vouchr/internal/callback/domain"
	callbackauthdomain "github.com/smallbiznis/vouchr/internal/callbackauth/domain"
	"github.com/smallbiznis/vouchr/internal/clock"
	deliverydomain "github.com/smallbiznis/vouchr/internal/delivery/domain"
	eligibilitydomain "github.com/smallbiznis/vouchr/internal/eligibility/domain"
	"github.com/smallbiznis/vouchr/internal/observability/metrics"
	voucherdomain "github.com/smallbiznis/vouchr/internal/voucher/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Column sizes of validations.external_ref and vouchers.customer_reference.
const (
	maxExternalRefLength       = 255
	maxCustomerReferenceLength = 255
)

// maxMalformedPayload caps how much of an undecodable body is kept.
const maxMalformedPayload = 16 << 10

const (
	messageIssued        = "Voucher issued"
	messageAlreadyIssued = "Voucher already issued for this transaction"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	Clock          clock.Clock
	GenID          *snowflake.Node
	Repo           domain.Repository
	Verifier       callbackauthdomain.Service
	EligibilitySvc eligibilitydomain.Service
	VoucherSvc     voucherdomain.Service
	AuditSvc       auditdomain.Service
	Delivery       deliverydomain.Dispatcher `optional:"true"`
	Metrics        *metrics.Metrics          `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	clock          clock.Clock
	genID          *snowflake.Node
	repo           domain.Repository
	verifier       callbackauthdomain.Service
	eligibilitySvc eligibilitydomain.Service
	voucherSvc     voucherdomain.Service
	auditSvc       auditdomain.Service
	delivery       deliverydomain.Dispatcher
	metrics        *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("callback.service"),
		clock:          p.Clock,
		genID:          p.GenID,
		repo:           p.Repo,
		verifier:       p.Verifier,
		eligibilitySvc: p.EligibilitySvc,
		voucherSvc:     p.VoucherSvc,
		auditSvc:       p.AuditSvc,
		delivery:       p.Delivery,
		metrics:        p.Metrics,
	}
}

func (s *Service) HandleCallback(ctx context.Context, req domain.CallbackRequest) (*domain.CallbackResult, error) {
	receivedAt := s.clock.Now()
	log := s.log.With(
		zap.String("deal_id", req.DealID),
		zap.String("external_transaction_id", req.ExternalTransactionID),
	)

	dealID, err := validate(req)
	if err != nil {
		s.record(ctx, s.newAttempt(ctx, req, receivedAt, false, domain.OutcomeRejected, "InvalidRequest", err))
		s.metrics.RecordCallback(ctx, "invalid_request")
		return nil, err
	}

	verdict, err := s.verifier.Verify(ctx, dealID, callbackauthdomain.SignableFields{
		TransactionID:     req.ExternalTransactionID,
		Amount:            req.AmountPaid,
		Currency:          req.Currency,
		Status:            req.PaymentStatus,
		CustomerReference: req.CustomerReference,
		Timestamp:         req.Timestamp,
	}, req.Signature)
	if err != nil {
		return nil, s.fail(ctx, log, req, receivedAt, false, fmt.Errorf("verify signature: %w", err))
	}
	if !verdict.Valid {
		rej := voucherdomain.Reject(voucherdomain.ReasonSignatureInvalid, "%s", verdict.Reason)
		if verdict.Reason == callbackauthdomain.ReasonReplayWindowExceeded {
			rej = voucherdomain.Reject(voucherdomain.ReasonReplayWindowExceeded, "callback timestamp %d is outside the replay window", req.Timestamp)
		}
		log.Warn("callback rejected", zap.String("reason", string(verdict.Reason)))
		return nil, s.rejected(ctx, req, receivedAt, false, rej)
	}

	snapshot, err := s.eligibilitySvc.Check(ctx, eligibilitydomain.CheckRequest{
		DealID:        dealID,
		AmountPaid:    req.AmountPaid,
		Currency:      req.Currency,
		PaymentStatus: req.PaymentStatus,
	})
	if err != nil {
		if rej, ok := voucherdomain.AsRejection(err); ok {
			log.Info("callback not eligible", zap.String("reason", string(rej.Reason)), zap.String("detail", rej.Detail))
			return nil, s.rejected(ctx, req, receivedAt, true, rej)
		}
		return nil, s.fail(ctx, log, req, receivedAt, true, err)
	}

	outcome := s.voucherSvc.Issue(ctx, voucherdomain.IssueRequest{
		Deal:              snapshot,
		ExternalRef:       req.ExternalTransactionID,
		CustomerReference: req.CustomerReference,
		OnIssued: func(ctx context.Context, tx *gorm.DB, v *voucherdomain.Voucher) error {
			attempt := s.newAttempt(ctx, req, receivedAt, true, domain.OutcomeIssued, "", nil)
			attempt.VoucherID = &v.ID
			if err := s.repo.Insert(ctx, tx, attempt); err != nil {
				return fmt.Errorf("record callback attempt: %w", err)
			}
			return nil
		},
	})

	switch outcome.Kind {
	case voucherdomain.IssueCreated:
		s.metrics.RecordCallback(ctx, string(domain.OutcomeIssued))
		if s.delivery != nil {
			s.delivery.Enqueue(ctx, outcome.VoucherID)
		}
		return &domain.CallbackResult{VoucherID: outcome.VoucherID, Message: messageIssued}, nil

	case voucherdomain.IssueAlreadyExists:
		s.idempotentRetry(ctx, log, req, receivedAt, outcome.VoucherID)
		return &domain.CallbackResult{VoucherID: outcome.VoucherID, Idempotent: true, Message: messageAlreadyIssued}, nil

	case voucherdomain.IssueRejected:
		if rej, ok := voucherdomain.AsRejection(outcome.Err); ok {
			log.Info("callback rejected at issuance", zap.String("reason", string(rej.Reason)))
			return nil, s.rejected(ctx, req, receivedAt, true, rej)
		}
		s.record(ctx, s.newAttempt(ctx, req, receivedAt, true, domain.OutcomeRejected, "InvalidRequest", outcome.Err))
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, outcome.Err)

	default:
		return nil, s.fail(ctx, log, req, receivedAt, true, outcome.Err)
	}
}

func (s *Service) idempotentRetry(ctx context.Context, log *zap.Logger, req domain.CallbackRequest, receivedAt time.Time, voucherID snowflake.ID) {
	log.Info("duplicate callback for issued voucher", zap.String("voucher_id", voucherID.String()))
	s.metrics.RecordCallback(ctx, string(domain.OutcomeIdempotentRetry))

	if err := s.auditSvc.Append(ctx, nil, auditdomain.Entry{
		VoucherID: voucherID,
		ActorType: auditdomain.ActorTypeSystem,
		ActorID:   "payment-callback",
		Action:    auditdomain.ActionCallbackIdempotentRetry,
		Metadata: map[string]any{
			"deal_id":      req.DealID,
			"external_ref": req.ExternalTransactionID,
		},
	}); err != nil {
		log.Warn("failed to audit idempotent callback", zap.Error(err))
	}

	attempt := s.newAttempt(ctx, req, receivedAt, true, domain.OutcomeIdempotentRetry, "", nil)
	attempt.VoucherID = &voucherID
	s.record(ctx, attempt)
}

func (s *Service) rejected(ctx context.Context, req domain.CallbackRequest, receivedAt time.Time, signatureValid bool, rej *voucherdomain.Rejection) error {
	s.record(ctx, s.newAttempt(ctx, req, receivedAt, signatureValid, domain.OutcomeRejected, string(rej.Reason), rej))
	s.metrics.RecordCallback(ctx, string(rej.Reason))
	return rej
}

func (s *Service) RecordMalformed(ctx context.Context, raw []byte, cause error) {
	if cause == nil {
		cause = domain.ErrInvalidRequest
	} else if !errors.Is(cause, domain.ErrInvalidRequest) {
		cause = fmt.Errorf("%w: %w", domain.ErrInvalidRequest, cause)
	}

	fields := struct {
		DealID                json.RawMessage `json:"dealId"`
		ExternalTransactionID json.RawMessage `json:"externalTransactionId"`
		Currency              json.RawMessage `json:"currency"`
		PaymentStatus         json.RawMessage `json:"paymentStatus"`
		CustomerReference     json.RawMessage `json:"customerReference"`
	}{}
	_ = json.Unmarshal(raw, &fields)

	attempt := s.newAttempt(ctx, domain.CallbackRequest{
		DealID:                looseString(fields.DealID),
		ExternalTransactionID: looseString(fields.ExternalTransactionID),
		Currency:              looseString(fields.Currency),
		PaymentStatus:         looseString(fields.PaymentStatus),
		CustomerReference:     looseString(fields.CustomerReference),
	}, s.clock.Now(), false, domain.OutcomeRejected, "InvalidRequest", cause)
	attempt.AmountPaid = decimal.NullDecimal{}
	attempt.Payload = malformedPayload(raw)

	s.log.Warn("malformed callback body",
		zap.String("deal_id", attempt.DealID),
		zap.Int("body_bytes", len(raw)),
		zap.Error(cause),
	)
	s.record(ctx, attempt)
	s.metrics.RecordCallback(ctx, "invalid_request")
}

// malformedPayload keeps the body as-is when it is valid JSON and otherwise
// stores it as a JSON string, so the payload column always accepts it.
func malformedPayload(raw []byte) datatypes.JSON {
	if len(raw) == 0 {
		return nil
	}
	if len(raw) <= maxMalformedPayload && json.Valid(raw) {
		return datatypes.JSON(raw)
	}
	if len(raw) > maxMalformedPayload {
		raw = raw[:maxMalformedPayload]
	}
	encoded, err := json.Marshal(strings.ToValidUTF8(string(raw), "\uFFFD"))
	if err != nil {
		return nil
	}
	return datatypes.JSON(encoded)
}

// looseString reads a field that may be a JSON string or a bare literal.
func looseString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var value string
	if err := json.Unmarshal(raw, &value); err == nil {
		return value
	}
	text := strings.TrimSpace(string(raw))
	if text == "null" {
		return ""
	}
	return text
}

func (s *Service) fail(ctx context.Context, log *zap.Logger, req domain.CallbackRequest, receivedAt time.Time, signatureValid bool, err error) error {
	if !errors.Is(err, voucherdomain.ErrTransactionError) {
		err = fmt.Errorf("%w: %w", voucherdomain.ErrTransactionError, err)
	}
	log.Error("callback processing failed", zap.Error(err))
	s.record(ctx, s.newAttempt(ctx, req, receivedAt, signatureValid, domain.OutcomeFailed, string(voucherdomain.ReasonTransactionError), err))
	s.metrics.RecordCallback(ctx, string(domain.OutcomeFailed))
	return err
}

// record stores a diagnostic attempt. A failure here must not change the
// response already decided for the caller.
func (s *Service) record(ctx context.Context, attempt *domain.Attempt) {
	if err := s.repo.Insert(ctx, s.db, attempt); err != nil {
		s.log.Error("failed to record callback attempt",
			zap.String("outcome", string(attempt.Outcome)),
			zap.Error(err),
		)
	}
}

func (s *Service) newAttempt(ctx context.Context, req domain.CallbackRequest, receivedAt time.Time, signatureValid bool, outcome domain.Outcome, code string, cause error) *domain.Attempt {
	attempt := &domain.Attempt{
		ID:                    s.genID.Generate(),
		DealID:                truncate(req.DealID, 64),
		ExternalTransactionID: truncate(req.ExternalTransactionID, 255),
		AmountPaid:            decimal.NullDecimal{Decimal: req.AmountPaid, Valid: true},
		Currency:              truncate(req.Currency, 8),
		PaymentStatus:         truncate(req.PaymentStatus, 64),
		CustomerReference:     truncate(req.CustomerReference, 255),
		SignatureValid:        signatureValid,
		Outcome:               outcome,
		ErrorCode:             code,
		RequestID:             auditcontext.RequestIDFromContext(ctx),
		ReceivedAt:            receivedAt,
	}
	if req.Timestamp != 0 {
		ts := req.Timestamp
		attempt.CallbackTimestamp = &ts
	}
	if cause != nil {
		msg := cause.Error()
		attempt.ErrorMessage = &msg
	}
	if len(req.Payload) > 0 {
		attempt.Payload = datatypes.JSON(req.Payload)
	}
	return attempt
}

func validate(req domain.CallbackRequest) (snowflake.ID, error) {
	missing := make([]string, 0, 4)
	if strings.TrimSpace(req.DealID) == "" {
		missing = append(missing, "dealId")
	}
	if strings.TrimSpace(req.ExternalTransactionID) == "" {
		missing = append(missing, "externalTransactionId")
	}
	if strings.TrimSpace(req.Currency) == "" {
		missing = append(missing, "currency")
	}
	if strings.TrimSpace(req.PaymentStatus) == "" {
		missing = append(missing, "paymentStatus")
	}
	if len(missing) > 0 {
		return 0, fmt.Errorf("%w: missing %s", domain.ErrInvalidRequest, strings.Join(missing, ", "))
	}
	if n := utf8.RuneCountInString(req.ExternalTransactionID); n > maxExternalRefLength {
		return 0, fmt.Errorf("%w: externalTransactionId has %d characters, limit is %d", domain.ErrInvalidRequest, n, maxExternalRefLength)
	}
	if n := utf8.RuneCountInString(req.CustomerReference); n > maxCustomerReferenceLength {
		return 0, fmt.Errorf("%w: customerReference has %d characters, limit is %d", domain.ErrInvalidRequest, n, maxCustomerReferenceLength)
	}

	dealID, err := snowflake.ParseString(strings.TrimSpace(req.DealID))
	if err != nil || dealID <= 0 {
		return 0, fmt.Errorf("%w: dealId must be a numeric id", domain.ErrInvalidRequest)
	}
	return dealID, nil
}

// truncate keeps at most max characters. VARCHAR limits count characters,
// and cutting inside a multi-byte rune would make the row unstorable.
func truncate(value string, max int) string {
	value = strings.ToValidUTF8(value, "\uFFFD")
	if utf8.RuneCountInString(value) <= max {
		return value
	}
	n := 0
	for i := range value {
		if n == max {
			return value[:i]
		}
		n++
	}
	return value
}
