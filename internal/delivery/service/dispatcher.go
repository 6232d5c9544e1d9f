package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	auditdomain "github.com/smallbiznis/vouchr/internal/audit/domain"
	auditcontext "github.com/smallbiznis/vouchr/internal/auditcontext"
	"github.com/smallbiznis/vouchr/internal/config"
	dealdomain "github.com/smallbiznis/vouchr/internal/deal/domain"
	"github.com/smallbiznis/vouchr/internal/delivery/domain"
	"github.com/smallbiznis/vouchr/internal/observability/metrics"
	"github.com/smallbiznis/vouchr/internal/providers/email"
	"github.com/smallbiznis/vouchr/internal/providers/pdf"
	voucherdomain "github.com/smallbiznis/vouchr/internal/voucher/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	deliveryActorID = "voucher-delivery"
	lockKeyPrefix   = "delivery:"
	displayLayout   = "2006-01-02 15:04 MST"
)

type Params struct {
	fx.In

	Lifecycle   fx.Lifecycle `optional:"true"`
	DB          *gorm.DB
	Log         *zap.Logger
	Cfg         config.Config
	VoucherRepo voucherdomain.Repository
	DealRepo    dealdomain.Repository
	AuditSvc    auditdomain.Service
	Mailer      email.Provider
	PDF         pdf.Provider
	Locker      domain.Locker      `optional:"true"`
	Metrics     *metrics.Metrics   `optional:"true"`
	TxMetrics   *metrics.TxMetrics `optional:"true"`
}

type job struct {
	id        ulid.ULID
	voucherID snowflake.ID
	requestID string
	trigger   string
}

// Dispatcher renders and emails voucher artifacts on a bounded worker pool.
// It never participates in issuance: every outcome ends as an audit entry.
type Dispatcher struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         config.DeliveryConfig
	redeemURL   string
	voucherRepo voucherdomain.Repository
	dealRepo    dealdomain.Repository
	auditSvc    auditdomain.Service
	mailer      email.Provider
	pdf         pdf.Provider
	locker      domain.Locker
	metrics     *metrics.Metrics
	txMetrics   *metrics.TxMetrics

	queue  chan job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool

	baseCtx context.Context
	cancel  context.CancelFunc
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewDispatcher builds the dispatcher and ties its workers to the fx lifecycle.
func NewDispatcher(p Params) domain.Dispatcher {
	d := New(p)
	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(context.Context) error {
				d.Start()
				return nil
			},
			OnStop: d.Stop,
		})
	}
	return d
}

func New(p Params) *Dispatcher {
	cfg := p.Cfg.Delivery
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		db:          p.DB,
		log:         p.Log.Named("delivery.dispatcher"),
		cfg:         cfg,
		redeemURL:   strings.TrimRight(strings.TrimSpace(p.Cfg.Voucher.RedeemBaseURL), "/"),
		voucherRepo: p.VoucherRepo,
		dealRepo:    p.DealRepo,
		auditSvc:    p.AuditSvc,
		mailer:      p.Mailer,
		pdf:         p.PDF,
		locker:      p.Locker,
		metrics:     p.Metrics,
		txMetrics:   p.TxMetrics,
		queue:       make(chan job, cfg.QueueSize),
		baseCtx:     baseCtx,
		cancel:      cancel,
		sleep:       sleepCtx,
	}
}

func (d *Dispatcher) Start() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.log.Info("delivery workers started", zap.Int("workers", d.cfg.Workers), zap.Int("queue_size", d.cfg.QueueSize))
}

// Stop drains queued jobs. When ctx expires first, in-flight retries are
// cancelled and their vouchers are audited as failed.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		// Workers see the cancelled base context and audit their own
		// failure; a send stuck in the transport is not waited for.
		d.cancel()
		d.log.Warn("delivery workers still running at shutdown deadline", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

func (d *Dispatcher) Enqueue(ctx context.Context, voucherID snowflake.ID) {
	j := d.newJob(ctx, voucherID, "issued")
	if err := d.submit(j); err != nil {
		d.failed(d.jobContext(j), j, 0, domain.FailureQueueFull, err)
	}
}

func (d *Dispatcher) Resend(ctx context.Context, voucherID snowflake.ID) error {
	v, err := d.voucherRepo.FindByID(ctx, d.db, voucherID, false)
	if err != nil {
		return fmt.Errorf("load voucher: %w", err)
	}
	if v == nil {
		return domain.ErrVoucherNotFound
	}

	j := d.newJob(ctx, voucherID, "resend")
	if err := d.submit(j); err != nil {
		d.failed(d.jobContext(j), j, 0, domain.FailureQueueFull, err)
		return err
	}
	return nil
}

func (d *Dispatcher) newJob(ctx context.Context, voucherID snowflake.ID, trigger string) job {
	return job{
		id:        ulid.Make(),
		voucherID: voucherID,
		requestID: auditcontext.RequestIDFromContext(ctx),
		trigger:   trigger,
	}
}

func (d *Dispatcher) submit(j job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return domain.ErrStopped
	}
	select {
	case d.queue <- j:
		d.txMetrics.SetQueueDepth(len(d.queue))
		return nil
	default:
		return domain.ErrQueueFull
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		d.txMetrics.SetQueueDepth(len(d.queue))
		d.process(j)
	}
}

func (d *Dispatcher) jobContext(j job) context.Context {
	return auditcontext.WithRequestID(d.baseCtx, j.requestID)
}

func (d *Dispatcher) process(j job) {
	ctx := d.jobContext(j)
	log := d.log.With(zap.String("job_id", j.id.String()), zap.String("voucher_id", j.voucherID.String()))

	if d.locker != nil {
		key := lockKeyPrefix + j.voucherID.String()
		token, ok, err := d.locker.TryLock(ctx, key, d.cfg.LockTTL)
		switch {
		case err != nil:
			log.Warn("delivery lock unavailable, delivering without it", zap.Error(err))
		case !ok:
			log.Info("delivery already in flight elsewhere")
			d.metrics.RecordDelivery(ctx, "skipped", domain.FailureDeliveryInFlight)
			return
		default:
			defer func() {
				if err := d.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
					log.Warn("failed to release delivery lock", zap.Error(err))
				}
			}()
		}
	}

	var (
		lastErr    error
		lastReason string
	)
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		recipient, reason, err := d.deliver(ctx, j)
		if err == nil {
			d.sent(ctx, j, attempt, recipient)
			return
		}
		lastErr, lastReason = err, reason
		if permanent(reason) {
			d.failed(ctx, j, attempt, reason, err)
			return
		}
		log.Warn("voucher delivery attempt failed", zap.Int("attempt", attempt), zap.String("reason", reason), zap.Error(err))
		if attempt == d.cfg.MaxAttempts {
			break
		}
		if err := d.sleep(ctx, d.backoff(attempt)); err != nil {
			lastErr = err
			break
		}
	}
	d.failed(ctx, j, d.cfg.MaxAttempts, lastReason, lastErr)
}

// deliver performs one attempt and classifies a failure with a reason code.
func (d *Dispatcher) deliver(ctx context.Context, j job) (string, string, error) {
	v, err := d.voucherRepo.FindByID(ctx, d.db, j.voucherID, false)
	if err != nil {
		return "", domain.FailureSend, fmt.Errorf("load voucher: %w", err)
	}
	if v == nil {
		return "", domain.FailureVoucherNotFound, domain.ErrVoucherNotFound
	}

	addr, err := mail.ParseAddress(strings.TrimSpace(v.CustomerReference))
	if err != nil {
		return "", domain.FailureNoRecipient, errors.New("customer reference is not an email address")
	}

	snapshot, err := d.dealRepo.GetDealWithBusiness(ctx, d.db, v.DealID)
	if err != nil {
		return addr.Address, domain.FailureSend, fmt.Errorf("load deal: %w", err)
	}
	if snapshot == nil {
		return addr.Address, domain.FailureVoucherNotFound, fmt.Errorf("deal %s not found", v.DealID)
	}

	data := d.voucherData(v, snapshot)
	doc, err := d.pdf.GenerateVoucher(ctx, data)
	if err != nil {
		return addr.Address, domain.FailureRender, fmt.Errorf("render voucher: %w", err)
	}

	msg := email.Message{
		To:      []string{addr.Address},
		Subject: "Your voucher for " + snapshot.Deal.Title,
		Attachments: []email.Attachment{{
			Filename:    "voucher-" + v.ID.String() + ".pdf",
			ContentType: "application/pdf",
			Data:        doc,
		}},
	}
	if err := d.mailer.SendTemplate(ctx, msg, "voucher_issued", data); err != nil {
		if errors.Is(err, email.ErrDisabled) {
			return addr.Address, domain.FailureMailerDisabled, err
		}
		return addr.Address, domain.FailureSend, err
	}
	return addr.Address, "", nil
}

func (d *Dispatcher) voucherData(v *voucherdomain.Voucher, snapshot *dealdomain.DealWithBusiness) pdf.VoucherData {
	loc := snapshot.Business.Location()
	data := pdf.VoucherData{
		VoucherID:    v.ID.String(),
		QRToken:      v.QRToken,
		DealTitle:    snapshot.Deal.Title,
		BusinessName: snapshot.Business.Name,
		Price:        snapshot.Deal.Currency + " " + snapshot.Deal.Price.StringFixed(2),
		IssuedAt:     v.IssuedAt.In(loc).Format(displayLayout),
		ExpiresAt:    v.ExpiresAt.In(loc).Format(displayLayout),
	}
	if snapshot.Deal.Description != nil {
		data.Terms = *snapshot.Deal.Description
	}
	if d.redeemURL != "" {
		data.RedeemURL = d.redeemURL + "/" + v.QRToken
	}
	return data
}

func (d *Dispatcher) sent(ctx context.Context, j job, attempts int, recipient string) {
	d.metrics.RecordDelivery(ctx, "sent", "")
	d.log.Info("voucher delivered", zap.String("job_id", j.id.String()), zap.String("voucher_id", j.voucherID.String()), zap.Int("attempts", attempts))
	d.audit(ctx, j, auditdomain.ActionEmailSent, map[string]any{
		"job_id":          j.id.String(),
		"trigger":         j.trigger,
		"attempts":        attempts,
		"recipient_email": recipient,
	})
}

func (d *Dispatcher) failed(ctx context.Context, j job, attempts int, reason string, err error) {
	if reason == "" {
		reason = domain.FailureSend
	}
	d.metrics.RecordDelivery(ctx, "failed", reason)
	d.log.Warn("voucher delivery failed",
		zap.String("job_id", j.id.String()),
		zap.String("voucher_id", j.voucherID.String()),
		zap.String("reason", reason),
		zap.Error(err),
	)
	metadata := map[string]any{
		"job_id":   j.id.String(),
		"trigger":  j.trigger,
		"attempts": attempts,
		"reason":   reason,
	}
	if err != nil {
		metadata["error"] = err.Error()
	}
	if reason == domain.FailureVoucherNotFound {
		return
	}
	d.audit(ctx, j, auditdomain.ActionEmailFailed, metadata)
}

func (d *Dispatcher) audit(ctx context.Context, j job, action auditdomain.Action, metadata map[string]any) {
	err := d.auditSvc.Append(context.WithoutCancel(ctx), nil, auditdomain.Entry{
		VoucherID: j.voucherID,
		ActorType: auditdomain.ActorTypeSystem,
		ActorID:   deliveryActorID,
		Action:    action,
		Metadata:  metadata,
	})
	if err != nil {
		d.log.Error("failed to audit delivery", zap.String("voucher_id", j.voucherID.String()), zap.String("action", string(action)), zap.Error(err))
	}
}

func (d *Dispatcher) backoff(attempt int) time.Duration {
	base := d.cfg.BaseBackoff
	if base <= 0 {
		base = time.Second
	}
	return base << (attempt - 1)
}

func permanent(reason string) bool {
	switch reason {
	case domain.FailureNoRecipient, domain.FailureVoucherNotFound, domain.FailureRender, domain.FailureMailerDisabled:
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
