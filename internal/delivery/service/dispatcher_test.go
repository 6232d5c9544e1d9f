package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditrepository "github.com/smallbiznis/vouchr/internal/audit/repository"
	auditservice "github.com/smallbiznis/vouchr/internal/audit/service"
	"github.com/smallbiznis/vouchr/internal/clock"
	"github.com/smallbiznis/vouchr/internal/config"
	"github.com/smallbiznis/vouchr/internal/dbtest"
	dealrepository "github.com/smallbiznis/vouchr/internal/deal/repository"
	"github.com/smallbiznis/vouchr/internal/delivery/domain"
	"github.com/smallbiznis/vouchr/internal/providers/email"
	"github.com/smallbiznis/vouchr/internal/providers/pdf"
	voucherrepository "github.com/smallbiznis/vouchr/internal/voucher/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeMailer struct {
	mu       sync.Mutex
	failures int
	err      error
	sent     []email.Message
	calls    int
}

func (m *fakeMailer) Send(ctx context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failures > 0 {
		m.failures--
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) SendTemplate(ctx context.Context, msg email.Message, _ string, _ any) error {
	return m.Send(ctx, msg)
}

type fakePDF struct{}

func (fakePDF) GenerateVoucher(ctx context.Context, data pdf.VoucherData) ([]byte, error) {
	return []byte("%PDF-" + data.VoucherID), nil
}

type fakeLocker struct {
	held bool
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (string, bool, error) {
	if l.held {
		return "", false, nil
	}
	return "token", true, nil
}

func (l *fakeLocker) Release(context.Context, string, string) error { return nil }

type fixture struct {
	d      *Dispatcher
	db     *gorm.DB
	mailer *fakeMailer
	seeded dbtest.Seeded
}

func newFixture(t *testing.T, mailer email.Provider, queueSize int) fixture {
	t.Helper()

	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{}
	cfg.Delivery = config.DeliveryConfig{Workers: 2, QueueSize: queueSize, MaxAttempts: 3, BaseBackoff: time.Millisecond}
	cfg.Voucher.RedeemBaseURL = "https://vouchr.example.com/v/"

	auditSvc := auditservice.NewService(auditservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clock.SystemClock{}, Repo: auditrepository.Provide(),
	})

	d := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		Cfg:         cfg,
		VoucherRepo: voucherrepository.Provide(),
		DealRepo:    dealrepository.Provide(),
		AuditSvc:    auditSvc,
		Mailer:      mailer,
		PDF:         fakePDF{},
	})
	d.sleep = func(context.Context, time.Duration) error { return nil }

	fm, _ := mailer.(*fakeMailer)
	return fixture{d: d, db: db, mailer: fm, seeded: dbtest.SeedDeal(t, db, dbtest.DealFixture{})}
}

func (f fixture) voucher(t *testing.T, customer string) snowflake.ID {
	t.Helper()
	return snowflake.ID(dbtest.SeedVoucher(t, f.db, f.seeded, dbtest.VoucherFixture{Customer: customer}))
}

func (f fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.d.Stop(ctx))
}

func (f fixture) reasons(t *testing.T, id snowflake.ID, action string) []string {
	t.Helper()
	var rows []struct{ Metadata string }
	require.NoError(t, f.db.Raw(
		`SELECT metadata FROM voucher_audit_logs WHERE voucher_id = ? AND action = ?`, id, action,
	).Scan(&rows).Error)
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Metadata)
	}
	return out
}

func TestDeliverySendsVoucherWithAttachment(t *testing.T) {
	f := newFixture(t, &fakeMailer{}, 8)
	id := f.voucher(t, "alice@example.com")

	f.d.Start()
	f.d.Enqueue(context.Background(), id)
	f.drain(t)

	require.Len(t, f.mailer.sent, 1)
	msg := f.mailer.sent[0]
	assert.Equal(t, []string{"alice@example.com"}, msg.To)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "voucher-"+id.String()+".pdf", msg.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)

	assert.EqualValues(t, 1, dbtest.Count(t, f.db, "voucher_audit_logs", "voucher_id = ? AND action = ?", id, "EMAIL_SENT"))
}

func TestDeliveryRetriesTransientFailures(t *testing.T) {
	f := newFixture(t, &fakeMailer{failures: 2, err: errors.New("421 try later")}, 8)
	id := f.voucher(t, "bob@example.com")

	f.d.Start()
	f.d.Enqueue(context.Background(), id)
	f.drain(t)

	assert.Equal(t, 3, f.mailer.calls)
	assert.EqualValues(t, 1, dbtest.Count(t, f.db, "voucher_audit_logs", "voucher_id = ? AND action = ?", id, "EMAIL_SENT"))
	assert.EqualValues(t, 0, dbtest.Count(t, f.db, "voucher_audit_logs", "voucher_id = ? AND action = ?", id, "EMAIL_FAILED"))
}

func TestDeliveryGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t, &fakeMailer{failures: 10, err: errors.New("connection refused")}, 8)
	id := f.voucher(t, "carol@example.com")

	f.d.Start()
	f.d.Enqueue(context.Background(), id)
	f.drain(t)

	assert.Equal(t, 3, f.mailer.calls)
	failed := f.reasons(t, id, "EMAIL_FAILED")
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0], domain.FailureSend)
}

func TestDeliveryWithoutEmailRecipient(t *testing.T) {
	f := newFixture(t, &fakeMailer{}, 8)
	id := f.voucher(t, "vendor-ref-42")

	f.d.Start()
	f.d.Enqueue(context.Background(), id)
	f.drain(t)

	assert.Zero(t, f.mailer.calls)
	failed := f.reasons(t, id, "EMAIL_FAILED")
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0], domain.FailureNoRecipient)
}

func TestDeliveryWithMailerDisabled(t *testing.T) {
	f := newFixture(t, &email.NoOpProvider{}, 8)
	id := f.voucher(t, "dave@example.com")

	f.d.Start()
	f.d.Enqueue(context.Background(), id)
	f.drain(t)

	failed := f.reasons(t, id, "EMAIL_FAILED")
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0], domain.FailureMailerDisabled)
}

func TestEnqueueNeverBlocksWhenQueueIsFull(t *testing.T) {
	f := newFixture(t, &fakeMailer{}, 1)
	first := f.voucher(t, "erin@example.com")
	second := f.voucher(t, "frank@example.com")

	// Workers are not started, so the second job cannot fit.
	f.d.Enqueue(context.Background(), first)
	f.d.Enqueue(context.Background(), second)

	failed := f.reasons(t, second, "EMAIL_FAILED")
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0], domain.FailureQueueFull)

	f.d.Start()
	f.drain(t)
	assert.EqualValues(t, 1, dbtest.Count(t, f.db, "voucher_audit_logs", "voucher_id = ? AND action = ?", first, "EMAIL_SENT"))
}

func TestResend(t *testing.T) {
	f := newFixture(t, &fakeMailer{}, 8)
	id := f.voucher(t, "gina@example.com")

	f.d.Start()
	require.NoError(t, f.d.Resend(context.Background(), id))
	assert.ErrorIs(t, f.d.Resend(context.Background(), snowflake.ID(12345)), domain.ErrVoucherNotFound)
	f.drain(t)

	sent := f.reasons(t, id, "EMAIL_SENT")
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "resend")
}

func TestDeliverySkipsWhenLockIsHeld(t *testing.T) {
	f := newFixture(t, &fakeMailer{}, 8)
	f.d.locker = &fakeLocker{held: true}
	id := f.voucher(t, "hank@example.com")

	f.d.Start()
	f.d.Enqueue(context.Background(), id)
	f.drain(t)

	assert.Zero(t, f.mailer.calls)
	assert.EqualValues(t, 0, dbtest.Count(t, f.db, "voucher_audit_logs", "voucher_id = ?", id))
}

func TestEnqueueAfterStopIsAudited(t *testing.T) {
	f := newFixture(t, &fakeMailer{}, 8)
	id := f.voucher(t, "ivy@example.com")

	f.d.Start()
	f.drain(t)
	f.d.Enqueue(context.Background(), id)

	assert.Len(t, f.reasons(t, id, "EMAIL_FAILED"), 1)
}

// stuckMailer ignores cancellation, like a transport hung mid-conversation.
type stuckMailer struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (m *stuckMailer) Send(ctx context.Context, msg email.Message) error {
	m.once.Do(func() { close(m.started) })
	<-m.release
	return errors.New("released")
}

func (m *stuckMailer) SendTemplate(ctx context.Context, msg email.Message, _ string, _ any) error {
	return m.Send(ctx, msg)
}

func TestStopReturnsAtDeadlineWhileSendIsStuck(t *testing.T) {
	mailer := &stuckMailer{started: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, mailer, 8)
	id := f.voucher(t, "jay@example.com")

	f.d.Start()
	f.d.Enqueue(context.Background(), id)
	select {
	case <-mailer.started:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never reached the mailer")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	begin := time.Now()
	err := f.d.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(begin), 2*time.Second)

	close(mailer.release)
	f.d.wg.Wait()
}
