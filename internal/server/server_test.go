package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/vouchr/internal/audit/domain"
	callbackdomain "github.com/smallbiznis/vouchr/internal/callback/domain"
	"github.com/smallbiznis/vouchr/internal/clock"
	"github.com/smallbiznis/vouchr/internal/config"
	"github.com/smallbiznis/vouchr/internal/observability"
	"github.com/smallbiznis/vouchr/internal/session"
	voucherdomain "github.com/smallbiznis/vouchr/internal/voucher/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type fakeCallbackService struct {
	mu        sync.Mutex
	got       []callbackdomain.CallbackRequest
	malformed [][]byte
	causes    []error
	result    *callbackdomain.CallbackResult
	err       error
}

func (f *fakeCallbackService) RecordMalformed(ctx context.Context, raw []byte, cause error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.malformed = append(f.malformed, append([]byte(nil), raw...))
	f.causes = append(f.causes, cause)
}

func (f *fakeCallbackService) HandleCallback(ctx context.Context, req callbackdomain.CallbackRequest) (*callbackdomain.CallbackResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, req)
	return f.result, f.err
}

type fakeVoucherService struct {
	redeemReq voucherdomain.RedeemRequest
	redeem    *voucherdomain.RedeemResult
	redeemErr error
	view      *voucherdomain.VoucherView
	viewErr   error
}

func (f *fakeVoucherService) Issue(ctx context.Context, req voucherdomain.IssueRequest) voucherdomain.IssueOutcome {
	return voucherdomain.IssueOutcome{Kind: voucherdomain.IssueTransientFailure}
}

func (f *fakeVoucherService) Redeem(ctx context.Context, req voucherdomain.RedeemRequest) (*voucherdomain.RedeemResult, error) {
	f.redeemReq = req
	return f.redeem, f.redeemErr
}

func (f *fakeVoucherService) GetByQRToken(ctx context.Context, businessID snowflake.ID, qrToken string) (*voucherdomain.VoucherView, error) {
	return f.view, f.viewErr
}

func (f *fakeVoucherService) Get(ctx context.Context, voucherID snowflake.ID) (*voucherdomain.VoucherView, error) {
	return f.view, f.viewErr
}

type fakeAuditService struct {
	listReq auditdomain.ListAuditLogRequest
	resp    auditdomain.ListAuditLogResponse
	err     error
}

func (f *fakeAuditService) Append(ctx context.Context, db *gorm.DB, entry auditdomain.Entry) error {
	return nil
}

func (f *fakeAuditService) ListByVoucher(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	f.listReq = req
	return f.resp, f.err
}

type fakeDispatcher struct {
	resent []snowflake.ID
	err    error
}

func (f *fakeDispatcher) Enqueue(ctx context.Context, voucherID snowflake.ID) {}

func (f *fakeDispatcher) Resend(ctx context.Context, voucherID snowflake.ID) error {
	f.resent = append(f.resent, voucherID)
	return f.err
}

type fixture struct {
	engine   *gin.Engine
	sessions *session.Manager
	callback *fakeCallbackService
	vouchers *fakeVoucherService
	audit    *fakeAuditService
	delivery *fakeDispatcher
}

func newFixture(t *testing.T, opts ...func(*ServerParams)) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := fixture{
		engine:   NewEngine(observability.Config{Environment: "test"}, nil),
		sessions: session.NewManager(config.Config{AuthJWTSecret: "test-secret"}, clock.NewFakeClock(testNow)),
		callback: &fakeCallbackService{},
		vouchers: &fakeVoucherService{},
		audit:    &fakeAuditService{},
		delivery: &fakeDispatcher{},
	}
	params := ServerParams{
		Gin:         f.engine,
		Cfg:         config.Config{},
		Log:         zap.NewNop(),
		Sessions:    f.sessions,
		CallbackSvc: f.callback,
		VoucherSvc:  f.vouchers,
		AuditSvc:    f.audit,
		Delivery:    f.delivery,
	}
	for _, opt := range opts {
		opt(&params)
	}
	NewServer(params)
	return f
}

func (f fixture) token(t *testing.T, businessID snowflake.ID, role session.Role) string {
	t.Helper()
	token, err := f.sessions.Issue(session.Principal{BusinessID: businessID, Subject: "staff-1", Role: role}, 0)
	require.NoError(t, err)
	return token
}

func (f fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch v := body.(type) {
		case string:
			buf.WriteString(v)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(v))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
