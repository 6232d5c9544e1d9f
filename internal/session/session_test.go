package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	auditcontext "github.com/smallbiznis/vouchr/internal/auditcontext"
	"github.com/smallbiznis/vouchr/internal/clock"
	"github.com/smallbiznis/vouchr/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T) (*Manager, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(testNow)
	return NewManager(config.Config{AuthJWTSecret: "test-secret"}, clk), clk
}

func TestIssueAndParse(t *testing.T) {
	m, _ := newTestManager(t)
	want := Principal{BusinessID: snowflake.ID(42), Subject: "staff-1", Role: RoleVendor}

	token, err := m.Issue(want, 0)
	require.NoError(t, err)

	got, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.False(t, got.IsAdmin())
}

func TestParseRejectsExpired(t *testing.T) {
	m, clk := newTestManager(t)
	token, err := m.Issue(Principal{BusinessID: 42, Subject: "staff-1", Role: RoleAdmin}, time.Minute)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = m.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsForeignSecret(t *testing.T) {
	m, _ := newTestManager(t)
	other := NewManager(config.Config{AuthJWTSecret: "other-secret"}, clock.NewFakeClock(testNow))

	token, err := other.Issue(Principal{BusinessID: 42, Subject: "staff-1", Role: RoleVendor}, 0)
	require.NoError(t, err)

	_, err = m.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsUnknownRole(t *testing.T) {
	m, _ := newTestManager(t)
	claims := Claims{
		BusinessID: "42",
		Role:       Role("OWNER"),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "staff-1",
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = m.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestIssueRequiresSecret(t *testing.T) {
	m := NewManager(config.Config{}, nil)
	_, err := m.Issue(Principal{BusinessID: 42, Subject: "staff-1", Role: RoleVendor}, 0)
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, _ := newTestManager(t)

	abort := func(c *gin.Context, err error) {
		status := http.StatusUnauthorized
		if err == ErrForbidden {
			status = http.StatusForbidden
		}
		c.AbortWithStatus(status)
	}

	r := gin.New()
	r.GET("/me", m.Authenticate(abort), func(c *gin.Context) {
		actorType, actorID := auditcontext.ActorFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"business_id": c.GetString(ContextBusinessIDKey),
			"actor":       actorType + ":" + actorID,
		})
	})
	r.GET("/admin", m.Authenticate(abort), RequireRole(abort, RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	vendor, err := m.Issue(Principal{BusinessID: 42, Subject: "staff-1", Role: RoleVendor}, 0)
	require.NoError(t, err)
	admin, err := m.Issue(Principal{BusinessID: 42, Subject: "ops", Role: RoleAdmin}, 0)
	require.NoError(t, err)

	cases := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{name: "missing header", path: "/me", status: http.StatusUnauthorized},
		{name: "malformed header", path: "/me", header: "Token abc", status: http.StatusUnauthorized},
		{name: "vendor", path: "/me", header: "Bearer " + vendor, status: http.StatusOK},
		{name: "lowercase scheme", path: "/me", header: "bearer " + vendor, status: http.StatusOK},
		{name: "vendor on admin route", path: "/admin", header: "Bearer " + vendor, status: http.StatusForbidden},
		{name: "admin on admin route", path: "/admin", header: "Bearer " + admin, status: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"business_id":"42"`)
				assert.Contains(t, w.Body.String(), `"actor":"VENDOR:staff-1"`)
			}
		})
	}
}
