package session

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/vouchr/internal/clock"
	"github.com/smallbiznis/vouchr/internal/config"
)

type Role string

const (
	RoleVendor Role = "VENDOR"
	RoleAdmin  Role = "ADMIN"
)

const defaultTTL = 12 * time.Hour

var (
	ErrMissingSecret = errors.New("session_secret_not_configured")
	ErrInvalidToken  = errors.New("invalid_session_token")
	ErrInvalidClaims = errors.New("invalid_session_claims")
	ErrForbidden     = errors.New("forbidden")
)

// Claims identify the business a staff session acts for.
type Claims struct {
	BusinessID string `json:"business_id"`
	Role       Role   `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the verified identity behind a request.
type Principal struct {
	BusinessID snowflake.ID
	Subject    string
	Role       Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Manager issues and verifies HS256 business session tokens.
type Manager struct {
	secret []byte
	clock  clock.Clock
	ttl    time.Duration
}

func NewManager(cfg config.Config, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Manager{
		secret: []byte(strings.TrimSpace(cfg.AuthJWTSecret)),
		clock:  clk,
		ttl:    defaultTTL,
	}
}

// Issue mints a token for the principal. ttl <= 0 uses the default lifetime.
func (m *Manager) Issue(p Principal, ttl time.Duration) (string, error) {
	if len(m.secret) == 0 {
		return "", ErrMissingSecret
	}
	if p.BusinessID == 0 || strings.TrimSpace(p.Subject) == "" || !validRole(p.Role) {
		return "", ErrInvalidClaims
	}
	if ttl <= 0 {
		ttl = m.ttl
	}

	now := m.clock.Now()
	claims := Claims{
		BusinessID: p.BusinessID.String(),
		Role:       p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strings.TrimSpace(p.Subject),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Parse verifies the signature and expiry of raw and returns its principal.
func (m *Manager) Parse(raw string) (Principal, error) {
	if len(m.secret) == 0 {
		return Principal{}, ErrMissingSecret
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Principal{}, ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	businessID, err := snowflake.ParseString(strings.TrimSpace(claims.BusinessID))
	if err != nil || businessID == 0 {
		return Principal{}, ErrInvalidClaims
	}
	if strings.TrimSpace(claims.Subject) == "" || !validRole(claims.Role) {
		return Principal{}, ErrInvalidClaims
	}

	return Principal{
		BusinessID: businessID,
		Subject:    claims.Subject,
		Role:       claims.Role,
	}, nil
}

func validRole(r Role) bool {
	return r == RoleVendor || r == RoleAdmin
}
