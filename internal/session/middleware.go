package session

import (
	"strings"

	"github.com/gin-gonic/gin"
	auditcontext "github.com/smallbiznis/vouchr/internal/auditcontext"
	obscontext "github.com/smallbiznis/vouchr/internal/observability/context"
)

const (
	ContextBusinessIDKey = "business_id"
	contextPrincipalKey  = "session_principal"
)

// Authenticate resolves the bearer token into a principal. Failures are
// reported to onError, which is expected to abort the request.
func (m *Manager) Authenticate(onError func(c *gin.Context, err error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			onError(c, ErrInvalidToken)
			return
		}
		principal, err := m.Parse(raw)
		if err != nil {
			onError(c, err)
			return
		}

		c.Set(contextPrincipalKey, principal)
		c.Set(ContextBusinessIDKey, principal.BusinessID.String())

		ctx := c.Request.Context()
		ctx = obscontext.WithBusinessID(ctx, principal.BusinessID.String())
		ctx = obscontext.WithActor(ctx, string(principal.Role), principal.Subject)
		ctx = auditcontext.WithActor(ctx, string(principal.Role), principal.Subject)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireRole rejects principals whose role is not listed.
func RequireRole(onError func(c *gin.Context, err error), roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFromGin(c)
		if !ok {
			onError(c, ErrInvalidToken)
			return
		}
		for _, role := range roles {
			if principal.Role == role {
				c.Next()
				return
			}
		}
		onError(c, ErrForbidden)
	}
}

func PrincipalFromGin(c *gin.Context) (Principal, bool) {
	value, ok := c.Get(contextPrincipalKey)
	if !ok {
		return Principal{}, false
	}
	principal, ok := value.(Principal)
	return principal, ok
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
