package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/vouchr/internal/audit/domain"
	callbackdomain "github.com/smallbiznis/vouchr/internal/callback/domain"
	deliverydomain "github.com/smallbiznis/vouchr/internal/delivery/domain"
	"github.com/smallbiznis/vouchr/internal/session"
	voucherdomain "github.com/smallbiznis/vouchr/internal/voucher/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// reasonInvalidRequest labels malformed callback and redeem bodies in the
// per-endpoint envelopes.
const reasonInvalidRequest voucherdomain.Reason = "InvalidRequest"

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	if rej, ok := voucherdomain.AsRejection(err); ok {
		status := rejectionStatus(rej.Reason)
		return status, errorPayload{
			Type:    statusType(status),
			Message: string(rej.Reason),
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, session.ErrInvalidToken),
		errors.Is(err, session.ErrInvalidClaims),
		errors.Is(err, session.ErrMissingSecret):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, session.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, deliverydomain.ErrQueueFull),
		errors.Is(err, deliverydomain.ErrStopped):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// rejectionStatus is the HTTP status for a domain refusal.
func rejectionStatus(reason voucherdomain.Reason) int {
	switch reason {
	case reasonInvalidRequest:
		return http.StatusBadRequest
	case voucherdomain.ReasonSignatureInvalid, voucherdomain.ReasonReplayWindowExceeded:
		return http.StatusUnauthorized
	case voucherdomain.ReasonDealNotFound, voucherdomain.ReasonNotFound:
		return http.StatusNotFound
	case voucherdomain.ReasonWrongBusiness:
		return http.StatusForbidden
	case voucherdomain.ReasonAlreadyRedeemed:
		return http.StatusConflict
	case voucherdomain.ReasonExpired:
		return http.StatusGone
	case voucherdomain.ReasonTransactionError:
		return http.StatusServiceUnavailable
	case voucherdomain.ReasonDealNotActive,
		voucherdomain.ReasonBusinessNotActive,
		voucherdomain.ReasonSubscriptionInactive,
		voucherdomain.ReasonPaymentNotConfirmed,
		voucherdomain.ReasonDealSoldOut,
		voucherdomain.ReasonAmountMismatch,
		voucherdomain.ReasonNotRedeemableNow:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func statusType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation_error"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusGone:
		return "gone"
	case http.StatusUnprocessableEntity:
		return "unprocessable"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		return "internal_error"
	}
}

// classifyErrorForLog feeds the request logger's error_type and error_code.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if rej, ok := voucherdomain.AsRejection(err); ok {
		return statusType(rejectionStatus(rej.Reason)), string(rej.Reason)
	}
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return payload.Type, "internal_error"
	}
	return payload.Type, payload.Message
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, callbackdomain.ErrInvalidRequest),
		errors.Is(err, auditdomain.ErrInvalidVoucher),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, deliverydomain.ErrVoucherNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, callbackdomain.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, auditdomain.ErrInvalidVoucher):
		return "invalid_voucher_id"
	case errors.Is(err, auditdomain.ErrInvalidPageToken):
		return "invalid_page_token"
	case errors.Is(err, auditdomain.ErrInvalidAction):
		return "invalid_action"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
