package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Dispatcher delivers voucher artifacts after issuance has committed.
type Dispatcher interface {
	// Enqueue schedules delivery and returns immediately. A full queue is
	// recorded as a failed delivery, never reported to the caller.
	Enqueue(ctx context.Context, voucherID snowflake.ID)
	// Resend schedules delivery again for an existing voucher.
	Resend(ctx context.Context, voucherID snowflake.ID) error
}

const (
	FailureQueueFull        = "queue_full"
	FailureNoRecipient      = "no_email_recipient"
	FailureVoucherNotFound  = "voucher_not_found"
	FailureRender           = "render_failed"
	FailureSend             = "send_failed"
	FailureMailerDisabled   = "mailer_disabled"
	FailureDeliveryInFlight = "delivery_in_flight"
)

var (
	ErrQueueFull       = errors.New("delivery_queue_full")
	ErrVoucherNotFound = errors.New("voucher_not_found")
	ErrStopped         = errors.New("delivery_stopped")
)

// Locker serialises deliveries of one voucher across processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}
