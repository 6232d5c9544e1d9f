// Package context carries request correlation values for logs and spans.
package context

import (
	"context"
	"strings"
)

type key int

const (
	requestIDKey key = iota
	businessIDKey
	actorKey
	dealIDKey
	voucherIDKey
)

type actorValue struct {
	actorType string
	actorID   string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

func WithBusinessID(ctx context.Context, businessID string) context.Context {
	return context.WithValue(ctx, businessIDKey, strings.TrimSpace(businessID))
}

func BusinessIDFromContext(ctx context.Context) string {
	return stringValue(ctx, businessIDKey)
}

// WithDealID tags the context with the deal a callback names.
func WithDealID(ctx context.Context, dealID string) context.Context {
	return context.WithValue(ctx, dealIDKey, strings.TrimSpace(dealID))
}

func DealIDFromContext(ctx context.Context) string {
	return stringValue(ctx, dealIDKey)
}

// WithVoucherID tags the context once a voucher is known.
func WithVoucherID(ctx context.Context, voucherID string) context.Context {
	return context.WithValue(ctx, voucherIDKey, strings.TrimSpace(voucherID))
}

func VoucherIDFromContext(ctx context.Context) string {
	return stringValue(ctx, voucherIDKey)
}

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey, actorValue{actorType: actorType, actorID: actorID})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	v, ok := ctx.Value(actorKey).(actorValue)
	if !ok {
		return "", ""
	}
	return v.actorType, v.actorID
}

func stringValue(ctx context.Context, k key) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(k).(string)
	return v
}
