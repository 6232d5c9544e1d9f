package domain

import (
	"errors"
	"fmt"
)

// Reason identifies why an issuance or redemption was refused.
type Reason string

const (
	ReasonSignatureInvalid     Reason = "SignatureInvalid"
	ReasonReplayWindowExceeded Reason = "ReplayWindowExceeded"
	ReasonDealNotFound         Reason = "DealNotFound"
	ReasonDealNotActive        Reason = "DealNotActive"
	ReasonBusinessNotActive    Reason = "BusinessNotActive"
	ReasonSubscriptionInactive Reason = "SubscriptionInactive"
	ReasonPaymentNotConfirmed  Reason = "PaymentNotConfirmed"
	ReasonDealSoldOut          Reason = "DealSoldOut"
	ReasonAmountMismatch       Reason = "AmountMismatch"
	ReasonTransactionError     Reason = "TransactionError"

	ReasonNotFound         Reason = "NotFound"
	ReasonWrongBusiness    Reason = "WrongBusiness"
	ReasonAlreadyRedeemed  Reason = "AlreadyRedeemed"
	ReasonExpired          Reason = "Expired"
	ReasonNotRedeemableNow Reason = "NotRedeemableNow"
)

// Category groups eligibility reasons under DealNotEligible. Every other
// reason is its own category.
func (r Reason) Category() Reason {
	switch r {
	case ReasonDealNotFound, ReasonDealNotActive, ReasonBusinessNotActive,
		ReasonSubscriptionInactive, ReasonPaymentNotConfirmed, ReasonDealSoldOut:
		return CategoryDealNotEligible
	}
	return r
}

const CategoryDealNotEligible Reason = "DealNotEligible"

// Rejection is a refusal the caller can act on. errors.Is matches on Reason,
// so a Rejection carrying detail still matches the exported sentinels.
type Rejection struct {
	Reason Reason
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	return ok && t.Reason == r.Reason
}

func Reject(reason Reason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// AsRejection unwraps err into a Rejection when it carries one.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

var (
	ErrSignatureInvalid     = &Rejection{Reason: ReasonSignatureInvalid}
	ErrReplayWindowExceeded = &Rejection{Reason: ReasonReplayWindowExceeded}
	ErrDealNotFound         = &Rejection{Reason: ReasonDealNotFound}
	ErrDealNotActive        = &Rejection{Reason: ReasonDealNotActive}
	ErrBusinessNotActive    = &Rejection{Reason: ReasonBusinessNotActive}
	ErrSubscriptionInactive = &Rejection{Reason: ReasonSubscriptionInactive}
	ErrPaymentNotConfirmed  = &Rejection{Reason: ReasonPaymentNotConfirmed}
	ErrDealSoldOut          = &Rejection{Reason: ReasonDealSoldOut}
	ErrAmountMismatch       = &Rejection{Reason: ReasonAmountMismatch}
	ErrTransactionError     = &Rejection{Reason: ReasonTransactionError}

	ErrVoucherNotFound  = &Rejection{Reason: ReasonNotFound}
	ErrWrongBusiness    = &Rejection{Reason: ReasonWrongBusiness}
	ErrAlreadyRedeemed  = &Rejection{Reason: ReasonAlreadyRedeemed}
	ErrExpired          = &Rejection{Reason: ReasonExpired}
	ErrNotRedeemableNow = &Rejection{Reason: ReasonNotRedeemableNow}
)
