package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// DealFixture describes a business, its subscription and one deal. Zero values
// produce an active, subscribed, purchasable deal priced 10.00 USD.
type DealFixture struct {
	BusinessStatus     string
	Timezone           string
	ContactEmail       string
	NoSubscription     bool
	SubscriptionStatus string
	SubscriptionEndsAt *time.Time
	DealStatus         string
	Price              string
	Currency           string
	ExpirationHours    int
	MaxVouchers        *int
	ValidityWindows    string
}

type Seeded struct {
	BusinessID int64
	DealID     int64
}

// SeedDeal inserts the collaborator rows an issuance needs.
func SeedDeal(t testing.TB, db *gorm.DB, f DealFixture) Seeded {
	t.Helper()

	if f.BusinessStatus == "" {
		f.BusinessStatus = "ACTIVE"
	}
	if f.Timezone == "" {
		f.Timezone = "UTC"
	}
	if f.SubscriptionStatus == "" {
		f.SubscriptionStatus = "ACTIVE"
	}
	if f.DealStatus == "" {
		f.DealStatus = "ACTIVE"
	}
	if f.Price == "" {
		f.Price = "10.00"
	}
	if f.Currency == "" {
		f.Currency = "USD"
	}
	if f.ExpirationHours == 0 {
		f.ExpirationHours = 48
	}

	now := time.Now().UTC()
	businessID := NextID()
	require.NoError(t, db.Exec(
		`INSERT INTO businesses (id, name, status, timezone, contact_email, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		businessID, fmt.Sprintf("Business %d", businessID), f.BusinessStatus, f.Timezone, nullable(f.ContactEmail), now, now,
	).Error)

	if !f.NoSubscription {
		subscriptionID := NextID()
		require.NoError(t, db.Exec(
			`INSERT INTO subscriptions (id, business_id, status, ends_at, created_at) VALUES (?, ?, ?, ?, ?)`,
			subscriptionID, businessID, f.SubscriptionStatus, f.SubscriptionEndsAt, now,
		).Error)
		require.NoError(t, db.Exec(`UPDATE businesses SET subscription_id = ? WHERE id = ?`, subscriptionID, businessID).Error)
	}

	dealID := NextID()
	require.NoError(t, db.Exec(
		`INSERT INTO deals (id, business_id, title, status, price, currency, expiration_hours, validity_windows, max_vouchers, issued_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		dealID, businessID, fmt.Sprintf("Deal %d", dealID), f.DealStatus, f.Price, f.Currency, f.ExpirationHours,
		nullable(f.ValidityWindows), f.MaxVouchers, now, now,
	).Error)

	return Seeded{BusinessID: businessID, DealID: dealID}
}

// VoucherFixture describes a voucher inserted directly, bypassing issuance.
type VoucherFixture struct {
	ExternalRef string
	QRToken     string
	Status      string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	RedeemedAt  *time.Time
	Customer    string
}

// SeedVoucher inserts a validation and the voucher bound to it.
func SeedVoucher(t testing.TB, db *gorm.DB, seeded Seeded, f VoucherFixture) int64 {
	t.Helper()

	now := time.Now().UTC()
	if f.ExternalRef == "" {
		f.ExternalRef = fmt.Sprintf("txn-%d", NextID())
	}
	if f.QRToken == "" {
		f.QRToken = fmt.Sprintf("qr-%d", NextID())
	}
	if f.Status == "" {
		f.Status = "ISSUED"
	}
	if f.IssuedAt.IsZero() {
		f.IssuedAt = now
	}
	if f.ExpiresAt.IsZero() {
		f.ExpiresAt = f.IssuedAt.Add(48 * time.Hour)
	}

	validationID := NextID()
	require.NoError(t, db.Exec(
		`INSERT INTO validations (id, business_id, deal_id, external_ref, created_at) VALUES (?, ?, ?, ?, ?)`,
		validationID, seeded.BusinessID, seeded.DealID, f.ExternalRef, now,
	).Error)

	voucherID := NextID()
	require.NoError(t, db.Exec(
		`INSERT INTO vouchers (id, deal_id, business_id, validation_id, qr_token, status, customer_reference, issued_at, expires_at, redeemed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		voucherID, seeded.DealID, seeded.BusinessID, validationID, f.QRToken, f.Status, f.Customer,
		f.IssuedAt.UTC(), f.ExpiresAt.UTC(), f.RedeemedAt,
	).Error)

	return voucherID
}

// Count returns the number of rows matching where.
func Count(t testing.TB, db *gorm.DB, table, where string, args ...any) int64 {
	t.Helper()

	var n int64
	query := db.Table(table)
	if where != "" {
		query = query.Where(where, args...)
	}
	require.NoError(t, query.Count(&n).Error)
	return n
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
