package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type DealStatus string

const (
	DealStatusInactive DealStatus = "INACTIVE"
	DealStatusActive   DealStatus = "ACTIVE"
	DealStatusExpired  DealStatus = "EXPIRED"
)

type BusinessStatus string

const (
	BusinessStatusDraft     BusinessStatus = "DRAFT"
	BusinessStatusActive    BusinessStatus = "ACTIVE"
	BusinessStatusSuspended BusinessStatus = "SUSPENDED"
)

const SubscriptionStatusActive = "ACTIVE"

type Deal struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	BusinessID      snowflake.ID    `json:"business_id"`
	Title           string          `json:"title"`
	Description     *string         `json:"description,omitempty"`
	Status          DealStatus      `json:"status"`
	Price           decimal.Decimal `json:"price"`
	Currency        string          `json:"currency"`
	ExpirationHours int             `json:"expiration_hours"`
	ValidityWindows datatypes.JSON  `json:"validity_windows,omitempty"`
	MaxVouchers     *int            `json:"max_vouchers,omitempty"`
	IssuedCount     int             `json:"issued_count"`
	CountyID        *int64          `json:"county_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (Deal) TableName() string { return "deals" }

type Business struct {
	ID             snowflake.ID   `gorm:"primaryKey" json:"id"`
	Name           string         `json:"name"`
	Status         BusinessStatus `json:"status"`
	Timezone       string         `json:"timezone"`
	CountyID       *int64         `json:"county_id,omitempty"`
	ContactEmail   *string        `json:"contact_email,omitempty"`
	SubscriptionID *snowflake.ID  `json:"subscription_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (Business) TableName() string { return "businesses" }

// Location returns the business time zone, falling back to UTC for empty or
// unknown names.
func (b Business) Location() *time.Location {
	if b.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type Subscription struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	BusinessID snowflake.ID `json:"business_id"`
	Status     string       `json:"status"`
	EndsAt     *time.Time   `json:"ends_at,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

// ActiveAt reports whether the subscription is ACTIVE and not past its end.
func (s Subscription) ActiveAt(now time.Time) bool {
	if s.Status != SubscriptionStatusActive {
		return false
	}
	return s.EndsAt == nil || now.Before(*s.EndsAt)
}

// DealWithBusiness is the read snapshot eligibility and issuance work from.
type DealWithBusiness struct {
	Deal         Deal
	Business     Business
	Subscription *Subscription
}
