// Package domain holds the billing account, the single mutable record the
// reconciler converges toward for each user.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/renderforge/billing/internal/plan"
)

// Status mirrors the provider's subscription lifecycle, plus "none" for
// accounts that only ever bought add-on credits.
type Status string

const (
	StatusNone              Status = "none"
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired"
	StatusTrialing          Status = "trialing"
	StatusActive            Status = "active"
	StatusPastDue           Status = "past_due"
	StatusCanceled          Status = "canceled"
	StatusUnpaid            Status = "unpaid"
)

// MapProviderStatus normalizes a provider-reported status. Unrecognized
// values map to incomplete so provider-added statuses degrade instead of
// rejecting the event.
func MapProviderStatus(raw string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusNone, "":
		return StatusNone
	case StatusIncomplete:
		return StatusIncomplete
	case StatusIncompleteExpired:
		return StatusIncompleteExpired
	case StatusTrialing:
		return StatusTrialing
	case StatusActive:
		return StatusActive
	case StatusPastDue:
		return StatusPastDue
	case StatusCanceled:
		return StatusCanceled
	case StatusUnpaid:
		return StatusUnpaid
	default:
		return StatusIncomplete
	}
}

// Account is the per-user billing state. Period bounds are the provider's
// timestamps in ms epoch; a change in CurrentPeriodStart is the only signal
// that a new billing cycle began.
type Account struct {
	ID                  snowflake.ID `gorm:"primaryKey"`
	UserID              snowflake.ID `gorm:"not null;uniqueIndex:ux_billing_accounts_user"`
	CustomerID          string       `gorm:"type:text;not null;default:'';index:ix_billing_accounts_customer"`
	SubscriptionID      *string      `gorm:"type:text;uniqueIndex:ux_billing_accounts_subscription"`
	PlanKey             plan.Key     `gorm:"type:text;not null;default:'none'"`
	Status              Status       `gorm:"type:text;not null;default:'none'"`
	CurrentPeriodStart  int64        `gorm:"not null;default:0"`
	CurrentPeriodEnd    int64        `gorm:"not null;default:0"`
	MonthlyCreditLimit  int64        `gorm:"not null;default:0"`
	MonthlyCreditsUsed  int64        `gorm:"not null;default:0"`
	AddonCreditsBalance int64        `gorm:"not null;default:0"`
	CreatedAt           time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt           time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "billing_accounts" }

// MonthlyRemaining is the unused portion of the current period's quota.
func (a *Account) MonthlyRemaining() int64 {
	remaining := a.MonthlyCreditLimit - a.MonthlyCreditsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
