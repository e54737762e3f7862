// Package domain holds the append-only credit ledger model. Every change to
// a user's credit balances lands here; account balances are derivable from
// the entry stream.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Reason classifies why credits moved.
type Reason string

const (
	ReasonMonthlyReset     Reason = "monthly_reset"
	ReasonManualAdjustment Reason = "manual_adjustment"
	ReasonAddonPurchase    Reason = "addon_purchase"
	ReasonConsumption      Reason = "consumption"
)

// Valid reports whether r is a known ledger reason.
func (r Reason) Valid() bool {
	switch r {
	case ReasonMonthlyReset, ReasonManualAdjustment, ReasonAddonPurchase, ReasonConsumption:
		return true
	default:
		return false
	}
}

// Source identifies the subsystem that originated the movement.
type Source string

const (
	SourceSystem       Source = "system"
	SourceAddon        Source = "addon"
	SourceSubscription Source = "subscription"
)

// Entry is one immutable ledger line. Amount is signed: positive grants,
// negative consumes. The *_after columns snapshot the account balances as of
// this entry, so history reads never need replay.
type Entry struct {
	ID                snowflake.ID `gorm:"primaryKey"`
	UserID            snowflake.ID `gorm:"not null;index:ix_credit_ledger_user"`
	AccountID         snowflake.ID `gorm:"not null;index:ix_credit_ledger_account"`
	Amount            int64        `gorm:"not null"`
	Reason            Reason       `gorm:"type:text;not null"`
	Source            Source       `gorm:"type:text;not null"`
	IdempotencyKey    *string      `gorm:"type:text;uniqueIndex:ux_credit_ledger_idempotency"`
	MonthlyUsedAfter  int64        `gorm:"not null;default:0"`
	AddonBalanceAfter int64        `gorm:"not null;default:0"`
	CreatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Entry) TableName() string { return "credit_ledger_entries" }
