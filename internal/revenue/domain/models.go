// Package domain holds the append-only revenue record, one row per paid
// invoice or completed checkout.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Source distinguishes recurring subscription revenue from one-off add-on
// purchases.
type Source string

const (
	SourceSubscriptionInvoice Source = "subscription_invoice"
	SourceAddonCheckout       Source = "addon_checkout"
)

// Event is one revenue fact. EstimatedFee is computed at record time and is
// never overwritten; ActualFee is filled in when the provider reports it.
// Amounts are integer cents.
type Event struct {
	ID           snowflake.ID  `gorm:"primaryKey"`
	EventID      string        `gorm:"type:text;not null;uniqueIndex:ux_revenue_events_event"`
	ObjectID     string        `gorm:"type:text;not null;default:''"`
	UserID       *snowflake.ID `gorm:""`
	CustomerID   string        `gorm:"type:text;not null;default:'';index:ix_revenue_events_customer"`
	Source       Source        `gorm:"type:text;not null"`
	Amount       int64         `gorm:"not null"`
	Currency     string        `gorm:"type:text;not null"`
	EstimatedFee int64         `gorm:"not null;default:0"`
	ActualFee    *int64        `gorm:""`
	NetAmount    int64         `gorm:"not null;default:0"`
	OccurredAt   time.Time     `gorm:"not null"`
	CreatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Event) TableName() string { return "revenue_events" }
