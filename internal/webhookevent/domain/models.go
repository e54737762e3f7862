// Package domain contains the webhook event dedup gate state.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status tracks a webhook event through the guard's state machine:
// absent -> processing -> {processed | failed}; failed -> processing (retry).
type Status string

const (
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
)

// EventRecord is the idempotency guard's per-event state, keyed by the
// provider's event id. It carries no foreign keys; it is a pure dedup gate.
type EventRecord struct {
	ID          snowflake.ID   `gorm:"primaryKey"`
	EventID     string         `gorm:"type:text;not null;uniqueIndex:ux_webhook_events_event"`
	EventType   string         `gorm:"type:text;not null"`
	Status      Status         `gorm:"type:text;not null"`
	Payload     datatypes.JSON `gorm:""`
	Error       *string        `gorm:"type:text"`
	CreatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	ProcessedAt *time.Time     `gorm:""`
}

// TableName sets the database table name.
func (EventRecord) TableName() string { return "webhook_events" }
