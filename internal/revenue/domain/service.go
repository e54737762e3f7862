package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// RecordRequest captures one revenue-bearing provider event.
type RecordRequest struct {
	EventID    string
	ObjectID   string
	CustomerID string
	UserID     snowflake.ID // 0 when unresolved
	Source     Source
	Amount     int64
	Currency   string
	OccurredAt time.Time
}

// Service records revenue events, deduplicated on the provider event id.
type Service interface {
	// Record inserts the event. Redelivered events return the stored row's id
	// without modifying it.
	Record(ctx context.Context, req RecordRequest) (snowflake.ID, error)
	FindByEventID(ctx context.Context, eventID string) (*Event, error)
}

// FeeLookup retrieves the provider's actual transaction fee for an object.
// It is best-effort: any failure falls back to the estimate.
type FeeLookup interface {
	ActualFee(ctx context.Context, objectID string) (int64, error)
}

// Repository is the persistence surface over revenue_events.
type Repository interface {
	// Insert appends the event. Returns false when the event id already exists.
	Insert(ctx context.Context, db *gorm.DB, event *Event) (bool, error)
	FindByEventID(ctx context.Context, db *gorm.DB, eventID string) (*Event, error)
}
