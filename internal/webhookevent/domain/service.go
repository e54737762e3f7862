package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Service is the idempotency guard. Begin claims an event for processing;
// Complete and Fail record the terminal outcome of the attempt.
type Service interface {
	// Begin returns true when the caller owns the event and must process it.
	// A false return with a nil error means the event was already processed
	// or is currently held by another live attempt. The raw payload is kept
	// on the record for inspection and manual replay.
	Begin(ctx context.Context, eventID, eventType string, payload []byte) (bool, error)
	Complete(ctx context.Context, eventID string) error
	Fail(ctx context.Context, eventID string, cause error) error
	Find(ctx context.Context, eventID string) (*EventRecord, error)
}

// Repository is the persistence surface behind the guard.
type Repository interface {
	// Insert claims a fresh event id. Returns false when the id already exists.
	Insert(ctx context.Context, db *gorm.DB, record *EventRecord) (bool, error)
	Find(ctx context.Context, db *gorm.DB, eventID string) (*EventRecord, error)
	// Reclaim flips a failed or stale-processing record back to processing.
	// Returns false when the record is processed or held by a live attempt.
	Reclaim(ctx context.Context, db *gorm.DB, eventID string, staleBefore, now time.Time) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, eventID string, now time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, eventID, cause string, now time.Time) error
}
