package repository

import (
	"context"
	"time"

	"github.com/renderforge/billing/internal/webhookevent/domain"
	"gorm.io/gorm"
)

type repo struct{}

// Provide returns the webhook event repository.
func Provide() domain.Repository {
	return repo{}
}

func (repo) Insert(ctx context.Context, db *gorm.DB, record *domain.EventRecord) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (
			id, event_id, event_type, status, payload, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING`,
		record.ID,
		record.EventID,
		record.EventType,
		string(record.Status),
		record.Payload,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (repo) Find(ctx context.Context, db *gorm.DB, eventID string) (*domain.EventRecord, error) {
	var record domain.EventRecord
	err := db.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrEventNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (repo) Reclaim(ctx context.Context, db *gorm.DB, eventID string, staleBefore, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		SET status = ?, error = NULL, updated_at = ?
		WHERE event_id = ?
		  AND (status = ? OR (status = ? AND updated_at < ?))`,
		string(domain.StatusProcessing),
		now,
		eventID,
		string(domain.StatusFailed),
		string(domain.StatusProcessing),
		staleBefore,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (repo) MarkProcessed(ctx context.Context, db *gorm.DB, eventID string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		SET status = ?, error = NULL, processed_at = ?, updated_at = ?
		WHERE event_id = ?`,
		string(domain.StatusProcessed),
		now,
		now,
		eventID,
	).Error
}

func (repo) MarkFailed(ctx context.Context, db *gorm.DB, eventID, cause string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		SET status = ?, error = ?, updated_at = ?
		WHERE event_id = ?`,
		string(domain.StatusFailed),
		cause,
		now,
		eventID,
	).Error
}
