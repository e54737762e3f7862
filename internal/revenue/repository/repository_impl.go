package repository

import (
	"context"

	"github.com/renderforge/billing/internal/revenue/domain"
	"gorm.io/gorm"
)

type repo struct{}

// Provide returns the revenue event repository.
func Provide() domain.Repository {
	return repo{}
}

func (repo) Insert(ctx context.Context, db *gorm.DB, event *domain.Event) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO revenue_events (
			id, event_id, object_id, user_id, customer_id, source,
			amount, currency, estimated_fee, actual_fee, net_amount,
			occurred_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING`,
		event.ID,
		event.EventID,
		event.ObjectID,
		event.UserID,
		event.CustomerID,
		string(event.Source),
		event.Amount,
		event.Currency,
		event.EstimatedFee,
		event.ActualFee,
		event.NetAmount,
		event.OccurredAt,
		event.CreatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (repo) FindByEventID(ctx context.Context, db *gorm.DB, eventID string) (*domain.Event, error) {
	var event domain.Event
	err := db.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&event).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrEventNotFound
		}
		return nil, err
	}
	return &event, nil
}
