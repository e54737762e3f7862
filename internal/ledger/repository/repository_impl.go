package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/renderforge/billing/internal/ledger/domain"
	"gorm.io/gorm"
)

type repo struct{}

// Provide returns the credit ledger repository.
func Provide() domain.Repository {
	return repo{}
}

func (repo) Append(ctx context.Context, db *gorm.DB, entry *domain.Entry) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO credit_ledger_entries (
			id, user_id, account_id, amount, reason, source,
			idempotency_key, monthly_used_after, addon_balance_after, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		entry.ID,
		entry.UserID,
		entry.AccountID,
		entry.Amount,
		string(entry.Reason),
		string(entry.Source),
		entry.IdempotencyKey,
		entry.MonthlyUsedAfter,
		entry.AddonBalanceAfter,
		entry.CreatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (repo) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*domain.Entry, error) {
	var entry domain.Entry
	err := db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrEntryNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]domain.Entry, error) {
	var entries []domain.Entry
	err := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]domain.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []domain.Entry
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
