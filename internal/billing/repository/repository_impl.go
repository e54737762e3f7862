package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/renderforge/billing/internal/billing/domain"
	"gorm.io/gorm"
)

type repo struct{}

// Provide returns the billing account repository.
func Provide() domain.Repository {
	return repo{}
}

func (r repo) Resolve(ctx context.Context, db *gorm.DB, subscriptionID, customerID string, userID snowflake.ID) (*domain.Account, error) {
	return r.resolve(ctx, db, subscriptionID, customerID, userID, false)
}

func (r repo) ResolveForUpdate(ctx context.Context, db *gorm.DB, subscriptionID, customerID string, userID snowflake.ID) (*domain.Account, error) {
	return r.resolve(ctx, db, subscriptionID, customerID, userID, true)
}

func (r repo) resolve(ctx context.Context, db *gorm.DB, subscriptionID, customerID string, userID snowflake.ID, lock bool) (*domain.Account, error) {
	if subscriptionID != "" {
		account, err := r.findOne(ctx, db, "subscription_id = ?", subscriptionID, lock)
		if err == nil || err != domain.ErrAccountNotFound {
			return account, err
		}
	}
	if customerID != "" {
		account, err := r.findOne(ctx, db, "customer_id = ?", customerID, lock)
		if err == nil || err != domain.ErrAccountNotFound {
			return account, err
		}
	}
	if userID != 0 {
		account, err := r.findOne(ctx, db, "user_id = ?", userID, lock)
		if err == nil || err != domain.ErrAccountNotFound {
			return account, err
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (r repo) FindByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Account, error) {
	return r.findOne(ctx, db, "user_id = ?", userID, false)
}

func (repo) findOne(ctx context.Context, db *gorm.DB, cond string, value any, lock bool) (*domain.Account, error) {
	query := "SELECT * FROM billing_accounts WHERE " + cond + " LIMIT 1"
	if lock {
		query += " FOR UPDATE"
	}
	var account domain.Account
	result := db.WithContext(ctx).Raw(query, value).Scan(&account)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, domain.ErrAccountNotFound
	}
	return &account, nil
}

func (repo) Create(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	return db.WithContext(ctx).Create(account).Error
}

func (repo) Update(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	account.UpdatedAt = account.UpdatedAt.UTC()
	return db.WithContext(ctx).Exec(
		`UPDATE billing_accounts SET
			customer_id = ?,
			subscription_id = ?,
			plan_key = ?,
			status = ?,
			current_period_start = ?,
			current_period_end = ?,
			monthly_credit_limit = ?,
			monthly_credits_used = ?,
			addon_credits_balance = ?,
			updated_at = ?
		WHERE id = ?`,
		account.CustomerID,
		account.SubscriptionID,
		string(account.PlanKey),
		string(account.Status),
		account.CurrentPeriodStart,
		account.CurrentPeriodEnd,
		account.MonthlyCreditLimit,
		account.MonthlyCreditsUsed,
		account.AddonCreditsBalance,
		account.UpdatedAt,
		account.ID,
	).Error
}
