package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/renderforge/billing/internal/plan"
	"gorm.io/gorm"
)

// SubscriptionFact is a provider-agnostic statement about a subscription's
// current state, derived from one webhook event. The reconciler applies it
// to the stored account; applying the same fact twice is harmless.
type SubscriptionFact struct {
	UserID         snowflake.ID // 0 when the event carried no usable user id
	CustomerID     string
	SubscriptionID string
	PlanKey        plan.Key
	ProviderStatus string
	PeriodStart    int64 // ms epoch, 0 when the event carried no period
	PeriodEnd      int64
}

// AddCreditsRequest applies a one-off credit purchase to an account.
type AddCreditsRequest struct {
	CustomerID string
	UserID     snowflake.ID
	Amount     int64
	EventID    string // optional; derives the ledger idempotency key
}

// Service is the reconciler: the only writer of billing accounts.
type Service interface {
	UpsertFromSubscriptionFact(ctx context.Context, fact SubscriptionFact) (snowflake.ID, error)
	AddCredits(ctx context.Context, req AddCreditsRequest) (snowflake.ID, error)
	GetByUser(ctx context.Context, userID snowflake.ID) (*Account, error)
}

// Repository resolves and persists billing accounts. Resolution order is
// subscription id, then customer id, then user id: early lifecycle events
// may arrive before stronger keys are linked, so lookup degrades through
// weaker keys instead of failing.
type Repository interface {
	Resolve(ctx context.Context, db *gorm.DB, subscriptionID, customerID string, userID snowflake.ID) (*Account, error)
	// ResolveForUpdate locks the resolved row for the caller's transaction.
	ResolveForUpdate(ctx context.Context, db *gorm.DB, subscriptionID, customerID string, userID snowflake.ID) (*Account, error)
	FindByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Account, error)
	Create(ctx context.Context, db *gorm.DB, account *Account) error
	Update(ctx context.Context, db *gorm.DB, account *Account) error
}
