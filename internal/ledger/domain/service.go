package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// BalanceAudit is the outcome of replaying an account's entry stream against
// the snapshots on its latest entry.
type BalanceAudit struct {
	AccountID       snowflake.ID
	Entries         int
	MonthlyUsed     int64
	AddonBalance    int64
	SnapshotMonthly int64
	SnapshotAddon   int64
	Consistent      bool
}

// Service exposes the read side of the ledger.
type Service interface {
	ListByUser(ctx context.Context, userID snowflake.ID, limit int) ([]Entry, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*Entry, error)
	// AuditAccount reconstructs the account balances from the full entry
	// stream and checks them against the stored snapshots.
	AuditAccount(ctx context.Context, accountID snowflake.ID) (*BalanceAudit, error)
}

// Repository is the write/read surface over credit_ledger_entries. Append
// runs inside the caller's transaction so balance mutations and their ledger
// lines commit atomically.
type Repository interface {
	// Append inserts the entry. When the entry carries an idempotency key and
	// an entry with that key already exists, the insert is a no-op and Append
	// returns false.
	Append(ctx context.Context, db *gorm.DB, entry *Entry) (bool, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*Entry, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]Entry, error)
	// ListByAccount returns the account's full entry stream in append order.
	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]Entry, error)
}
