package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/renderforge/billing/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("ledger.service"),
		repo: p.Repo,
	}
}

func (s *Service) ListByUser(ctx context.Context, userID snowflake.ID, limit int) ([]domain.Entry, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	return s.repo.ListByUser(ctx, s.db, userID, limit)
}

func (s *Service) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Entry, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, domain.ErrEntryNotFound
	}
	return s.repo.FindByIdempotencyKey(ctx, s.db, key)
}

// AuditAccount replays the account's entry stream: addon-source amounts
// accumulate into the addon balance, monthly resets zero the monthly usage,
// and every other amount moves monthly usage (negative amounts consume). The
// reconstructed balances are compared against the snapshots on the latest
// entry.
func (s *Service) AuditAccount(ctx context.Context, accountID snowflake.ID) (*domain.BalanceAudit, error) {
	if accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}

	entries, err := s.repo.ListByAccount(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}

	audit := &domain.BalanceAudit{AccountID: accountID, Entries: len(entries), Consistent: true}
	if len(entries) == 0 {
		return audit, nil
	}

	var monthlyUsed, addonBalance int64
	for _, entry := range entries {
		switch {
		case entry.Reason == domain.ReasonMonthlyReset:
			monthlyUsed = 0
		case entry.Source == domain.SourceAddon:
			addonBalance += entry.Amount
		default:
			monthlyUsed -= entry.Amount
		}
	}

	last := entries[len(entries)-1]
	audit.MonthlyUsed = monthlyUsed
	audit.AddonBalance = addonBalance
	audit.SnapshotMonthly = last.MonthlyUsedAfter
	audit.SnapshotAddon = last.AddonBalanceAfter
	audit.Consistent = monthlyUsed == last.MonthlyUsedAfter && addonBalance == last.AddonBalanceAfter
	if !audit.Consistent {
		s.log.Warn("ledger snapshot mismatch",
			zap.String("account_id", accountID.String()),
			zap.Int64("replayed_monthly_used", monthlyUsed),
			zap.Int64("snapshot_monthly_used", last.MonthlyUsedAfter),
			zap.Int64("replayed_addon_balance", addonBalance),
			zap.Int64("snapshot_addon_balance", last.AddonBalanceAfter),
		)
	}
	return audit, nil
}
