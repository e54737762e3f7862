package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/renderforge/billing/internal/billing/domain"
	"github.com/renderforge/billing/internal/clock"
	ledgerdomain "github.com/renderforge/billing/internal/ledger/domain"
	"github.com/renderforge/billing/internal/notifier"
	obsmetrics "github.com/renderforge/billing/internal/observability/metrics"
	"github.com/renderforge/billing/internal/plan"
	pkgdb "github.com/renderforge/billing/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	LedgerRepo ledgerdomain.Repository
	Catalog    *plan.Catalog
	Clock      clock.Clock
	Dispatcher *notifier.Dispatcher `optional:"true"`
	ObsMetrics *obsmetrics.Metrics  `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	ledgerRepo ledgerdomain.Repository
	catalog    *plan.Catalog
	clock      clock.Clock
	dispatcher *notifier.Dispatcher
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("billing.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		ledgerRepo: p.LedgerRepo,
		catalog:    p.Catalog,
		clock:      p.Clock,
		dispatcher: p.Dispatcher,
		obsMetrics: p.ObsMetrics,
	}
}

// UpsertFromSubscriptionFact applies one subscription fact to the stored
// account state. The whole read-modify-write runs in a single transaction
// holding the account row lock, so concurrent facts for the same account
// serialize at the database.
//
// A period rollover is detected purely by a change in the provider-reported
// period start, never by wall clock, so redelivered or reordered events
// cannot reset usage twice.
func (s *Service) UpsertFromSubscriptionFact(ctx context.Context, fact domain.SubscriptionFact) (snowflake.ID, error) {
	fact.CustomerID = strings.TrimSpace(fact.CustomerID)
	fact.SubscriptionID = strings.TrimSpace(fact.SubscriptionID)
	if fact.CustomerID == "" && fact.SubscriptionID == "" && fact.UserID == 0 {
		return 0, domain.ErrUnmappableEvent
	}

	var (
		accountID    snowflake.ID
		notifyKind   string
		notifyBody   string
		notifyUserID snowflake.ID
		ledgerWrites []ledgerdomain.Reason
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now().UTC()

		account, err := s.repo.ResolveForUpdate(ctx, tx, fact.SubscriptionID, fact.CustomerID, fact.UserID)
		if errors.Is(err, domain.ErrAccountNotFound) {
			if fact.UserID == 0 {
				return domain.ErrUnmappableEvent
			}
			created, cerr := s.createFromFact(ctx, tx, fact, domain.MapProviderStatus(fact.ProviderStatus))
			if cerr == nil {
				accountID = created.ID
				return nil
			}
			if !pkgdb.IsDuplicateKeyErr(cerr) {
				return cerr
			}
			// Lost an insert race against a concurrent fact; fall through to
			// the update path against the winner's row.
			account, err = s.repo.ResolveForUpdate(ctx, tx, fact.SubscriptionID, fact.CustomerID, fact.UserID)
			if err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		prevStatus := account.Status
		prevPlan := account.PlanKey

		// Facts without plan or status information (invoice and checkout
		// linking events) leave those fields alone.
		status := account.Status
		if strings.TrimSpace(fact.ProviderStatus) != "" {
			status = domain.MapProviderStatus(fact.ProviderStatus)
		}
		planKey := fact.PlanKey
		if planKey == "" {
			planKey = account.PlanKey
		}

		rollover := fact.PeriodStart != 0 && fact.PeriodStart != account.CurrentPeriodStart
		if rollover {
			var carry int64
			if planKey.Rank() > prevPlan.Rank() {
				carry = account.MonthlyRemaining()
			}
			if carry > 0 {
				account.AddonCreditsBalance += carry
			}
			account.MonthlyCreditsUsed = 0

			resetKey := fmt.Sprintf("rollover:%d:%d", account.ID, fact.PeriodStart)
			appended, aerr := s.ledgerRepo.Append(ctx, tx, &ledgerdomain.Entry{
				ID:                s.genID.Generate(),
				UserID:            account.UserID,
				AccountID:         account.ID,
				Amount:            0,
				Reason:            ledgerdomain.ReasonMonthlyReset,
				Source:            ledgerdomain.SourceSystem,
				IdempotencyKey:    &resetKey,
				MonthlyUsedAfter:  account.MonthlyCreditsUsed,
				AddonBalanceAfter: account.AddonCreditsBalance,
				CreatedAt:         now,
			})
			if aerr != nil {
				return aerr
			}
			if appended {
				ledgerWrites = append(ledgerWrites, ledgerdomain.ReasonMonthlyReset)
			}

			if carry > 0 {
				carryKey := fmt.Sprintf("carryover:%d:%d", account.ID, fact.PeriodStart)
				appended, aerr = s.ledgerRepo.Append(ctx, tx, &ledgerdomain.Entry{
					ID:                s.genID.Generate(),
					UserID:            account.UserID,
					AccountID:         account.ID,
					Amount:            carry,
					Reason:            ledgerdomain.ReasonManualAdjustment,
					Source:            ledgerdomain.SourceAddon,
					IdempotencyKey:    &carryKey,
					MonthlyUsedAfter:  account.MonthlyCreditsUsed,
					AddonBalanceAfter: account.AddonCreditsBalance,
					CreatedAt:         now,
				})
				if aerr != nil {
					return aerr
				}
				if appended {
					ledgerWrites = append(ledgerWrites, ledgerdomain.ReasonManualAdjustment)
				}
			}
		}

		account.PlanKey = planKey
		account.Status = status
		account.MonthlyCreditLimit = s.catalog.MonthlyCredits(planKey)
		if fact.CustomerID != "" {
			account.CustomerID = fact.CustomerID
		}
		if fact.SubscriptionID != "" {
			subID := fact.SubscriptionID
			account.SubscriptionID = &subID
		}
		if fact.PeriodStart != 0 {
			account.CurrentPeriodStart = fact.PeriodStart
		}
		if fact.PeriodEnd != 0 {
			account.CurrentPeriodEnd = fact.PeriodEnd
		}
		account.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, account); err != nil {
			return err
		}

		accountID = account.ID
		// Notify only on the transition into the state, so redeliveries stay
		// silent.
		switch {
		case status == domain.StatusCanceled && prevStatus != domain.StatusCanceled:
			notifyKind = notifier.KindSubscriptionCanceled
			notifyBody = "Your subscription has been canceled."
			notifyUserID = account.UserID
		case status == domain.StatusPastDue && prevStatus != domain.StatusPastDue:
			notifyKind = notifier.KindPaymentFailed
			notifyBody = "A payment for your subscription failed."
			notifyUserID = account.UserID
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, reason := range ledgerWrites {
		if s.obsMetrics != nil {
			s.obsMetrics.RecordLedgerEntry(ctx, string(reason))
		}
	}
	if notifyKind != "" && s.dispatcher != nil {
		s.dispatcher.Dispatch(notifier.Message{
			UserID: notifyUserID,
			Kind:   notifyKind,
			Body:   notifyBody,
		})
	}
	return accountID, nil
}

func (s *Service) createFromFact(ctx context.Context, tx *gorm.DB, fact domain.SubscriptionFact, status domain.Status) (*domain.Account, error) {
	now := s.clock.Now().UTC()
	planKey := fact.PlanKey
	if planKey == "" {
		planKey = plan.KeyNone
	}
	account := &domain.Account{
		ID:                 s.genID.Generate(),
		UserID:             fact.UserID,
		CustomerID:         fact.CustomerID,
		PlanKey:            planKey,
		Status:             status,
		CurrentPeriodStart: fact.PeriodStart,
		CurrentPeriodEnd:   fact.PeriodEnd,
		MonthlyCreditLimit: s.catalog.MonthlyCredits(planKey),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if fact.SubscriptionID != "" {
		subID := fact.SubscriptionID
		account.SubscriptionID = &subID
	}
	if err := s.repo.Create(ctx, tx, account); err != nil {
		return nil, err
	}
	s.log.Info("created billing account",
		zap.String("account_id", account.ID.String()),
		zap.String("user_id", account.UserID.String()),
		zap.String("plan", string(account.PlanKey)),
	)
	return account, nil
}

// AddCredits applies a one-off credit purchase. The ledger's idempotency key
// (derived from the provider event id) makes redelivered purchases a no-op.
func (s *Service) AddCredits(ctx context.Context, req domain.AddCreditsRequest) (snowflake.ID, error) {
	if req.Amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.CustomerID == "" && req.UserID == 0 {
		return 0, domain.ErrInvalidCustomer
	}

	var idemKey *string
	if eventID := strings.TrimSpace(req.EventID); eventID != "" {
		key := "addon:" + eventID
		idemKey = &key

		entry, err := s.ledgerRepo.FindByIdempotencyKey(ctx, s.db, key)
		if err == nil {
			return entry.AccountID, nil
		}
		if !errors.Is(err, ledgerdomain.ErrEntryNotFound) {
			return 0, err
		}
	}

	var (
		accountID snowflake.ID
		appended  bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now().UTC()

		account, err := s.repo.ResolveForUpdate(ctx, tx, "", req.CustomerID, req.UserID)
		if errors.Is(err, domain.ErrAccountNotFound) {
			if req.UserID == 0 {
				return domain.ErrUnmappableEvent
			}
			// Add-ons are valid without a subscription: plan and status stay
			// at none.
			account = &domain.Account{
				ID:         s.genID.Generate(),
				UserID:     req.UserID,
				CustomerID: req.CustomerID,
				PlanKey:    plan.KeyNone,
				Status:     domain.StatusNone,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := s.repo.Create(ctx, tx, account); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		account.AddonCreditsBalance += req.Amount
		appended, err = s.ledgerRepo.Append(ctx, tx, &ledgerdomain.Entry{
			ID:                s.genID.Generate(),
			UserID:            account.UserID,
			AccountID:         account.ID,
			Amount:            req.Amount,
			Reason:            ledgerdomain.ReasonAddonPurchase,
			Source:            ledgerdomain.SourceAddon,
			IdempotencyKey:    idemKey,
			MonthlyUsedAfter:  account.MonthlyCreditsUsed,
			AddonBalanceAfter: account.AddonCreditsBalance,
			CreatedAt:         now,
		})
		if err != nil {
			return err
		}
		accountID = account.ID
		if !appended {
			// A concurrent delivery already credited this purchase.
			return nil
		}

		account.UpdatedAt = now
		return s.repo.Update(ctx, tx, account)
	})
	if err != nil {
		return 0, err
	}

	if appended && s.obsMetrics != nil {
		s.obsMetrics.RecordLedgerEntry(ctx, string(ledgerdomain.ReasonAddonPurchase))
	}
	return accountID, nil
}

func (s *Service) GetByUser(ctx context.Context, userID snowflake.ID) (*domain.Account, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	return s.repo.FindByUser(ctx, s.db, userID)
}
