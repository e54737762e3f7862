package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/renderforge/billing/internal/billing/domain"
	"github.com/renderforge/billing/internal/billing/repository"
	"github.com/renderforge/billing/internal/clock"
	"github.com/renderforge/billing/internal/config"
	ledgerdomain "github.com/renderforge/billing/internal/ledger/domain"
	ledgerrepository "github.com/renderforge/billing/internal/ledger/repository"
	"github.com/renderforge/billing/internal/notifier"
	"github.com/renderforge/billing/internal/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func testCatalog() *plan.Catalog {
	return plan.NewStaticCatalog(config.PlansConfig{
		Catalog: []config.PlanEntry{
			{Key: "tier1", PriceID: "price_t1", MonthlyCredits: 10, NamePatterns: []string{"starter"}},
			{Key: "tier2", PriceID: "price_t2", MonthlyCredits: 25, NamePatterns: []string{"creator"}},
			{Key: "tier3", PriceID: "price_t3", MonthlyCredits: 100, NamePatterns: []string{"studio"}},
		},
	})
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	// SQLite does not understand FOR UPDATE; strip it before execution.
	stripLock := func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			trimmed := strings.ReplaceAll(sql, " FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(trimmed)
		}
	}
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("sqlite_strip_for_update", stripLock))
	require.NoError(t, db.Callback().Row().Before("gorm:row").Register("sqlite_strip_for_update_row", stripLock))

	require.NoError(t, db.AutoMigrate(&domain.Account{}, &ledgerdomain.Entry{}))
	return db
}

func newTestService(t *testing.T, db *gorm.DB, dispatcher *notifier.Dispatcher) domain.Service {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       repository.Provide(),
		LedgerRepo: ledgerrepository.Provide(),
		Catalog:    testCatalog(),
		Clock:      clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		Dispatcher: dispatcher,
	})
}

func ledgerEntriesFor(t *testing.T, db *gorm.DB, accountID snowflake.ID) []ledgerdomain.Entry {
	t.Helper()
	var entries []ledgerdomain.Entry
	require.NoError(t, db.Where("account_id = ?", accountID).Order("id ASC").Find(&entries).Error)
	return entries
}

func accountByID(t *testing.T, db *gorm.DB, id snowflake.ID) domain.Account {
	t.Helper()
	var account domain.Account
	require.NoError(t, db.Where("id = ?", id).First(&account).Error)
	return account
}

func TestUpsert_CreatesAccount(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db, nil)
	ctx := context.Background()
	userID := snowflake.ID(1001)

	accountID, err := svc.UpsertFromSubscriptionFact(ctx, domain.SubscriptionFact{
		UserID:         userID,
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		PlanKey:        plan.KeyTier1,
		ProviderStatus: "active",
		PeriodStart:    1_700_000_000_000,
		PeriodEnd:      1_702_592_000_000,
	})
	require.NoError(t, err)

	account := accountByID(t, db, accountID)
	assert.Equal(t, userID, account.UserID)
	assert.Equal(t, plan.KeyTier1, account.PlanKey)
	assert.Equal(t, domain.StatusActive, account.Status)
	assert.Equal(t, int64(10), account.MonthlyCreditLimit)
	assert.Equal(t, int64(0), account.MonthlyCreditsUsed)
	assert.Equal(t, int64(0), account.AddonCreditsBalance)

	// Creation is not a rollover; no ledger entries are written.
	assert.Empty(t, ledgerEntriesFor(t, db, accountID))
}

func TestUpsert_UnmappableWithoutUser(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db, nil)

	_, err := svc.UpsertFromSubscriptionFact(context.Background(), domain.SubscriptionFact{
		CustomerID:     "cus_orphan",
		PlanKey:        plan.KeyTier1,
		ProviderStatus: "active",
	})
	assert.ErrorIs(t, err, domain.ErrUnmappableEvent)
}

func TestRollover_UpgradeCarriesUnusedQuota(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db, nil)
	ctx := context.Background()
	userID := snowflake.ID(1002)

	accountID, err := svc.UpsertFromSubscriptionFact(ctx, domain.SubscriptionFact{
		UserID:         userID,
		CustomerID:     "cus_2",
		SubscriptionID: "sub_2",
		PlanKey:        plan.KeyTier1,
		ProviderStatus: "active",
		PeriodStart:    1_700_000_000_000,
	})
	require.NoError(t, err)

	// Consumption happens outside this engine; emulate 7 credits used.
	require.NoError(t, db.Exec(
		"UPDATE billing_accounts SET monthly_credits_used = 7 WHERE id = ?", accountID,
	).Error)

	_, err = svc.UpsertFromSubscriptionFact(ctx, domain.SubscriptionFact{
		UserID:         userID,
		CustomerID:     "cus_2",
		SubscriptionID: "sub_2",
		PlanKey:        plan.KeyTier2,
		ProviderStatus: "active",
		PeriodStart:    1_702_592_000_000,
	})
	require.NoError(t, err)

	account := accountByID(t, db, accountID)
	assert.Equal(t, plan.KeyTier2, account.PlanKey)
	assert.Equal(t, int64(25), account.MonthlyCreditLimit)
	assert.Equal(t, int64(0), account.MonthlyCreditsUsed)
	assert.Equal(t, int64(3), account.AddonCreditsBalance, "unused 10-7 carries into addon balance")

	entries := ledgerEntriesFor(t, db, accountID)
	require.Len(t, entries, 2)
	assert.Equal(t, ledgerdomain.ReasonMonthlyReset, entries[0].Reason)
	assert.Equal(t, int64(0), entries[0].Amount)
	assert.Equal(t, ledgerdomain.ReasonManualAdjustment, entries[1].Reason)
	assert.Equal(t, ledgerdomain.SourceAddon, entries[1].Source)
	assert.Equal(t, int64(3), entries[1].Amount)
	assert.Equal(t, int64(3), entries[1].AddonBalanceAfter)
	assert.Equal(t, int64(0), entries[1].MonthlyUsedAfter)
}

func TestRollover_SamePlanForfeitsUnused(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db, nil)
	ctx := context.Background()
	userID := snowflake.ID(1003)

	accountID, err := svc.UpsertFromSubscriptionFact(ctx, domain.SubscriptionFact{
		UserID:         userID,
		CustomerID:     "cus_3",
		SubscriptionID: "sub_3",
		PlanKey:        plan.KeyTier1,
		ProviderStatus: "active",
		PeriodStart:    1_700_000_000_000,
	})
	require.NoError(t, err)
	require.NoError(t, db.Exec(
		"UPDATE billing_accounts SET monthly_credits_used = 7 WHERE id = ?", accountID,
	).Error)

	_, err = svc.UpsertFromSubscriptionFact(ctx, domain.SubscriptionFact{
		UserID:         userID,
		CustomerID:     "cus_3",
		SubscriptionID: "sub_3",
		PlanKey:        plan.KeyTier1,
		ProviderStatus: "active",
		PeriodStart:    1_702_592_000_000,
	})
	require.NoError(t, err)

	account := accountByID(t, db, accountID)
	assert.Equal(t, int64(0), account.MonthlyCreditsUsed)
	assert.Equal(t, int64(0), account.AddonCreditsBalance, "non-upgrade renewals forfeit unused quota")

	entries := ledgerEntriesFor(t, db, accountID)
	require.Len(t, entries, 1)
	assert.Equal(t, ledgerdomain.ReasonMonthlyReset, entries[0].Reason)
}

func TestUpsert_IdempotentReapplication(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db, nil)
	ctx := context.Background()
	userID := snowflake.ID(1004)

	fact := domain.SubscriptionFact{
		UserID:         userID,
		CustomerID:     "cus_4",
		SubscriptionID: "sub_4",
		PlanKey:        plan.KeyTier2,
		ProviderStatus: "active",
		PeriodStart:    1_700_000_000_000,
	}

	accountID, err := svc.UpsertFromSubscriptionFact(ctx, fact)
	require.NoError(t, err)
	require.NoError(t, db.Exec(
		"UPDATE billing_accounts SET monthly_credits_used = 5, addon_credits_balance = 2 WHERE id = ?", accountID,
	).Error)

	_, err = svc.UpsertFromSubscriptionFact(ctx, fact)
	require.NoError(t, err)

	account := accountByID(t, db, accountID)
	assert.Equal(t, int64(5), account.MonthlyCreditsUsed, "same periodStart must not reset usage")
	assert.Equal(t, int64(2), account.AddonCreditsBalance)
}

func TestUpsert_ResolutionPrecedence(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db, nil)
	ctx := context.Background()

	subAccountID, err := svc.UpsertFromSubscriptionFact(ctx, domain.SubscriptionFact{
		UserID:         snowflake.ID(1005),
		CustomerID:     "cus_5",
		SubscriptionID: "sub_5",
		PlanKey:        plan.KeyTier1,
		ProviderStatus: "active",
	})
	require.NoError(t, err)

	otherAccountID, err := svc.UpsertFromSubscriptionFact(ctx, domain.SubscriptionFact{
		UserID:         snowflake.ID(1006),
		CustomerID:     "cus_6",
		PlanKey:        plan.KeyTier1,
		ProviderStatus: "active",
	})
	require.NoError(t, err)
	require.NotEqual(t, subAccountID, otherAccountID)

	// Customer id alone resolves.
	resolvedID, err := svc.UpsertFromSubscriptionFact(ctx, domain.SubscriptionFact{
		CustomerID:     "cus_6",
		PlanKey:        plan.KeyTier1,
		ProviderStatus: "active",
	})
	require.NoError(t, err)
	assert.Equal(t, otherAccountID, resolvedID)

	// Subscription id wins over a conflicting customer id.
	resolvedID, err = svc.UpsertFromSubscriptionFact(ctx, domain.SubscriptionFact{
		CustomerID:     "cus_6",
		SubscriptionID: "sub_5",
		PlanKey:        plan.KeyTier1,
		ProviderStatus: "active",
	})
	require.NoError(t, err)
	assert.Equal(t, subAccountID, resolvedID)
}

func TestUpsert_EndToEndUpgradeScenario(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db, nil)
	ctx := context.Background()
	userID := snowflake.ID(1007)

	accountID, err := svc.UpsertFromSubscriptionFact(ctx, domain.SubscriptionFact{
		UserID:         userID,
		CustomerID:     "cus_7",
		SubscriptionID: "sub_7",
		PlanKey:        plan.KeyTier1,
		ProviderStatus: "active",
		PeriodStart:    1_700_000_000_000,
	})
	require.NoError(t, err)

	require.NoError(t, db.Exec(
		"UPDATE billing_accounts SET monthly_credits_used = 4 WHERE id = ?", accountID,
	).Error)

	_, err = svc.UpsertFromSubscriptionFact(ctx, domain.SubscriptionFact{
		UserID:         userID,
		CustomerID:     "cus_7",
		SubscriptionID: "sub_7",
		PlanKey:        plan.KeyTier2,
		ProviderStatus: "active",
		PeriodStart:    1_702_592_000_000,
	})
	require.NoError(t, err)

	account := accountByID(t, db, accountID)
	assert.Equal(t, plan.KeyTier2, account.PlanKey)
	assert.Equal(t, int64(25), account.MonthlyCreditLimit)
	assert.Equal(t, int64(0), account.MonthlyCreditsUsed)
	assert.Equal(t, int64(6), account.AddonCreditsBalance)
}

func TestUpsert_CancelNotifiesOnce(t *testing.T) {
	db := newTestDB(t)

	notified := make(chan notifier.Message, 4)
	dispatcher := notifier.NewDispatcher(notifier.DispatcherParams{
		Notifier: captureNotifier{ch: notified},
		Log:      zap.NewNop(),
	})
	svc := newTestService(t, db, dispatcher)
	ctx := context.Background()
	userID := snowflake.ID(1008)

	fact := domain.SubscriptionFact{
		UserID:         userID,
		CustomerID:     "cus_8",
		SubscriptionID: "sub_8",
		PlanKey:        plan.KeyTier1,
		ProviderStatus: "active",
	}
	_, err := svc.UpsertFromSubscriptionFact(ctx, fact)
	require.NoError(t, err)

	fact.ProviderStatus = "canceled"
	_, err = svc.UpsertFromSubscriptionFact(ctx, fact)
	require.NoError(t, err)

	select {
	case msg := <-notified:
		assert.Equal(t, userID, msg.UserID)
		assert.Equal(t, notifier.KindSubscriptionCanceled, msg.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a cancel notification")
	}

	// Re-applying the canceled fact must not notify again.
	_, err = svc.UpsertFromSubscriptionFact(ctx, fact)
	require.NoError(t, err)
	select {
	case <-notified:
		t.Fatal("canceled->canceled must not re-notify")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUpsert_PaymentFailureNotifiesOnce(t *testing.T) {
	db := newTestDB(t)

	notified := make(chan notifier.Message, 4)
	dispatcher := notifier.NewDispatcher(notifier.DispatcherParams{
		Notifier: captureNotifier{ch: notified},
		Log:      zap.NewNop(),
	})
	svc := newTestService(t, db, dispatcher)
	ctx := context.Background()
	userID := snowflake.ID(1009)

	fact := domain.SubscriptionFact{
		UserID:         userID,
		CustomerID:     "cus_9",
		SubscriptionID: "sub_9",
		PlanKey:        plan.KeyTier1,
		ProviderStatus: "active",
	}
	_, err := svc.UpsertFromSubscriptionFact(ctx, fact)
	require.NoError(t, err)

	fact.ProviderStatus = "past_due"
	_, err = svc.UpsertFromSubscriptionFact(ctx, fact)
	require.NoError(t, err)

	select {
	case msg := <-notified:
		assert.Equal(t, userID, msg.UserID)
		assert.Equal(t, notifier.KindPaymentFailed, msg.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a payment failure notification")
	}

	// A redelivered past_due fact must not notify again.
	_, err = svc.UpsertFromSubscriptionFact(ctx, fact)
	require.NoError(t, err)
	select {
	case <-notified:
		t.Fatal("past_due->past_due must not re-notify")
	case <-time.After(100 * time.Millisecond):
	}

	// Recovery clears the way for the next failure to notify.
	fact.ProviderStatus = "active"
	_, err = svc.UpsertFromSubscriptionFact(ctx, fact)
	require.NoError(t, err)
	fact.ProviderStatus = "past_due"
	_, err = svc.UpsertFromSubscriptionFact(ctx, fact)
	require.NoError(t, err)
	select {
	case msg := <-notified:
		assert.Equal(t, notifier.KindPaymentFailed, msg.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a second payment failure notification")
	}
}

func TestAddCredits_NoDoubleCredit(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db, nil)
	ctx := context.Background()
	userID := snowflake.ID(1009)

	req := domain.AddCreditsRequest{
		CustomerID: "cus_9",
		UserID:     userID,
		Amount:     50,
		EventID:    "evt_checkout_1",
	}

	accountID, err := svc.AddCredits(ctx, req)
	require.NoError(t, err)

	again, err := svc.AddCredits(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, accountID, again)

	account := accountByID(t, db, accountID)
	assert.Equal(t, plan.KeyNone, account.PlanKey)
	assert.Equal(t, domain.StatusNone, account.Status)
	assert.Equal(t, int64(50), account.AddonCreditsBalance)

	entries := ledgerEntriesFor(t, db, accountID)
	require.Len(t, entries, 1)
	assert.Equal(t, ledgerdomain.ReasonAddonPurchase, entries[0].Reason)
	assert.Equal(t, int64(50), entries[0].Amount)
	assert.Equal(t, int64(50), entries[0].AddonBalanceAfter)
}

func TestAddCredits_RejectsNonPositiveAmount(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db, nil)

	_, err := svc.AddCredits(context.Background(), domain.AddCreditsRequest{
		CustomerID: "cus_10",
		UserID:     snowflake.ID(1010),
		Amount:     0,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

type captureNotifier struct {
	ch chan notifier.Message
}

func (n captureNotifier) Notify(_ context.Context, msg notifier.Message) error {
	n.ch <- msg
	return nil
}
