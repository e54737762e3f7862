package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/renderforge/billing/internal/clock"
	"github.com/renderforge/billing/internal/config"
	"github.com/renderforge/billing/internal/webhookevent/domain"
	"github.com/renderforge/billing/internal/webhookevent/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, clk clock.Clock) (domain.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.EventRecord{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: clk,
		Cfg:   config.Config{ProcessingLease: 15 * time.Minute},
	})
	return svc, db
}

func TestBegin_FirstDeliveryWins(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, clk)
	ctx := context.Background()

	ok, err := svc.Begin(ctx, "evt_1", "invoice.paid", []byte(`{"id":"evt_1"}`))
	require.NoError(t, err)
	assert.True(t, ok)

	// Redelivery while the first attempt still holds the lease.
	ok, err = svc.Begin(ctx, "evt_1", "invoice.paid", []byte(`{"id":"evt_1"}`))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBegin_AfterComplete(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, clk)
	ctx := context.Background()

	ok, err := svc.Begin(ctx, "evt_2", "invoice.paid", []byte(`{"id":"evt_2"}`))
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, svc.Complete(ctx, "evt_2"))

	// Processed events never run again, even after the lease lapses.
	clk.Advance(time.Hour)
	ok, err = svc.Begin(ctx, "evt_2", "invoice.paid", []byte(`{"id":"evt_2"}`))
	require.NoError(t, err)
	assert.False(t, ok)

	record, err := svc.Find(ctx, "evt_2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, record.Status)
	assert.NotNil(t, record.ProcessedAt)
	assert.JSONEq(t, `{"id":"evt_2"}`, string(record.Payload))
}

func TestBegin_AfterFail_Retries(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, clk)
	ctx := context.Background()

	ok, err := svc.Begin(ctx, "evt_3", "customer.subscription.updated", []byte(`{"id":"evt_3"}`))
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, svc.Fail(ctx, "evt_3", errors.New("downstream unavailable")))

	record, err := svc.Find(ctx, "evt_3")
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailed, record.Status)
	require.NotNil(t, record.Error)
	assert.Equal(t, "downstream unavailable", *record.Error)

	// A failed event is immediately retryable, no lease wait.
	ok, err = svc.Begin(ctx, "evt_3", "customer.subscription.updated", []byte(`{"id":"evt_3"}`))
	require.NoError(t, err)
	assert.True(t, ok)

	record, err = svc.Find(ctx, "evt_3")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, record.Status)
	assert.Nil(t, record.Error)
}

func TestBegin_StaleProcessingReclaim(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, clk)
	ctx := context.Background()

	ok, err := svc.Begin(ctx, "evt_4", "checkout.session.completed", []byte(`{"id":"evt_4"}`))
	require.NoError(t, err)
	require.True(t, ok)

	// Crash scenario: the first attempt never completes. Within the lease the
	// event stays held.
	clk.Advance(5 * time.Minute)
	ok, err = svc.Begin(ctx, "evt_4", "checkout.session.completed", []byte(`{"id":"evt_4"}`))
	require.NoError(t, err)
	assert.False(t, ok)

	// Past the lease a redelivery takes over.
	clk.Advance(11 * time.Minute)
	ok, err = svc.Begin(ctx, "evt_4", "checkout.session.completed", []byte(`{"id":"evt_4"}`))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBegin_RejectsEmptyEventID(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, clk)

	_, err := svc.Begin(context.Background(), "  ", "invoice.paid", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidEventID)
}
