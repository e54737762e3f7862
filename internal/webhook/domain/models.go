// Package domain defines the provider-agnostic webhook contract: adapters
// verify and parse raw deliveries into typed facts, the ingest service
// applies them.
package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Event is the parsed outcome of one webhook delivery. Exactly one of the
// fact fields is set, matching the provider event type.
type Event struct {
	Provider  string
	EventID   string
	EventType string

	Subscription *SubscriptionUpdate
	Invoice      *InvoicePayment
	Checkout     *CheckoutCompletion
}

// SubscriptionUpdate is a subscription lifecycle fact: created, updated or
// deleted. PriceID and ProductName feed the plan resolver; period bounds are
// ms epoch.
type SubscriptionUpdate struct {
	UserID         snowflake.ID // 0 when metadata carried no user id
	CustomerID     string
	SubscriptionID string
	PriceID        string
	ProductName    string
	ProviderStatus string
	PeriodStart    int64
	PeriodEnd      int64
}

// InvoicePayment reports an invoice outcome. Paid invoices carry revenue and
// may advance the billing period; failed ones only degrade the status.
type InvoicePayment struct {
	ObjectID       string
	CustomerID     string
	SubscriptionID string
	Paid           bool
	Amount         int64
	Currency       string
	PriceID        string
	PeriodStart    int64
	PeriodEnd      int64
	OccurredAt     time.Time
}

// CheckoutCompletion reports a finished checkout session. Credits comes from
// session metadata; zero means the session sold no add-on credits.
type CheckoutCompletion struct {
	ObjectID   string
	CustomerID string
	UserID     snowflake.ID
	Credits    int64
	Amount     int64
	Currency   string
	OccurredAt time.Time
}

// Adapter verifies and parses one provider's deliveries.
type Adapter interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*Event, error)
}

// Service ingests one raw webhook delivery end to end: verify, dedup, apply,
// mark outcome.
type Service interface {
	Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) error
}
