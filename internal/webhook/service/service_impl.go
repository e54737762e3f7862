package service

import (
	"context"
	"errors"
	"net/http"

	billingdomain "github.com/renderforge/billing/internal/billing/domain"
	obsmetrics "github.com/renderforge/billing/internal/observability/metrics"
	"github.com/renderforge/billing/internal/plan"
	revenuedomain "github.com/renderforge/billing/internal/revenue/domain"
	"github.com/renderforge/billing/internal/webhook/domain"
	webhookeventdomain "github.com/renderforge/billing/internal/webhookevent/domain"
	"github.com/renderforge/billing/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Registry   *Registry
	Guard      webhookeventdomain.Service
	Billing    billingdomain.Service
	Revenue    revenuedomain.Service
	Catalog    *plan.Catalog
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	registry   *Registry
	guard      webhookeventdomain.Service
	billing    billingdomain.Service
	revenue    revenuedomain.Service
	catalog    *plan.Catalog
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		log:        p.Log.Named("webhook.service"),
		registry:   p.Registry,
		guard:      p.Guard,
		billing:    p.Billing,
		revenue:    p.Revenue,
		catalog:    p.Catalog,
		obsMetrics: p.ObsMetrics,
	}
}

// Ingest runs one delivery through the full pipeline: verify the signature,
// parse into a typed fact, claim the event id, apply, record the outcome.
// Deliveries that lose the idempotency race are acknowledged as duplicates.
func (s *Service) Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	ctx, correlationID := correlation.EnsureCorrelationID(ctx)
	log := s.log.With(
		zap.String("correlation_id", correlationID),
		zap.String("provider", provider),
	)

	adapter, err := s.registry.Get(provider)
	if err != nil {
		return err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.record(ctx, provider, "", "rejected")
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, domain.ErrEventIgnored) {
			s.record(ctx, provider, "", "ignored")
			return nil
		}
		s.record(ctx, provider, "", "invalid")
		return err
	}

	proceed, err := s.guard.Begin(ctx, event.EventID, event.EventType, payload)
	if err != nil {
		return err
	}
	if !proceed {
		s.record(ctx, provider, event.EventType, "duplicate")
		log.Debug("duplicate webhook delivery", zap.String("event_id", event.EventID))
		return nil
	}

	if err := s.apply(ctx, event); err != nil {
		if failErr := s.guard.Fail(ctx, event.EventID, err); failErr != nil {
			log.Error("failed to mark webhook event failed",
				zap.String("event_id", event.EventID),
				zap.Error(failErr),
			)
		}
		s.record(ctx, provider, event.EventType, "failed")
		log.Warn("webhook event processing failed",
			zap.String("event_id", event.EventID),
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
		return err
	}

	if err := s.guard.Complete(ctx, event.EventID); err != nil {
		return err
	}
	s.record(ctx, provider, event.EventType, "processed")
	return nil
}

func (s *Service) apply(ctx context.Context, event *domain.Event) error {
	switch {
	case event.Subscription != nil:
		return s.applySubscription(ctx, event)
	case event.Invoice != nil:
		return s.applyInvoice(ctx, event)
	case event.Checkout != nil:
		return s.applyCheckout(ctx, event)
	default:
		return domain.ErrInvalidEvent
	}
}

func (s *Service) applySubscription(ctx context.Context, event *domain.Event) error {
	sub := event.Subscription

	planKey, ok := s.catalog.Resolve(sub.PriceID, sub.ProductName)
	if !ok {
		return billingdomain.ErrUnresolvablePlan
	}

	_, err := s.billing.UpsertFromSubscriptionFact(ctx, billingdomain.SubscriptionFact{
		UserID:         sub.UserID,
		CustomerID:     sub.CustomerID,
		SubscriptionID: sub.SubscriptionID,
		PlanKey:        planKey,
		ProviderStatus: sub.ProviderStatus,
		PeriodStart:    sub.PeriodStart,
		PeriodEnd:      sub.PeriodEnd,
	})
	return err
}

func (s *Service) applyInvoice(ctx context.Context, event *domain.Event) error {
	invoice := event.Invoice

	if !invoice.Paid {
		// A failed payment only degrades the status; the period is untouched
		// so no rollover can trigger.
		_, err := s.billing.UpsertFromSubscriptionFact(ctx, billingdomain.SubscriptionFact{
			CustomerID:     invoice.CustomerID,
			SubscriptionID: invoice.SubscriptionID,
			ProviderStatus: string(billingdomain.StatusPastDue),
		})
		return err
	}

	fact := billingdomain.SubscriptionFact{
		CustomerID:     invoice.CustomerID,
		SubscriptionID: invoice.SubscriptionID,
		ProviderStatus: string(billingdomain.StatusActive),
		PeriodStart:    invoice.PeriodStart,
		PeriodEnd:      invoice.PeriodEnd,
	}
	// Renewal invoices carry the line price; when it resolves, the fact also
	// confirms the plan.
	if planKey, ok := s.catalog.ForPrice(invoice.PriceID); ok {
		fact.PlanKey = planKey
	}
	if _, err := s.billing.UpsertFromSubscriptionFact(ctx, fact); err != nil {
		return err
	}

	_, err := s.revenue.Record(ctx, revenuedomain.RecordRequest{
		EventID:    event.EventID,
		ObjectID:   invoice.ObjectID,
		CustomerID: invoice.CustomerID,
		Source:     revenuedomain.SourceSubscriptionInvoice,
		Amount:     invoice.Amount,
		Currency:   invoice.Currency,
		OccurredAt: invoice.OccurredAt,
	})
	return err
}

func (s *Service) applyCheckout(ctx context.Context, event *domain.Event) error {
	checkout := event.Checkout

	if checkout.Credits <= 0 {
		// Subscription-mode checkouts carry no credits; they only link the
		// user to the customer ahead of the subscription events.
		if checkout.UserID != 0 && checkout.CustomerID != "" {
			_, err := s.billing.UpsertFromSubscriptionFact(ctx, billingdomain.SubscriptionFact{
				UserID:     checkout.UserID,
				CustomerID: checkout.CustomerID,
			})
			return err
		}
		return nil
	}

	if _, err := s.billing.AddCredits(ctx, billingdomain.AddCreditsRequest{
		CustomerID: checkout.CustomerID,
		UserID:     checkout.UserID,
		Amount:     checkout.Credits,
		EventID:    event.EventID,
	}); err != nil {
		return err
	}

	if checkout.Amount <= 0 {
		return nil
	}
	_, err := s.revenue.Record(ctx, revenuedomain.RecordRequest{
		EventID:    event.EventID,
		ObjectID:   checkout.ObjectID,
		CustomerID: checkout.CustomerID,
		UserID:     checkout.UserID,
		Source:     revenuedomain.SourceAddonCheckout,
		Amount:     checkout.Amount,
		Currency:   checkout.Currency,
		OccurredAt: checkout.OccurredAt,
	})
	return err
}

func (s *Service) record(ctx context.Context, provider, eventType, outcome string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordWebhookEvent(ctx, provider, eventType, outcome)
	}
}
