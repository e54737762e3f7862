// Package stripe adapts Stripe webhook deliveries into the engine's typed
// facts.
package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/renderforge/billing/internal/config"
	"github.com/renderforge/billing/internal/webhook/domain"
)

type Adapter struct {
	webhookSecret string
}

// NewAdapter builds the Stripe adapter from application config.
func NewAdapter(cfg config.Config) *Adapter {
	return &Adapter{webhookSecret: cfg.StripeWebhookSecret}
}

func (a *Adapter) Provider() string {
	return "stripe"
}

// Verify checks the Stripe-Signature header: HMAC-SHA256 over
// "<timestamp>.<payload>" with the endpoint secret.
func (a *Adapter) Verify(_ context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return domain.ErrInvalidSignature
	}
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return domain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return domain.ErrInvalidSignature
}

func (a *Adapter) Parse(_ context.Context, payload []byte) (*domain.Event, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		return a.parseSubscription(event)
	case "invoice.paid":
		return a.parseInvoice(event, true)
	case "invoice.payment_failed":
		return a.parseInvoice(event, false)
	case "checkout.session.completed":
		return a.parseCheckout(event)
	default:
		return nil, domain.ErrEventIgnored
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeSubscription struct {
	ID                 string              `json:"id"`
	Customer           string              `json:"customer"`
	Status             string              `json:"status"`
	CurrentPeriodStart int64               `json:"current_period_start"`
	CurrentPeriodEnd   int64               `json:"current_period_end"`
	Metadata           map[string]any      `json:"metadata"`
	Items              stripeSubscriptionI `json:"items"`
}

type stripeSubscriptionI struct {
	Data []stripeSubscriptionItem `json:"data"`
}

type stripeSubscriptionItem struct {
	Price stripePrice `json:"price"`
}

type stripePrice struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Product  string `json:"product"`
}

type stripeInvoice struct {
	ID           string             `json:"id"`
	Customer     string             `json:"customer"`
	Subscription string             `json:"subscription"`
	AmountPaid   int64              `json:"amount_paid"`
	AmountDue    int64              `json:"amount_due"`
	Currency     string             `json:"currency"`
	Created      int64              `json:"created"`
	Lines        stripeInvoiceLines `json:"lines"`
}

type stripeInvoiceLines struct {
	Data []stripeInvoiceLine `json:"data"`
}

type stripeInvoiceLine struct {
	Price  stripePrice  `json:"price"`
	Period stripePeriod `json:"period"`
}

type stripePeriod struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

type stripeCheckoutSession struct {
	ID          string         `json:"id"`
	Customer    string         `json:"customer"`
	Mode        string         `json:"mode"`
	AmountTotal int64          `json:"amount_total"`
	Currency    string         `json:"currency"`
	Created     int64          `json:"created"`
	Metadata    map[string]any `json:"metadata"`
}

func (a *Adapter) parseSubscription(event stripeEvent) (*domain.Event, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(sub.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	var priceID, productName string
	if len(sub.Items.Data) > 0 {
		priceID = strings.TrimSpace(sub.Items.Data[0].Price.ID)
		productName = strings.TrimSpace(sub.Items.Data[0].Price.Nickname)
	}

	return &domain.Event{
		Provider:  a.Provider(),
		EventID:   event.ID,
		EventType: event.Type,
		Subscription: &domain.SubscriptionUpdate{
			UserID:         parseUserID(sub.Metadata),
			CustomerID:     strings.TrimSpace(sub.Customer),
			SubscriptionID: strings.TrimSpace(sub.ID),
			PriceID:        priceID,
			ProductName:    productName,
			ProviderStatus: strings.TrimSpace(sub.Status),
			PeriodStart:    millis(sub.CurrentPeriodStart),
			PeriodEnd:      millis(sub.CurrentPeriodEnd),
		},
	}, nil
}

func (a *Adapter) parseInvoice(event stripeEvent, paid bool) (*domain.Event, error) {
	var invoice stripeInvoice
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(invoice.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	amount := invoice.AmountPaid
	if !paid {
		amount = invoice.AmountDue
	}

	var priceID string
	var periodStart, periodEnd int64
	if len(invoice.Lines.Data) > 0 {
		line := invoice.Lines.Data[0]
		priceID = strings.TrimSpace(line.Price.ID)
		periodStart = millis(line.Period.Start)
		periodEnd = millis(line.Period.End)
	}

	return &domain.Event{
		Provider:  a.Provider(),
		EventID:   event.ID,
		EventType: event.Type,
		Invoice: &domain.InvoicePayment{
			ObjectID:       strings.TrimSpace(invoice.ID),
			CustomerID:     strings.TrimSpace(invoice.Customer),
			SubscriptionID: strings.TrimSpace(invoice.Subscription),
			Paid:           paid,
			Amount:         amount,
			Currency:       strings.ToLower(strings.TrimSpace(invoice.Currency)),
			PriceID:        priceID,
			PeriodStart:    periodStart,
			PeriodEnd:      periodEnd,
			OccurredAt:     occurredAt(invoice.Created, event.Created),
		},
	}, nil
}

func (a *Adapter) parseCheckout(event stripeEvent) (*domain.Event, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.Event{
		Provider:  a.Provider(),
		EventID:   event.ID,
		EventType: event.Type,
		Checkout: &domain.CheckoutCompletion{
			ObjectID:   strings.TrimSpace(session.ID),
			CustomerID: strings.TrimSpace(session.Customer),
			UserID:     parseUserID(session.Metadata),
			Credits:    parseInt(session.Metadata, "credits"),
			Amount:     session.AmountTotal,
			Currency:   strings.ToLower(strings.TrimSpace(session.Currency)),
			OccurredAt: occurredAt(session.Created, event.Created),
		},
	}, nil
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

// millis converts Stripe's epoch-seconds timestamps to ms epoch.
func millis(seconds int64) int64 {
	if seconds <= 0 {
		return 0
	}
	return seconds * 1000
}

func occurredAt(primary, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

func parseUserID(metadata map[string]any) snowflake.ID {
	raw := readMetadataValue(metadata, "user_id")
	if raw == "" {
		return 0
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0
	}
	return id
}

func parseInt(metadata map[string]any, key string) int64 {
	raw := readMetadataValue(metadata, key)
	if raw == "" {
		return 0
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0
	}
	return value
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	case int64:
		return strconv.FormatInt(cast, 10)
	case int:
		return strconv.Itoa(cast)
	}
	return ""
}
