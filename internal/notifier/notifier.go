// Package notifier delivers best-effort user notifications. Delivery is
// fire-and-forget: reconciliation outcomes never depend on it.
package notifier

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/renderforge/billing/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	KindSubscriptionCanceled = "subscription_canceled"
	KindPaymentFailed        = "payment_failed"
)

// Message is one notification addressed to a user.
type Message struct {
	UserID snowflake.ID
	Kind   string
	Body   string
}

// Notifier sends a single message. Implementations may fail; the dispatcher
// absorbs those failures.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes notifications to the application log. Stands in until a
// real delivery channel (email, in-app inbox) is wired up.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) Notifier {
	return &LogNotifier{log: log.Named("notifier.log")}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.log.Info("user notification",
		zap.String("user_id", msg.UserID.String()),
		zap.String("kind", msg.Kind),
		zap.String("body", msg.Body),
	)
	return nil
}

// Dispatcher runs notifications on a detached goroutine with its own timeout
// so a slow channel cannot hold a request or a database transaction open.
type Dispatcher struct {
	notifier   Notifier
	log        *zap.Logger
	timeout    time.Duration
	obsMetrics *obsmetrics.Metrics
}

type DispatcherParams struct {
	fx.In

	Notifier   Notifier
	Log        *zap.Logger
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	return &Dispatcher{
		notifier:   p.Notifier,
		log:        p.Log.Named("notifier.dispatcher"),
		timeout:    5 * time.Second,
		obsMetrics: p.ObsMetrics,
	}
}

// Dispatch sends msg without blocking the caller. Errors are logged and
// swallowed.
func (d *Dispatcher) Dispatch(msg Message) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		err := d.notifier.Notify(ctx, msg)
		outcome := "delivered"
		if err != nil {
			outcome = "failed"
			d.log.Warn("notification delivery failed",
				zap.String("user_id", msg.UserID.String()),
				zap.String("kind", msg.Kind),
				zap.Error(err),
			)
		}
		if d.obsMetrics != nil {
			d.obsMetrics.RecordNotification(ctx, msg.Kind, outcome)
		}
	}()
}

var Module = fx.Module("notifier",
	fx.Provide(
		NewLogNotifier,
		NewDispatcher,
	),
)
