package ratelimit

import (
	"context"

	"github.com/renderforge/billing/internal/config"
	obsmetrics "github.com/renderforge/billing/internal/observability/metrics"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// WebhookLimiter throttles inbound webhook deliveries per provider and
// source address. A provider retries throttled deliveries, so shedding load
// here is safe.
type WebhookLimiter struct {
	bucket     *TokenBucket
	log        *zap.Logger
	rate       float64
	burst      int
	obsMetrics *obsmetrics.Metrics
}

type WebhookLimiterParams struct {
	fx.In

	Client     *redis.Client `optional:"true"`
	Log        *zap.Logger
	Cfg        config.Config
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func NewWebhookLimiter(p WebhookLimiterParams) *WebhookLimiter {
	return &WebhookLimiter{
		bucket:     NewTokenBucket(p.Client),
		log:        p.Log.Named("ratelimit.webhook"),
		rate:       float64(p.Cfg.WebhookRatePerSecond),
		burst:      p.Cfg.WebhookBurst,
		obsMetrics: p.ObsMetrics,
	}
}

// Allow reports whether the delivery may proceed. Limiter errors (redis
// down, not configured) fail open: dropping real provider events is worse
// than briefly losing throttling.
func (l *WebhookLimiter) Allow(ctx context.Context, provider, remoteAddr string) bool {
	if l.bucket == nil || l.rate <= 0 || l.burst <= 0 {
		return true
	}

	key := "ratelimit:webhook:" + provider + ":" + remoteAddr
	result, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limiter unavailable, failing open", zap.Error(err))
		return true
	}
	if l.obsMetrics != nil {
		if result.Allowed {
			l.obsMetrics.RecordRateLimitAllowed(ctx, "webhook")
		} else {
			l.obsMetrics.RecordRateLimitDenied(ctx, "webhook", "rate_exceeded")
		}
	}
	return result.Allowed
}

// NewRedisClient builds the shared redis client, or nil when no address is
// configured.
func NewRedisClient(cfg config.Config, log *zap.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		log.Named("ratelimit").Info("redis not configured, webhook rate limiting disabled")
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

var Module = fx.Module("ratelimit",
	fx.Provide(
		NewRedisClient,
		NewWebhookLimiter,
	),
)
