package webhook

import (
	"github.com/renderforge/billing/internal/webhook/domain"
	"github.com/renderforge/billing/internal/webhook/service"
	"github.com/renderforge/billing/internal/webhook/stripe"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(
		fx.Annotate(
			stripe.NewAdapter,
			fx.As(new(domain.Adapter)),
			fx.ResultTags(`group:"webhook_adapters"`),
		),
		service.NewRegistry,
		service.NewService,
	),
)
