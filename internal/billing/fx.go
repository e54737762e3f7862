package billing

import (
	"github.com/renderforge/billing/internal/billing/repository"
	"github.com/renderforge/billing/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
