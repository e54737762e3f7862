package revenue

import (
	"github.com/renderforge/billing/internal/revenue/repository"
	"github.com/renderforge/billing/internal/revenue/service"
	"go.uber.org/fx"
)

var Module = fx.Module("revenue.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
