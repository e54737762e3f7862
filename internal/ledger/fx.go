package ledger

import (
	"github.com/renderforge/billing/internal/ledger/repository"
	"github.com/renderforge/billing/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
