package webhookevent

import (
	"github.com/renderforge/billing/internal/webhookevent/repository"
	"github.com/renderforge/billing/internal/webhookevent/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhookevent.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
