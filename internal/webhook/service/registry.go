package service

import (
	"strings"

	"github.com/renderforge/billing/internal/webhook/domain"
	"go.uber.org/fx"
)

// Registry holds the configured provider adapters keyed by provider name.
type Registry struct {
	adapters map[string]domain.Adapter
}

type RegistryParams struct {
	fx.In

	Adapters []domain.Adapter `group:"webhook_adapters"`
}

func NewRegistry(p RegistryParams) *Registry {
	adapters := make(map[string]domain.Adapter, len(p.Adapters))
	for _, adapter := range p.Adapters {
		adapters[adapter.Provider()] = adapter
	}
	return &Registry{adapters: adapters}
}

func (r *Registry) Get(provider string) (domain.Adapter, error) {
	adapter, ok := r.adapters[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}
	return adapter, nil
}
