package plan

import (
	"strings"

	"github.com/renderforge/billing/internal/config"
	"go.uber.org/fx"
)

// Catalog resolves provider price ids and product names to plan keys, and
// carries the per-plan monthly credit quota. Backed by the hot-reloadable
// plans config, so lookups always see the current catalogue.
type Catalog struct {
	source func() config.PlansConfig
}

// NewCatalog builds a Catalog on top of the live config holder.
func NewCatalog(holder *config.PlansConfigHolder) *Catalog {
	return &Catalog{source: holder.Get}
}

// NewStaticCatalog builds a Catalog from a fixed config. Intended for tests.
func NewStaticCatalog(cfg config.PlansConfig) *Catalog {
	return &Catalog{source: func() config.PlansConfig { return cfg }}
}

// ForPrice returns the plan key sold under the given provider price id.
func (c *Catalog) ForPrice(priceID string) (Key, bool) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return KeyNone, false
	}
	for _, entry := range c.source().Catalog {
		if entry.PriceID != "" && entry.PriceID == priceID {
			return Key(entry.Key), true
		}
	}
	return KeyNone, false
}

// InferFromName applies the ordered display-name patterns as a best-effort
// fallback when no explicit price mapping exists. First match wins.
func (c *Catalog) InferFromName(name string) (Key, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return KeyNone, false
	}
	for _, entry := range c.source().Catalog {
		for _, pattern := range entry.NamePatterns {
			pattern = strings.ToLower(strings.TrimSpace(pattern))
			if pattern == "" {
				continue
			}
			if strings.Contains(name, pattern) {
				return Key(entry.Key), true
			}
		}
	}
	return KeyNone, false
}

// Resolve tries the explicit price mapping first, then name inference.
func (c *Catalog) Resolve(priceID, displayName string) (Key, bool) {
	if key, ok := c.ForPrice(priceID); ok {
		return key, true
	}
	return c.InferFromName(displayName)
}

// MonthlyCredits returns the monthly quota granted by the plan. The none
// plan has no quota.
func (c *Catalog) MonthlyCredits(key Key) int64 {
	for _, entry := range c.source().Catalog {
		if Key(entry.Key) == key {
			return entry.MonthlyCredits
		}
	}
	return 0
}

// PriceID returns the provider price id selling the plan, if configured.
func (c *Catalog) PriceID(key Key) (string, bool) {
	for _, entry := range c.source().Catalog {
		if Key(entry.Key) == key && entry.PriceID != "" {
			return entry.PriceID, true
		}
	}
	return "", false
}

var Module = fx.Module("plan",
	fx.Provide(NewCatalog),
)
