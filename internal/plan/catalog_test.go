package plan

import (
	"testing"

	"github.com/renderforge/billing/internal/config"
	"github.com/stretchr/testify/assert"
)

func testCatalog() *Catalog {
	return NewStaticCatalog(config.PlansConfig{
		Catalog: []config.PlanEntry{
			{Key: "tier1", PriceID: "price_t1", MonthlyCredits: 10, NamePatterns: []string{"starter", "basic"}},
			{Key: "tier2", PriceID: "price_t2", MonthlyCredits: 25, NamePatterns: []string{"creator", "pro"}},
			{Key: "tier3", MonthlyCredits: 100, NamePatterns: []string{"studio"}},
		},
	})
}

func TestForPrice(t *testing.T) {
	catalog := testCatalog()

	key, ok := catalog.ForPrice("price_t2")
	assert.True(t, ok)
	assert.Equal(t, KeyTier2, key)

	_, ok = catalog.ForPrice("price_unknown")
	assert.False(t, ok)

	_, ok = catalog.ForPrice("")
	assert.False(t, ok)
}

func TestInferFromName_FirstMatchWins(t *testing.T) {
	catalog := testCatalog()

	key, ok := catalog.InferFromName("Renderforge Starter (monthly)")
	assert.True(t, ok)
	assert.Equal(t, KeyTier1, key)

	// "pro" appears in tier2's patterns; tier1 is checked first but does
	// not match, so ordering still lands on tier2.
	key, ok = catalog.InferFromName("Pro plan")
	assert.True(t, ok)
	assert.Equal(t, KeyTier2, key)

	_, ok = catalog.InferFromName("Enterprise")
	assert.False(t, ok)
}

func TestResolve_PriceBeatsName(t *testing.T) {
	catalog := testCatalog()

	// Explicit price mapping wins even when the display name suggests a
	// different tier.
	key, ok := catalog.Resolve("price_t1", "Renderforge Studio")
	assert.True(t, ok)
	assert.Equal(t, KeyTier1, key)

	// No price match falls back to name inference.
	key, ok = catalog.Resolve("price_unknown", "Renderforge Studio")
	assert.True(t, ok)
	assert.Equal(t, KeyTier3, key)
}

func TestMonthlyCredits(t *testing.T) {
	catalog := testCatalog()

	assert.Equal(t, int64(10), catalog.MonthlyCredits(KeyTier1))
	assert.Equal(t, int64(25), catalog.MonthlyCredits(KeyTier2))
	assert.Equal(t, int64(0), catalog.MonthlyCredits(KeyNone))
}

func TestRankOrdering(t *testing.T) {
	assert.True(t, KeyNone.Rank() < KeyTier1.Rank())
	assert.True(t, KeyTier1.Rank() < KeyTier2.Rank())
	assert.True(t, KeyTier2.Rank() < KeyTier3.Rank())
}
