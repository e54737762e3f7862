package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PlanEntry maps an internal plan key to the provider price that sells it.
type PlanEntry struct {
	Key            string   `mapstructure:"key"`
	PriceID        string   `mapstructure:"priceId"`
	MonthlyCredits int64    `mapstructure:"monthlyCredits"`
	NamePatterns   []string `mapstructure:"namePatterns"`
}

// PlansConfig is the externally-managed plan catalogue.
type PlansConfig struct {
	Catalog []PlanEntry `mapstructure:"catalog"`
}

func DefaultPlansConfig() PlansConfig {
	return PlansConfig{
		Catalog: []PlanEntry{
			{Key: "tier1", MonthlyCredits: 500, NamePatterns: []string{"starter", "basic"}},
			{Key: "tier2", MonthlyCredits: 2000, NamePatterns: []string{"creator", "pro"}},
			{Key: "tier3", MonthlyCredits: 10000, NamePatterns: []string{"studio", "business"}},
		},
	}
}

// PlansConfigHolder exposes the current plan catalogue and hot-reloads it
// when the backing file changes.
type PlansConfigHolder struct {
	current atomic.Value // holds PlansConfig
}

func NewPlansConfigHolder() (*PlansConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/renderforge/config") // Volume-mounted config
	v.AddConfigPath("/etc/renderforge")            // System config
	v.AddConfigPath(".")                           // Current directory (dev mode)

	v.SetEnvPrefix("RENDERFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultPlansConfig()
		v.SetDefault("plans.catalog", defaults.Catalog)
	}

	var cfg PlansConfig
	if err := v.UnmarshalKey("plans", &cfg); err != nil {
		return nil, err
	}
	if err := validatePlansConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PlansConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlansConfig
		if err := v.UnmarshalKey("plans", &updated); err != nil {
			log.Printf("[plans-config] reload failed: %v", err)
			return
		}
		if err := validatePlansConfig(updated); err != nil {
			log.Printf("[plans-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[plans-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PlansConfigHolder) Get() PlansConfig {
	return h.current.Load().(PlansConfig)
}

func validatePlansConfig(cfg PlansConfig) error {
	if len(cfg.Catalog) == 0 {
		return errors.New("plans.catalog cannot be empty")
	}
	seen := map[string]bool{}
	for _, entry := range cfg.Catalog {
		key := strings.TrimSpace(entry.Key)
		if key == "" {
			return errors.New("plans.catalog entries require a key")
		}
		if seen[key] {
			return errors.New("plans.catalog keys must be unique")
		}
		seen[key] = true
		if entry.MonthlyCredits < 0 {
			return errors.New("plans.catalog monthlyCredits cannot be negative")
		}
	}
	return nil
}
