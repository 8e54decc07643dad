package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingConfig holds the billing tunables that operators adjust without a
// redeploy: price-drift tolerance, backfill limits and projection horizon.
type BillingConfig struct {
	PriceDriftEpsilon float64            `mapstructure:"price_drift_epsilon"`
	MaxBackfillCycles int                `mapstructure:"max_backfill_cycles"`
	ProjectionMonths  int                `mapstructure:"projection_months"`
	BaseCurrency      string             `mapstructure:"base_currency"`
	Rates             map[string]float64 `mapstructure:"rates"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		PriceDriftEpsilon: 0.01,
		MaxBackfillCycles: 120,
		ProjectionMonths:  12,
		BaseCurrency:      "USD",
	}
}

// BillingConfigHolder serves the current billing config and swaps it
// atomically when the backing file changes.
type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/subtrack")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SUBTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &BillingConfigHolder{}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		holder.current.Store(DefaultBillingConfig())
		return holder, nil
	}

	cfg, err := unmarshalBillingConfig(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.OnConfigChange(func(_ fsnotify.Event) {
		updated, err := unmarshalBillingConfig(v)
		if err != nil {
			log.Printf("billing config reload failed: %v", err)
			return
		}
		holder.current.Store(updated)
	})
	v.WatchConfig()

	return holder, nil
}

func (h *BillingConfigHolder) Current() BillingConfig {
	if cfg, ok := h.current.Load().(BillingConfig); ok {
		return cfg
	}
	return DefaultBillingConfig()
}

// SetForTest overrides the current config. Tests only.
func (h *BillingConfigHolder) SetForTest(cfg BillingConfig) {
	h.current.Store(cfg.withDefaults())
}

func unmarshalBillingConfig(v *viper.Viper) (BillingConfig, error) {
	cfg := DefaultBillingConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return BillingConfig{}, err
	}
	return cfg.withDefaults(), nil
}

func (c BillingConfig) withDefaults() BillingConfig {
	defaults := DefaultBillingConfig()
	if c.PriceDriftEpsilon <= 0 {
		c.PriceDriftEpsilon = defaults.PriceDriftEpsilon
	}
	if c.MaxBackfillCycles <= 0 {
		c.MaxBackfillCycles = defaults.MaxBackfillCycles
	}
	if c.ProjectionMonths <= 0 {
		c.ProjectionMonths = defaults.ProjectionMonths
	}
	if strings.TrimSpace(c.BaseCurrency) == "" {
		c.BaseCurrency = defaults.BaseCurrency
	}
	return c
}
