// Package currency defines the conversion contract consumed by analytics and
// reporting. Rate lookup is an external concern; the engine only needs a pure
// convert function.
package currency

import (
	"errors"
	"strings"

	"github.com/subtrackhq/subtrack/internal/config"
	"go.uber.org/fx"
)

var ErrUnknownCurrency = errors.New("unknown_currency")

type Converter interface {
	Convert(amount float64, from, to string) (float64, error)
}

// StaticConverter converts through a fixed rate table keyed by currency code,
// with rates expressed relative to a single base currency. Good enough for
// self-hosted deployments; a live rate provider can replace it behind the
// same interface.
type StaticConverter struct {
	base  string
	rates map[string]float64
}

func NewStaticConverter(base string, rates map[string]float64) *StaticConverter {
	normalized := make(map[string]float64, len(rates)+1)
	for code, rate := range rates {
		if rate > 0 {
			normalized[strings.ToUpper(strings.TrimSpace(code))] = rate
		}
	}
	base = strings.ToUpper(strings.TrimSpace(base))
	if base == "" {
		base = "USD"
	}
	normalized[base] = 1
	return &StaticConverter{base: base, rates: normalized}
}

func (c *StaticConverter) Convert(amount float64, from, to string) (float64, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == to || from == "" || to == "" {
		return amount, nil
	}

	fromRate, ok := c.rates[from]
	if !ok {
		return amount, ErrUnknownCurrency
	}
	toRate, ok := c.rates[to]
	if !ok {
		return amount, ErrUnknownCurrency
	}

	// Rates are units of the currency per one unit of base.
	return amount / fromRate * toRate, nil
}

var Module = fx.Module("currency",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, holder *config.BillingConfigHolder) Converter {
	billing := holder.Current()
	base := billing.BaseCurrency
	if base == "" {
		base = cfg.BaseCurrency
	}
	return NewStaticConverter(base, billing.Rates)
}
