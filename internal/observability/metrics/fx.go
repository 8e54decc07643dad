package metrics

import (
	"github.com/subtrackhq/subtrack/internal/config"
	"go.uber.org/fx"
)

// Module initializes the billing metrics singleton with the service labels
// before any job runs.
var Module = fx.Module("observability.metrics",
	fx.Invoke(func(cfg config.Config) {
		BillingWithConfig(Config{
			ServiceName: cfg.AppName,
			Environment: cfg.Environment,
		})
	}),
)
