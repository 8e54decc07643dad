package payment

import (
	"github.com/subtrackhq/subtrack/internal/payment/repository"
	"github.com/subtrackhq/subtrack/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
