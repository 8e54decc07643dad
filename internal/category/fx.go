package category

import (
	"github.com/subtrackhq/subtrack/internal/category/repository"
	"github.com/subtrackhq/subtrack/internal/category/service"
	"go.uber.org/fx"
)

var Module = fx.Module("category.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
