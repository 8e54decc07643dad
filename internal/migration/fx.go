package migration

import (
	"strings"

	categorydomain "github.com/subtrackhq/subtrack/internal/category/domain"
	"github.com/subtrackhq/subtrack/internal/config"
	paymentdomain "github.com/subtrackhq/subtrack/internal/payment/domain"
	subscriptiondomain "github.com/subtrackhq/subtrack/internal/subscription/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if strings.EqualFold(cfg.DBType, "postgres") {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// Versioned migrations are postgres-only; other dialects get the
		// schema through gorm so local sqlite setups still work.
		return conn.AutoMigrate(
			&subscriptiondomain.Subscription{},
			&paymentdomain.PaymentRecord{},
			&categorydomain.Category{},
		)
	}),
)
