package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/subtrackhq/subtrack/internal/analytics"
	"github.com/subtrackhq/subtrack/internal/billing"
	"github.com/subtrackhq/subtrack/internal/category"
	"github.com/subtrackhq/subtrack/internal/clock"
	"github.com/subtrackhq/subtrack/internal/config"
	"github.com/subtrackhq/subtrack/internal/currency"
	"github.com/subtrackhq/subtrack/internal/logger"
	"github.com/subtrackhq/subtrack/internal/migration"
	"github.com/subtrackhq/subtrack/internal/notification"
	"github.com/subtrackhq/subtrack/internal/observability/metrics"
	"github.com/subtrackhq/subtrack/internal/payment"
	"github.com/subtrackhq/subtrack/internal/scheduler"
	"github.com/subtrackhq/subtrack/internal/subscription"
	"github.com/subtrackhq/subtrack/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		logger.Module,
		metrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional Domains
		currency.Module,
		notification.Module,
		category.Module,
		subscription.Module,
		payment.Module,
		billing.Module,
		analytics.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
