package main

import (
	"log"

	taskqueue "pixelswap/pkg/asynq"
	"pixelswap/pkg/catalog"
	"pixelswap/pkg/config"
	"pixelswap/pkg/db"
	"pixelswap/pkg/health"
	"pixelswap/pkg/httpapi"
	"pixelswap/pkg/logger"
	"pixelswap/pkg/otelcol"
	"pixelswap/pkg/profiling"
	"pixelswap/pkg/redis"
	"pixelswap/pkg/scheduler"
	"pixelswap/pkg/server"
	"pixelswap/services/bootstrap"
	"pixelswap/services/event"
	"pixelswap/services/experiment"
	"pixelswap/services/media"
	"pixelswap/services/rotation"
	"pixelswap/services/stats"
	"pixelswap/services/storefront"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		bootstrap.Module,
		fx.Provide(provideSnowflakeNode),
		taskqueue.Client,
		catalog.Module,
		experiment.Module,
		media.Module,
		rotation.Module,
		storefront.Module,
		event.Module,
		stats.Module,
		scheduler.Module,
		health.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "production" {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger.Named("fx")}
})

func provideSnowflakeNode(cfg *config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
