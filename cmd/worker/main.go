package main

import (
	"log"

	taskqueue "pixelswap/pkg/asynq"
	"pixelswap/pkg/config"
	"pixelswap/pkg/db"
	"pixelswap/pkg/health"
	"pixelswap/pkg/httpapi"
	"pixelswap/pkg/logger"
	"pixelswap/pkg/otelcol"
	"pixelswap/pkg/profiling"
	"pixelswap/pkg/redis"
	"pixelswap/pkg/server"
	"pixelswap/services/experiment"
	"pixelswap/services/stats"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// The worker drains stats:recompute tasks and serves only health and
// metrics over HTTP. Schema migration stays with the API binary.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		fx.Provide(experiment.NewRepository),
		taskqueue.Server,
		stats.WorkerModule,
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
