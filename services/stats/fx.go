package stats

import (
	"context"
	"time"

	taskqueue "pixelswap/pkg/asynq"
	"pixelswap/pkg/config"
	"pixelswap/pkg/httpapi"
	"pixelswap/pkg/scheduler"
	"pixelswap/pkg/taskname"
	"pixelswap/services/experiment"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module serves the admin endpoints and schedules the daily rollup.
var Module = fx.Module("stats.service",
	fx.Provide(
		newAggregator,
		newDispatcher,
		httpapi.AsRoute(NewHandler),
		scheduler.AsJob(NewJob),
	),
)

// WorkerModule processes stats:recompute tasks.
var WorkerModule = fx.Module("stats.worker",
	fx.Provide(newAggregator),
	fx.Invoke(registerHandlers),
)

func newAggregator(db *gorm.DB, repo experiment.Repository, cfg *config.Config) *Aggregator {
	return NewAggregator(db, repo, cfg.Stats.Concurrency)
}

type dispatcherParams struct {
	fx.In
	Aggregator *Aggregator
	Enqueuer   taskqueue.Enqueuer `optional:"true"`
}

func newDispatcher(p dispatcherParams) *Dispatcher {
	return NewDispatcher(p.Aggregator, p.Enqueuer)
}

func registerHandlers(mux *asynq.ServeMux, agg *Aggregator) {
	mux.HandleFunc(taskname.StatsRecompute, agg.HandleRecomputeTask)
}

// NewJob dispatches yesterday's rollup on STATS.SCHEDULE.
func NewJob(cfg *config.Config, agg *Aggregator, dispatcher *Dispatcher) scheduler.Job {
	return scheduler.Job{
		Name:    "stats",
		Spec:    cfg.Stats.Schedule,
		Timeout: 10 * time.Minute,
		Run: func(ctx context.Context) {
			if err := dispatcher.DispatchDay(ctx, agg.Yesterday()); err != nil {
				zap.L().Error("[Stats] daily recompute failed", zap.Error(err))
			}
		},
	}
}
