package rotation

import (
	"context"
	"time"

	"pixelswap/pkg/config"
	"pixelswap/pkg/httpapi"
	"pixelswap/pkg/scheduler"
	"pixelswap/services/media"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rotation.service",
	fx.Provide(
		NewRotator,
		func(svc *media.Service) MediaAssigner { return svc },
		httpapi.AsRoute(NewHandler),
		scheduler.AsJob(NewJob),
	),
)

// NewJob triggers RunDue on ROTATION.SCHEDULE.
func NewJob(cfg *config.Config, rotator *Rotator) scheduler.Job {
	return scheduler.Job{
		Name:    "rotation",
		Spec:    cfg.Rotation.Schedule,
		Timeout: 5 * time.Minute,
		Run: func(ctx context.Context) {
			if _, err := rotator.RunDue(ctx); err != nil {
				zap.L().Error("[Rotation] scheduled run failed", zap.Error(err))
			}
		},
	}
}
