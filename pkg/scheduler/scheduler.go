// Package scheduler runs in-process cron jobs for the API binary.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(New),
	fx.Invoke(Start),
)

// Job is a named cron entry. An empty Spec disables the job.
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context)
}

// AsJob annotates a Job constructor so it joins the scheduler.
func AsJob(f any) any {
	return fx.Annotate(f, fx.ResultTags(`group:"jobs"`))
}

type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
	stop context.CancelFunc
}

type Params struct {
	fx.In
	Jobs []Job `group:"jobs"`
}

func New(p Params) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(zapLogger{}),
			cron.WithChain(cron.Recover(zapLogger{}), cron.SkipIfStillRunning(zapLogger{})),
		),
		ctx:  ctx,
		stop: cancel,
	}
	for _, job := range p.Jobs {
		if err := s.Add(job); err != nil {
			cancel()
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) Add(job Job) error {
	if job.Spec == "" {
		zap.L().Info("[Scheduler] job disabled", zap.String("job", job.Name))
		return nil
	}
	_, err := s.cron.AddFunc(job.Spec, func() { s.run(job) })
	if err != nil {
		return err
	}
	zap.L().Info("[Scheduler] job registered", zap.String("job", job.Name), zap.String("spec", job.Spec))
	return nil
}

func (s *Scheduler) run(job Job) {
	ctx := s.ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	zap.L().Debug("[Scheduler] running job", zap.String("job", job.Name))
	job.Run(ctx)
	zap.L().Debug("[Scheduler] job finished", zap.String("job", job.Name), zap.Duration("duration", time.Since(start)))
}

func Start(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.cron.Start()
			zap.L().Info("[Scheduler] started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.stop()
			done := s.cron.Stop()
			select {
			case <-done.Done():
			case <-ctx.Done():
				zap.L().Warn("[Scheduler] stopped before running jobs finished")
			}
			return nil
		},
	})
}

// zapLogger adapts cron's logr-style logger to the global zap logger.
type zapLogger struct{}

func (zapLogger) Info(msg string, keysAndValues ...interface{}) {
	zap.S().Debugw("[Scheduler] "+msg, keysAndValues...)
}

func (zapLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	zap.S().Errorw("[Scheduler] "+msg, append(keysAndValues, "error", err)...)
}
