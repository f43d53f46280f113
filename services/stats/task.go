package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	taskqueue "pixelswap/pkg/asynq"
	"pixelswap/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type RecomputePayload struct {
	ExperimentID string `json:"experiment_id"`
	Date         string `json:"date"`
}

func NewRecomputeTask(p RecomputePayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.StatsRecompute, payload,
		asynq.Queue(taskqueue.QueueLow),
		asynq.MaxRetry(5),
		asynq.Timeout(2*time.Minute),
	), nil
}

// Dispatcher hands recompute work to the worker when a queue is wired and
// runs it inline otherwise.
type Dispatcher struct {
	agg      *Aggregator
	enqueuer taskqueue.Enqueuer
}

func NewDispatcher(agg *Aggregator, enqueuer taskqueue.Enqueuer) *Dispatcher {
	return &Dispatcher{agg: agg, enqueuer: enqueuer}
}

func (d *Dispatcher) Queued() bool { return d.enqueuer != nil }

func (d *Dispatcher) Dispatch(ctx context.Context, experimentID, day string) error {
	if d.enqueuer == nil {
		_, err := d.agg.Recompute(ctx, experimentID, day)
		return err
	}
	task, err := NewRecomputeTask(RecomputePayload{ExperimentID: experimentID, Date: day})
	if err != nil {
		return err
	}
	info, err := d.enqueuer.Enqueue(ctx, task)
	if err != nil {
		return err
	}
	zap.L().Debug("[Stats] recompute enqueued",
		zap.String("experiment_id", experimentID),
		zap.String("date", day),
		zap.String("task_id", info.ID),
	)
	return nil
}

// DispatchDay fans out one recompute per experiment with events on day.
func (d *Dispatcher) DispatchDay(ctx context.Context, day string) error {
	if d.enqueuer == nil {
		return d.agg.RecomputeAll(ctx, day)
	}
	ids, err := d.agg.ExperimentsWithEvents(ctx, day)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := d.Dispatch(ctx, id, day); err != nil {
			return fmt.Errorf("enqueue %s: %w", id, err)
		}
	}
	zap.L().Info("[Stats] daily recompute dispatched", zap.String("date", day), zap.Int("experiments", len(ids)))
	return nil
}

// HandleRecomputeTask is the worker side of stats:recompute.
func (a *Aggregator) HandleRecomputeTask(ctx context.Context, t *asynq.Task) error {
	var payload RecomputePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		zap.L().Error("invalid recompute payload", zap.Error(err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	rows, err := a.Recompute(ctx, payload.ExperimentID, payload.Date)
	if err != nil {
		zap.L().Error("failed to recompute statistics",
			zap.String("experiment_id", payload.ExperimentID),
			zap.String("date", payload.Date),
			zap.Error(err),
		)
		return err
	}

	zap.L().Info("Finished recompute task",
		zap.String("experiment_id", payload.ExperimentID),
		zap.String("date", payload.Date),
		zap.Int("rows", len(rows)),
	)
	return nil
}
