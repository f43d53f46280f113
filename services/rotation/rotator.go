package rotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pixelswap/pkg/logger"
	"pixelswap/services/experiment"
	"pixelswap/services/media"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	rotationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixelswap_rotations_total",
		Help: "Rotation attempts by outcome.",
	}, []string{"result"})
	heroFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pixelswap_hero_failures_total",
		Help: "Variant hero assignments that failed.",
	})
)

// MediaAssigner applies a target media state to the catalog.
type MediaAssigner interface {
	Assign(ctx context.Context, a media.Assignment) (media.Report, error)
}

type Result string

const (
	ResultRotated Result = "rotated"
	ResultSkipped Result = "skipped"
	ResultFailed  Result = "failed"
)

type Outcome struct {
	ExperimentID string              `json:"experimentId"`
	Result       Result              `json:"result"`
	Case         experiment.Case     `json:"currentCase,omitempty"`
	HeroFailures []media.HeroFailure `json:"heroFailures,omitempty"`
	Error        string              `json:"error,omitempty"`
}

type Summary struct {
	Processed int `json:"processed"`
	Rotated   int `json:"rotated"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

func (s *Summary) add(r Result) {
	s.Processed++
	switch r {
	case ResultRotated:
		s.Rotated++
	case ResultFailed:
		s.Failed++
	default:
		s.Skipped++
	}
}

var ErrNotActive = errors.New("experiment is not active")

// Rotator is the only writer of an experiment's live case.
type Rotator struct {
	repo        experiment.Repository
	media       MediaAssigner
	invalidator experiment.CacheInvalidator
	now         func() time.Time
}

type Params struct {
	fx.In

	Repository  experiment.Repository
	Media       MediaAssigner
	Invalidator experiment.CacheInvalidator `optional:"true"`
}

func NewRotator(p Params) *Rotator {
	return &Rotator{
		repo:        p.Repository,
		media:       p.Media,
		invalidator: p.Invalidator,
		now:         time.Now,
	}
}

// RunDue rotates every due experiment once. Per-experiment failures are
// folded into the summary; only a failed listing is returned as an error.
// Missed windows are not caught up: the next window is scheduled from now.
func (r *Rotator) RunDue(ctx context.Context) (Summary, error) {
	now := r.now()
	log := logger.FromContext(ctx)

	due, err := r.repo.ListDue(ctx, now)
	if err != nil {
		return Summary{}, fmt.Errorf("list due experiments: %w", err)
	}

	var summary Summary
	for _, exp := range due {
		if ctx.Err() != nil {
			break
		}
		out := r.process(ctx, exp, now)
		summary.add(out.Result)
	}

	log.Info("rotation run finished",
		zap.Int("processed", summary.Processed),
		zap.Int("rotated", summary.Rotated),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

func (r *Rotator) process(ctx context.Context, exp experiment.Experiment, now time.Time) Outcome {
	if !experiment.IsDue(exp, now) {
		return Outcome{ExperimentID: exp.ID, Result: ResultSkipped}
	}
	return r.rotateTo(ctx, exp, experiment.Apply(exp, now), now)
}

// Override forces the live case of an ACTIVE experiment through the same
// claim and assignment path as a scheduled rotation.
func (r *Rotator) Override(ctx context.Context, id string, c experiment.Case) (Outcome, error) {
	exp, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if exp.Status != experiment.StatusActive {
		return Outcome{}, fmt.Errorf("%w: status %s", ErrNotActive, exp.Status)
	}
	now := r.now()
	return r.rotateTo(ctx, *exp, experiment.Force(*exp, c, now), now), nil
}

// Complete ends the experiment and restores the BASE media.
func (r *Rotator) Complete(ctx context.Context, id string) (Outcome, error) {
	exp, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	now := r.now()
	target, err := experiment.Complete(*exp, now)
	if err != nil {
		return Outcome{}, err
	}
	return r.rotateTo(ctx, *exp, target, now), nil
}

// rotateTo claims the experiment, converges the catalog to the target case
// and persists the target. A failed assignment keeps the claim so the next
// window retries without a tight loop.
func (r *Rotator) rotateTo(ctx context.Context, exp, target experiment.Experiment, now time.Time) Outcome {
	log := logger.FromContext(ctx).With(
		zap.String("experiment_id", exp.ID),
		zap.String("product_id", exp.ProductID),
		zap.String("from_case", string(exp.CurrentCase)),
		zap.String("to_case", string(target.CurrentCase)),
	)
	out := Outcome{ExperimentID: exp.ID, Case: exp.CurrentCase}

	window := experiment.ClaimWindow(exp, target, now)
	claimed, err := r.repo.Claim(ctx, exp.ID, exp.Status, exp.NextRotationAt, window, now)
	if err != nil {
		log.Error("claim failed", zap.Error(err))
		return r.fail(out, err)
	}
	if !claimed {
		log.Info("experiment already claimed, skipping")
		rotationsTotal.WithLabelValues(string(ResultSkipped)).Inc()
		out.Result = ResultSkipped
		return out
	}

	report, err := r.media.Assign(ctx, media.Assignment{
		ProductID: exp.ProductID,
		Gallery:   target.MediaFor(target.CurrentCase),
		Heroes:    target.HeroesFor(target.CurrentCase),
	})
	if err != nil {
		reason := fmt.Sprintf("media assignment to %s failed: %v", target.CurrentCase, err)
		log.Error("media assignment failed, experiment needs attention", zap.Error(err))
		if merr := r.repo.MarkAttention(ctx, exp.ID, reason); merr != nil {
			log.Error("failed to flag experiment", zap.Error(merr))
		}
		return r.fail(out, err)
	}

	target.NeedsAttention = false
	target.AttentionReason = ""
	if err := r.repo.SaveTransition(ctx, target, window); err != nil {
		log.Error("failed to persist rotation", zap.Error(err))
		if merr := r.repo.MarkAttention(ctx, exp.ID, "catalog updated but state not saved: "+err.Error()); merr != nil {
			log.Error("failed to flag experiment", zap.Error(merr))
		}
		return r.fail(out, err)
	}

	if err := r.repo.SetHeroFailed(ctx, exp.ID, report.FailedVariants(), true); err != nil {
		log.Warn("failed to flag hero failures", zap.Error(err))
	}
	if err := r.repo.SetHeroFailed(ctx, exp.ID, report.Succeeded, false); err != nil {
		log.Warn("failed to clear hero failures", zap.Error(err))
	}
	if len(report.Failed) > 0 {
		heroFailuresTotal.Add(float64(len(report.Failed)))
		log.Warn("rotation completed with hero failures", zap.Int("failed", len(report.Failed)))
	}

	if r.invalidator != nil {
		if err := r.invalidator.Invalidate(ctx, exp.ProductID); err != nil {
			log.Warn("failed to invalidate active case cache", zap.Error(err))
		}
	}

	rotationsTotal.WithLabelValues(string(ResultRotated)).Inc()
	log.Info("experiment rotated")

	out.Result = ResultRotated
	out.Case = target.CurrentCase
	out.HeroFailures = report.Failed
	return out
}

func (r *Rotator) fail(out Outcome, err error) Outcome {
	rotationsTotal.WithLabelValues(string(ResultFailed)).Inc()
	out.Result = ResultFailed
	out.Error = err.Error()
	return out
}
