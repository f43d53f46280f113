package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"pixelswap/pkg/errutil"
	"pixelswap/pkg/logger"
	"pixelswap/services/event"
	"pixelswap/services/experiment"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type ExperimentLookup interface {
	GetByID(ctx context.Context, id string) (*experiment.Experiment, error)
}

type Aggregator struct {
	db          *gorm.DB
	experiments ExperimentLookup
	concurrency int
	now         func() time.Time
}

func NewAggregator(db *gorm.DB, experiments ExperimentLookup, concurrency int) *Aggregator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Aggregator{db: db, experiments: experiments, concurrency: concurrency, now: time.Now}
}

// Yesterday is the UTC day the daily run covers.
func (a *Aggregator) Yesterday() string {
	return a.now().UTC().AddDate(0, 0, -1).Format(event.DayLayout)
}

func parseDay(day string) error {
	if _, err := time.Parse(event.DayLayout, day); err != nil {
		return errutil.ValidationFailed("invalid date", err,
			errutil.WithDetails(errutil.Detail{Field: "date", Message: "must be YYYY-MM-DD"}))
	}
	return nil
}

type bucket struct {
	ObservedCase experiment.Case
	VariantID    *string
	Impressions  int64
	AddToCarts   int64
	Purchases    int64
	Revenue      float64
	Quantity     int64
}

const bucketSelect = "observed_case, variant_id, " +
	"SUM(CASE WHEN event_type = 'IMPRESSION' THEN 1 ELSE 0 END) AS impressions, " +
	"SUM(CASE WHEN event_type = 'ADD_TO_CART' THEN 1 ELSE 0 END) AS add_to_carts, " +
	"SUM(CASE WHEN event_type = 'PURCHASE' THEN 1 ELSE 0 END) AS purchases, " +
	"COALESCE(SUM(CASE WHEN event_type = 'PURCHASE' THEN revenue ELSE 0 END), 0) AS revenue, " +
	"COALESCE(SUM(CASE WHEN event_type = 'PURCHASE' THEN quantity ELSE 0 END), 0) AS quantity"

// Recompute rebuilds every row for one experiment and day. Rows are
// replaced wholesale in one transaction, so repeated or concurrent runs
// converge on the same result.
func (a *Aggregator) Recompute(ctx context.Context, experimentID, day string) ([]DailyStatistic, error) {
	if err := parseDay(day); err != nil {
		return nil, err
	}
	exp, err := a.experiments.GetByID(ctx, experimentID)
	if err != nil {
		if errors.Is(err, experiment.ErrNotFound) {
			return nil, errutil.NotFound("experiment not found", err)
		}
		return nil, err
	}

	var buckets []bucket
	err = a.db.WithContext(ctx).
		Model(&event.InteractionEvent{}).
		Select(bucketSelect).
		Where("experiment_id = ? AND event_day = ? AND observed_case IS NOT NULL", experimentID, day).
		Group("observed_case, variant_id").
		Scan(&buckets).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate events: %w", err)
	}

	rows := rollup(experimentID, day, exp.VariantScoped, buckets)

	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("experiment_id = ? AND date = ?", experimentID, day).
			Delete(&DailyStatistic{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("replace daily statistics: %w", err)
	}

	logger.FromContext(ctx).Debug("statistics recomputed",
		zap.String("experiment_id", experimentID),
		zap.String("date", day),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

// rollup always emits experiment-wide rows; per-variant rows only when the
// experiment is variant scoped.
func rollup(experimentID, day string, variantScoped bool, buckets []bucket) []DailyStatistic {
	type key struct {
		variant string
		c       experiment.Case
	}
	acc := map[key]*DailyStatistic{}
	add := func(k key, b bucket) {
		s, ok := acc[k]
		if !ok {
			s = &DailyStatistic{ExperimentID: experimentID, VariantID: k.variant, Date: day, Case: k.c}
			acc[k] = s
		}
		s.Impressions += b.Impressions
		s.AddToCarts += b.AddToCarts
		s.Purchases += b.Purchases
		s.Revenue += b.Revenue
		s.Quantity += b.Quantity
	}

	for _, b := range buckets {
		add(key{c: b.ObservedCase}, b)
		if variantScoped && b.VariantID != nil && *b.VariantID != "" {
			add(key{variant: *b.VariantID, c: b.ObservedCase}, b)
		}
	}

	out := make([]DailyStatistic, 0, len(acc))
	for _, s := range acc {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VariantID != out[j].VariantID {
			return out[i].VariantID < out[j].VariantID
		}
		return out[i].Case < out[j].Case
	})
	return out
}

// ExperimentsWithEvents lists the experiments that received attributed
// events on day.
func (a *Aggregator) ExperimentsWithEvents(ctx context.Context, day string) ([]string, error) {
	var ids []string
	err := a.db.WithContext(ctx).
		Model(&event.InteractionEvent{}).
		Where("event_day = ? AND experiment_id IS NOT NULL", day).
		Distinct().
		Order("experiment_id").
		Pluck("experiment_id", &ids).Error
	return ids, err
}

// RecomputeAll recomputes every experiment active on day with bounded
// parallelism. One failing experiment does not stop the others.
func (a *Aggregator) RecomputeAll(ctx context.Context, day string) error {
	if err := parseDay(day); err != nil {
		return err
	}
	ids, err := a.ExperimentsWithEvents(ctx, day)
	if err != nil {
		return fmt.Errorf("list experiments: %w", err)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := a.Recompute(gctx, id, day); err != nil {
				zap.L().Error("[Stats] recompute failed",
					zap.String("experiment_id", id),
					zap.String("date", day),
					zap.Error(err),
				)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// List returns rows for an experiment between from and to inclusive. Empty
// bounds are open.
func (a *Aggregator) List(ctx context.Context, experimentID, from, to string) ([]DailyStatistic, error) {
	q := a.db.WithContext(ctx).Where("experiment_id = ?", experimentID)
	if from != "" {
		if err := parseDay(from); err != nil {
			return nil, err
		}
		q = q.Where("date >= ?", from)
	}
	if to != "" {
		if err := parseDay(to); err != nil {
			return nil, err
		}
		q = q.Where("date <= ?", to)
	}

	var out []DailyStatistic
	if err := q.Order("date, variant_id, observed_case").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
