package event

import (
	"context"
	"errors"
	"strings"
	"time"

	"pixelswap/pkg/errutil"
	"pixelswap/pkg/logger"
	"pixelswap/services/experiment"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pixelswap_events_ingested_total",
	Help: "Ingested storefront events by type and dedup outcome.",
}, []string{"type", "deduplicated"})

const maxSessionIDLen = 128

type Input struct {
	SessionID string   `json:"sessionId"`
	EventType Type     `json:"eventType"`
	ProductID string   `json:"productId"`
	VariantID string   `json:"variantId,omitempty"`
	Revenue   *float64 `json:"revenue,omitempty"`
	Quantity  *int     `json:"quantity,omitempty"`
	// ObservedCase is the client's guess, used only when no experiment is active.
	ObservedCase *experiment.Case `json:"observedCase,omitempty"`
}

type Result struct {
	Accepted     bool             `json:"accepted"`
	ObservedCase *experiment.Case `json:"observedCase"`
	Deduplicated bool             `json:"deduplicated"`
}

// ExperimentLookup finds the experiment attached to a product.
type ExperimentLookup interface {
	GetByProduct(ctx context.Context, productID string) (*experiment.Experiment, error)
}

type Service struct {
	db          *gorm.DB
	experiments ExperimentLookup
	node        *snowflake.Node
	now         func() time.Time
}

type ServiceParams struct {
	fx.In

	DB          *gorm.DB
	Experiments ExperimentLookup
	Node        *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		experiments: p.Experiments,
		node:        p.Node,
		now:         time.Now,
	}
}

func validate(in Input) []errutil.Detail {
	var details []errutil.Detail
	if strings.TrimSpace(in.SessionID) == "" {
		details = append(details, errutil.Detail{Field: "sessionId", Message: "is required"})
	} else if len(in.SessionID) > maxSessionIDLen {
		details = append(details, errutil.Detail{Field: "sessionId", Message: "is too long"})
	}
	if !in.EventType.Valid() {
		details = append(details, errutil.Detail{Field: "eventType", Message: "must be IMPRESSION, ADD_TO_CART or PURCHASE"})
	}
	if strings.TrimSpace(in.ProductID) == "" {
		details = append(details, errutil.Detail{Field: "productId", Message: "is required"})
	}
	if in.Revenue != nil && *in.Revenue < 0 {
		details = append(details, errutil.Detail{Field: "revenue", Message: "must not be negative"})
	}
	if in.Quantity != nil && *in.Quantity < 0 {
		details = append(details, errutil.Detail{Field: "quantity", Message: "must not be negative"})
	}
	if in.ObservedCase != nil && !in.ObservedCase.Valid() {
		details = append(details, errutil.Detail{Field: "observedCase", Message: "must be BASE or TEST"})
	}
	return details
}

// Record stores one storefront event. Only malformed input is an error the
// caller sees as 4xx; a repeated impression is a successful no-op.
func (s *Service) Record(ctx context.Context, in Input) (Result, error) {
	if details := validate(in); len(details) > 0 {
		return Result{}, errutil.ValidationFailed("invalid event", nil, errutil.WithDetails(details...))
	}

	now := s.now().UTC()
	ev := &InteractionEvent{
		ID:        s.node.Generate().String(),
		SessionID: in.SessionID,
		EventType: in.EventType,
		ProductID: in.ProductID,
		EventDay:  now.Format(DayLayout),
		Timestamp: now,
	}
	if in.VariantID != "" {
		ev.VariantID = &in.VariantID
	}
	if in.EventType == TypePurchase {
		ev.Revenue = in.Revenue
		ev.Quantity = in.Quantity
	}

	exp, err := s.experiments.GetByProduct(ctx, in.ProductID)
	switch {
	case err == nil && exp.Status == experiment.StatusActive:
		c := exp.CurrentCase
		ev.ObservedCase = &c
		ev.ExperimentID = &exp.ID
	case err == nil || errors.Is(err, experiment.ErrNotFound):
		ev.ObservedCase = in.ObservedCase
	default:
		return Result{}, errutil.Internal("failed to resolve experiment", err)
	}

	if in.EventType == TypeImpression {
		expID := ""
		if ev.ExperimentID != nil {
			expID = *ev.ExperimentID
		}
		key := ImpressionKey(in.SessionID, expID, in.ProductID, ev.EventDay)
		ev.DedupKey = &key
	}

	deduplicated, err := s.insert(ctx, ev)
	if err != nil {
		logger.FromContext(ctx).Error("failed to store event",
			zap.String("product_id", in.ProductID),
			zap.String("event_type", string(in.EventType)),
			zap.Error(err),
		)
		return Result{}, errutil.Internal("failed to store event", err)
	}

	eventsTotal.WithLabelValues(string(in.EventType), boolLabel(deduplicated)).Inc()
	return Result{Accepted: true, ObservedCase: ev.ObservedCase, Deduplicated: deduplicated}, nil
}

// insert relies on the unique dedup_key. The read is only a shortcut; a
// concurrent duplicate loses the insert race and is reported the same way.
func (s *Service) insert(ctx context.Context, ev *InteractionEvent) (bool, error) {
	db := s.db.WithContext(ctx)
	if ev.DedupKey != nil {
		var n int64
		if err := db.Model(&InteractionEvent{}).Where("dedup_key = ?", *ev.DedupKey).Count(&n).Error; err != nil {
			return false, err
		}
		if n > 0 {
			return true, nil
		}
	}

	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedup_key"}},
		DoNothing: true,
	}).Create(ev)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 0, nil
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
