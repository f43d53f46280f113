package experiment

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"pixelswap/pkg/errutil"
	"pixelswap/pkg/logger"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// CacheInvalidator drops cached storefront answers for a product.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, productID string) error
}

type OverrideInput struct {
	VariantID     string `json:"variantId"`
	BaseHeroMedia string `json:"baseHeroMedia"`
	TestHeroMedia string `json:"testHeroMedia"`
}

type CreateInput struct {
	ProductID               string            `json:"productId"`
	RotationIntervalSeconds int64             `json:"rotationIntervalSeconds"`
	BaseMedia               []string          `json:"baseMedia"`
	TestMedia               []string          `json:"testMedia"`
	VariantScoped           bool              `json:"variantScoped"`
	Overrides               []OverrideInput   `json:"overrides"`
	MediaURLs               map[string]string `json:"mediaUrls"`
}

type Service struct {
	repo        Repository
	node        *snowflake.Node
	invalidator CacheInvalidator
	now         func() time.Time
}

type ServiceParams struct {
	fx.In

	Repository  Repository
	Node        *snowflake.Node
	Invalidator CacheInvalidator `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	if p.Repository == nil {
		panic("experiment service requires repository dependency")
	}
	return &Service{
		repo:        p.Repository,
		node:        p.Node,
		invalidator: p.Invalidator,
		now:         time.Now,
	}
}

func validateCreate(in CreateInput) []errutil.Detail {
	var details []errutil.Detail
	if strings.TrimSpace(in.ProductID) == "" {
		details = append(details, errutil.Detail{Field: "productId", Message: "is required"})
	}
	if in.RotationIntervalSeconds <= 0 {
		details = append(details, errutil.Detail{Field: "rotationIntervalSeconds", Message: "must be positive"})
	}
	if len(in.BaseMedia) == 0 {
		details = append(details, errutil.Detail{Field: "baseMedia", Message: "must not be empty"})
	}
	if len(in.TestMedia) == 0 {
		details = append(details, errutil.Detail{Field: "testMedia", Message: "must not be empty"})
	}

	known := func(id string) bool {
		return slices.Contains(in.BaseMedia, id) || slices.Contains(in.TestMedia, id)
	}
	seen := make(map[string]bool, len(in.Overrides))
	for _, o := range in.Overrides {
		switch {
		case o.VariantID == "":
			details = append(details, errutil.Detail{Field: "overrides.variantId", Message: "is required"})
		case seen[o.VariantID]:
			details = append(details, errutil.Detail{Field: "overrides." + o.VariantID, Message: "duplicate variant"})
		}
		seen[o.VariantID] = true
		if o.BaseHeroMedia != "" && !known(o.BaseHeroMedia) {
			details = append(details, errutil.Detail{Field: "overrides." + o.VariantID + ".baseHeroMedia", Message: "must belong to the experiment media"})
		}
		if o.TestHeroMedia != "" && !known(o.TestHeroMedia) {
			details = append(details, errutil.Detail{Field: "overrides." + o.VariantID + ".testHeroMedia", Message: "must belong to the experiment media"})
		}
	}
	return details
}

// Create stores a DRAFT experiment. Media is assumed to be uploaded already.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Experiment, error) {
	if details := validateCreate(in); len(details) > 0 {
		return nil, errutil.ValidationFailed("invalid experiment", nil, errutil.WithDetails(details...))
	}

	if existing, err := s.repo.GetByProduct(ctx, in.ProductID); err == nil && existing != nil {
		return nil, errutil.Conflict("product already has an experiment", nil)
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, errutil.Internal("failed to load experiment", err)
	}

	exp := &Experiment{
		ID:                      s.node.Generate().String(),
		ProductID:               in.ProductID,
		Status:                  StatusDraft,
		CurrentCase:             CaseBase,
		RotationIntervalSeconds: in.RotationIntervalSeconds,
		BaseMedia:               in.BaseMedia,
		TestMedia:               in.TestMedia,
		VariantScoped:           in.VariantScoped,
	}
	for _, o := range in.Overrides {
		exp.Overrides = append(exp.Overrides, VariantOverride{
			VariantID:     o.VariantID,
			BaseHeroMedia: o.BaseHeroMedia,
			TestHeroMedia: o.TestHeroMedia,
		})
	}

	if err := s.repo.Create(ctx, exp); err != nil {
		logger.FromContext(ctx).Error("failed to create experiment", zap.Error(err))
		return nil, errutil.Internal("failed to create experiment", err)
	}

	if len(in.MediaURLs) > 0 {
		assets := make([]MediaAsset, 0, len(in.MediaURLs))
		for id, url := range in.MediaURLs {
			assets = append(assets, MediaAsset{MediaID: id, ProductID: in.ProductID, URL: url})
		}
		if err := s.repo.UpsertMediaAssets(ctx, assets); err != nil {
			logger.FromContext(ctx).Warn("failed to store media urls", zap.String("experiment_id", exp.ID), zap.Error(err))
		}
	}

	return exp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Experiment, error) {
	exp, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, errutil.NotFound("experiment not found", err)
	}
	if err != nil {
		return nil, errutil.Internal("failed to load experiment", err)
	}
	return exp, nil
}

// Activate starts the rotation clock of a DRAFT or PAUSED experiment.
func (s *Service) Activate(ctx context.Context, id string) (*Experiment, error) {
	return s.transition(ctx, id, func(exp Experiment) (Experiment, error) {
		return Activate(exp, s.now())
	})
}

func (s *Service) Pause(ctx context.Context, id string) (*Experiment, error) {
	return s.transition(ctx, id, Pause)
}

func (s *Service) transition(ctx context.Context, id string, fn func(Experiment) (Experiment, error)) (*Experiment, error) {
	exp, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := fn(*exp)
	if err != nil {
		return nil, errutil.UnprocessableEntity(err.Error(), err)
	}

	if err := s.repo.SaveTransition(ctx, next, exp.NextRotationAt); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, errutil.Conflict("experiment changed, retry", err)
		}
		return nil, errutil.Internal("failed to save experiment", err)
	}

	logger.FromContext(ctx).Info("experiment transitioned",
		zap.String("experiment_id", id),
		zap.String("from", string(exp.Status)),
		zap.String("to", string(next.Status)),
	)

	s.invalidate(ctx, next.ProductID)
	return &next, nil
}

func (s *Service) invalidate(ctx context.Context, productID string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, productID); err != nil {
		logger.FromContext(ctx).Warn("failed to invalidate active case cache", zap.String("product_id", productID), zap.Error(err))
	}
}
