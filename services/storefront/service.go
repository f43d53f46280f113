package storefront

import (
	"context"
	"errors"

	"pixelswap/pkg/logger"
	"pixelswap/services/experiment"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ActiveCase is the storefront's view of the live image set. ObservedCase
// is null when the product has no ACTIVE experiment.
type ActiveCase struct {
	ObservedCase     *experiment.Case `json:"observedCase"`
	GalleryMediaURLs []string         `json:"galleryMediaUrls,omitempty"`
	HeroMediaURL     string           `json:"heroMediaUrl,omitempty"`
	ExperimentID     string           `json:"experimentId,omitempty"`
}

type Service struct {
	repo  experiment.Repository
	cache Cache
	group singleflight.Group
}

func NewService(repo experiment.Repository, cache Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

func (s *Service) ActiveCase(ctx context.Context, productID, variantID string) (ActiveCase, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(ctx, productID, variantID); ok {
			return *v, nil
		}
	}

	v, err, _ := s.group.Do(productID+"|"+variantID, func() (any, error) {
		// The generation is read before resolving; a rotation that lands
		// in between bumps it and the write below is dropped.
		var gen int64
		cacheable := s.cache != nil
		if cacheable {
			var err error
			if gen, err = s.cache.Generation(ctx, productID); err != nil {
				logger.FromContext(ctx).Warn("active case generation unavailable, not caching",
					zap.String("product_id", productID), zap.Error(err))
				cacheable = false
			}
		}

		ac, err := s.resolve(ctx, productID, variantID)
		if err != nil {
			return ActiveCase{}, err
		}
		if cacheable {
			s.cache.Set(ctx, productID, variantID, gen, ac)
		}
		return ac, nil
	})
	if err != nil {
		return ActiveCase{}, err
	}
	return v.(ActiveCase), nil
}

func (s *Service) resolve(ctx context.Context, productID, variantID string) (ActiveCase, error) {
	exp, err := s.repo.GetByProduct(ctx, productID)
	if errors.Is(err, experiment.ErrNotFound) {
		return ActiveCase{}, nil
	}
	if err != nil {
		return ActiveCase{}, err
	}
	if exp.Status != experiment.StatusActive {
		return ActiveCase{}, nil
	}

	c := exp.CurrentCase
	gallery := exp.MediaFor(c)
	ids := append([]string(nil), gallery...)

	var heroID string
	if variantID != "" {
		for _, o := range exp.Overrides {
			if o.VariantID == variantID {
				heroID = o.HeroFor(c)
				break
			}
		}
		if heroID != "" {
			ids = append(ids, heroID)
		}
	}

	urls, err := s.repo.MediaURLs(ctx, ids)
	if err != nil {
		return ActiveCase{}, err
	}

	out := ActiveCase{
		ObservedCase:     &c,
		ExperimentID:     exp.ID,
		GalleryMediaURLs: make([]string, 0, len(gallery)),
		HeroMediaURL:     urls[heroID],
	}
	// A partial gallery would hide slots it cannot fill, so the storefront
	// gets no case until every URL is known.
	for _, id := range gallery {
		u := urls[id]
		if u == "" {
			logger.FromContext(ctx).Warn("media url unknown, serving no case",
				zap.String("media_id", id),
				zap.String("experiment_id", exp.ID),
			)
			return ActiveCase{}, nil
		}
		out.GalleryMediaURLs = append(out.GalleryMediaURLs, u)
	}
	return out, nil
}

// Invalidate drops every cached variant answer of a product.
func (s *Service) Invalidate(ctx context.Context, productID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, productID)
}
