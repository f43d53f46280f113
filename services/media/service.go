package media

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"pixelswap/pkg/catalog"
	"pixelswap/pkg/config"
	"pixelswap/pkg/logger"
	"pixelswap/services/experiment"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	// ErrMissingMedia means a target id was never uploaded to the product.
	ErrMissingMedia = errors.New("target media not uploaded")
	// ErrGalleryRejected means the catalog refused one or more gallery items.
	ErrGalleryRejected = errors.New("gallery update rejected")
)

// Assignment is the desired live state of one product.
type Assignment struct {
	ProductID string
	Gallery   []string
	// Heroes maps variant id to its hero media id.
	Heroes map[string]string
}

type HeroFailure struct {
	VariantID string `json:"variantId"`
	MediaID   string `json:"mediaId"`
	Reason    string `json:"reason"`
}

// Report is the partial-success outcome of an assignment. The gallery call
// has already succeeded when a Report is returned without error.
type Report struct {
	Gallery   catalog.GalleryResult `json:"gallery"`
	Succeeded []string              `json:"succeeded"`
	Failed    []HeroFailure         `json:"failed"`
}

func (r Report) FailedVariants() []string {
	out := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		out = append(out, f.VariantID)
	}
	return out
}

// AssetStore remembers media URLs seen on the catalog.
type AssetStore interface {
	UpsertMediaAssets(ctx context.Context, assets []experiment.MediaAsset) error
}

type Options struct {
	MaxRetries      uint64
	AttemptTimeout  time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type Service struct {
	client catalog.Client
	assets AssetStore
	opts   Options
}

type ServiceParams struct {
	fx.In

	Client catalog.Client
	Assets AssetStore `optional:"true"`
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return New(p.Client, p.Assets, Options{
		MaxRetries:     p.Config.Catalog.MaxRetries,
		AttemptTimeout: p.Config.Catalog.Timeout,
	})
}

func New(client catalog.Client, assets AssetStore, opts Options) *Service {
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 10 * time.Second
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 5 * time.Second
	}
	return &Service{client: client, assets: assets, opts: opts}
}

func (s *Service) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialInterval
	b.MaxInterval = s.opts.MaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, s.opts.MaxRetries), ctx)
}

// retry runs op with a hard per-attempt timeout. Only transient catalog
// errors are retried.
func (s *Service) retry(ctx context.Context, name string, op func(ctx context.Context) error) error {
	log := logger.FromContext(ctx)
	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		actx, cancel := context.WithTimeout(ctx, s.opts.AttemptTimeout)
		defer cancel()

		err := op(actx)
		if err == nil {
			return nil
		}
		if errors.Is(err, catalog.ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return backoff.Permanent(err)
	}, s.backoff(ctx), func(err error, wait time.Duration) {
		log.Warn("catalog call failed, retrying",
			zap.String("op", name),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
}

// Assign converges a product's gallery and variant heroes to the target.
// Nothing is ever deleted from the catalog.
func (s *Service) Assign(ctx context.Context, a Assignment) (Report, error) {
	log := logger.FromContext(ctx).With(zap.String("product_id", a.ProductID))

	var uploaded []catalog.Media
	if err := s.retry(ctx, "list_media", func(ctx context.Context) error {
		var err error
		uploaded, err = s.client.ListProductMedia(ctx, a.ProductID)
		return err
	}); err != nil {
		return Report{}, fmt.Errorf("list product media: %w", err)
	}

	s.rememberURLs(ctx, a.ProductID, uploaded)

	if missing := missingIDs(uploaded, a.Gallery, a.Heroes); len(missing) > 0 {
		return Report{}, fmt.Errorf("%w: %s", ErrMissingMedia, strings.Join(missing, ","))
	}

	var report Report
	if err := s.retry(ctx, "set_gallery", func(ctx context.Context) error {
		res, err := s.client.SetGalleryMedia(ctx, a.ProductID, a.Gallery)
		if err != nil {
			return err
		}
		if failed := res.Failed(); len(failed) > 0 {
			return fmt.Errorf("%w: %d of %d items, first %s: %s",
				ErrGalleryRejected, len(failed), len(res.Items), failed[0].MediaID, failed[0].Error)
		}
		report.Gallery = res
		return nil
	}); err != nil {
		return Report{}, fmt.Errorf("set gallery media: %w", err)
	}

	variants := make([]string, 0, len(a.Heroes))
	for v := range a.Heroes {
		variants = append(variants, v)
	}
	sort.Strings(variants)

	report.Succeeded = make([]string, 0, len(variants))
	for _, variantID := range variants {
		mediaID := a.Heroes[variantID]
		if err := s.setHero(ctx, a.ProductID, variantID, mediaID); err != nil {
			log.Warn("hero assignment failed",
				zap.String("variant_id", variantID),
				zap.String("media_id", mediaID),
				zap.Error(err),
			)
			report.Failed = append(report.Failed, HeroFailure{VariantID: variantID, MediaID: mediaID, Reason: err.Error()})
			continue
		}
		report.Succeeded = append(report.Succeeded, variantID)
	}

	log.Info("media assigned",
		zap.Int("gallery", len(a.Gallery)),
		zap.Int("heroes_ok", len(report.Succeeded)),
		zap.Int("heroes_failed", len(report.Failed)),
	)
	return report, nil
}

func (s *Service) setHero(ctx context.Context, productID, variantID, mediaID string) error {
	hctx, cancel := context.WithTimeout(ctx, s.opts.AttemptTimeout)
	defer cancel()

	res, err := s.client.SetVariantHero(hctx, productID, variantID, mediaID)
	if err != nil {
		return err
	}
	if !res.OK {
		if res.Error == "" {
			return errors.New("rejected by catalog")
		}
		return errors.New(res.Error)
	}
	return nil
}

func (s *Service) rememberURLs(ctx context.Context, productID string, uploaded []catalog.Media) {
	if s.assets == nil || len(uploaded) == 0 {
		return
	}
	assets := make([]experiment.MediaAsset, 0, len(uploaded))
	for _, m := range uploaded {
		if m.URL == "" {
			continue
		}
		assets = append(assets, experiment.MediaAsset{MediaID: m.ID, ProductID: productID, URL: m.URL})
	}
	if err := s.assets.UpsertMediaAssets(ctx, assets); err != nil {
		logger.FromContext(ctx).Warn("failed to record media urls", zap.String("product_id", productID), zap.Error(err))
	}
}

func missingIDs(uploaded []catalog.Media, gallery []string, heroes map[string]string) []string {
	have := make(map[string]bool, len(uploaded))
	for _, m := range uploaded {
		have[m.ID] = true
	}
	seen := make(map[string]bool)
	var missing []string
	check := func(id string) {
		if id == "" || have[id] || seen[id] {
			return
		}
		seen[id] = true
		missing = append(missing, id)
	}
	for _, id := range gallery {
		check(id)
	}
	for _, id := range heroes {
		check(id)
	}
	sort.Strings(missing)
	return missing
}
