// Package catalog is the outbound client for the storefront product catalog.
// The catalog is treated as append-only: nothing here deletes media.
package catalog

//go:generate mockgen -source=client.go -destination=mock/client.go -package=mock

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pixelswap/pkg/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog",
	fx.Provide(NewFromConfig),
)

// ErrTransient marks failures worth retrying: timeouts, transport errors,
// 429 and 5xx responses.
var ErrTransient = errors.New("catalog: transient failure")

type Media struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Position int    `json:"position"`
}

// ItemResult is the per-media outcome of a gallery write.
type ItemResult struct {
	MediaID string `json:"media_id"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

type GalleryResult struct {
	ProductID string       `json:"product_id"`
	Items     []ItemResult `json:"items"`
}

// Failed returns the items the catalog rejected.
func (r GalleryResult) Failed() []ItemResult {
	var out []ItemResult
	for _, it := range r.Items {
		if !it.OK {
			out = append(out, it)
		}
	}
	return out
}

type HeroResult struct {
	VariantID string `json:"variant_id"`
	MediaID   string `json:"media_id"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// Client is the subset of the catalog API consumed by media assignment.
type Client interface {
	ListProductMedia(ctx context.Context, productID string) ([]Media, error)
	// SetGalleryMedia replaces gallery membership and order in one call.
	SetGalleryMedia(ctx context.Context, productID string, mediaIDs []string) (GalleryResult, error)
	SetVariantHero(ctx context.Context, productID, variantID, mediaID string) (HeroResult, error)
}

type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("catalog: status %d: %s %s", e.StatusCode, e.Code, e.Message)
}

type restyClient struct {
	http *resty.Client
}

type Options struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

func New(opts Options) Client {
	c := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")
	if opts.AccessToken != "" {
		c.SetAuthToken(opts.AccessToken)
	}
	return &restyClient{http: c}
}

func NewFromConfig(cfg *config.Config) Client {
	return New(Options{
		BaseURL:     cfg.Catalog.BaseURL,
		AccessToken: cfg.Catalog.AccessToken,
		Timeout:     cfg.Catalog.Timeout,
	})
}

func (c *restyClient) ListProductMedia(ctx context.Context, productID string) ([]Media, error) {
	var out struct {
		Media []Media `json:"media"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("productId", productID).
		SetResult(&out).
		SetError(&APIError{}).
		Get("/products/{productId}/media")
	if err := classify(resp, err); err != nil {
		return nil, err
	}
	return out.Media, nil
}

func (c *restyClient) SetGalleryMedia(ctx context.Context, productID string, mediaIDs []string) (GalleryResult, error) {
	var out GalleryResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("productId", productID).
		SetBody(map[string]any{"media_ids": mediaIDs}).
		SetResult(&out).
		SetError(&APIError{}).
		Put("/products/{productId}/gallery")
	if err := classify(resp, err); err != nil {
		return GalleryResult{}, err
	}
	return out, nil
}

func (c *restyClient) SetVariantHero(ctx context.Context, productID, variantID, mediaID string) (HeroResult, error) {
	var out HeroResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"productId": productID,
			"variantId": variantID,
		}).
		SetBody(map[string]any{"media_id": mediaID}).
		SetResult(&out).
		SetError(&APIError{}).
		Put("/products/{productId}/variants/{variantId}/hero")
	if err := classify(resp, err); err != nil {
		return HeroResult{}, err
	}
	return out, nil
}

func classify(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if !resp.IsError() {
		return nil
	}

	status := resp.StatusCode()
	apiErr, _ := resp.Error().(*APIError)
	if apiErr == nil {
		apiErr = &APIError{}
	}
	apiErr.StatusCode = status
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}

	if status == http.StatusTooManyRequests || status >= 500 {
		return fmt.Errorf("%w: %w", ErrTransient, apiErr)
	}
	return apiErr
}
