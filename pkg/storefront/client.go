package storefront

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
)

type ClientOptions struct {
	BaseURL string
	// Timeout bounds a whole call including retries.
	Timeout time.Duration
	Retries uint64
	Backoff time.Duration
}

// Client talks to the public storefront endpoints of the API.
type Client struct {
	http *resty.Client
	opts ClientOptions
}

func NewClient(opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}
	return &Client{
		http: resty.New().
			SetBaseURL(opts.BaseURL).
			SetHeader("Accept", "application/json"),
		opts: opts,
	}
}

var errStatus = errors.New("storefront: unexpected status")

// ActiveCase retries on transport errors and 5xx with a fixed delay.
func (c *Client) ActiveCase(ctx context.Context, productID, variantID string) (*ActiveCase, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	var out ActiveCase
	op := func() error {
		req := c.http.R().
			SetContext(ctx).
			SetQueryParam("product_id", productID).
			SetResult(&out)
		if variantID != "" {
			req.SetQueryParam("variant_id", variantID)
		}
		resp, err := req.Get("/storefront/v1/active-case")
		if err != nil {
			return err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %d", errStatus, resp.StatusCode())
		}
		if resp.IsError() {
			return backoff.Permanent(fmt.Errorf("%w: %d", errStatus, resp.StatusCode()))
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.opts.Backoff), c.opts.Retries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return &out, nil
}

// Send posts one event. Events are best effort and never retried.
func (c *Client) Send(ctx context.Context, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(ev).
		Post("/storefront/v1/events")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %d", errStatus, resp.StatusCode())
	}
	return nil
}
