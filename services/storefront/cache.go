package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"pixelswap/pkg/rediskey"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	cacheHits  = promauto.NewCounter(prometheus.CounterOpts{Name: "pixelswap_active_case_cache_hits_total"})
	cacheMiss  = promauto.NewCounter(prometheus.CounterOpts{Name: "pixelswap_active_case_cache_miss_total"})
	cacheStale = promauto.NewCounter(prometheus.CounterOpts{Name: "pixelswap_active_case_cache_stale_writes_total"})
)

var errStaleFill = errors.New("active case invalidated during fill")

// Cache holds active-case answers per product, one entry per variant.
//
// Every Delete bumps the product's generation. Set only writes when the
// generation still matches the one read before the answer was resolved.
type Cache interface {
	Get(ctx context.Context, productID, variantID string) (*ActiveCase, bool)
	Generation(ctx context.Context, productID string) (int64, error)
	Set(ctx context.Context, productID, variantID string, gen int64, v ActiveCase)
	Delete(ctx context.Context, productID string) error
}

// redisCache stores a hash per product so one DEL drops every variant.
type redisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) Cache {
	return &redisCache{rdb: rdb, ttl: ttl}
}

func (c *redisCache) Get(ctx context.Context, productID, variantID string) (*ActiveCase, bool) {
	raw, err := c.rdb.HGet(ctx, rediskey.BuildActiveCaseKey(productID), rediskey.ActiveCaseField(variantID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("active case cache read failed", zap.String("product_id", productID), zap.Error(err))
		}
		cacheMiss.Inc()
		return nil, false
	}

	var v ActiveCase
	if err := json.Unmarshal(raw, &v); err != nil {
		cacheMiss.Inc()
		return nil, false
	}
	cacheHits.Inc()
	return &v, true
}

func (c *redisCache) Generation(ctx context.Context, productID string) (int64, error) {
	gen, err := c.rdb.Get(ctx, rediskey.BuildActiveCaseGenKey(productID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *redisCache) Set(ctx context.Context, productID, variantID string, gen int64, v ActiveCase) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	key := rediskey.BuildActiveCaseKey(productID)
	genKey := rediskey.BuildActiveCaseGenKey(productID)

	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, rediskey.ActiveCaseField(variantID), raw)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		cacheStale.Inc()
	default:
		zap.L().Warn("active case cache write failed", zap.String("product_id", productID), zap.Error(err))
	}
}

func (c *redisCache) Delete(ctx context.Context, productID string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, rediskey.BuildActiveCaseGenKey(productID))
		pipe.Del(ctx, rediskey.BuildActiveCaseKey(productID))
		return nil
	})
	return err
}
